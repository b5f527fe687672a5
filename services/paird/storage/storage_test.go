package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"oraclepair/core/events"
)

var (
	pairA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	pairB = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := New(db)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(pair, sender, to common.Address, ts int64) *SwapRecord {
	return &SwapRecord{
		Pair: pair.Hex(), Sender: sender.Hex(), Recipient: to.Hex(),
		Amount0In: "1001", Amount1In: "0", Amount0Out: "0", Amount1Out: "1000",
		Fee0: "0", Fee1: "1", Price: "1000000000000000000", Timestamp: ts,
	}
}

func TestRecordAndGetSwap(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	rec := record(pairA, alice, bob, 100)
	require.NoError(t, store.RecordSwap(ctx, rec))
	require.NotEqual(t, uuid.Nil, rec.ID)
	require.Equal(t, strings.ToLower(pairA.Hex()), rec.Pair)

	loaded, err := store.GetSwap(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "1000", loaded.Amount1Out)
	require.Equal(t, int64(100), loaded.Timestamp)

	_, err = store.GetSwap(ctx, uuid.New())
	require.Error(t, err)
}

func TestListSwapsFilters(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.RecordSwap(ctx, record(pairA, alice, bob, 100)))
	require.NoError(t, store.RecordSwap(ctx, record(pairA, carol, carol, 200)))
	require.NoError(t, store.RecordSwap(ctx, record(pairB, alice, alice, 300)))

	all, err := store.ListSwaps(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int64(300), all[0].Timestamp)

	onA, err := store.ListSwaps(ctx, Filter{Pair: pairA.Hex()})
	require.NoError(t, err)
	require.Len(t, onA, 2)
	require.Equal(t, int64(200), onA[0].Timestamp)

	// Matches as recipient too.
	forBob, err := store.ListSwaps(ctx, Filter{Account: bob.Hex()})
	require.NoError(t, err)
	require.Len(t, forBob, 1)

	limited, err := store.ListSwaps(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestRecorderJoinsFeeWithSwap(t *testing.T) {
	store := openTestDB(t)
	rec := NewRecorder(store, nil)

	rec.Emit(events.PairFee{Pair: pairA, Fee0: uint256.NewInt(0), Fee1: uint256.NewInt(3)})
	rec.Emit(events.PairSync{Pair: pairA})
	rec.Emit(events.PairSwap{
		Pair:       pairA,
		Sender:     alice,
		To:         bob,
		Amount0In:  uint256.NewInt(1001),
		Amount1Out: uint256.NewInt(1000),
		Price:      uint256.NewInt(7),
		Timestamp:  42,
	})

	last := rec.TakeLast()
	require.NotNil(t, last)
	require.Nil(t, rec.TakeLast())
	require.Equal(t, "3", last.Fee1)
	require.Equal(t, "0", last.Amount1In)

	stored, err := store.GetSwap(context.Background(), last.ID)
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(bob.Hex()), stored.Recipient)
	require.Equal(t, int64(42), stored.Timestamp)

	// A swap without a preceding fee event records zero fees.
	rec.Emit(events.PairSwap{Pair: pairB, Sender: alice, To: alice, Timestamp: 43})
	require.Equal(t, "0", rec.TakeLast().Fee1)
}

func TestOpenFileAndDrivers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.sqlite")
	store, err := Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, store.RecordSwap(context.Background(), record(pairA, alice, bob, 1)))
	require.NoError(t, store.Close())

	reopened, err := Open("", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	swaps, err := reopened.ListSwaps(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, swaps, 1)

	_, err = Open("mysql", "dsn")
	require.ErrorIs(t, err, ErrUnknownDriver)
	_, err = Open("sqlite", " ")
	require.ErrorIs(t, err, ErrPathRequired)
}
