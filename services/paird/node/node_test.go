package node

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"oraclepair/config"
	"oraclepair/native/pair"
	"oraclepair/storage"
)

var (
	pairAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token0   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	token1   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	swapper  = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

func testGenesis() *config.Genesis {
	return &config.Genesis{
		Pair:      pairAddr.Hex(),
		Token0:    config.Token{Address: token0.Hex(), Decimals: 18, PurchaseFee: 1_000_000_000_000_000, MaxFee: 100_000_000_000_000_000},
		Token1:    config.Token{Address: token1.Hex(), Decimals: 18, PurchaseFee: 1_000_000_000_000_000, MaxFee: 100_000_000_000_000_000},
		Receivers: config.Receivers{Tokens: admin.Hex(), Fees: admin.Hex()},
		Price: config.PriceSpec{
			Initial:  "1000000000000000000",
			Min:      "1",
			Max:      "1000000000000000000000000",
			MinDrift: -1_000_000_000_000_000_000,
			MaxDrift: 1_000_000_000_000_000_000,
		},
		Roles: config.Roles{Admins: []string{admin.Hex()}, Swappers: []string{swapper.Hex()}},
		Balances: []config.Allocation{
			{Token: token0.Hex(), Owner: pairAddr.Hex(), Amount: "1000000"},
			{Token: token1.Hex(), Owner: pairAddr.Hex(), Amount: "2000000"},
			{Token: token0.Hex(), Owner: swapper.Hex(), Amount: "5000"},
		},
	}
}

func TestNewBootstrapsOnce(t *testing.T) {
	db := storage.NewMemDB()
	n, err := New(db, testGenesis(), nil)
	require.NoError(t, err)

	st, err := n.Engine.State()
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), st.Reserve0.Uint64())
	require.Equal(t, uint64(2_000_000), st.Reserve1.Uint64())
	require.True(t, n.State.HasRole(pair.RoleAdmin, admin.Bytes()))
	require.True(t, n.State.HasRole(pair.RoleSwapper, swapper.Bytes()))

	bal, err := n.State.BalanceOf(token0, swapper)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), bal.Uint64())

	// A second start over the same state leaves balances alone.
	again, err := New(db, testGenesis(), nil)
	require.NoError(t, err)
	bal, err = again.State.BalanceOf(token0, swapper)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), bal.Uint64())
}

func TestBootstrapFailureLeavesNothing(t *testing.T) {
	g := testGenesis()
	g.Price.Initial = "0"
	db := storage.NewMemDB()
	_, err := New(db, g, nil)
	require.ErrorIs(t, err, pair.ErrOutOfBounds)

	// Roles and balances were rolled back with the failed initialisation.
	g = testGenesis()
	g.Roles = config.Roles{}
	g.Balances = nil
	n, err := New(db, g, nil)
	require.NoError(t, err)
	require.False(t, n.State.HasRole(pair.RoleAdmin, admin.Bytes()))
	bal, err := n.State.BalanceOf(token0, pairAddr)
	require.NoError(t, err)
	require.True(t, bal.IsZero())
}

func TestOpenLevelDBPersists(t *testing.T) {
	cfg := &config.Config{DataDir: filepath.Join(t.TempDir(), "data"), DBBackend: config.BackendLevelDB}
	n, err := Open(cfg, testGenesis(), nil)
	require.NoError(t, err)
	require.NoError(t, n.Close())

	reopened, err := Open(cfg, testGenesis(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	st, err := reopened.Engine.State()
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), st.Reserve0.Uint64())
}
