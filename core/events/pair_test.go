package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var testPair = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestPairSwapAttributes(t *testing.T) {
	evt := PairSwap{
		Pair:       testPair,
		Amount0In:  uint256.NewInt(1001),
		Amount1Out: uint256.NewInt(1000),
		Price:      uint256.NewInt(1_000_000_000_000_000_000),
		Timestamp:  1700000000,
		Flash:      true,
	}.Event()
	if evt.Type != TypePairSwap {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	want := map[string]string{
		"amount0In":  "1001",
		"amount1In":  "0",
		"amount1Out": "1000",
		"price":      "1000000000000000000",
		"timestamp":  "1700000000",
		"flash":      "true",
		"pair":       testPair.Hex(),
	}
	for key, value := range want {
		if evt.Attributes[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, evt.Attributes[key], value)
		}
	}
}

func TestPauseToggledType(t *testing.T) {
	if got := (PairPauseToggled{Paused: true}).Event().Type; got != TypePairPaused {
		t.Fatalf("paused type %s", got)
	}
	if got := (PairPauseToggled{}).EventType(); got != TypePairUnpaused {
		t.Fatalf("unpaused type %s", got)
	}
}

func TestConfigUpdatedKeepsReservedKeys(t *testing.T) {
	evt := PairConfigUpdated{
		Pair:    testPair,
		Setting: " fees ",
		Values:  map[string]string{"pair": "spoofed", "fee0": "5"},
	}.Event()
	if evt.Attributes["pair"] != testPair.Hex() {
		t.Fatalf("reserved key overwritten: %s", evt.Attributes["pair"])
	}
	if evt.Attributes["setting"] != "fees" || evt.Attributes["fee0"] != "5" {
		t.Fatalf("unexpected attributes %v", evt.Attributes)
	}
}

func TestEventStringIsSorted(t *testing.T) {
	got := PairSync{Pair: testPair, Reserve0: uint256.NewInt(2), Reserve1: uint256.NewInt(3)}.Event().String()
	want := "pair.sync pair=" + testPair.Hex() + " reserve0=2 reserve1=3"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	emitter := Fanout{first, nil, second}
	emitter.Emit(PairSync{Pair: testPair})
	emitter.Emit(PairFee{Pair: testPair})

	if len(first.Events()) != 2 || len(second.Events()) != 2 {
		t.Fatalf("fanout delivered %d/%d", len(first.Events()), len(second.Events()))
	}
	if len(first.OfType(TypePairFee)) != 1 {
		t.Fatalf("expected one fee event")
	}
	first.Reset()
	if len(first.Events()) != 0 {
		t.Fatalf("reset kept events")
	}
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	LogEmitter{Logger: logger}.Emit(PairWithdrawal{Pair: testPair, Amount: uint256.NewInt(9), Fees: true})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["event"] != TypePairWithdrawal || line["kind"] != "fees" || line["amount"] != "9" {
		t.Fatalf("unexpected log line %v", line)
	}
}
