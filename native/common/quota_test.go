package common

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerWindow: 10}
	prev := QuotaNow{WindowID: 1}

	next, err := CheckQuota(q, 1, prev, 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, nil)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied.ReqCount != next.ReqCount || denied.WindowID != next.WindowID {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.WindowID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaVolume(t *testing.T) {
	q := Quota{MaxVolumePerWindow: uint256.NewInt(1000)}
	prev := QuotaNow{WindowID: 5}

	next, err := CheckQuota(q, 5, prev, 0, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Volume.Uint64() != 1000 {
		t.Fatalf("unexpected volume: %s", next.Volume)
	}

	denied, err := CheckQuota(q, 5, next, 0, uint256.NewInt(1))
	if !errors.Is(err, ErrQuotaVolumeExceeded) {
		t.Fatalf("expected ErrQuotaVolumeExceeded, got %v", err)
	}
	if !denied.Volume.Eq(next.Volume) {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 6, next, 0, uint256.NewInt(500))
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.WindowID != 6 || rollover.Volume.Uint64() != 500 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
	// The previous counters are not mutated in place.
	if next.Volume.Uint64() != 1000 {
		t.Fatalf("previous volume mutated: %s", next.Volume)
	}
}

func TestCheckQuotaOverflow(t *testing.T) {
	prev := QuotaNow{Volume: new(uint256.Int).SetAllOne()}
	if _, err := CheckQuota(Quota{}, 0, prev, 0, uint256.NewInt(1)); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	prev = QuotaNow{ReqCount: ^uint32(0)}
	if _, err := CheckQuota(Quota{}, 0, prev, 1, nil); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestQuotaWindowAt(t *testing.T) {
	q := Quota{WindowSeconds: 60}
	if got := q.WindowAt(119); got != 1 {
		t.Fatalf("window %d", got)
	}
	if got := (Quota{}).WindowAt(119); got != 0 {
		t.Fatalf("disabled window %d", got)
	}
}
