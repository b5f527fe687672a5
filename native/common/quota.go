package common

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaVolumeExceeded   = errors.New("quota volume cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the usage counters of one caller within a window.
type QuotaNow struct {
	ReqCount uint32
	Volume   *uint256.Int
	WindowID uint64
}

// Quota defines the per-caller limits enforced on swap entry points. Zero
// values disable the corresponding limit.
type Quota struct {
	MaxRequestsPerWindow uint32
	MaxVolumePerWindow   *uint256.Int
	WindowSeconds        uint32
}

// WindowAt maps a unix timestamp to the quota window it falls into.
func (q Quota) WindowAt(unix uint64) uint64 {
	if q.WindowSeconds == 0 {
		return 0
	}
	return unix / uint64(q.WindowSeconds)
}

// CheckQuota verifies whether the additional requests and volume fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded; on denial prev is returned unchanged.
func CheckQuota(q Quota, nowWindow uint64, prev QuotaNow, addReq uint32, addVolume *uint256.Int) (QuotaNow, error) {
	next := QuotaNow{ReqCount: prev.ReqCount, Volume: prev.Volume, WindowID: prev.WindowID}
	if prev.WindowID != nowWindow {
		next = QuotaNow{WindowID: nowWindow}
	}
	if next.Volume == nil {
		next.Volume = new(uint256.Int)
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerWindow > 0 && next.ReqCount > q.MaxRequestsPerWindow {
		return prev, ErrQuotaRequestsExceeded
	}

	if addVolume != nil && !addVolume.IsZero() {
		sum, overflow := new(uint256.Int).AddOverflow(next.Volume, addVolume)
		if overflow {
			return prev, ErrQuotaCounterOverflow
		}
		next.Volume = sum
	}
	if q.MaxVolumePerWindow != nil && !q.MaxVolumePerWindow.IsZero() && next.Volume.Gt(q.MaxVolumePerWindow) {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}
