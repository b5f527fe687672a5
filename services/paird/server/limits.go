package server

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/time/rate"

	nativecommon "oraclepair/native/common"
)

// LimitConfig bounds the request rate and traded volume of one caller. The
// quota's request cap counts swaps across both directions; its volume cap
// applies separately to each input token, in that token's raw units.
type LimitConfig struct {
	RequestsPerMinute float64
	Burst             int
	Quota             nativecommon.Quota
}

type callerEntry struct {
	limiter  *rate.Limiter
	requests nativecommon.QuotaNow
	volume   map[common.Address]nativecommon.QuotaNow
	lastSeen time.Time
}

// CallerLimiter tracks a token bucket and a windowed quota per caller.
type CallerLimiter struct {
	cfg      LimitConfig
	idleTTL  time.Duration
	mu       sync.Mutex
	callers  map[common.Address]*callerEntry
	lastScan time.Time
}

// NewCallerLimiter returns a limiter with the supplied configuration.
func NewCallerLimiter(cfg LimitConfig) *CallerLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &CallerLimiter{
		cfg:     cfg,
		idleTTL: 10 * time.Minute,
		callers: make(map[common.Address]*callerEntry),
	}
}

// Allow consumes one request token for caller.
func (l *CallerLimiter) Allow(caller common.Address, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(caller, now).limiter.AllowN(now, 1)
}

// CheckQuota reports whether one more swap spending up to volume of tokenIn
// fits the caller's window without recording it.
func (l *CallerLimiter) CheckQuota(caller, tokenIn common.Address, volume *uint256.Int, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _, err := l.usage(l.entry(caller, now), tokenIn, volume, now)
	return err
}

// Charge records a completed swap that spent volume of tokenIn against the
// caller's window.
func (l *CallerLimiter) Charge(caller, tokenIn common.Address, volume *uint256.Int, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entry(caller, now)
	requests, spent, err := l.usage(entry, tokenIn, volume, now)
	if err != nil {
		return err
	}
	entry.requests = requests
	entry.volume[tokenIn] = spent
	return nil
}

// usage returns the counters after one more swap, or the quota error.
func (l *CallerLimiter) usage(entry *callerEntry, tokenIn common.Address, volume *uint256.Int, now time.Time) (nativecommon.QuotaNow, nativecommon.QuotaNow, error) {
	q := l.cfg.Quota
	window := q.WindowAt(unix(now))
	requests, err := nativecommon.CheckQuota(
		nativecommon.Quota{MaxRequestsPerWindow: q.MaxRequestsPerWindow, WindowSeconds: q.WindowSeconds},
		window, entry.requests, 1, nil)
	if err != nil {
		return nativecommon.QuotaNow{}, nativecommon.QuotaNow{}, err
	}
	spent, err := nativecommon.CheckQuota(
		nativecommon.Quota{MaxVolumePerWindow: q.MaxVolumePerWindow, WindowSeconds: q.WindowSeconds},
		window, entry.volume[tokenIn], 0, volume)
	if err != nil {
		return nativecommon.QuotaNow{}, nativecommon.QuotaNow{}, err
	}
	return requests, spent, nil
}

func (l *CallerLimiter) entry(caller common.Address, now time.Time) *callerEntry {
	if now.Sub(l.lastScan) > l.idleTTL {
		for addr, entry := range l.callers {
			if now.Sub(entry.lastSeen) > l.idleTTL && l.idleWindow(entry, now) {
				delete(l.callers, addr)
			}
		}
		l.lastScan = now
	}
	entry, ok := l.callers[caller]
	if !ok {
		perSecond := l.cfg.RequestsPerMinute / 60.0
		entry = &callerEntry{
			limiter: rate.NewLimiter(rate.Limit(perSecond), l.cfg.Burst),
			volume:  make(map[common.Address]nativecommon.QuotaNow),
		}
		l.callers[caller] = entry
	}
	entry.lastSeen = now
	return entry
}

// An entry can only be dropped once its quota window has rolled over, so
// forgetting it never resets live usage. Volume counters are charged with the
// request counter and never sit in a later window.
func (l *CallerLimiter) idleWindow(entry *callerEntry, now time.Time) bool {
	return entry.requests.WindowID != l.cfg.Quota.WindowAt(unix(now)) || l.cfg.Quota.WindowSeconds == 0
}

func unix(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
