package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"oraclepair/core/events"
)

// Recorder turns committed pair events into swap history rows. The engine
// publishes PairFee before PairSwap within one commit, so the fee is held
// until its swap arrives.
type Recorder struct {
	store   *Storage
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]events.PairFee
	last    *SwapRecord
}

// NewRecorder returns an emitter writing to store. Write failures are logged
// and never reach the engine, whose state has already committed.
func NewRecorder(store *Storage, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
		pending: make(map[string]events.PairFee),
	}
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(e events.Event) {
	switch ev := e.(type) {
	case events.PairFee:
		r.mu.Lock()
		r.pending[ev.Pair.Hex()] = ev
		r.mu.Unlock()
	case events.PairSwap:
		r.mu.Lock()
		fee, ok := r.pending[ev.Pair.Hex()]
		delete(r.pending, ev.Pair.Hex())
		r.mu.Unlock()

		rec := &SwapRecord{
			Pair:       ev.Pair.Hex(),
			Sender:     ev.Sender.Hex(),
			Recipient:  ev.To.Hex(),
			Amount0In:  decimal(ev.Amount0In),
			Amount1In:  decimal(ev.Amount1In),
			Amount0Out: decimal(ev.Amount0Out),
			Amount1Out: decimal(ev.Amount1Out),
			Fee0:       "0",
			Fee1:       "0",
			Price:      decimal(ev.Price),
			Flash:      ev.Flash,
			Timestamp:  int64(ev.Timestamp),
		}
		if ok {
			rec.Fee0 = decimal(fee.Fee0)
			rec.Fee1 = decimal(fee.Fee1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.RecordSwap(ctx, rec); err != nil {
			r.logger.Warn("record swap history", "error", err, "pair", rec.Pair)
			return
		}
		r.mu.Lock()
		r.last = rec
		r.mu.Unlock()
	}
}

// TakeLast returns and clears the most recently stored swap. The daemon
// calls it right after a swap to report the receipt ID.
func (r *Recorder) TakeLast() *SwapRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.last
	r.last = nil
	return rec
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
