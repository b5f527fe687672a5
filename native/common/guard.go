package common

import "errors"

var (
	ErrModulePaused = errors.New("module paused")
	ErrReentrant    = errors.New("reentrant call")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Lock rejects nested entry into guarded entry points for the lifetime of
// the outermost call. The zero value is unlocked.
type Lock struct {
	held bool
}

// Enter acquires the lock. The returned release func must be deferred by the
// caller; it is safe to call more than once.
func (l *Lock) Enter() (func(), error) {
	if l.held {
		return func() {}, ErrReentrant
	}
	l.held = true
	released := false
	return func() {
		if released {
			return
		}
		released = true
		l.held = false
	}, nil
}

// Held reports whether a guarded call is in progress.
func (l *Lock) Held() bool { return l.held }
