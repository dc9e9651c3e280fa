package store

import (
	"sync"
	"time"

	"cartsync/internal/syncer"
)

// UI is the cart drawer's open state. It lives beside the sync engine but is
// not part of it.
type UI struct {
	afterFunc syncer.AfterFunc

	mu      sync.Mutex
	open    bool
	pending syncer.Timer
}

func newUI(afterFunc syncer.AfterFunc) *UI {
	if afterFunc == nil {
		afterFunc = func(d time.Duration, f func()) syncer.Timer { return time.AfterFunc(d, f) }
	}
	return &UI{afterFunc: afterFunc}
}

// IsOpen reports whether the cart is shown.
func (u *UI) IsOpen() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.open
}

// Open shows the cart now and cancels a delayed open.
func (u *UI) Open() { u.set(true) }

// Close hides the cart and cancels a delayed open.
func (u *UI) Close() { u.set(false) }

// Toggle flips the open state.
func (u *UI) Toggle() {
	u.mu.Lock()
	open := !u.open
	u.mu.Unlock()
	u.set(open)
}

// OpenAfter opens the cart once delay has passed. A later Open, Close or
// OpenAfter replaces it.
func (u *UI) OpenAfter(delay time.Duration) {
	if delay <= 0 {
		u.Open()
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopLocked()
	var t syncer.Timer
	t = u.afterFunc(delay, func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.pending == t {
			u.open = true
			u.pending = nil
		}
	})
	u.pending = t
}

func (u *UI) set(open bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopLocked()
	u.open = open
}

func (u *UI) stopLocked() {
	if u.pending != nil {
		u.pending.Stop()
		u.pending = nil
	}
}
