package store

import (
	"sync"
	"time"
)

// Kind tells the UI which operation a notification is about.
type Kind string

const (
	KindAdd      Kind = "add"
	KindRemove   Kind = "remove"
	KindUpdate   Kind = "update"
	KindCheckout Kind = "checkout"
)

// User-facing messages.
const (
	msgAddFailed      = "Could not add the item to your cart."
	msgRemoveFailed   = "Could not remove the item from your cart."
	msgUpdateTrouble  = "We're having trouble updating your cart. Please try again."
	msgCheckoutFailed = "Some cart changes could not be saved. Please try again before checking out."
)

// Notification is a transient error message for the UI.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	LineID  string    `json:"lineId,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

// DefaultInboxSize bounds an Inbox created with a non-positive size.
const DefaultInboxSize = 20

// Inbox keeps the most recent notifications until drained.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	max   int
}

// NewInbox creates an inbox holding at most size notifications.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{max: size}
}

// Notify implements Notifier. The oldest entry is dropped when full.
func (b *Inbox) Notify(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == b.max {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, n)
}

// Drain returns pending notifications, oldest first, and empties the inbox.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

// Len returns the number of pending notifications.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
