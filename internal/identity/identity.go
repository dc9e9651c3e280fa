// Package identity persists which cart a client owns and its last known item
// count, so a session can resume its cart and render a badge before the first
// fetch.
//
// The durable copy lives in a LocalStore keyed by session. Cookies mirror it
// for browsers and are the fallback when the local store has nothing.
package identity

import (
	"context"
	"errors"
)

// Identity is the persisted cart reference for one client.
type Identity struct {
	CartID   string `json:"cartId"`
	Quantity int    `json:"quantity"`
}

// IsZero reports whether no cart is referenced.
func (id Identity) IsZero() bool {
	return id.CartID == "" && id.Quantity == 0
}

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("identity store closed")

// LocalStore is a durable key/value store for identities.
// Load reports found=false when nothing is stored under key.
type LocalStore interface {
	Load(ctx context.Context, key string) (id Identity, found bool, err error)
	Save(ctx context.Context, key string, id Identity) error
	Delete(ctx context.Context, key string) error
	Close() error
}
