package store

import (
	"strings"
	"sync"

	"cartsync/internal/model"
)

// Cache keys. AllKey prefixes every cart entry so the whole namespace can be
// invalidated at once; readers subscribe to a detail key.
const (
	AllKey   = "cart"
	guestKey = "guest"
)

// DetailKey returns the cache key for a cart id, or the guest key when the
// id is not known yet.
func DetailKey(cartID string) string {
	if cartID == "" {
		cartID = guestKey
	}
	return AllKey + "/detail/" + cartID
}

// Cache holds server cart snapshots (with optimistic edits applied in place
// of a snapshot while a mutation is pending).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*model.Cart
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*model.Cart)}
}

// Get returns the entry under key.
func (c *Cache) Get(key string) (*model.Cart, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cart, ok := c.entries[key]
	return cart, ok
}

// Set stores cart under key. A nil cart is a valid entry meaning "known empty".
func (c *Cache) Set(key string, cart *model.Cart) {
	c.mu.Lock()
	c.entries[key] = cart
	c.mu.Unlock()
}

// Delete drops key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Move rekeys an entry, dropping the old key. A missing source leaves the
// destination untouched.
func (c *Cache) Move(from, to string) {
	if from == to {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cart, ok := c.entries[from]; ok {
		c.entries[to] = cart
		delete(c.entries, from)
	}
}

// Invalidate drops every key under prefix.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k == prefix || strings.HasPrefix(k, prefix+"/") {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
