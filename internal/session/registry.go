// Package session keeps one cart store per client session for cartd.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cartsync/internal/identity"
	"cartsync/internal/store"
)

// Factory builds the store for a session. The session id keys the persisted
// identity, so a known id resumes its cart after a restart; seed is what the
// client presented and is used when nothing is persisted.
type Factory func(ctx context.Context, sessionID string, seed identity.Identity) *store.Store

type entry struct {
	store    *store.Store
	lastSeen time.Time
}

// Registry maps session ids to stores.
type Registry struct {
	factory Factory
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		logger:   logger.With("component", "session"),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the store for id and marks the session as used.
func (r *Registry) Get(id string) (*store.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.store, true
}

// Create starts a session under a fresh id.
func (r *Registry) Create(ctx context.Context, seed identity.Identity) (string, *store.Store) {
	id := uuid.NewString()
	return id, r.open(ctx, id, seed)
}

// Resolve returns the session for id, reopening a well-formed id the
// registry does not hold and creating a new session for anything else.
// created reports whether the returned id differs from the one given.
func (r *Registry) Resolve(ctx context.Context, id string, seed identity.Identity) (sessionID string, s *store.Store, created bool) {
	if s, ok := r.Get(id); ok {
		return id, s, false
	}
	if _, err := uuid.Parse(id); err == nil {
		return id, r.open(ctx, id, seed), false
	}
	sessionID, s = r.Create(ctx, seed)
	return sessionID, s, true
}

func (r *Registry) open(ctx context.Context, id string, seed identity.Identity) *store.Store {
	s := r.factory(ctx, id, seed)

	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		// lost a race with another request for the same id
		e.lastSeen = r.now()
		r.mu.Unlock()
		s.Close()
		return e.store
	}
	r.sessions[id] = &entry{store: s, lastSeen: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("session opened", "session_id", id, "sessions", n)
	return s
}

// Sweep closes sessions idle for longer than idleTTL and returns how many
// were evicted.
func (r *Registry) Sweep(idleTTL time.Duration) int {
	cutoff := r.now().Add(-idleTTL)

	var idle []*store.Store
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.store)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("idle sessions evicted", "count", len(idle))
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, idleTTL, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idleTTL)
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.store.Close()
	}
}
