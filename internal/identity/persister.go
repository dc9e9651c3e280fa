package identity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
)

// Persister loads and saves the identity of one session. The local store is
// the primary copy; cookies observed on requests are the fallback.
type Persister struct {
	key    string
	local  LocalStore
	logger *slog.Logger

	mu      sync.Mutex
	current Identity
	cookies Identity
	loaded  bool
}

// NewPersister creates a persister for the session key. local may be nil, in
// which case only cookies carry the identity.
func NewPersister(key string, local LocalStore, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{key: key, local: local, logger: logger}
}

// ObserveCookies records identity cookies sent by the client.
func (p *Persister) ObserveCookies(cookies []*http.Cookie) {
	if id, ok := FromCookies(cookies); ok {
		p.Observe(id)
	}
}

// Observe records an identity the client presented by other means, such as
// the Cart-Identity header. Like cookies it only applies when the local store
// has nothing.
func (p *Persister) Observe(id Identity) {
	if id.IsZero() {
		return
	}
	p.mu.Lock()
	p.cookies = id
	p.mu.Unlock()
}

// Load returns the persisted identity. Local read failures fall back to
// cookies and are logged, never returned.
func (p *Persister) Load(ctx context.Context) Identity {
	if p.local != nil {
		id, found, err := p.local.Load(ctx, p.key)
		if err != nil {
			p.logger.Warn("identity local read failed, using cookies", "session", p.key, "error", err)
		} else if found {
			p.remember(id)
			return id
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.cookies
	p.loaded = true
	return p.current
}

// Save persists id locally and queues it for the next Set-Cookie.
func (p *Persister) Save(ctx context.Context, id Identity) {
	p.remember(id)
	if p.local == nil {
		return
	}
	if err := p.local.Save(ctx, p.key, id); err != nil {
		p.logger.Warn("identity local write failed", "session", p.key, "error", err)
	}
}

// Clear drops the identity from every layer.
func (p *Persister) Clear(ctx context.Context) {
	p.mu.Lock()
	p.current = Identity{}
	p.cookies = Identity{}
	p.loaded = true
	p.mu.Unlock()

	if p.local == nil {
		return
	}
	if err := p.local.Delete(ctx, p.key); err != nil {
		p.logger.Warn("identity local delete failed", "session", p.key, "error", err)
	}
}

// Current returns the last loaded or saved identity without touching storage.
func (p *Persister) Current() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return p.cookies
	}
	return p.current
}

// Cookies returns the Set-Cookie values mirroring the current identity.
func (p *Persister) Cookies() []*http.Cookie {
	return ToCookies(p.Current())
}

func (p *Persister) remember(id Identity) {
	p.mu.Lock()
	p.current = id
	p.cookies = id
	p.loaded = true
	p.mu.Unlock()
}
