package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cartsync/internal/identity"
	"cartsync/internal/store"
)

const (
	// SessionCookie carries the session id for browser clients.
	SessionCookie = "cart-session"
	// SessionHeader carries the session id for API clients and is echoed on
	// every response.
	SessionHeader = "Cart-Session"
	// SessionMaxAge is the lifetime of the session cookie.
	SessionMaxAge = 30 * 24 * time.Hour
)

// Sessions resolves a session id to its cart store. seed is the identity the
// client presented and is only used when a new store is built.
type Sessions interface {
	Resolve(ctx context.Context, id string, seed identity.Identity) (string, *store.Store, bool)
}

// Session is the resolved session of a request.
type Session struct {
	ID    string
	Store *store.Store
}

type contextKey string

const sessionContextKey contextKey = "cart.session"

// SessionOptions configures the Session middleware.
type SessionOptions struct {
	// Secure marks the session cookie Secure.
	Secure bool
	// Exempt lists paths served without a session.
	Exempt []string
	Logger *slog.Logger
}

// WithSession resolves the cart session for each request and stores it in the
// request context. The id is read from the Cart-Session header, then the
// cart-session cookie; unknown or missing ids get a new session. The resolved
// id is always echoed in the header and cookie.
func WithSession(sessions Sessions, opts SessionOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exempt := make(map[string]bool, len(opts.Exempt))
	for _, p := range opts.Exempt {
		exempt[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			seed := seedIdentity(r, logger)
			id, s, created := sessions.Resolve(r.Context(), requestSessionID(r), seed)
			if created {
				logger.Debug("session created", slog.String("session_id", id))
			}
			s.Persister().Observe(seed)

			w.Header().Set(SessionHeader, id)
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(SessionMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := context.WithValue(r.Context(), sessionContextKey, Session{ID: id, Store: s})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the session resolved by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(Session)
	return s, ok && s.Store != nil
}

// NewContext returns ctx carrying s. Handlers outside the HTTP stack use it.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

func requestSessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// seedIdentity returns the identity presented by identity cookies, falling
// back to the Cart-Identity header. A malformed header is ignored.
func seedIdentity(r *http.Request, logger *slog.Logger) identity.Identity {
	if id, ok := identity.FromCookies(r.Cookies()); ok {
		return id
	}
	h := r.Header.Get(identity.HeaderName)
	if h == "" {
		return identity.Identity{}
	}
	id, err := identity.ParseHeader(h)
	if err != nil {
		logger.Warn("ignoring malformed identity header",
			slog.String("header", h),
			slog.String("error", err.Error()))
		return identity.Identity{}
	}
	return id
}
