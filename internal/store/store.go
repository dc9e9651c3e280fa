// Package store glues the cart sync engine to a query cache so every reader
// sees one consistent, intent-adjusted cart.
//
// A Store owns one cart session: its cart id and badge quantity (persisted
// through identity), the cached server snapshot, the intent tracker and the
// scheduler. Optimistic mutations roll back to the pre-mutation snapshot on
// failure; only intents survive a failed attempt.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cartsync/internal/gateway"
	"cartsync/internal/identity"
	"cartsync/internal/intent"
	"cartsync/internal/model"
	"cartsync/internal/optimistic"
	"cartsync/internal/reconcile"
	"cartsync/internal/syncer"
)

// DefaultCheckoutTimeout bounds the flush run before checkout.
const DefaultCheckoutTimeout = 8 * time.Second

// Options configures a Store. Zero values take defaults.
type Options struct {
	// Sync is passed to the scheduler. OnCart and OnError are owned by the
	// store and overwritten.
	Sync syncer.Options

	CheckoutTimeout time.Duration

	// OpenDelay opens the cart UI this long after a successful add.
	// Zero leaves the UI alone.
	OpenDelay time.Duration

	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Store is the cart state of one session.
type Store struct {
	gw        gateway.Gateway
	persister *identity.Persister
	engine    *syncer.Engine
	cache     *Cache
	ui        *UI
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time

	checkoutTimeout time.Duration
	openDelay       time.Duration

	fetches singleflight.Group
	addMu   sync.Mutex // serializes optimistic adds so rollbacks never interleave

	mu       sync.Mutex
	cartID   string
	quantity int
	subs     map[int]func(*model.Cart)
	nextSub  int
}

// New creates a store over gw, restoring the cart id and badge quantity from
// persister.
func New(ctx context.Context, gw gateway.Gateway, persister *identity.Persister, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckoutTimeout <= 0 {
		opts.CheckoutTimeout = DefaultCheckoutTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = NewInbox(DefaultInboxSize)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if persister == nil {
		persister = identity.NewPersister("", nil, logger)
	}

	s := &Store{
		gw:              gw,
		persister:       persister,
		cache:           NewCache(),
		ui:              newUI(opts.Sync.AfterFunc),
		notifier:        opts.Notifier,
		logger:          logger.With("component", "store"),
		now:             opts.Now,
		checkoutTimeout: opts.CheckoutTimeout,
		openDelay:       opts.OpenDelay,
		subs:            make(map[int]func(*model.Cart)),
	}

	id := persister.Load(ctx)
	s.cartID = id.CartID
	s.quantity = id.Quantity

	syncOpts := opts.Sync
	if syncOpts.Logger == nil {
		syncOpts.Logger = logger
	}
	syncOpts.OnCart = s.applyServerCart
	syncOpts.OnError = s.lineFailed
	s.engine = syncer.New(intent.NewTracker(intent.WithClock(opts.Now)), gw, s.CartID, syncOpts)
	return s
}

// ============================================================================
// Accessors
// ============================================================================

// CartID returns the current cart id, or "" before a cart exists.
func (s *Store) CartID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartID
}

// Quantity returns the badge quantity. It is known before the first fetch.
func (s *Store) Quantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quantity
}

// Identity returns the persisted identity the store is working with.
func (s *Store) Identity() identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return identity.Identity{CartID: s.cartID, Quantity: s.quantity}
}

// Persister returns the identity persister backing the store.
func (s *Store) Persister() *identity.Persister { return s.persister }

// UI returns the cart's open state.
func (s *Store) UI() *UI { return s.ui }

// Status returns a line's sync status.
func (s *Store) Status(lineID string) intent.Status { return s.engine.Status(lineID) }

// LineIntent returns a line's pending intent, if any.
func (s *Store) LineIntent(lineID string) (intent.Intent, bool) {
	return s.engine.Tracker().Get(lineID)
}

// Online reports the store's view of connectivity.
func (s *Store) Online() bool { return s.engine.Online() }

// Notifications drains pending notifications when the notifier keeps them,
// as an Inbox does. Other notifiers yield nil.
func (s *Store) Notifications() []Notification {
	if d, ok := s.notifier.(interface{ Drain() []Notification }); ok {
		return d.Drain()
	}
	return nil
}

// ============================================================================
// Reads
// ============================================================================

// Cart returns the intent-adjusted cart, fetching it when nothing is cached.
// It returns (nil, nil) when the session has no cart.
func (s *Store) Cart(ctx context.Context) (*model.Cart, error) {
	cartID := s.CartID()
	if cached, ok := s.cache.Get(DetailKey(cartID)); ok {
		return s.project(cached), nil
	}
	if cartID == "" {
		return nil, nil
	}
	cart, err := s.fetch(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.project(cart), nil
}

// Refresh drops the cached snapshot and refetches it.
func (s *Store) Refresh(ctx context.Context) (*model.Cart, error) {
	s.cache.Delete(DetailKey(s.CartID()))
	return s.Cart(ctx)
}

// fetch loads cartID from the gateway, collapsing concurrent loads of the
// same id. A cart the gateway no longer knows resets the session.
func (s *Store) fetch(ctx context.Context, cartID string) (*model.Cart, error) {
	key := DetailKey(cartID)
	v, err, _ := s.fetches.Do(key, func() (any, error) {
		cart, err := s.gw.GetCart(ctx, cartID)
		if err != nil {
			return nil, err
		}
		if cart == nil {
			s.selfHeal(ctx, cartID)
			return (*model.Cart)(nil), nil
		}
		s.cache.Set(key, cart)
		return cart, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching cart: %w", err)
	}
	cart := v.(*model.Cart)
	if cart != nil {
		s.refreshBadge(ctx)
	}
	return cart, nil
}

// selfHeal forgets a cart that no longer exists upstream.
func (s *Store) selfHeal(ctx context.Context, cartID string) {
	s.mu.Lock()
	if s.cartID != cartID {
		s.mu.Unlock()
		return
	}
	s.cartID = ""
	s.quantity = 0
	s.mu.Unlock()

	s.logger.Info("cart no longer exists, clearing session cart", "cart_id", cartID)
	s.engine.Reset()
	s.cache.Delete(DetailKey(cartID))
	s.cache.Delete(DetailKey(""))
	s.persister.Clear(ctx)
	s.publish()
}

// project overlays pending intents on a cached snapshot.
func (s *Store) project(cart *model.Cart) *model.Cart {
	return reconcile.Overlay(cart, s.engine.Tracker().Desired())
}

// view returns the current projection without fetching.
func (s *Store) view() *model.Cart {
	cached, _ := s.cache.Get(DetailKey(s.CartID()))
	return s.project(cached)
}

// ============================================================================
// Mutations
// ============================================================================

// AddLine optimistically adds draft and confirms it with the gateway. On
// failure the cart rolls back and an "add" notification is sent. A response
// carrying a new cart id moves the session to that cart.
func (s *Store) AddLine(ctx context.Context, draft optimistic.LineDraft) (*model.Cart, error) {
	if draft.MerchandiseID == "" {
		return nil, model.NewValidationError("merchandiseId", "required")
	}
	if draft.Quantity <= 0 {
		return nil, model.NewValidationError("quantity", "must be positive")
	}

	s.addMu.Lock()
	defer s.addMu.Unlock()

	oldID := s.CartID()
	oldKey := DetailKey(oldID)
	prev, hadPrev := s.cache.Get(oldKey)

	s.cache.Set(oldKey, optimistic.ApplyAdd(prev, draft))
	s.publish()

	cart, err := s.gw.AddLine(ctx, gateway.AddLineRequest{
		CartID:        oldID,
		MerchandiseID: draft.MerchandiseID,
		Quantity:      draft.Quantity,
	})
	if err != nil {
		s.rollback(oldKey, prev, hadPrev)
		s.notify(KindAdd, "", failureMessage(err, msgAddFailed))
		s.logger.Warn("add line failed", "merchandise_id", draft.MerchandiseID, "error", err)
		return nil, err
	}

	if cart.ID != oldID {
		s.migrate(ctx, oldID, cart.ID)
	}
	s.applyServerCart(cart)
	if s.openDelay > 0 {
		s.ui.OpenAfter(s.openDelay)
	}
	return s.view(), nil
}

// UpdateQuantity records a desired quantity for a line and schedules its
// sync. Zero or less removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) (*model.Cart, error) {
	if quantity <= 0 {
		return s.RemoveLine(ctx, lineID)
	}
	if err := s.checkLine(lineID, "update line"); err != nil {
		return nil, err
	}
	s.engine.SetQuantity(lineID, quantity)
	s.publish()
	return s.view(), nil
}

// RemoveLine drops a line immediately and confirms it with the gateway. On
// failure the line comes back and a "remove" notification is sent.
func (s *Store) RemoveLine(ctx context.Context, lineID string) (*model.Cart, error) {
	if err := s.checkLine(lineID, "remove line"); err != nil {
		return nil, err
	}
	cartID := s.CartID()
	key := DetailKey(cartID)

	s.engine.Clear(lineID)
	prev, hadPrev := s.cache.Get(key)
	s.cache.Set(key, optimistic.ApplyRemove(prev, lineID))
	s.publish()

	cart, err := s.gw.RemoveLine(ctx, cartID, lineID)
	if err != nil {
		s.rollback(key, prev, hadPrev)
		s.notify(KindRemove, lineID, failureMessage(err, msgRemoveFailed))
		s.logger.Warn("remove line failed", "line_id", lineID, "error", err)
		return nil, err
	}
	s.applyServerCart(cart)
	return s.view(), nil
}

func (s *Store) checkLine(lineID, op string) error {
	if lineID == "" {
		return model.NewValidationError("lineId", "required")
	}
	if optimistic.IsPlaceholderLineID(lineID) {
		return model.NewValidationError("lineId", "line is not confirmed yet")
	}
	if s.CartID() == "" {
		return model.NewMissingCartIDError(op)
	}
	return nil
}

// Checkout flushes every pending edit and returns the checkout URL. A
// non-positive timeout uses the configured checkout timeout. When the flush
// does not settle the user is notified and ErrFlushTimeout is returned.
func (s *Store) Checkout(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = s.checkoutTimeout
	}
	if !s.engine.FlushPending(ctx, timeout) {
		pending := s.engine.Tracker().Len()
		s.notify(KindCheckout, "", msgCheckoutFailed)
		s.publish()
		return "", model.NewFlushTimeoutError(pending)
	}

	cart, err := s.Cart(ctx)
	if err != nil {
		return "", err
	}
	if cart == nil || cart.CheckoutURL == "" {
		return "", model.NewNotFoundError("cart")
	}
	return cart.CheckoutURL, nil
}

// SetOnline records connectivity. Coming back online retries failed lines.
func (s *Store) SetOnline(online bool) {
	s.engine.SetOnline(online)
}

// Retry retries one failed line, or every failed line when lineID is empty.
// It returns the lines requeued.
func (s *Store) Retry(lineID string) []string {
	if lineID == "" {
		return s.engine.RetryAll()
	}
	if s.engine.Retry(lineID) {
		return []string{lineID}
	}
	return nil
}

// Reset forgets the cart, every intent and every cache entry.
func (s *Store) Reset(ctx context.Context) {
	s.engine.Reset()
	s.cache.Invalidate(AllKey)

	s.mu.Lock()
	s.cartID = ""
	s.quantity = 0
	s.mu.Unlock()

	s.persister.Clear(ctx)
	s.publish()
}

// Close stops the scheduler and waits for in-flight calls.
func (s *Store) Close() {
	s.engine.Close()
	s.ui.Close()
}

// ============================================================================
// Subscriptions
// ============================================================================

// Subscribe calls fn with the projected cart after every change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(*model.Cart)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// publish recomputes the badge and fans the projection out to subscribers.
func (s *Store) publish() {
	view := s.view()

	s.mu.Lock()
	if view != nil {
		s.quantity = view.TotalQuantity
	}
	subs := make([]func(*model.Cart), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

// ============================================================================
// Internal state transitions
// ============================================================================

// applyServerCart caches an authoritative cart. It also receives responses to
// superseded edits; the overlay keeps the newer desire visible.
func (s *Store) applyServerCart(cart *model.Cart) {
	if cart == nil {
		return
	}
	s.mu.Lock()
	current := s.cartID
	s.mu.Unlock()
	if current != "" && cart.ID != current {
		s.logger.Debug("ignoring cart for a previous session cart", "cart_id", cart.ID, "current", current)
		return
	}

	s.cache.Set(DetailKey(cart.ID), cart)
	s.publish()
	s.persist(context.Background())
}

// migrate moves the session from oldID to newID.
func (s *Store) migrate(ctx context.Context, oldID, newID string) {
	s.mu.Lock()
	s.cartID = newID
	s.mu.Unlock()

	s.cache.Move(DetailKey(oldID), DetailKey(newID))
	if oldID != "" {
		s.logger.Info("cart replaced", "old_cart_id", oldID, "cart_id", newID)
		// lines of the old cart are gone
		s.engine.Reset()
	}
	s.persist(ctx)
}

func (s *Store) rollback(key string, prev *model.Cart, hadPrev bool) {
	if hadPrev {
		s.cache.Set(key, prev)
	} else {
		s.cache.Delete(key)
	}
	s.publish()
}

func (s *Store) refreshBadge(ctx context.Context) {
	s.publish()
	s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) {
	s.persister.Save(ctx, s.Identity())
}

// lineFailed turns a permanent scheduler failure into an "update"
// notification. A rejected quantity carries the API's message; the engine has
// already dropped its intent, so the next read shows the server snapshot.
func (s *Store) lineFailed(lineID string, err error) {
	s.logger.Warn("line update failed", "line_id", lineID, "error", err)
	s.notify(KindUpdate, lineID, failureMessage(err, msgUpdateTrouble))
	s.publish()
}

func (s *Store) notify(kind Kind, lineID, message string) {
	s.notifier.Notify(Notification{Kind: kind, Message: message, LineID: lineID, At: s.now()})
}

// failureMessage returns the API's user-facing message for user errors and
// fallback otherwise.
func failureMessage(err error, fallback string) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && errors.Is(err, model.ErrUserError) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
