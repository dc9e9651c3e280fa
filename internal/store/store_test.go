package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cartsync/internal/gateway"
	"cartsync/internal/identity"
	"cartsync/internal/intent"
	"cartsync/internal/model"
	"cartsync/internal/optimistic"
	"cartsync/internal/syncer"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeClock records timers and fires them only when asked.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	live := !t.stopped
	t.stopped = true
	return live
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) syncer.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs live timers scheduled for exactly d.
func (c *fakeClock) fire(d time.Duration) int {
	c.mu.Lock()
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && t.d == d {
			t.stopped = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
	return len(due)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usd(amount string) model.Money {
	return model.Money{Amount: model.ParseAmount(amount), CurrencyCode: "USD"}
}

func line(id, merchandiseID string, qty int, unit string) model.CartLine {
	u := usd(unit)
	return model.CartLine{
		ID:          id,
		Quantity:    qty,
		Merchandise: model.Merchandise{ID: merchandiseID, Title: merchandiseID},
		Cost:        model.LineCost{AmountPerQuantity: u, SubtotalAmount: u.Times(qty), TotalAmount: u.Times(qty)},
	}
}

func cartOf(id string, lines ...model.CartLine) *model.Cart {
	return optimistic.Recompute(&model.Cart{
		ID:          id,
		CheckoutURL: "https://shop.example/checkout/" + id,
		Cost:        model.CartCost{TotalAmount: usd("0")},
		Lines:       lines,
	})
}

type harness struct {
	store *Store
	gw    *gateway.Mock
	local *identity.MemoryStore
	inbox *Inbox
	clock *fakeClock
}

func newHarness(t *testing.T, saved identity.Identity) *harness {
	t.Helper()
	h := &harness{
		gw:    &gateway.Mock{},
		local: identity.NewMemoryStore(),
		inbox: NewInbox(10),
		clock: &fakeClock{},
	}
	ctx := context.Background()
	if !saved.IsZero() {
		h.local.Save(ctx, "s1", saved)
	}
	h.store = New(ctx, h.gw, identity.NewPersister("s1", h.local, quietLogger()), Options{
		Sync: syncer.Options{
			Debounce:     time.Hour,
			PollInterval: time.Millisecond,
			AfterFunc:    h.clock.AfterFunc,
		},
		OpenDelay: 300 * time.Millisecond,
		Notifier:  h.inbox,
		Logger:    quietLogger(),
	})
	t.Cleanup(h.store.Close)
	return h
}

// seed makes the gateway return cart and loads it into the store.
func (h *harness) seed(t *testing.T, cart *model.Cart) {
	t.Helper()
	h.gw.GetCartFunc = func(ctx context.Context, cartID string) (*model.Cart, error) {
		return cart, nil
	}
	if _, err := h.store.Cart(context.Background()); err != nil {
		t.Fatalf("Cart: %v", err)
	}
}

func (h *harness) saved(t *testing.T) identity.Identity {
	t.Helper()
	id, _, err := h.local.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("local.Load: %v", err)
	}
	return id
}

// =============================================================================
// READS
// =============================================================================

func TestStore_RestoresIdentity(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1", Quantity: 3})

	if h.store.CartID() != "c1" || h.store.Quantity() != 3 {
		t.Errorf("identity = %s/%d, want c1/3", h.store.CartID(), h.store.Quantity())
	}
}

func TestStore_CartWithoutIdentity(t *testing.T) {
	h := newHarness(t, identity.Identity{})
	h.gw.GetCartFunc = func(ctx context.Context, cartID string) (*model.Cart, error) {
		t.Error("GetCart called without a cart id")
		return nil, nil
	}

	cart, err := h.store.Cart(context.Background())
	if err != nil || cart != nil {
		t.Errorf("Cart = %v, %v; want nil, nil", cart, err)
	}
}

func TestStore_CartFetchesOnce(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	var calls atomic.Int32
	release := make(chan struct{})
	h.gw.GetCartFunc = func(ctx context.Context, cartID string) (*model.Cart, error) {
		calls.Add(1)
		<-release
		return cartOf("c1", line("L1", "V1", 2, "10")), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart, err := h.store.Cart(context.Background())
			if err != nil || cart == nil || cart.TotalQuantity != 2 {
				t.Errorf("Cart = %+v, %v", cart, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if _, err := h.store.Cart(context.Background()); err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("GetCart calls = %d, want 1", got)
	}
	if h.store.Quantity() != 2 || h.saved(t).Quantity != 2 {
		t.Errorf("badge = %d, saved = %+v", h.store.Quantity(), h.saved(t))
	}
}

func TestStore_FetchErrorPropagates(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.gw.GetCartFunc = func(ctx context.Context, cartID string) (*model.Cart, error) {
		return nil, model.NewUpstreamError("Shopify", errors.New("boom"))
	}

	if _, err := h.store.Cart(context.Background()); !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("err = %v, want upstream error", err)
	}
	if h.store.CartID() != "c1" {
		t.Error("a failed fetch must not forget the cart")
	}
}

func TestStore_SelfHealsMissingCart(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "gone", Quantity: 4})
	ctx := context.Background()
	if _, err := h.store.UpdateQuantity(ctx, "L1", 3); err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}

	cart, err := h.store.Cart(ctx)
	if err != nil || cart != nil {
		t.Fatalf("Cart = %v, %v; want nil, nil", cart, err)
	}
	if h.store.CartID() != "" || h.store.Quantity() != 0 {
		t.Errorf("identity = %s/%d, want cleared", h.store.CartID(), h.store.Quantity())
	}
	if h.store.Status("L1") != intent.StatusIdle {
		t.Errorf("intent survived self-heal: %s", h.store.Status("L1"))
	}
	if _, found, _ := h.local.Load(ctx, "s1"); found {
		t.Error("persisted identity survived self-heal")
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

func TestStore_AddLineCreatesCart(t *testing.T) {
	h := newHarness(t, identity.Identity{})
	ctx := context.Background()
	h.gw.AddLineFunc = func(ctx context.Context, req gateway.AddLineRequest) (*model.Cart, error) {
		if req.CartID != "" {
			t.Errorf("CartID = %q, want empty", req.CartID)
		}
		during, _ := h.store.Cart(ctx)
		if during == nil || len(during.Lines) != 1 || !during.Lines[0].IsOptimistic {
			t.Errorf("optimistic cart = %+v", during)
		}
		return cartOf("c-new", line("L1", req.MerchandiseID, req.Quantity, "12.5")), nil
	}

	cart, err := h.store.AddLine(ctx, optimistic.LineDraft{MerchandiseID: "V1", Quantity: 2, UnitPrice: usd("12.5")})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if cart.ID != "c-new" || cart.Lines[0].IsOptimistic {
		t.Errorf("cart = %+v", cart)
	}
	if h.store.CartID() != "c-new" {
		t.Errorf("CartID = %q, want c-new", h.store.CartID())
	}
	if _, ok := h.store.cache.Get(DetailKey("")); ok {
		t.Error("guest entry survived migration")
	}
	if got := h.saved(t); got != (identity.Identity{CartID: "c-new", Quantity: 2}) {
		t.Errorf("saved identity = %+v", got)
	}
}

func TestStore_AddLineReplacesExpiredCart(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "abc"})
	h.seed(t, cartOf("abc", line("L1", "V1", 1, "5")))
	h.gw.AddLineFunc = func(ctx context.Context, req gateway.AddLineRequest) (*model.Cart, error) {
		return cartOf("fresh", line("N1", req.MerchandiseID, 1, "3")), nil
	}

	cart, err := h.store.AddLine(context.Background(), optimistic.LineDraft{MerchandiseID: "V2", Quantity: 1, UnitPrice: usd("3")})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if cart.ID != "fresh" || h.store.CartID() != "fresh" {
		t.Errorf("cart id = %s, store = %s", cart.ID, h.store.CartID())
	}
	if _, ok := h.store.cache.Get(DetailKey("abc")); ok {
		t.Error("old cart entry survived migration")
	}
}

func TestStore_AddLineFailureRollsBack(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"user error", model.NewUserError([]model.UserError{{Message: "Sold out"}}), "Sold out"},
		{"transport error", model.NewUpstreamError("Shopify", errors.New("reset")), msgAddFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, identity.Identity{CartID: "c1"})
			h.seed(t, cartOf("c1", line("L1", "V1", 1, "10")))
			h.gw.AddLineFunc = func(ctx context.Context, req gateway.AddLineRequest) (*model.Cart, error) {
				return nil, tt.err
			}

			if _, err := h.store.AddLine(context.Background(), optimistic.LineDraft{MerchandiseID: "V2", Quantity: 1, UnitPrice: usd("4")}); err == nil {
				t.Fatal("expected error")
			}

			cart, _ := h.store.Cart(context.Background())
			if len(cart.Lines) != 1 || cart.TotalQuantity != 1 {
				t.Errorf("cart after rollback = %+v", cart)
			}
			notes := h.inbox.Drain()
			if len(notes) != 1 || notes[0].Kind != KindAdd || notes[0].Message != tt.message {
				t.Errorf("notifications = %+v", notes)
			}
		})
	}
}

func TestStore_AddLineValidation(t *testing.T) {
	h := newHarness(t, identity.Identity{})
	for _, d := range []optimistic.LineDraft{{Quantity: 1}, {MerchandiseID: "V1"}} {
		if _, err := h.store.AddLine(context.Background(), d); !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("AddLine(%+v) err = %v", d, err)
		}
	}
}

func TestStore_AddLineOpensAfterDelay(t *testing.T) {
	h := newHarness(t, identity.Identity{})
	h.gw.AddLineFunc = func(ctx context.Context, req gateway.AddLineRequest) (*model.Cart, error) {
		return cartOf("c1", line("L1", "V1", 1, "1")), nil
	}

	if _, err := h.store.AddLine(context.Background(), optimistic.LineDraft{MerchandiseID: "V1", Quantity: 1}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if h.store.UI().IsOpen() {
		t.Fatal("cart opened before the delay")
	}
	if n := h.clock.fire(300 * time.Millisecond); n != 1 {
		t.Fatalf("fired %d open timers, want 1", n)
	}
	if !h.store.UI().IsOpen() {
		t.Error("cart did not open after the delay")
	}
}

func TestStore_UpdateQuantityOverlaysAndFlushes(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10"), line("L2", "V2", 1, "5")))

	var sent []int
	h.gw.UpdateLineFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		sent = append(sent, quantity)
		return cartOf("c1", line("L1", "V1", quantity, "10"), line("L2", "V2", 1, "5")), nil
	}

	ctx := context.Background()
	for _, q := range []int{2, 5, 4} {
		if _, err := h.store.UpdateQuantity(ctx, "L1", q); err != nil {
			t.Fatalf("UpdateQuantity(%d): %v", q, err)
		}
	}

	view, _ := h.store.Cart(ctx)
	if view.Lines[0].Quantity != 4 || view.TotalQuantity != 5 || view.Cost.TotalAmount.String() != "45.00 USD" {
		t.Errorf("view = %d lines[0]=%d total %s", view.TotalQuantity, view.Lines[0].Quantity, view.Cost.TotalAmount)
	}
	if h.store.Quantity() != 5 {
		t.Errorf("badge = %d, want 5", h.store.Quantity())
	}
	if h.store.Status("L1") != intent.StatusQueued {
		t.Errorf("status = %s, want queued", h.store.Status("L1"))
	}

	url, err := h.store.Checkout(ctx, time.Second)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if url != "https://shop.example/checkout/c1" {
		t.Errorf("checkout url = %q", url)
	}
	if len(sent) != 1 || sent[0] != 4 {
		t.Errorf("sent = %v, want [4]", sent)
	}
	if h.store.Status("L1") != intent.StatusIdle {
		t.Errorf("status after flush = %s", h.store.Status("L1"))
	}
}

func TestStore_StaleCartKeepsNewerIntentVisible(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10")))
	ctx := context.Background()

	h.store.UpdateQuantity(ctx, "L1", 5)
	h.store.applyServerCart(cartOf("c1", line("L1", "V1", 2, "10")))

	view, _ := h.store.Cart(ctx)
	if view.Lines[0].Quantity != 5 {
		t.Errorf("visible quantity = %d, want the pending 5", view.Lines[0].Quantity)
	}
	raw, _ := h.store.cache.Get(DetailKey("c1"))
	if raw.Lines[0].Quantity != 2 {
		t.Errorf("cached snapshot = %d, want server 2", raw.Lines[0].Quantity)
	}
}

func TestStore_UpdateQuantityZeroRemoves(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10")))
	var removed string
	h.gw.RemoveLineFunc = func(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
		removed = lineID
		return cartOf("c1"), nil
	}

	cart, err := h.store.UpdateQuantity(context.Background(), "L1", 0)
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if removed != "L1" || len(cart.Lines) != 0 || cart.TotalQuantity != 0 {
		t.Errorf("removed = %q, cart = %+v", removed, cart)
	}
}

func TestStore_LineEditsRequireCart(t *testing.T) {
	h := newHarness(t, identity.Identity{})
	ctx := context.Background()

	if _, err := h.store.UpdateQuantity(ctx, "L1", 2); !errors.Is(err, model.ErrMissingCartID) {
		t.Errorf("UpdateQuantity err = %v", err)
	}
	if _, err := h.store.RemoveLine(ctx, "L1"); !errors.Is(err, model.ErrMissingCartID) {
		t.Errorf("RemoveLine err = %v", err)
	}

	h2 := newHarness(t, identity.Identity{CartID: "c1"})
	if _, err := h2.store.UpdateQuantity(ctx, optimistic.PlaceholderLineID("V1"), 2); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("placeholder update err = %v", err)
	}
}

func TestStore_RemoveLineFailureRollsBack(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10"), line("L2", "V2", 2, "5")))
	h.gw.RemoveLineFunc = func(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
		during, _ := h.store.Cart(ctx)
		if len(during.Lines) != 1 {
			t.Errorf("optimistic remove not visible: %d lines", len(during.Lines))
		}
		return nil, model.NewUpstreamError("Shopify", errors.New("timeout"))
	}

	if _, err := h.store.RemoveLine(context.Background(), "L2"); err == nil {
		t.Fatal("expected error")
	}
	cart, _ := h.store.Cart(context.Background())
	if len(cart.Lines) != 2 || cart.TotalQuantity != 3 {
		t.Errorf("cart after rollback = %+v", cart)
	}
	notes := h.inbox.Drain()
	if len(notes) != 1 || notes[0].Kind != KindRemove || notes[0].LineID != "L2" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestStore_CheckoutFlushTimeout(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10"), line("L2", "V2", 1, "10")))
	h.gw.UpdateLineFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx := context.Background()
	h.store.UpdateQuantity(ctx, "L1", 3)
	h.store.UpdateQuantity(ctx, "L2", 1)

	_, err := h.store.Checkout(ctx, 60*time.Millisecond)
	if !errors.Is(err, model.ErrFlushTimeout) {
		t.Fatalf("err = %v, want flush timeout", err)
	}
	for _, id := range []string{"L1", "L2"} {
		if s := h.store.Status(id); s != intent.StatusError {
			t.Errorf("%s status = %s, want error", id, s)
		}
	}
	notes := h.inbox.Drain()
	if len(notes) != 1 || notes[0].Kind != KindCheckout {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestStore_RejectedUpdateRollsBack(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10")))
	h.gw.UpdateLineFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		return nil, model.NewUserError([]model.UserError{{Field: []string{"lines", "0", "quantity"}, Message: "Only 2 left"}})
	}

	ctx := context.Background()
	if cart, _ := h.store.UpdateQuantity(ctx, "L1", 9); cart.Line("L1").Quantity != 9 {
		t.Fatalf("optimistic quantity = %d, want 9", cart.Line("L1").Quantity)
	}

	url, err := h.store.Checkout(ctx, time.Second)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if url != "https://shop.example/checkout/c1" {
		t.Errorf("checkout url = %q", url)
	}

	cart, _ := h.store.Cart(ctx)
	if got := cart.Line("L1").Quantity; got != 1 {
		t.Errorf("quantity after rejection = %d, want the server's 1", got)
	}
	if got := cart.Cost.TotalAmount.String(); got != usd("10").String() {
		t.Errorf("total after rejection = %s, want 10.00 USD", got)
	}
	if s := h.store.Status("L1"); s != intent.StatusIdle {
		t.Errorf("status = %s, want idle", s)
	}

	notes := h.inbox.Drain()
	if len(notes) != 1 || notes[0].Kind != KindUpdate || notes[0].LineID != "L1" || notes[0].Message != "Only 2 left" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestStore_PermanentLineFailureNotifies(t *testing.T) {
	h := newHarness(t, identity.Identity{})

	// no cart id: the engine fails the line without calling the gateway
	h.store.engine.SetQuantity("L1", 3)
	if _, err := h.store.Checkout(context.Background(), time.Second); !errors.Is(err, model.ErrFlushTimeout) {
		t.Fatalf("err = %v, want flush timeout", err)
	}

	notes := h.inbox.Drain()
	if len(notes) != 2 || notes[0].Kind != KindUpdate || notes[0].Message != msgUpdateTrouble || notes[1].Kind != KindCheckout {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestStore_RetryAfterReconnect(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10")))
	var calls atomic.Int32
	done := make(chan struct{}, 4)
	h.gw.UpdateLineFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		defer func() { done <- struct{}{} }()
		if calls.Add(1) == 1 {
			return nil, model.NewUpstreamError("Shopify", errors.New("offline"))
		}
		return cartOf("c1", line("L1", "V1", quantity, "10")), nil
	}

	h.store.SetOnline(false)
	h.store.UpdateQuantity(context.Background(), "L1", 2)
	h.clock.fire(time.Hour) // debounce
	<-done
	waitStatus(t, h.store, "L1", intent.StatusError)

	h.store.SetOnline(true)
	<-done
	waitStatus(t, h.store, "L1", intent.StatusIdle)
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func waitStatus(t *testing.T, s *Store, lineID string, want intent.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Status(lineID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("%s status = %s, want %s", lineID, s.Status(lineID), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStore_Reset(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10")))
	ctx := context.Background()
	h.store.UpdateQuantity(ctx, "L1", 3)

	h.store.Reset(ctx)

	if h.store.CartID() != "" || h.store.Quantity() != 0 {
		t.Errorf("identity = %+v", h.store.Identity())
	}
	if h.store.cache.Len() != 0 || h.store.Status("L1") != intent.StatusIdle {
		t.Errorf("cache = %d entries, status = %s", h.store.cache.Len(), h.store.Status("L1"))
	}
	for _, c := range h.store.Persister().Cookies() {
		if c.MaxAge != -1 {
			t.Errorf("cookie %s not expired", c.Name)
		}
	}
}

func TestStore_Subscribe(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	h.seed(t, cartOf("c1", line("L1", "V1", 1, "10")))

	var mu sync.Mutex
	var seen []int
	unsubscribe := h.store.Subscribe(func(c *model.Cart) {
		mu.Lock()
		defer mu.Unlock()
		if c != nil {
			seen = append(seen, c.TotalQuantity)
		}
	})

	h.store.UpdateQuantity(context.Background(), "L1", 2)
	unsubscribe()
	h.store.UpdateQuantity(context.Background(), "L1", 3)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != 2 {
		t.Errorf("seen = %v, want [2]", seen)
	}
}

func TestStore_Retry(t *testing.T) {
	h := newHarness(t, identity.Identity{CartID: "c1"})
	if got := h.store.Retry("L1"); got != nil {
		t.Errorf("Retry(idle) = %v", got)
	}
	if got := h.store.Retry(""); len(got) != 0 {
		t.Errorf("RetryAll = %v", got)
	}
}
