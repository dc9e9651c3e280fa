package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cartsync/internal/intent"
	"cartsync/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// manualClock records scheduled callbacks and runs them only when told to.
type manualClock struct {
	mu        sync.Mutex
	timers    []*manualTimer
	scheduled chan time.Duration
}

type manualTimer struct {
	clock   *manualClock
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{scheduled: make(chan time.Duration, 64)}
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	t := &manualTimer{clock: c, f: f}
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.scheduled <- d
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

// FireAll runs every live timer and returns how many fired.
func (c *manualClock) FireAll() int {
	c.mu.Lock()
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.timers = nil
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
	return len(due)
}

func (c *manualClock) nextDelay(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-c.scheduled:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a timer to be scheduled")
		return 0
	}
}

type call struct {
	op       string
	cartID   string
	lineID   string
	quantity int
}

// updater implements LineUpdater with function fields.
type updater struct {
	mu    sync.Mutex
	calls []call
	seen  chan call

	UpdateFunc func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error)
	RemoveFunc func(ctx context.Context, cartID, lineID string) (*model.Cart, error)
}

func newUpdater() *updater {
	return &updater{seen: make(chan call, 64)}
}

func (u *updater) record(c call) {
	u.mu.Lock()
	u.calls = append(u.calls, c)
	u.mu.Unlock()
	u.seen <- c
}

func (u *updater) Calls() []call {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]call(nil), u.calls...)
}

func (u *updater) UpdateLine(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
	u.record(call{"update", cartID, lineID, quantity})
	if u.UpdateFunc != nil {
		return u.UpdateFunc(ctx, cartID, lineID, quantity)
	}
	return cartWith(lineID, quantity), nil
}

func (u *updater) RemoveLine(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
	u.record(call{"remove", cartID, lineID, 0})
	if u.RemoveFunc != nil {
		return u.RemoveFunc(ctx, cartID, lineID)
	}
	return &model.Cart{ID: cartID}, nil
}

func (u *updater) nextCall(t *testing.T) call {
	t.Helper()
	select {
	case c := <-u.seen:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a gateway call")
		return call{}
	}
}

func cartWith(lineID string, quantity int) *model.Cart {
	return &model.Cart{
		ID:            "C1",
		TotalQuantity: quantity,
		Lines:         []model.CartLine{{ID: lineID, Quantity: quantity}},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticCartID(id string) func() string { return func() string { return id } }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	engine *Engine
	clock  *manualClock
	gw     *updater
	mu     sync.Mutex
	carts  []*model.Cart
	errs   map[string]error
}

func newHarness(t *testing.T, gw *updater, cartID func() string) *harness {
	t.Helper()
	h := &harness{clock: newManualClock(), gw: gw, errs: map[string]error{}}
	h.engine = New(intent.NewTracker(), gw, cartID, Options{
		AfterFunc:    h.clock.AfterFunc,
		PollInterval: 5 * time.Millisecond,
		Logger:       discardLogger(),
		OnCart: func(c *model.Cart) {
			h.mu.Lock()
			h.carts = append(h.carts, c)
			h.mu.Unlock()
		},
		OnError: func(lineID string, err error) {
			h.mu.Lock()
			h.errs[lineID] = err
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) cartCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.carts)
}

func (h *harness) errFor(lineID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errs[lineID]
}

// =============================================================================
// DEBOUNCE
// =============================================================================

func TestRapidEditsCollapseIntoOneCall(t *testing.T) {
	gw := newUpdater()
	h := newHarness(t, gw, staticCartID("C1"))

	for _, q := range []int{2, 5, 1} {
		h.engine.SetQuantity("L1", q)
		if d := h.clock.nextDelay(t); d != DefaultDebounce {
			t.Errorf("debounce = %v, want %v", d, DefaultDebounce)
		}
	}

	if fired := h.clock.FireAll(); fired != 1 {
		t.Fatalf("fired %d timers, want 1", fired)
	}
	got := gw.nextCall(t)
	if got.quantity != 1 || got.cartID != "C1" || got.lineID != "L1" {
		t.Errorf("call = %+v, want update C1/L1 x1", got)
	}

	waitFor(t, "intent ack", func() bool { return h.engine.Tracker().Len() == 0 })
	if n := len(gw.Calls()); n != 1 {
		t.Errorf("gateway calls = %d, want 1", n)
	}
	if h.engine.Status("L1") != intent.StatusIdle {
		t.Errorf("status = %s, want idle", h.engine.Status("L1"))
	}
	if h.cartCount() != 1 {
		t.Errorf("OnCart calls = %d, want 1", h.cartCount())
	}
}

func TestNonPositiveDesiredRemoves(t *testing.T) {
	gw := newUpdater()
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 0)
	h.clock.nextDelay(t)
	h.clock.FireAll()

	if got := gw.nextCall(t); got.op != "remove" {
		t.Errorf("op = %s, want remove", got.op)
	}
}

// =============================================================================
// STALE RESPONSES
// =============================================================================

func TestStaleResponseKeepsNewerIntent(t *testing.T) {
	release := make(chan struct{}, 2)
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		<-release
		return cartWith(lineID, quantity), nil
	}
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 2)
	h.clock.nextDelay(t)
	h.clock.FireAll()
	if got := gw.nextCall(t); got.quantity != 2 {
		t.Fatalf("first call quantity = %d, want 2", got.quantity)
	}

	// Edit while the first call is in flight.
	h.engine.SetQuantity("L1", 7)
	h.clock.nextDelay(t)

	release <- struct{}{}
	waitFor(t, "first response", func() bool { return h.cartCount() == 1 })

	in, ok := h.engine.Tracker().Get("L1")
	if !ok || in.DesiredQuantity != 7 || in.Version != 2 {
		t.Fatalf("intent after stale response = %+v (present=%v)", in, ok)
	}

	h.clock.FireAll()
	if got := gw.nextCall(t); got.quantity != 7 {
		t.Fatalf("second call quantity = %d, want 7", got.quantity)
	}
	release <- struct{}{}

	waitFor(t, "second ack", func() bool { return h.engine.Tracker().Len() == 0 })
	if n := len(gw.Calls()); n != 2 {
		t.Errorf("gateway calls = %d, want 2", n)
	}
}

func TestOneCallInFlightPerLine(t *testing.T) {
	release := make(chan struct{})
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		<-release
		return cartWith(lineID, quantity), nil
	}
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 1)
	h.clock.nextDelay(t)
	h.clock.FireAll()
	gw.nextCall(t)

	h.engine.SetQuantity("L1", 3)
	h.clock.nextDelay(t)
	h.clock.FireAll() // dropped: call in flight

	time.Sleep(20 * time.Millisecond)
	if n := len(gw.Calls()); n != 1 {
		t.Fatalf("gateway calls while in flight = %d, want 1", n)
	}

	close(release)
	if got := gw.nextCall(t); got.quantity != 3 {
		t.Errorf("follow-up quantity = %d, want 3", got.quantity)
	}
	waitFor(t, "ack", func() bool { return h.engine.Tracker().Len() == 0 })
}

// =============================================================================
// FAILURES AND RETRY
// =============================================================================

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{12, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.failures); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestTransientFailureBacksOff(t *testing.T) {
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		return nil, model.NewUpstreamError("Shopify", errors.New("503"))
	}
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 2)
	h.clock.nextDelay(t)

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		h.clock.FireAll()
		gw.nextCall(t)
		if got := h.clock.nextDelay(t); got != want {
			t.Errorf("retry %d delay = %v, want %v", i+1, got, want)
		}
	}

	in, _ := h.engine.Tracker().Get("L1")
	if in.Status != intent.StatusRetrying || in.RetryCount != 3 {
		t.Errorf("intent = %+v, want retrying with 3 retries", in)
	}
	if h.errFor("L1") != nil {
		t.Error("transient failures must not reach OnError")
	}
}

func TestUserErrorIsNotRetried(t *testing.T) {
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		return nil, model.NewUserError([]model.UserError{{Message: "Only 1 left"}})
	}
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 5)
	h.clock.nextDelay(t)
	h.clock.FireAll()
	gw.nextCall(t)

	waitFor(t, "OnError", func() bool { return h.errFor("L1") != nil })
	if err := h.errFor("L1"); !errors.Is(err, model.ErrUserError) {
		t.Errorf("OnError got %v, want user error", err)
	}
	if in, ok := h.engine.Tracker().Get("L1"); ok {
		t.Errorf("rejected intent kept: %+v", in)
	}
	if s := h.engine.Status("L1"); s != intent.StatusIdle {
		t.Errorf("status = %s, want idle", s)
	}
	select {
	case d := <-h.clock.scheduled:
		t.Errorf("unexpected timer scheduled: %v", d)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMissingCartIDFailsWithoutCall(t *testing.T) {
	gw := newUpdater()
	h := newHarness(t, gw, staticCartID(""))

	h.engine.SetQuantity("L1", 2)
	h.clock.nextDelay(t)
	h.clock.FireAll()

	waitFor(t, "error status", func() bool { return h.engine.Status("L1") == intent.StatusError })
	if err := h.errFor("L1"); !errors.Is(err, model.ErrMissingCartID) {
		t.Errorf("OnError got %v, want missing cart id", err)
	}
	if n := len(gw.Calls()); n != 0 {
		t.Errorf("gateway calls = %d, want 0", n)
	}
}

func TestEditDuringFailedCallStaysQueued(t *testing.T) {
	release := make(chan struct{})
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		if quantity == 2 {
			<-release
			return nil, model.NewUpstreamError("Shopify", errors.New("reset"))
		}
		return cartWith(lineID, quantity), nil
	}
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 2)
	h.clock.nextDelay(t)
	h.clock.FireAll()
	gw.nextCall(t)

	h.engine.SetQuantity("L1", 4)
	h.clock.nextDelay(t)
	close(release)

	waitFor(t, "failed call to settle", func() bool {
		in, _ := h.engine.Tracker().Get("L1")
		return in.Status == intent.StatusQueued && in.RetryCount == 0
	})
	h.clock.FireAll()
	if got := gw.nextCall(t); got.quantity != 4 {
		t.Errorf("follow-up quantity = %d, want 4", got.quantity)
	}
	waitFor(t, "ack", func() bool { return h.engine.Tracker().Len() == 0 })
}

// =============================================================================
// CONNECTIVITY
// =============================================================================

func TestOfflineFailureWaitsForReconnect(t *testing.T) {
	var mu sync.Mutex
	down := true
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		mu.Lock()
		defer mu.Unlock()
		if down {
			return nil, errors.New("network unreachable")
		}
		return cartWith(lineID, quantity), nil
	}
	h := newHarness(t, gw, staticCartID("C1"))
	h.engine.SetOnline(false)

	h.engine.SetQuantity("L1", 3)
	h.clock.nextDelay(t)
	h.clock.FireAll()
	gw.nextCall(t)

	waitFor(t, "error status", func() bool { return h.engine.Status("L1") == intent.StatusError })
	select {
	case d := <-h.clock.scheduled:
		t.Errorf("offline failure scheduled a retry after %v", d)
	default:
	}

	mu.Lock()
	down = false
	mu.Unlock()
	h.engine.SetOnline(true)

	if got := gw.nextCall(t); got.quantity != 3 {
		t.Errorf("reconnect call quantity = %d, want 3", got.quantity)
	}
	waitFor(t, "ack", func() bool { return h.engine.Tracker().Len() == 0 })
}

func TestRetry(t *testing.T) {
	gw := newUpdater()
	h := newHarness(t, gw, staticCartID("C1"))

	if h.engine.Retry("L1") {
		t.Error("Retry of unknown line should report false")
	}

	h.engine.Tracker().Upsert("L1", 2)
	h.engine.Tracker().SetStatus("L1", intent.StatusError, nil)

	if !h.engine.Retry("L1") {
		t.Fatal("Retry of errored line should report true")
	}
	if got := gw.nextCall(t); got.quantity != 2 {
		t.Errorf("quantity = %d, want 2", got.quantity)
	}
	waitFor(t, "ack", func() bool { return h.engine.Tracker().Len() == 0 })
}

// =============================================================================
// BLOCKING FLUSH
// =============================================================================

func TestFlushPendingSettles(t *testing.T) {
	gw := newUpdater()
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 2)
	h.engine.SetQuantity("L2", 3)

	if !h.engine.FlushPending(context.Background(), time.Second) {
		t.Fatal("FlushPending = false, want true")
	}
	if h.engine.Tracker().Len() != 0 {
		t.Errorf("intents left = %d", h.engine.Tracker().Len())
	}
	if n := len(gw.Calls()); n != 2 {
		t.Errorf("gateway calls = %d, want 2", n)
	}
	if fired := h.clock.FireAll(); fired != 0 {
		t.Errorf("debounce timers still live: %d", fired)
	}
}

func TestFlushPendingTimesOut(t *testing.T) {
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 2)
	h.engine.SetQuantity("L2", 3)

	start := time.Now()
	if h.engine.FlushPending(context.Background(), 60*time.Millisecond) {
		t.Fatal("FlushPending = true, want false")
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Error("FlushPending returned before its timeout")
	}
	for _, id := range []string{"L1", "L2"} {
		if s := h.engine.Status(id); s != intent.StatusError {
			t.Errorf("status(%s) = %s, want error", id, s)
		}
	}
}

func TestFlushPendingStopsOnPermanentFailure(t *testing.T) {
	gw := newUpdater()
	h := newHarness(t, gw, staticCartID(""))
	h.engine.SetQuantity("L1", 2)

	start := time.Now()
	if h.engine.FlushPending(context.Background(), 5*time.Second) {
		t.Fatal("FlushPending = true, want false")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("FlushPending waited for the full timeout")
	}
}

func TestFlushPendingSettlesAfterRejectedUpdate(t *testing.T) {
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		return nil, model.NewUserError([]model.UserError{{Message: "Only 2 left"}})
	}
	h := newHarness(t, gw, staticCartID("C1"))
	h.engine.SetQuantity("L1", 9)

	if !h.engine.FlushPending(context.Background(), 5*time.Second) {
		t.Fatal("FlushPending = false, want true once the rejected intent is dropped")
	}
	if n := h.engine.Tracker().Len(); n != 0 {
		t.Errorf("tracker holds %d intents, want 0", n)
	}
}

func TestFlushPendingHonoursContext(t *testing.T) {
	gw := newUpdater()
	gw.UpdateFunc = func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newHarness(t, gw, staticCartID("C1"))
	h.engine.SetQuantity("L1", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if h.engine.FlushPending(ctx, 5*time.Second) {
		t.Fatal("FlushPending = true with cancelled context")
	}
}

func TestClearAndReset(t *testing.T) {
	gw := newUpdater()
	h := newHarness(t, gw, staticCartID("C1"))

	h.engine.SetQuantity("L1", 2)
	h.engine.SetQuantity("L2", 2)
	h.engine.Clear("L1")
	if h.engine.Status("L1") != intent.StatusIdle {
		t.Error("Clear should drop the intent")
	}

	h.engine.Reset()
	if h.engine.Tracker().Len() != 0 {
		t.Error("Reset should drop every intent")
	}
	if fired := h.clock.FireAll(); fired != 0 {
		t.Errorf("timers still live after Reset: %d", fired)
	}
}
