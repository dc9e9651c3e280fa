// Package syncer debounces per-line quantity edits into single gateway calls,
// retries transient failures with exponential backoff, and offers a blocking
// flush for checkout.
//
// There is at most one call in flight per line. Responses are never cancelled;
// an acknowledgement only clears the intent it was sent for, so a newer edit
// made while a call was in flight is flushed once that call settles.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cartsync/internal/intent"
	"cartsync/internal/model"
)

const (
	DefaultDebounce     = 250 * time.Millisecond
	DefaultPollInterval = 50 * time.Millisecond
	DefaultFlushTimeout = 3 * time.Second
)

// LineUpdater is the slice of the cart gateway the engine needs.
type LineUpdater interface {
	UpdateLine(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error)
	RemoveLine(ctx context.Context, cartID, lineID string) (*model.Cart, error)
}

// Timer is the handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through a
// wrapper; tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

// Options configures an Engine. Zero values take the package defaults.
type Options struct {
	Debounce     time.Duration
	PollInterval time.Duration
	FlushTimeout time.Duration

	AfterFunc AfterFunc
	Logger    *slog.Logger

	// OnCart receives every cart returned by a successful call, including
	// responses to edits that have since been superseded.
	OnCart func(*model.Cart)
	// OnError is called when a line fails permanently. For user errors the
	// intent has already been dropped.
	OnError func(lineID string, err error)
}

// Engine schedules line syncs for one cart session.
type Engine struct {
	tracker *intent.Tracker
	gw      LineUpdater
	cartID  func() string
	opts    Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	flushTimers map[string]Timer
	retryTimers map[string]Timer
	inFlight    map[string]bool
	online      bool
	closed      bool
}

// New creates an engine. cartID is consulted at send time so a cart id
// resolved after the edit is still used.
func New(tracker *intent.Tracker, gw LineUpdater, cartID func() string, opts Options) *Engine {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = intent.NewTracker()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		tracker:     tracker,
		gw:          gw,
		cartID:      cartID,
		opts:        opts,
		logger:      logger.With("component", "syncer"),
		ctx:         ctx,
		cancel:      cancel,
		flushTimers: make(map[string]Timer),
		retryTimers: make(map[string]Timer),
		inFlight:    make(map[string]bool),
		online:      true,
	}
}

// Tracker exposes the intents the engine is working through.
func (e *Engine) Tracker() *intent.Tracker { return e.tracker }

// Status returns the sync status of a line.
func (e *Engine) Status(lineID string) intent.Status { return e.tracker.StatusOf(lineID) }

// Online reports the engine's view of connectivity.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// SetQuantity records the desired quantity and (re)starts the line's debounce
// window. Only the last value inside the window is sent.
func (e *Engine) SetQuantity(lineID string, quantity int) intent.Intent {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.tracker.Upsert(lineID, quantity)
	if e.closed {
		return in
	}
	e.stopLocked(e.retryTimers, lineID)
	e.scheduleFlushLocked(lineID, e.opts.Debounce)
	return in
}

func (e *Engine) scheduleFlushLocked(lineID string, d time.Duration) {
	e.stopLocked(e.flushTimers, lineID)
	e.flushTimers[lineID] = e.opts.AfterFunc(d, func() { e.flush(lineID) })
}

func (e *Engine) stopLocked(timers map[string]Timer, lineID string) {
	if t, ok := timers[lineID]; ok {
		t.Stop()
		delete(timers, lineID)
	}
}

// flush sends the line's current intent unless a call is already in flight.
func (e *Engine) flush(lineID string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	delete(e.flushTimers, lineID)
	delete(e.retryTimers, lineID)
	if e.inFlight[lineID] {
		// settle re-flushes a still-queued intent
		e.mu.Unlock()
		return
	}
	in, ok := e.tracker.Get(lineID)
	if !ok || (in.Status != intent.StatusQueued && in.Status != intent.StatusRetrying) {
		e.mu.Unlock()
		return
	}
	e.inFlight[lineID] = true
	e.tracker.SetStatus(lineID, intent.StatusSyncing, nil)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.send(lineID, in, e.cartID())
}

func (e *Engine) send(lineID string, in intent.Intent, cartID string) {
	defer e.wg.Done()

	var (
		cart *model.Cart
		err  error
	)
	switch {
	case cartID == "" && in.DesiredQuantity <= 0:
		err = model.NewMissingCartIDError("remove line")
	case cartID == "":
		err = model.NewMissingCartIDError("update line")
	case in.DesiredQuantity <= 0:
		cart, err = e.gw.RemoveLine(e.ctx, cartID, lineID)
	default:
		cart, err = e.gw.UpdateLine(e.ctx, cartID, lineID, in.DesiredQuantity)
	}

	if err == nil {
		e.succeed(lineID, in, cart)
	} else {
		e.fail(lineID, in, err)
	}
	e.settle(lineID)
}

func (e *Engine) succeed(lineID string, in intent.Intent, cart *model.Cart) {
	if cart != nil && e.opts.OnCart != nil {
		e.opts.OnCart(cart)
	}

	e.mu.Lock()
	acked := e.tracker.AckIfCurrent(lineID, in.Version)
	e.mu.Unlock()

	if !acked {
		e.logger.Debug("stale line response, intent kept",
			"line_id", lineID,
			"sent_version", in.Version,
		)
	}
}

func (e *Engine) fail(lineID string, in intent.Intent, err error) {
	e.mu.Lock()
	cur, ok := e.tracker.Get(lineID)
	if !ok || cur.Version != in.Version {
		// cleared, or edited again while the call was in flight
		e.mu.Unlock()
		return
	}

	if errors.Is(err, model.ErrUserError) {
		// the API rejected the quantity; drop the intent so reads fall back
		// to the last server snapshot
		e.stopLocked(e.flushTimers, lineID)
		e.stopLocked(e.retryTimers, lineID)
		e.tracker.Clear(lineID)
		e.mu.Unlock()

		e.logger.Warn("line update rejected, rolled back", "line_id", lineID, "error", err)
		if e.opts.OnError != nil {
			e.opts.OnError(lineID, err)
		}
		return
	}

	if !model.IsTransient(err) {
		e.tracker.SetStatus(lineID, intent.StatusError, nil)
		e.mu.Unlock()

		e.logger.Warn("line sync failed permanently", "line_id", lineID, "error", err)
		if e.opts.OnError != nil {
			e.opts.OnError(lineID, err)
		}
		return
	}

	if !e.online || e.closed {
		e.tracker.SetStatus(lineID, intent.StatusError, nil)
		e.mu.Unlock()
		e.logger.Info("line sync failed while offline", "line_id", lineID, "error", err)
		return
	}

	delay := RetryDelay(cur.RetryCount)
	next := cur.RetryCount + 1
	e.tracker.SetStatus(lineID, intent.StatusRetrying, &next)
	e.stopLocked(e.retryTimers, lineID)
	e.retryTimers[lineID] = e.opts.AfterFunc(delay, func() { e.flush(lineID) })
	e.mu.Unlock()

	e.logger.Info("line sync failed, retry scheduled",
		"line_id", lineID,
		"attempt", next,
		"delay", delay,
		"error", err,
	)
}

// settle releases the in-flight slot and flushes an intent that was queued
// behind the call, unless its debounce window is still open.
func (e *Engine) settle(lineID string) {
	e.mu.Lock()
	delete(e.inFlight, lineID)
	cur, ok := e.tracker.Get(lineID)
	_, waiting := e.flushTimers[lineID]
	again := ok && cur.Status == intent.StatusQueued && !waiting && !e.closed
	e.mu.Unlock()

	if again {
		e.flush(lineID)
	}
}

// SetOnline records connectivity. Coming back online requeues every line in
// error or waiting on a retry and flushes it immediately.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online
	e.mu.Unlock()

	if online && !was {
		e.logger.Info("connectivity restored, retrying failed lines")
		e.RetryAll()
	}
}

// Retry requeues a failed or retrying line and flushes it now. It reports
// false when the line has nothing to retry.
func (e *Engine) Retry(lineID string) bool {
	if !e.requeue(lineID) {
		return false
	}
	e.flush(lineID)
	return true
}

// RetryAll retries every failed or retrying line and returns their ids.
func (e *Engine) RetryAll() []string {
	var ids []string
	for _, id := range e.tracker.Pending() {
		if e.requeue(id) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		e.flush(id)
	}
	return ids
}

func (e *Engine) requeue(lineID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	in, ok := e.tracker.Get(lineID)
	if !ok || (in.Status != intent.StatusError && in.Status != intent.StatusRetrying) {
		return false
	}
	e.stopLocked(e.retryTimers, lineID)
	e.tracker.SetStatus(lineID, intent.StatusQueued, nil)
	return true
}

// FlushPending sends every pending line now and waits until all have
// settled. It returns false when timeout elapses or ctx is done first, or
// as soon as every remaining line has failed; in that case every line still
// pending is marked as errored. A non-positive timeout uses the configured
// FlushTimeout.
func (e *Engine) FlushPending(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = e.opts.FlushTimeout
	}

	var ids []string
	e.mu.Lock()
	for _, id := range e.tracker.Pending() {
		in, _ := e.tracker.Get(id)
		if in.Status == intent.StatusSyncing {
			continue
		}
		e.stopLocked(e.flushTimers, id)
		e.stopLocked(e.retryTimers, id)
		if in.Status != intent.StatusQueued {
			e.tracker.SetStatus(id, intent.StatusQueued, nil)
		}
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.flush(id)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		switch e.flushState() {
		case flushDone:
			return true
		case flushFailed:
			e.failPending()
			return false
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			e.logger.Warn("flush timed out", "pending", e.tracker.Len(), "timeout", timeout)
			e.failPending()
			return false
		case <-ctx.Done():
			e.failPending()
			return false
		}
	}
}

type flushResult int

const (
	flushWaiting flushResult = iota
	flushDone
	flushFailed
)

func (e *Engine) flushState() flushResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.inFlight) > 0 {
		return flushWaiting
	}
	snap := e.tracker.Snapshot()
	if len(snap) == 0 {
		return flushDone
	}
	for _, in := range snap {
		if in.Status != intent.StatusError {
			return flushWaiting
		}
	}
	return flushFailed
}

func (e *Engine) failPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.tracker.Pending() {
		e.stopLocked(e.flushTimers, id)
		e.stopLocked(e.retryTimers, id)
		e.tracker.SetStatus(id, intent.StatusError, nil)
	}
}

// Clear forgets a line's intent and stops its timers.
func (e *Engine) Clear(lineID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(e.flushTimers, lineID)
	e.stopLocked(e.retryTimers, lineID)
	e.tracker.Clear(lineID)
}

// Reset forgets every intent and stops all timers.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAllLocked()
	e.tracker.Reset()
}

func (e *Engine) stopAllLocked() {
	for id := range e.flushTimers {
		e.stopLocked(e.flushTimers, id)
	}
	for id := range e.retryTimers {
		e.stopLocked(e.retryTimers, id)
	}
}

// Close stops all timers, cancels in-flight calls and waits for them.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopAllLocked()
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
