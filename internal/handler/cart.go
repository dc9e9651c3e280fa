package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cartsync/internal/intent"
	"cartsync/internal/model"
	"cartsync/internal/optimistic"
	"cartsync/internal/store"
)

// === Request/Response Types ===

// AddLineRequest is the body of POST /cart/lines. UnitPrice and the display
// fields seed the optimistic line until the server answers.
type AddLineRequest struct {
	MerchandiseID string      `json:"merchandiseId"`
	Quantity      int         `json:"quantity"`
	UnitPrice     model.Money `json:"unitPrice"`
	Title         string      `json:"title,omitempty"`
	ProductTitle  string      `json:"productTitle,omitempty"`
	ImageURL      string      `json:"imageUrl,omitempty"`
}

func (req AddLineRequest) draft() optimistic.LineDraft {
	d := optimistic.LineDraft{
		MerchandiseID: req.MerchandiseID,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		Merchandise: model.Merchandise{
			ID:           req.MerchandiseID,
			Title:        req.Title,
			ProductTitle: req.ProductTitle,
		},
	}
	if req.ImageURL != "" {
		d.Merchandise.Image = &model.Image{URL: req.ImageURL}
	}
	return d
}

// UpdateLineRequest is the body of PATCH /cart/lines/{id}.
type UpdateLineRequest struct {
	Quantity *int `json:"quantity"`
}

// LineStatusResponse reports the sync state of one line.
type LineStatusResponse struct {
	LineID          string        `json:"lineId"`
	Status          intent.Status `json:"status"`
	DesiredQuantity *int          `json:"desiredQuantity,omitempty"`
	RetryCount      int           `json:"retryCount"`
}

// CheckoutRequest is the optional body of POST /cart/checkout.
type CheckoutRequest struct {
	TimeoutMS int `json:"timeoutMs,omitempty"`
}

// CheckoutResponse carries the URL to hand the browser to.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// ConnectivityRequest is the body of POST /cart/connectivity.
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

// ConnectivityResponse echoes the stored connectivity state.
type ConnectivityResponse struct {
	Online bool `json:"online"`
}

// RetryRequest is the optional body of POST /cart/retry. An empty LineID
// retries every failed line.
type RetryRequest struct {
	LineID string `json:"lineId,omitempty"`
}

// RetryResponse lists the lines put back in the queue.
type RetryResponse struct {
	Retried []string `json:"retried"`
}

// UIRequest is the body of PUT /cart/ui.
type UIRequest struct {
	Open *bool `json:"open"`
}

// NotificationsResponse drains the session's pending notifications.
type NotificationsResponse struct {
	Notifications []store.Notification `json:"notifications"`
}

// === Handlers ===

// handleGetCart returns the intent-adjusted cart.
// GET /cart, GET /cart?refresh=1
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	get := s.Cart
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		get = s.Refresh
	}
	cart, err := get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, s, cart)
}

// handleResetCart forgets the session's cart.
// DELETE /cart
func (h *Handler) handleResetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	s.Reset(r.Context())
	h.writeCart(w, http.StatusOK, s, nil)
}

// handleAddLine adds merchandise to the cart, creating the cart if needed.
// POST /cart/lines
func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req AddLineRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding cart line",
		slog.String("merchandise_id", req.MerchandiseID),
		slog.Int("quantity", req.Quantity),
		slog.Bool("has_cart", s.CartID() != ""),
	)

	cart, err := s.AddLine(ctx, req.draft())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusCreated, s, cart)
}

// handleUpdateLine records a desired quantity. The sync happens in the
// background, so success is 202 with the optimistic cart.
// PATCH /cart/lines/{id}
func (h *Handler) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID := r.PathValue("id")
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req UpdateLineRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "required"))
		return
	}

	h.logger.DebugContext(ctx, "updating cart line",
		slog.String("line_id", lineID),
		slog.Int("quantity", *req.Quantity),
	)

	cart, err := s.UpdateQuantity(ctx, lineID, *req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if *req.Quantity <= 0 {
		status = http.StatusOK // removals are confirmed synchronously
	}
	h.writeCart(w, status, s, cart)
}

// handleRemoveLine removes a line.
// DELETE /cart/lines/{id}
func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID := r.PathValue("id")
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "removing cart line", slog.String("line_id", lineID))

	cart, err := s.RemoveLine(ctx, lineID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, s, cart)
}

// handleLineStatus reports a line's sync status.
// GET /cart/lines/{id}/status
func (h *Handler) handleLineStatus(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("id")
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := LineStatusResponse{LineID: lineID, Status: s.Status(lineID)}
	if in, ok := s.LineIntent(lineID); ok {
		desired := in.DesiredQuantity
		resp.DesiredQuantity = &desired
		resp.RetryCount = in.RetryCount
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleCheckout flushes pending edits and returns the checkout URL.
// POST /cart/checkout
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req CheckoutRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.TimeoutMS < 0 {
		h.writeError(w, model.NewValidationError("timeoutMs", "must not be negative"))
		return
	}

	url, err := s.Checkout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "checkout ready", slog.String("cart_id", s.CartID()))
	h.writeIdentity(w, s)
	h.writeJSON(w, http.StatusOK, CheckoutResponse{CheckoutURL: url})
}

// handleConnectivity records whether the client is online.
// POST /cart/connectivity
func (h *Handler) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req ConnectivityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Online == nil {
		h.writeError(w, model.NewValidationError("online", "required"))
		return
	}

	s.SetOnline(*req.Online)
	h.writeJSON(w, http.StatusOK, ConnectivityResponse{Online: s.Online()})
}

// handleRetry requeues failed lines.
// POST /cart/retry
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req RetryRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	retried := s.Retry(req.LineID)
	if retried == nil {
		retried = []string{}
	}
	h.writeJSON(w, http.StatusOK, RetryResponse{Retried: retried})
}

// handleSetUI opens or closes the cart.
// PUT /cart/ui
func (h *Handler) handleSetUI(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req UIRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Open == nil {
		h.writeError(w, model.NewValidationError("open", "required"))
		return
	}

	if *req.Open {
		s.UI().Open()
	} else {
		s.UI().Close()
	}
	cart, err := s.Cart(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, s, cart)
}

// handleNotifications drains pending notifications.
// GET /cart/notifications
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	notes := s.Notifications()
	if notes == nil {
		notes = []store.Notification{}
	}
	h.writeJSON(w, http.StatusOK, NotificationsResponse{Notifications: notes})
}
