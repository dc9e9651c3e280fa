// Package handler provides the HTTP and MCP surface of cartd.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"cartsync/internal/middleware"
	"cartsync/internal/model"
	"cartsync/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions middleware.Sessions
	logger   *slog.Logger
}

// New creates a new Handler over the given session registry.
func New(sessions middleware.Sessions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns. Cart routes expect the session
// middleware in front of the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// REST transport - cart operations
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("DELETE /cart", h.handleResetCart)
	mux.HandleFunc("POST /cart/lines", h.handleAddLine)
	mux.HandleFunc("PATCH /cart/lines/{id}", h.handleUpdateLine)
	mux.HandleFunc("DELETE /cart/lines/{id}", h.handleRemoveLine)
	mux.HandleFunc("GET /cart/lines/{id}/status", h.handleLineStatus)
	mux.HandleFunc("POST /cart/checkout", h.handleCheckout)
	mux.HandleFunc("POST /cart/connectivity", h.handleConnectivity)
	mux.HandleFunc("POST /cart/retry", h.handleRetry)
	mux.HandleFunc("PUT /cart/ui", h.handleSetUI)
	mux.HandleFunc("GET /cart/notifications", h.handleNotifications)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// ExemptPaths lists routes served without a cart session.
var ExemptPaths = []string{"/health", "/healthz"}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// session returns the store resolved by the session middleware.
func (h *Handler) session(r *http.Request) (*store.Store, error) {
	sess, ok := middleware.FromContext(r.Context())
	if !ok {
		return nil, model.NewInternalError(errors.New("request has no cart session"))
	}
	return sess.Store, nil
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		// Found APIError in error chain - use it
		if apiErr.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("request failed", slog.String("error", err.Error()))
		}
	} else {
		// Wrap unexpected errors
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []model.UserError `json:"details,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
