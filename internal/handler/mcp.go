// MCP transport handler for cartd using the official MCP Go SDK.
// Exposes cart operations as MCP tools bound to the caller's cart session.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cartsync/internal/identity"
	"cartsync/internal/middleware"
	"cartsync/internal/model"
	"cartsync/internal/optimistic"
	"cartsync/internal/store"
)

// === MCP Tool Input Types ===

// GetCartInput is the input schema for get_cart tool.
type GetCartInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"refetch the cart from the commerce API"`
}

// AddToCartInput is the input schema for add_to_cart tool.
type AddToCartInput struct {
	MerchandiseID string `json:"merchandise_id" jsonschema:"merchandise (product variant) ID"`
	Quantity      int    `json:"quantity" jsonschema:"quantity to add, at least 1"`
	UnitPrice     string `json:"unit_price,omitempty" jsonschema:"unit price as a decimal string, shown until the server answers"`
	CurrencyCode  string `json:"currency_code,omitempty" jsonschema:"ISO 4217 currency of unit_price"`
	Title         string `json:"title,omitempty" jsonschema:"display title of the merchandise"`
}

// UpdateCartLineInput is the input schema for update_cart_line tool.
type UpdateCartLineInput struct {
	LineID   string `json:"line_id" jsonschema:"cart line ID"`
	Quantity int    `json:"quantity" jsonschema:"desired quantity; 0 removes the line"`
}

// RemoveCartLineInput is the input schema for remove_cart_line tool.
type RemoveCartLineInput struct {
	LineID string `json:"line_id" jsonschema:"cart line ID"`
}

// CheckoutCartInput is the input schema for checkout_cart tool.
type CheckoutCartInput struct {
	TimeoutMS int `json:"timeout_ms,omitempty" jsonschema:"how long to wait for pending edits to sync, in milliseconds"`
}

// NewMCPServer creates an MCP server whose tools act on the cart session
// sessionID. The server exposes the same operations as the REST API.
func (h *Handler) NewMCPServer(sessionID string) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cartd",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Cart tools for one shopping session. Quantity edits are applied " +
				"immediately and synced in the background; checkout_cart waits for them.",
		},
	)

	t := &mcpTools{h: h, sessionID: sessionID}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the cart with pending quantity edits applied.",
	}, t.getCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add merchandise to the cart, creating the cart if needed.",
	}, t.addToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_line",
		Description: "Set the quantity of a cart line. The change syncs in the background.",
	}, t.updateCartLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_cart_line",
		Description: "Remove a line from the cart.",
	}, t.removeCartLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "checkout_cart",
		Description: "Wait for pending edits to sync and return the checkout URL.",
	}, t.checkoutCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp behind the session middleware; each MCP session is
// bound to the cart session of the request that initialized it.
func (h *Handler) NewMCPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			sess, ok := middleware.FromContext(r.Context())
			if !ok {
				h.logger.Warn("mcp request without cart session")
				return nil
			}
			return h.NewMCPServer(sess.ID)
		},
		nil,
	)
}

// === Tool Handlers ===

type mcpTools struct {
	h         *Handler
	sessionID string
}

func (t *mcpTools) store(ctx context.Context) *store.Store {
	_, s, _ := t.h.sessions.Resolve(ctx, t.sessionID, identity.Identity{})
	return s
}

func (t *mcpTools) getCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, CartResponse, error) {
	s := t.store(ctx)
	get := s.Cart
	if input.Refresh {
		get = s.Refresh
	}
	cart, err := get(ctx)
	if err != nil {
		return nil, CartResponse{}, t.h.mcpError(err)
	}
	return nil, newCartResponse(s, cart), nil
}

func (t *mcpTools) addToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, CartResponse, error) {
	price, err := model.NewMoney(input.UnitPrice, input.CurrencyCode)
	if err != nil {
		return nil, CartResponse{}, t.h.mcpError(model.NewValidationError("unit_price", "must be a decimal amount"))
	}

	s := t.store(ctx)
	cart, err := s.AddLine(ctx, optimistic.LineDraft{
		MerchandiseID: input.MerchandiseID,
		Quantity:      input.Quantity,
		UnitPrice:     price,
		Merchandise:   model.Merchandise{ID: input.MerchandiseID, Title: input.Title},
	})
	if err != nil {
		return nil, CartResponse{}, t.h.mcpError(err)
	}
	return nil, newCartResponse(s, cart), nil
}

func (t *mcpTools) updateCartLine(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UpdateCartLineInput,
) (*mcp.CallToolResult, CartResponse, error) {
	s := t.store(ctx)
	cart, err := s.UpdateQuantity(ctx, input.LineID, input.Quantity)
	if err != nil {
		return nil, CartResponse{}, t.h.mcpError(err)
	}
	return nil, newCartResponse(s, cart), nil
}

func (t *mcpTools) removeCartLine(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveCartLineInput,
) (*mcp.CallToolResult, CartResponse, error) {
	s := t.store(ctx)
	cart, err := s.RemoveLine(ctx, input.LineID)
	if err != nil {
		return nil, CartResponse{}, t.h.mcpError(err)
	}
	return nil, newCartResponse(s, cart), nil
}

func (t *mcpTools) checkoutCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CheckoutCartInput,
) (*mcp.CallToolResult, CheckoutResponse, error) {
	if input.TimeoutMS < 0 {
		return nil, CheckoutResponse{}, t.h.mcpError(model.NewValidationError("timeout_ms", "must not be negative"))
	}
	url, err := t.store(ctx).Checkout(ctx, time.Duration(input.TimeoutMS)*time.Millisecond)
	if err != nil {
		return nil, CheckoutResponse{}, t.h.mcpError(err)
	}
	return nil, CheckoutResponse{CheckoutURL: url}, nil
}

// mcpError converts store errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp tool failed", "error", err.Error())
	if apiErr != nil {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("internal error")
}
