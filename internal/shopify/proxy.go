package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/transport"
)

// =============================================================================
// CART PROXY CLIENT
// =============================================================================
//
// Storefronts that keep the Storefront token server-side expose their own
// cart endpoints. They answer with {"cart": FlatCart, "userErrors": [...]}:
//
//	GET   {base}/cart?id=ID          fetch
//	POST  {base}/cart                create   {"lines": [...]}
//	POST  {base}/cart/lines          add      {"cartId", "lines"}
//	PATCH {base}/cart/lines          update   {"cartId", "lines"}
//	POST  {base}/cart/lines/remove   remove   {"cartId", "lineIds"}
// =============================================================================

const proxyServiceName = "cart proxy"

// ProxyClient implements gateway.Storefront against a storefront cart proxy.
type ProxyClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewProxy creates a cart proxy client rooted at baseURL.
func NewProxy(baseURL string, httpClient *http.Client, logger *slog.Logger) (*ProxyClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("cart proxy URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid cart proxy URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		breaker := transport.DefaultBreakerSettings()
		breaker.Name = "cart-proxy"
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport.New(transport.Options{Breaker: &breaker, Logger: logger}),
		}
	}
	return &ProxyClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger.With("component", "cart-proxy"),
	}, nil
}

// GetCart implements gateway.Storefront.
func (p *ProxyClient) GetCart(ctx context.Context, cartID string) (*model.Cart, error) {
	path := "/cart?id=" + url.QueryEscape(cartID)
	cart, _, err := p.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching cart: %w", err)
	}
	if cart == nil {
		return nil, model.NewNotFoundError("cart")
	}
	return cart, nil
}

// CreateCart implements gateway.Storefront.
func (p *ProxyClient) CreateCart(ctx context.Context, lines []gateway.LineInput) (*model.Cart, []model.UserError, error) {
	return p.call(ctx, http.MethodPost, "/cart", map[string]any{"lines": lines})
}

// AddLines implements gateway.Storefront.
func (p *ProxyClient) AddLines(ctx context.Context, cartID string, lines []gateway.LineInput) (*model.Cart, []model.UserError, error) {
	return p.call(ctx, http.MethodPost, "/cart/lines", map[string]any{"cartId": cartID, "lines": lines})
}

// UpdateLines implements gateway.Storefront.
func (p *ProxyClient) UpdateLines(ctx context.Context, cartID string, lines []gateway.LineUpdate) (*model.Cart, []model.UserError, error) {
	return p.call(ctx, http.MethodPatch, "/cart/lines", map[string]any{"cartId": cartID, "lines": lines})
}

// RemoveLines implements gateway.Storefront.
func (p *ProxyClient) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*model.Cart, []model.UserError, error) {
	return p.call(ctx, http.MethodPost, "/cart/lines/remove", map[string]any{"cartId": cartID, "lineIds": lineIDs})
}

func (p *ProxyClient) call(ctx context.Context, method, path string, body any) (*model.Cart, []model.UserError, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, model.NewUpstreamError(proxyServiceName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	var payload FlatCartPayload
	decodeErr := json.Unmarshal(respBody, &payload)

	// The proxy reports user errors with 4xx and a normal body.
	if resp.StatusCode >= 400 && (decodeErr != nil || len(payload.UserErrors) == 0) {
		return nil, nil, parseErrorResponse(resp.StatusCode, respBody)
	}
	if decodeErr != nil {
		return nil, nil, fmt.Errorf("parsing response: %w", decodeErr)
	}

	p.logger.Debug("cart proxy request", "method", method, "path", path, "status", resp.StatusCode)
	return Normalize(payload)
}

// Verify ProxyClient implements gateway.Storefront at compile time.
var _ gateway.Storefront = (*ProxyClient)(nil)
