package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/transport"
)

// =============================================================================
// STOREFRONT GRAPHQL CLIENT
// =============================================================================
//
// Every operation is a POST to https://{domain}/api/{version}/graphql.json
// authenticated with the public Storefront access token.
//
// GraphQL reports most failures with HTTP 200: top-level "errors" mean the
// request itself failed (THROTTLED is the rate limit), while mutation
// "userErrors" are business failures handed back to the gateway untouched.
// =============================================================================

const (
	serviceName = "Shopify"
	userAgent   = "cartsync/1.0"

	tokenHeader = "X-Shopify-Storefront-Access-Token"

	// DefaultAPIVersion is the Storefront API version used when none is configured.
	DefaultAPIVersion = "2025-01"
)

// Config holds Storefront client configuration.
type Config struct {
	StoreDomain     string // e.g. "shop.example.com"
	StorefrontToken string
	APIVersion      string

	// Endpoint overrides the URL derived from StoreDomain and APIVersion.
	Endpoint string

	// HTTPClient defaults to a fingerprinted, circuit-broken client.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements gateway.Storefront over the Storefront GraphQL API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	logger     *slog.Logger
}

// New creates a Storefront client.
func New(cfg Config) (*Client, error) {
	if cfg.StoreDomain == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("store domain is required")
	}
	if cfg.StorefrontToken == "" {
		return nil, fmt.Errorf("storefront access token is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		domain := strings.TrimSuffix(strings.TrimPrefix(cfg.StoreDomain, "https://"), "/")
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", domain, cfg.APIVersion)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		breaker := transport.DefaultBreakerSettings()
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: transport.New(transport.Options{
				Timeout:     30 * time.Second,
				Fingerprint: true,
				Breaker:     &breaker,
				Logger:      logger,
			}),
		}
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		token:      cfg.StorefrontToken,
		logger:     logger.With("component", "shopify"),
	}, nil
}

// === Cart Operations ===

// GetCart fetches a cart by id. A cart the API no longer knows is reported
// as model.ErrNotFound.
func (c *Client) GetCart(ctx context.Context, cartID string) (*model.Cart, error) {
	var data CartQueryPayload
	if err := c.do(ctx, queryCart, map[string]any{"cartId": cartID}, &data); err != nil {
		return nil, fmt.Errorf("fetching cart: %w", err)
	}
	cart, _, err := Normalize(data)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, model.NewNotFoundError("cart")
	}
	return cart, nil
}

// CreateCart creates a cart holding lines.
func (c *Client) CreateCart(ctx context.Context, lines []gateway.LineInput) (*model.Cart, []model.UserError, error) {
	vars := map[string]any{"input": map[string]any{"lines": lines}}
	var data CartCreatePayload
	if err := c.do(ctx, mutationCartCreate, vars, &data); err != nil {
		return nil, nil, fmt.Errorf("creating cart: %w", err)
	}
	return Normalize(data)
}

// AddLines adds lines to an existing cart.
func (c *Client) AddLines(ctx context.Context, cartID string, lines []gateway.LineInput) (*model.Cart, []model.UserError, error) {
	vars := map[string]any{"cartId": cartID, "lines": lines}
	var data LinesAddPayload
	if err := c.do(ctx, mutationLinesAdd, vars, &data); err != nil {
		return nil, nil, fmt.Errorf("adding cart lines: %w", err)
	}
	return Normalize(data)
}

// UpdateLines changes line quantities.
func (c *Client) UpdateLines(ctx context.Context, cartID string, lines []gateway.LineUpdate) (*model.Cart, []model.UserError, error) {
	vars := map[string]any{"cartId": cartID, "lines": lines}
	var data LinesUpdatePayload
	if err := c.do(ctx, mutationLinesUpdate, vars, &data); err != nil {
		return nil, nil, fmt.Errorf("updating cart lines: %w", err)
	}
	return Normalize(data)
}

// RemoveLines deletes lines from a cart.
func (c *Client) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*model.Cart, []model.UserError, error) {
	vars := map[string]any{"cartId": cartID, "lineIds": lineIDs}
	var data LinesRemovePayload
	if err := c.do(ctx, mutationLinesRemove, vars, &data); err != nil {
		return nil, nil, fmt.Errorf("removing cart lines: %w", err)
	}
	return Normalize(data)
}

// === HTTP Helpers ===

// do posts one GraphQL operation and decodes its data into out.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(tokenHeader, c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("storefront request",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, respBody)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return graphQLError(envelope.Errors)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return model.NewUpstreamError(serviceName, errors.New("response has no data"))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("parsing response data: %w", err)
	}
	return nil
}

// parseErrorResponse converts a non-2xx Storefront response to an APIError.
func parseErrorResponse(statusCode int, body []byte) error {
	var payload struct {
		Errors json.RawMessage `json:"errors"`
	}
	json.Unmarshal(body, &payload) // Best effort parse

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("cart")
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("Shopify rejected the storefront access token")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	case http.StatusBadRequest:
		return model.NewValidationError("request", strings.TrimSpace(string(payload.Errors)))
	default:
		return model.NewUpstreamError(serviceName,
			fmt.Errorf("status %d: %s", statusCode, strings.TrimSpace(string(payload.Errors))))
	}
}

// graphQLError maps top-level GraphQL errors. THROTTLED is a rate limit;
// ACCESS_DENIED an auth failure; anything else an upstream failure.
func graphQLError(errs []gqlError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Extensions.Code {
		case "THROTTLED":
			return model.NewRateLimitError(serviceName)
		case "ACCESS_DENIED", "UNAUTHORIZED":
			return model.NewUnauthorizedError(e.Message)
		}
		msgs = append(msgs, e.Message)
	}
	return model.NewUpstreamError(serviceName, errors.New(strings.Join(msgs, "; ")))
}

// Verify Client implements gateway.Storefront at compile time.
var _ gateway.Storefront = (*Client)(nil)
