// Package gateway defines the cart mutation contract the sync engine talks to,
// and the policy layer that turns raw Storefront results into authoritative
// carts or typed errors.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cartsync/internal/model"
)

// Gateway abstracts cart reads and mutations. Every successful mutation
// returns the authoritative post-mutation cart.
type Gateway interface {
	// GetCart returns the cart, or (nil, nil) when the id no longer exists.
	GetCart(ctx context.Context, cartID string) (*model.Cart, error)

	// AddLine adds merchandise to the cart named in req, or to a new cart
	// when req.CartID is empty or no longer usable.
	AddLine(ctx context.Context, req AddLineRequest) (*model.Cart, error)

	// UpdateLine sets a line's quantity. Requires a cart id.
	UpdateLine(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error)

	// RemoveLine deletes a line. Requires a cart id.
	RemoveLine(ctx context.Context, cartID, lineID string) (*model.Cart, error)
}

// AddLineRequest describes an add-to-cart.
type AddLineRequest struct {
	CartID        string `json:"cartId,omitempty"`
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// LineInput is a merchandise/quantity pair for create and add calls.
type LineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// LineUpdate is a line id/quantity pair for update calls.
type LineUpdate struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Storefront is the raw commerce API after payload normalization.
// Mutations report user errors separately from transport errors so the
// policy layer can decide what is recoverable.
type Storefront interface {
	GetCart(ctx context.Context, cartID string) (*model.Cart, error)
	CreateCart(ctx context.Context, lines []LineInput) (*model.Cart, []model.UserError, error)
	AddLines(ctx context.Context, cartID string, lines []LineInput) (*model.Cart, []model.UserError, error)
	UpdateLines(ctx context.Context, cartID string, lines []LineUpdate) (*model.Cart, []model.UserError, error)
	RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*model.Cart, []model.UserError, error)
}

// errEmptyResult is wrapped when the API returned neither a cart nor errors.
var errEmptyResult = errors.New("response contained neither a cart nor user errors")

// Service applies cart mutation policy on top of a Storefront.
type Service struct {
	storefront Storefront
	logger     *slog.Logger
}

// NewService creates a gateway over sf.
func NewService(sf Storefront, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{storefront: sf, logger: logger.With("component", "gateway")}
}

// GetCart implements Gateway.
func (s *Service) GetCart(ctx context.Context, cartID string) (*model.Cart, error) {
	if cartID == "" {
		return nil, nil
	}
	cart, err := s.storefront.GetCart(ctx, cartID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// AddLine implements Gateway. A cart id that the API reports as missing or
// invalid falls back to creating a new cart with the same line.
func (s *Service) AddLine(ctx context.Context, req AddLineRequest) (*model.Cart, error) {
	if req.MerchandiseID == "" {
		return nil, model.NewValidationError("merchandiseId", "required")
	}
	if req.Quantity <= 0 {
		return nil, model.NewValidationError("quantity", "must be positive")
	}
	lines := []LineInput{{MerchandiseID: req.MerchandiseID, Quantity: req.Quantity}}

	if req.CartID != "" {
		cart, userErrors, err := s.storefront.AddLines(ctx, req.CartID, lines)
		switch {
		case isRecoverable(userErrors, err):
			s.logger.Info("cart unusable, creating a new one",
				"cart_id", req.CartID,
				"merchandise_id", req.MerchandiseID,
			)
		case err != nil:
			return nil, err
		default:
			return result(cart, userErrors, nil)
		}
	}

	return result(s.storefront.CreateCart(ctx, lines))
}

// UpdateLine implements Gateway. A quantity of zero or less removes the line.
func (s *Service) UpdateLine(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
	if quantity <= 0 {
		return s.RemoveLine(ctx, cartID, lineID)
	}
	if cartID == "" {
		return nil, model.NewMissingCartIDError("update line")
	}
	if lineID == "" {
		return nil, model.NewValidationError("lineId", "required")
	}
	return result(s.storefront.UpdateLines(ctx, cartID, []LineUpdate{{ID: lineID, Quantity: quantity}}))
}

// RemoveLine implements Gateway.
func (s *Service) RemoveLine(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
	if cartID == "" {
		return nil, model.NewMissingCartIDError("remove line")
	}
	if lineID == "" {
		return nil, model.NewValidationError("lineId", "required")
	}
	return result(s.storefront.RemoveLines(ctx, cartID, []string{lineID}))
}

// result folds a raw mutation outcome into a cart or a single error.
func result(cart *model.Cart, userErrors []model.UserError, err error) (*model.Cart, error) {
	switch {
	case err != nil:
		return nil, err
	case len(userErrors) > 0:
		return nil, model.NewUserError(userErrors)
	case cart == nil:
		return nil, model.NewUpstreamError("cart API", errEmptyResult)
	}
	return cart, nil
}

// isRecoverable reports whether an add-to-existing failure means the cart id
// itself is unusable, so a new cart should be created instead. Error codes
// decide when the API sends them; the message is only read when it does not.
func isRecoverable(userErrors []model.UserError, err error) bool {
	if errors.Is(err, model.ErrNotFound) {
		return true
	}
	for _, ue := range userErrors {
		if ue.Code != "" {
			if cartIDError(ue) {
				return true
			}
			continue
		}
		msg := strings.ToLower(ue.Message)
		if !strings.Contains(msg, "cart") {
			continue
		}
		if strings.Contains(msg, "not exist") ||
			strings.Contains(msg, "not found") ||
			strings.Contains(msg, "invalid cart") {
			return true
		}
	}
	return false
}

// cartIDError reports whether a coded user error rejects the cart id.
func cartIDError(ue model.UserError) bool {
	switch ue.Code {
	case "INVALID", "NOT_FOUND":
	default:
		return false
	}
	if len(ue.Field) == 0 {
		return ue.Code == "NOT_FOUND"
	}
	return ue.Field[0] == "cartId"
}

// Verify Service implements Gateway interface at compile time.
var _ Gateway = (*Service)(nil)
