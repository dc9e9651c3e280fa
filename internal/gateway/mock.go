package gateway

import (
	"context"

	"cartsync/internal/model"
)

// Mock implements Gateway for testing.
// Each method can be configured via function fields.
type Mock struct {
	GetCartFunc    func(ctx context.Context, cartID string) (*model.Cart, error)
	AddLineFunc    func(ctx context.Context, req AddLineRequest) (*model.Cart, error)
	UpdateLineFunc func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error)
	RemoveLineFunc func(ctx context.Context, cartID, lineID string) (*model.Cart, error)
}

// GetCart calls the configured GetCartFunc or reports no cart.
func (m *Mock) GetCart(ctx context.Context, cartID string) (*model.Cart, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, cartID)
	}
	return nil, nil
}

// AddLine calls the configured AddLineFunc or returns an error.
func (m *Mock) AddLine(ctx context.Context, req AddLineRequest) (*model.Cart, error) {
	if m.AddLineFunc != nil {
		return m.AddLineFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateLine calls the configured UpdateLineFunc or returns an error.
func (m *Mock) UpdateLine(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
	if m.UpdateLineFunc != nil {
		return m.UpdateLineFunc(ctx, cartID, lineID, quantity)
	}
	return nil, model.NewNotFoundError("cart")
}

// RemoveLine calls the configured RemoveLineFunc or returns an error.
func (m *Mock) RemoveLine(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
	if m.RemoveLineFunc != nil {
		return m.RemoveLineFunc(ctx, cartID, lineID)
	}
	return nil, model.NewNotFoundError("cart")
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
