// Package shopify talks to the Shopify Storefront API, either directly over
// GraphQL or through the storefront's own cart proxy, and normalizes every
// response shape into model.Cart.
//
// GraphQL responses wrap lines in connection edges and put mutation results
// under a per-operation key; the proxy returns flattened carts whose amounts
// may be numbers or strings. Each shape is a Payload variant with its own
// normalization.
package shopify

import "cartsync/internal/model"

// === GraphQL wire types ===

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// StorefrontCart is the Cart object as selected by cartFragment.
type StorefrontCart struct {
	ID            string         `json:"id"`
	CheckoutURL   string         `json:"checkoutUrl"`
	TotalQuantity int            `json:"totalQuantity"`
	Cost          cartCost       `json:"cost"`
	Lines         lineConnection `json:"lines"`
}

type cartCost struct {
	TotalAmount model.Money `json:"totalAmount"`
}

// lineConnection accepts both the edges and nodes connection forms.
type lineConnection struct {
	Edges []struct {
		Node StorefrontLine `json:"node"`
	} `json:"edges"`
	Nodes []StorefrontLine `json:"nodes"`
}

// StorefrontLine is a BaseCartLine.
type StorefrontLine struct {
	ID          string                `json:"id"`
	Quantity    int                   `json:"quantity"`
	Cost        lineCost              `json:"cost"`
	Merchandise StorefrontMerchandise `json:"merchandise"`
}

type lineCost struct {
	AmountPerQuantity model.Money `json:"amountPerQuantity"`
	SubtotalAmount    model.Money `json:"subtotalAmount"`
	TotalAmount       model.Money `json:"totalAmount"`
}

// StorefrontMerchandise is a ProductVariant.
type StorefrontMerchandise struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title"`
	SelectedOptions []model.SelectedOption `json:"selectedOptions"`
	Image           *model.Image           `json:"image"`
	Product         struct {
		Title  string `json:"title"`
		Handle string `json:"handle"`
	} `json:"product"`
}

// MutationResult is the common body of every cart mutation response.
type MutationResult struct {
	Cart       *StorefrontCart   `json:"cart"`
	UserErrors []model.UserError `json:"userErrors"`
}

// === Cart proxy wire types ===

// FlatCart is a cart as returned by the storefront's cart proxy: lines are a
// plain array.
type FlatCart struct {
	ID            string           `json:"id"`
	CheckoutURL   string           `json:"checkoutUrl"`
	TotalQuantity int              `json:"totalQuantity"`
	Cost          cartCost         `json:"cost"`
	Lines         []StorefrontLine `json:"lines"`
}

// =============================================================================
// PAYLOADS
// =============================================================================
//
// Payload is a closed set of response shapes. Normalize switches over all of
// them and rejects anything else.
// =============================================================================

// Payload is one of the response shapes Normalize understands.
type Payload interface {
	payload()
}

// CartQueryPayload is the data of the cart query.
type CartQueryPayload struct {
	Cart *StorefrontCart `json:"cart"`
}

// CartCreatePayload is the data of the cartCreate mutation.
type CartCreatePayload struct {
	CartCreate *MutationResult `json:"cartCreate"`
}

// LinesAddPayload is the data of the cartLinesAdd mutation.
type LinesAddPayload struct {
	CartLinesAdd *MutationResult `json:"cartLinesAdd"`
}

// LinesUpdatePayload is the data of the cartLinesUpdate mutation.
type LinesUpdatePayload struct {
	CartLinesUpdate *MutationResult `json:"cartLinesUpdate"`
}

// LinesRemovePayload is the data of the cartLinesRemove mutation.
type LinesRemovePayload struct {
	CartLinesRemove *MutationResult `json:"cartLinesRemove"`
}

// FlatCartPayload is a cart proxy response.
type FlatCartPayload struct {
	Cart       *FlatCart         `json:"cart"`
	UserErrors []model.UserError `json:"userErrors"`
}

func (CartQueryPayload) payload()   {}
func (CartCreatePayload) payload()  {}
func (LinesAddPayload) payload()    {}
func (LinesUpdatePayload) payload() {}
func (LinesRemovePayload) payload() {}
func (FlatCartPayload) payload()    {}
