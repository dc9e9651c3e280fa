// Package model defines the normalized cart representation shared by every
// layer of the sync engine, plus the money and error helpers around it.
package model

// Cart is the root aggregate returned by the commerce API after normalization.
// Lines keep the order the remote API returned them in.
type Cart struct {
	ID            string     `json:"id"`
	CheckoutURL   string     `json:"checkoutUrl"`
	TotalQuantity int        `json:"totalQuantity"`
	Cost          CartCost   `json:"cost"`
	Lines         []CartLine `json:"lines"`
}

// CartCost holds cart-level money. TotalAmount is always derived from lines
// once the cart has been touched locally.
type CartCost struct {
	TotalAmount Money `json:"totalAmount"`
}

// CartLine is one merchandise line in a cart.
type CartLine struct {
	ID       string   `json:"id"`
	Quantity int      `json:"quantity"`
	Cost     LineCost `json:"cost"`

	// Merchandise is a display snapshot; never re-fetched per render.
	Merchandise Merchandise `json:"merchandise"`

	// IsOptimistic marks lines created locally that the server has not
	// confirmed yet. Their ID is a placeholder.
	IsOptimistic bool `json:"isOptimistic,omitempty"`
}

// LineCost carries per-unit and extended amounts for a line.
// SubtotalAmount and TotalAmount equal AmountPerQuantity × Quantity after any
// local recomputation.
type LineCost struct {
	AmountPerQuantity Money `json:"amountPerQuantity"`
	SubtotalAmount    Money `json:"subtotalAmount"`
	TotalAmount       Money `json:"totalAmount"`
}

// Merchandise is the read-only product/variant data attached to a line.
type Merchandise struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	ProductTitle    string           `json:"productTitle,omitempty"`
	ProductHandle   string           `json:"productHandle,omitempty"`
	Image           *Image           `json:"image,omitempty"`
	SelectedOptions []SelectedOption `json:"selectedOptions,omitempty"`
}

// Image is a merchandise image reference.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

// SelectedOption is a variant option such as Size=M.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UserError is a field-scoped error reported by the commerce API instead of,
// or alongside, a result.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
}

// Line returns the line with the given id, or nil.
func (c *Cart) Line(lineID string) *CartLine {
	if c == nil {
		return nil
	}
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return &c.Lines[i]
		}
	}
	return nil
}

// LineForMerchandise returns the first line holding the given merchandise, or nil.
func (c *Cart) LineForMerchandise(merchandiseID string) *CartLine {
	if c == nil {
		return nil
	}
	for i := range c.Lines {
		if c.Lines[i].Merchandise.ID == merchandiseID {
			return &c.Lines[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the cart so projections never alias inputs.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, line := range c.Lines {
		out.Lines[i] = line.clone()
	}
	return &out
}

func (l CartLine) clone() CartLine {
	out := l
	if l.Merchandise.Image != nil {
		img := *l.Merchandise.Image
		out.Merchandise.Image = &img
	}
	if l.Merchandise.SelectedOptions != nil {
		out.Merchandise.SelectedOptions = append([]SelectedOption(nil), l.Merchandise.SelectedOptions...)
	}
	return out
}
