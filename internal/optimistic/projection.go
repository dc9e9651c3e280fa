// Package optimistic computes locally adjusted views of a cart without waiting
// for the network. Every function is pure: inputs are never mutated and a
// changed cart is always a new pointer, so cache layers can detect change by
// identity.
package optimistic

import (
	"github.com/shopspring/decimal"

	"cartsync/internal/model"
)

const (
	// PlaceholderCartID identifies a cart synthesized before the server
	// created one.
	PlaceholderCartID = "optimistic-cart"

	placeholderLinePrefix = "optimistic:"
)

// LineDraft describes a line the user asked to add.
type LineDraft struct {
	MerchandiseID string
	Quantity      int
	UnitPrice     model.Money
	Merchandise   model.Merchandise
}

// PlaceholderLineID returns the deterministic id given to an optimistic line.
func PlaceholderLineID(merchandiseID string) string {
	return placeholderLinePrefix + merchandiseID
}

// IsPlaceholderLineID reports whether id was produced by PlaceholderLineID.
func IsPlaceholderLineID(id string) bool {
	return len(id) > len(placeholderLinePrefix) && id[:len(placeholderLinePrefix)] == placeholderLinePrefix
}

// ApplyAdd adds draft to cart. A nil cart becomes a brand-new one-line cart.
// An existing line for the same merchandise has its quantity increased by the
// draft quantity; otherwise a new optimistic line is appended.
func ApplyAdd(cart *model.Cart, draft LineDraft) *model.Cart {
	if cart == nil {
		cart = &model.Cart{
			ID: PlaceholderCartID,
			Cost: model.CartCost{
				TotalAmount: model.Money{Amount: decimal.Zero, CurrencyCode: draft.UnitPrice.CurrencyCode},
			},
		}
	}
	out := cart.Clone()

	if existing := out.LineForMerchandise(draft.MerchandiseID); existing != nil {
		*existing = withQuantity(*existing, existing.Quantity+draft.Quantity)
		return Recompute(out)
	}

	merch := draft.Merchandise
	if merch.ID == "" {
		merch.ID = draft.MerchandiseID
	}
	line := model.CartLine{
		ID:          PlaceholderLineID(draft.MerchandiseID),
		Merchandise: merch,
		Cost: model.LineCost{
			AmountPerQuantity: draft.UnitPrice,
		},
		IsOptimistic: true,
	}
	out.Lines = append(out.Lines, withQuantity(line, draft.Quantity))
	return Recompute(out)
}

// ApplyQuantityUpdate sets the quantity of lineID. A quantity of zero or less
// removes the line. A nil cart stays nil.
func ApplyQuantityUpdate(cart *model.Cart, lineID string, quantity int) *model.Cart {
	if cart == nil {
		return nil
	}
	if quantity <= 0 {
		return ApplyRemove(cart, lineID)
	}
	out := cart.Clone()
	if line := out.Line(lineID); line != nil {
		*line = withQuantity(*line, quantity)
	}
	return Recompute(out)
}

// ApplyRemove drops lineID from the cart. A nil cart stays nil.
func ApplyRemove(cart *model.Cart, lineID string) *model.Cart {
	if cart == nil {
		return nil
	}
	out := cart.Clone()
	kept := out.Lines[:0]
	for _, line := range out.Lines {
		if line.ID != lineID {
			kept = append(kept, line)
		}
	}
	out.Lines = kept
	return Recompute(out)
}

// Recompute derives TotalQuantity and Cost.TotalAmount from the lines in place
// and returns the cart. Currency follows the first line, falling back to the
// cart's prior currency when no lines remain.
func Recompute(cart *model.Cart) *model.Cart {
	if cart == nil {
		return nil
	}
	total := decimal.Zero
	quantity := 0
	for _, line := range cart.Lines {
		quantity += line.Quantity
		total = total.Add(line.Cost.TotalAmount.Amount)
	}

	currency := cart.Cost.TotalAmount.CurrencyCode
	if len(cart.Lines) > 0 && cart.Lines[0].Cost.TotalAmount.CurrencyCode != "" {
		currency = cart.Lines[0].Cost.TotalAmount.CurrencyCode
	}

	cart.TotalQuantity = quantity
	cart.Cost.TotalAmount = model.Money{Amount: model.Round2(total), CurrencyCode: currency}
	return cart
}

// withQuantity rewrites a line's quantity and its extended amounts.
func withQuantity(line model.CartLine, quantity int) model.CartLine {
	line.Quantity = quantity
	unit := line.Cost.AmountPerQuantity
	if unit.CurrencyCode == "" {
		unit.CurrencyCode = line.Cost.TotalAmount.CurrencyCode
	}
	line.Cost.SubtotalAmount = unit.Times(quantity)
	line.Cost.TotalAmount = unit.Times(quantity)
	return line
}
