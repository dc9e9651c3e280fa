package shopify

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cartsync/internal/model"
)

// =============================================================================
// STOREFRONT → MODEL TRANSFORMATION
// =============================================================================

// Normalize converts any Payload into a cart and the user errors reported
// alongside it. A nil cart with no user errors means the API returned nothing.
func Normalize(p Payload) (*model.Cart, []model.UserError, error) {
	switch p := p.(type) {
	case CartQueryPayload:
		return cartFromStorefront(p.Cart), nil, nil
	case CartCreatePayload:
		return fromMutation(p.CartCreate)
	case LinesAddPayload:
		return fromMutation(p.CartLinesAdd)
	case LinesUpdatePayload:
		return fromMutation(p.CartLinesUpdate)
	case LinesRemovePayload:
		return fromMutation(p.CartLinesRemove)
	case FlatCartPayload:
		return cartFromFlat(p.Cart), p.UserErrors, nil
	default:
		return nil, nil, fmt.Errorf("unsupported payload %T", p)
	}
}

func fromMutation(r *MutationResult) (*model.Cart, []model.UserError, error) {
	if r == nil {
		return nil, nil, nil
	}
	return cartFromStorefront(r.Cart), r.UserErrors, nil
}

func cartFromStorefront(sc *StorefrontCart) *model.Cart {
	if sc == nil {
		return nil
	}
	var lines []StorefrontLine
	if len(sc.Lines.Edges) > 0 {
		lines = make([]StorefrontLine, len(sc.Lines.Edges))
		for i, e := range sc.Lines.Edges {
			lines[i] = e.Node
		}
	} else {
		lines = sc.Lines.Nodes
	}
	return buildCart(sc.ID, sc.CheckoutURL, sc.TotalQuantity, sc.Cost.TotalAmount, lines)
}

func cartFromFlat(fc *FlatCart) *model.Cart {
	if fc == nil {
		return nil
	}
	return buildCart(fc.ID, fc.CheckoutURL, fc.TotalQuantity, fc.Cost.TotalAmount, fc.Lines)
}

// buildCart assembles the normalized cart. Missing totals are derived from
// the lines; server-provided totals are kept as-is.
func buildCart(id, checkoutURL string, totalQuantity int, total model.Money, raw []StorefrontLine) *model.Cart {
	cart := &model.Cart{
		ID:            id,
		CheckoutURL:   checkoutURL,
		TotalQuantity: totalQuantity,
		Cost:          model.CartCost{TotalAmount: total},
		Lines:         make([]model.CartLine, 0, len(raw)),
	}

	quantity := 0
	sum := decimal.Zero
	for _, l := range raw {
		line := transformLine(l)
		quantity += line.Quantity
		sum = sum.Add(line.Cost.TotalAmount.Amount)
		cart.Lines = append(cart.Lines, line)
	}

	if cart.TotalQuantity == 0 && quantity > 0 {
		cart.TotalQuantity = quantity
	}
	if cart.Cost.TotalAmount.CurrencyCode == "" && len(cart.Lines) > 0 {
		cart.Cost.TotalAmount = model.Money{
			Amount:       model.Round2(sum),
			CurrencyCode: cart.Lines[0].Cost.TotalAmount.CurrencyCode,
		}
	}
	return cart
}

// === Lines ===

func transformLine(l StorefrontLine) model.CartLine {
	cost := model.LineCost{
		AmountPerQuantity: l.Cost.AmountPerQuantity,
		SubtotalAmount:    l.Cost.SubtotalAmount,
		TotalAmount:       l.Cost.TotalAmount,
	}
	if cost.TotalAmount.CurrencyCode == "" && cost.AmountPerQuantity.CurrencyCode != "" {
		cost.TotalAmount = cost.AmountPerQuantity.Times(l.Quantity)
	}
	if cost.SubtotalAmount.CurrencyCode == "" {
		cost.SubtotalAmount = cost.TotalAmount
	}
	if cost.AmountPerQuantity.CurrencyCode == "" && l.Quantity > 0 {
		cost.AmountPerQuantity = model.Money{
			Amount:       model.Round2(cost.TotalAmount.Amount.Div(decimal.NewFromInt(int64(l.Quantity)))),
			CurrencyCode: cost.TotalAmount.CurrencyCode,
		}
	}

	m := l.Merchandise
	var image *model.Image
	if m.Image != nil && m.Image.URL != "" {
		img := *m.Image
		image = &img
	}

	return model.CartLine{
		ID:       l.ID,
		Quantity: l.Quantity,
		Cost:     cost,
		Merchandise: model.Merchandise{
			ID:              m.ID,
			Title:           m.Title,
			ProductTitle:    m.Product.Title,
			ProductHandle:   m.Product.Handle,
			Image:           image,
			SelectedOptions: m.SelectedOptions,
		},
	}
}
