package handler

import (
	"net/http"

	"cartsync/internal/identity"
	"cartsync/internal/intent"
	"cartsync/internal/model"
	"cartsync/internal/store"
)

// CartResponse is the body of every cart-returning endpoint. Cart is null
// when the session has no cart yet; Quantity is the badge count either way.
type CartResponse struct {
	Cart     *CartView `json:"cart"`
	Quantity int       `json:"quantity"`
	Open     bool      `json:"open"`
	Online   bool      `json:"online"`
}

// CartView is the client-facing cart. Amounts are fixed two-decimal strings.
type CartView struct {
	ID            string     `json:"id"`
	CheckoutURL   string     `json:"checkoutUrl,omitempty"`
	TotalQuantity int        `json:"totalQuantity"`
	TotalAmount   MoneyView  `json:"totalAmount"`
	Lines         []LineView `json:"lines"`
}

// LineView is one cart line with its sync status.
type LineView struct {
	ID            string        `json:"id"`
	MerchandiseID string        `json:"merchandiseId"`
	Title         string        `json:"title"`
	ProductTitle  string        `json:"productTitle,omitempty"`
	ImageURL      string        `json:"imageUrl,omitempty"`
	Quantity      int           `json:"quantity"`
	UnitPrice     MoneyView     `json:"unitPrice"`
	TotalAmount   MoneyView     `json:"totalAmount"`
	Optimistic    bool          `json:"optimistic,omitempty"`
	Status        intent.Status `json:"status"`
}

// MoneyView is a display amount.
type MoneyView struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

func moneyView(m model.Money) MoneyView {
	return MoneyView{Amount: m.Amount.StringFixed(2), CurrencyCode: m.CurrencyCode}
}

// newCartResponse renders cart as seen by s.
func newCartResponse(s *store.Store, cart *model.Cart) CartResponse {
	resp := CartResponse{
		Quantity: s.Quantity(),
		Open:     s.UI().IsOpen(),
		Online:   s.Online(),
	}
	if cart == nil {
		return resp
	}

	v := &CartView{
		ID:            cart.ID,
		CheckoutURL:   cart.CheckoutURL,
		TotalQuantity: cart.TotalQuantity,
		TotalAmount:   moneyView(cart.Cost.TotalAmount),
		Lines:         make([]LineView, 0, len(cart.Lines)),
	}
	for _, line := range cart.Lines {
		lv := LineView{
			ID:            line.ID,
			MerchandiseID: line.Merchandise.ID,
			Title:         line.Merchandise.Title,
			ProductTitle:  line.Merchandise.ProductTitle,
			Quantity:      line.Quantity,
			UnitPrice:     moneyView(line.Cost.AmountPerQuantity),
			TotalAmount:   moneyView(line.Cost.TotalAmount),
			Optimistic:    line.IsOptimistic,
			Status:        s.Status(line.ID),
		}
		if line.Merchandise.Image != nil {
			lv.ImageURL = line.Merchandise.Image.URL
		}
		v.Lines = append(v.Lines, lv)
	}
	resp.Cart = v
	return resp
}

// writeIdentity mirrors the session's cart identity into cookies and the
// Cart-Identity header.
func (h *Handler) writeIdentity(w http.ResponseWriter, s *store.Store) {
	for _, c := range s.Persister().Cookies() {
		http.SetCookie(w, c)
	}
	header, err := identity.FormatHeader(s.Identity())
	if err != nil {
		h.logger.Warn("failed to format identity header", "error", err)
		return
	}
	w.Header().Set(identity.HeaderName, header)
}

// writeCart sends a cart response along with the identity headers.
func (h *Handler) writeCart(w http.ResponseWriter, status int, s *store.Store, cart *model.Cart) {
	h.writeIdentity(w, s)
	h.writeJSON(w, status, newCartResponse(s, cart))
}
