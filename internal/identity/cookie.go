package identity

import (
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Cookie names mirrored to browsers.
const (
	CartIDCookie   = "cart-id"
	QuantityCookie = "cart-quantity"
)

// CookieMaxAge is how long identity cookies live.
const CookieMaxAge = 30 * 24 * time.Hour

// FromCookies reads an identity from request cookies. Missing or malformed
// values are treated as absent.
func FromCookies(cookies []*http.Cookie) (Identity, bool) {
	var id Identity
	found := false
	for _, c := range cookies {
		switch c.Name {
		case CartIDCookie:
			v, err := url.QueryUnescape(c.Value)
			if err != nil || v == "" {
				continue
			}
			id.CartID = v
			found = true
		case QuantityCookie:
			n, err := strconv.Atoi(c.Value)
			if err != nil || n < 0 {
				continue
			}
			id.Quantity = n
			found = true
		}
	}
	return id, found
}

// ToCookies renders id as Set-Cookie values. An identity without a cart id
// expires both cookies.
func ToCookies(id Identity) []*http.Cookie {
	if id.CartID == "" {
		return expiredCookies()
	}
	maxAge := int(CookieMaxAge / time.Second)
	return []*http.Cookie{
		newCookie(CartIDCookie, url.QueryEscape(id.CartID), maxAge),
		newCookie(QuantityCookie, strconv.Itoa(id.Quantity), maxAge),
	}
}

func expiredCookies() []*http.Cookie {
	return []*http.Cookie{
		newCookie(CartIDCookie, "", -1),
		newCookie(QuantityCookie, "", -1),
	}
}

func newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	}
}
