package identity

import (
	"fmt"

	"github.com/dunglas/httpsfv"
)

// HeaderName carries the identity for clients that do not keep cookies.
//
//	Cart-Identity: id="gid://shopify/Cart/abc", quantity=3
const HeaderName = "Cart-Identity"

// ParseHeader parses a Cart-Identity dictionary. Unknown members are ignored.
// An empty header yields a zero identity.
func ParseHeader(header string) (Identity, error) {
	if header == "" {
		return Identity{}, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Identity{}, fmt.Errorf("invalid %s header: %w", HeaderName, err)
	}

	var id Identity
	if member, ok := dict.Get("id"); ok {
		item, ok := member.(httpsfv.Item)
		if !ok {
			return Identity{}, fmt.Errorf("%s id must be an item", HeaderName)
		}
		s, ok := item.Value.(string)
		if !ok {
			return Identity{}, fmt.Errorf("%s id must be a string", HeaderName)
		}
		id.CartID = s
	}
	if member, ok := dict.Get("quantity"); ok {
		item, ok := member.(httpsfv.Item)
		if !ok {
			return Identity{}, fmt.Errorf("%s quantity must be an item", HeaderName)
		}
		n, ok := item.Value.(int64)
		if !ok || n < 0 {
			return Identity{}, fmt.Errorf("%s quantity must be a non-negative integer", HeaderName)
		}
		id.Quantity = int(n)
	}
	return id, nil
}

// FormatHeader serializes id as a Cart-Identity dictionary.
func FormatHeader(id Identity) (string, error) {
	dict := httpsfv.NewDictionary()
	if id.CartID != "" {
		dict.Add("id", httpsfv.NewItem(id.CartID))
	}
	dict.Add("quantity", httpsfv.NewItem(int64(id.Quantity)))
	return httpsfv.Marshal(dict)
}
