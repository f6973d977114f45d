// Package device models storage private to one browser/device. It only backs
// the anonymous cart.
package device

import (
	"context"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
)

// CartKey is the storage key of the anonymous cart.
const CartKey = "guestCart"

// Storage is a string key-value store scoped to one device.
// GetItem reports ok=false when the key is absent.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Provider hands out the Storage of a device id.
type Provider interface {
	Device(id string) Storage
}

var _ cart.Backend = (*CartBackend)(nil)

// CartBackend keeps the anonymous cart in device storage as a JSON array.
type CartBackend struct {
	storage Storage
}

// NewCartBackend returns a cart backend writing to s.
func NewCartBackend(s Storage) *CartBackend {
	return &CartBackend{storage: s}
}

// Load reads the stored cart. A missing or unreadable entry is an empty cart,
// matching what a browser does with corrupt localStorage.
func (b *CartBackend) Load(ctx context.Context) (*cart.Cart, error) {
	raw, ok, err := b.storage.GetItem(ctx, CartKey)
	if err != nil {
		return nil, apperr.Persistence("read device cart", err)
	}
	if !ok {
		return &cart.Cart{}, nil
	}
	items, err := cart.UnmarshalItems([]byte(raw))
	if err != nil {
		return &cart.Cart{}, nil
	}
	return &cart.Cart{Items: items}, nil
}

// Update applies fn to the stored cart and writes it back.
func (b *CartBackend) Update(ctx context.Context, fn func(c *cart.Cart) error) (*cart.Cart, error) {
	c, err := b.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := b.store(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *CartBackend) store(ctx context.Context, c *cart.Cart) error {
	if c.Empty() {
		if err := b.storage.RemoveItem(ctx, CartKey); err != nil {
			return apperr.Persistence("clear device cart", err)
		}
		return nil
	}
	if err := b.storage.SetItem(ctx, CartKey, string(cart.MarshalItems(c.Items))); err != nil {
		return apperr.Persistence("write device cart", err)
	}
	return nil
}
