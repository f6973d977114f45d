// Package user holds the remote per-identity document that stores the
// authenticated cart.
package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/identity"
)

// ErrNotFound is returned when no document exists for an identity.
var ErrNotFound = errors.New("user document not found")

// Document is the remote record of one identity.
type Document struct {
	UID       string
	Email     string
	Name      string
	PhotoURL  string
	Cart      []cart.LineItem
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists user documents.
type Store interface {
	// Get returns the document of uid or ErrNotFound.
	Get(ctx context.Context, uid string) (*Document, error)
	// Ensure creates the document of id when missing, otherwise refreshes
	// its profile fields. Cart and CreatedAt of an existing document are kept.
	Ensure(ctx context.Context, id identity.Identity) (*Document, error)
	// UpdateCart runs fn on the latest persisted cart of uid and stores the
	// result atomically. A missing document is treated as an empty cart and
	// created. When fn fails nothing is written.
	UpdateCart(ctx context.Context, uid string, fn func(items []cart.LineItem) ([]cart.LineItem, error)) ([]cart.LineItem, error)
}

var _ cart.Backend = (*CartBackend)(nil)

// CartBackend targets the cart inside the document of one identity.
type CartBackend struct {
	store Store
	uid   string
}

// NewCartBackend returns the remote cart backend of uid.
func NewCartBackend(s Store, uid string) *CartBackend {
	return &CartBackend{store: s, uid: uid}
}

// Load fetches the current cart from the store.
func (b *CartBackend) Load(ctx context.Context) (*cart.Cart, error) {
	doc, err := b.store.Get(ctx, b.uid)
	switch {
	case errors.Is(err, ErrNotFound):
		return &cart.Cart{}, nil
	case err != nil:
		return nil, apperr.Persistence("read remote cart", err)
	}
	return cart.New(doc.Cart), nil
}

// Update applies fn inside the store's atomic cart update.
func (b *CartBackend) Update(ctx context.Context, fn func(c *cart.Cart) error) (*cart.Cart, error) {
	items, err := b.store.UpdateCart(ctx, b.uid, func(items []cart.LineItem) ([]cart.LineItem, error) {
		c := cart.New(items)
		if err := fn(c); err != nil {
			return nil, err
		}
		return c.Items, nil
	})
	if err != nil {
		if apperr.IsValidation(err) {
			return nil, err
		}
		return nil, apperr.Persistence("update remote cart", err)
	}
	return cart.New(items), nil
}
