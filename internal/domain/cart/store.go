package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Backend persists one cart.
//
// Update must apply fn to the latest persisted state and write the result
// back as one read-modify-write. When fn returns an error nothing is written.
type Backend interface {
	Load(ctx context.Context) (*Cart, error)
	Update(ctx context.Context, fn func(c *Cart) error) (*Cart, error)
}

// Router resolves the backend a cart operation targets and runs the
// operation while no other operation of the same session is in flight.
type Router interface {
	Do(ctx context.Context, fn func(ctx context.Context, b Backend) error) error
}

// Observer receives a notification after every successful mutation.
type Observer interface {
	CartMutated(ctx context.Context, op string, c *Cart)
}

// Store is the cart of one session. Which backend holds the cart is decided
// by the Router on every call.
type Store struct {
	router   Router
	observer Observer
}

// NewStore returns a Store routing through r. observer may be nil.
func NewStore(r Router, observer Observer) *Store {
	return &Store{router: r, observer: observer}
}

func (s *Store) mutate(ctx context.Context, op string, fn func(c *Cart) error) (*Cart, error) {
	var out *Cart
	err := s.router.Do(ctx, func(ctx context.Context, b Backend) error {
		c, err := b.Update(ctx, fn)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.CartMutated(ctx, op, out)
	}
	return out, nil
}

// Add adds qty units of item. qty below 1 is rejected before any write.
func (s *Store) Add(ctx context.Context, item LineItem, qty int) (*Cart, error) {
	var probe Cart
	if err := probe.Add(item, qty); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add", func(c *Cart) error {
		return c.Add(item, qty)
	})
}

// Remove deletes productID from the cart.
func (s *Store) Remove(ctx context.Context, productID string) (*Cart, error) {
	return s.mutate(ctx, "remove", func(c *Cart) error {
		c.Remove(productID)
		return nil
	})
}

// Increment raises the quantity of productID by one.
func (s *Store) Increment(ctx context.Context, productID string) (*Cart, error) {
	return s.mutate(ctx, "increment", func(c *Cart) error {
		return c.Increment(productID)
	})
}

// Decrement lowers the quantity of productID by one, removing it at zero.
func (s *Store) Decrement(ctx context.Context, productID string) (*Cart, error) {
	return s.mutate(ctx, "decrement", func(c *Cart) error {
		c.Decrement(productID)
		return nil
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) (*Cart, error) {
	return s.mutate(ctx, "clear", func(c *Cart) error {
		c.Clear()
		return nil
	})
}

// Load returns the current cart as read from its backend.
func (s *Store) Load(ctx context.Context) (*Cart, error) {
	var out *Cart
	err := s.router.Do(ctx, func(ctx context.Context, b Backend) error {
		c, err := b.Load(ctx)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Snapshot returns a copy of the current items.
func (s *Store) Snapshot(ctx context.Context) ([]LineItem, error) {
	c, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return c.Snapshot(), nil
}

// Total returns Σ price × qty of the current cart.
func (s *Store) Total(ctx context.Context) (decimal.Decimal, error) {
	c, err := s.Load(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Total(), nil
}

// Count returns Σ qty of the current cart.
func (s *Store) Count(ctx context.Context) (int, error) {
	c, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Fixed is a Router that always targets one backend and serializes calls.
type Fixed struct {
	mu      sync.Mutex
	backend Backend
}

// NewFixed returns a Router bound to b.
func NewFixed(b Backend) *Fixed {
	return &Fixed{backend: b}
}

// Do runs fn against the fixed backend.
func (f *Fixed) Do(ctx context.Context, fn func(ctx context.Context, b Backend) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, f.backend)
}
