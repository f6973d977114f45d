package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultDeliveryWindow is added to the placement time to estimate delivery.
const DefaultDeliveryWindow = 5 * 24 * time.Hour

// Binding gives checkout access to the identity bound to the session.
// DoBound must return apperr.ErrAuthRequired for an anonymous session and
// must not run fn concurrently with other operations of the same session.
type Binding interface {
	DoBound(ctx context.Context, fn func(ctx context.Context, uid string) error) error
}

// Observer is notified about placed orders.
type Observer interface {
	OrderPlaced(ctx context.Context, o *Order, replayed bool)
}

// Request holds the input of a checkout attempt.
type Request struct {
	Shipping Shipping
	// IdempotencyKey identifies the attempt. Retrying with the same key
	// returns the order created by the first successful attempt. When empty
	// a fresh key is generated, making the attempt unrepeatable.
	IdempotencyKey string
}

// Result holds the outcome of a checkout attempt.
type Result struct {
	Order *Order
	// Replayed is true when the order was created by an earlier attempt with
	// the same idempotency key.
	Replayed bool
}

// CheckoutConfig holds non-dependency configuration for Checkout.
type CheckoutConfig struct {
	DeliveryWindow time.Duration
	Now            func() time.Time
}

// Checkout turns carts into orders.
type Checkout struct {
	binding   Binding
	orders    Repository
	catalog   product.Catalog
	validator *Validator
	observer  Observer

	deliveryWindow time.Duration
	now            func() time.Time
}

// NewCheckout creates a Checkout with the required dependencies. observer
// may be nil.
func NewCheckout(
	cfg CheckoutConfig,
	binding Binding,
	orders Repository,
	catalog product.Catalog,
	validator *Validator,
	observer Observer,
) *Checkout {
	if cfg.DeliveryWindow <= 0 {
		cfg.DeliveryWindow = DefaultDeliveryWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Checkout{
		binding:        binding,
		orders:         orders,
		catalog:        catalog,
		validator:      validator,
		observer:       observer,
		deliveryWindow: cfg.DeliveryWindow,
		now:            cfg.Now,
	}
}

// PlaceOrder records the current cart of the bound identity as an order and
// empties the cart. The order write and the cart clear happen in one
// repository transaction, so a failed write leaves the cart intact.
func (c *Checkout) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	shipping := req.Shipping.Normalize()
	key := idempotencyKey(req.IdempotencyKey)

	var res Result
	err := c.binding.DoBound(ctx, func(ctx context.Context, uid string) error {
		if err := c.validator.Check(shipping); err != nil {
			return err
		}
		o, replayed, err := c.orders.PlaceFromCart(ctx, uid, key, func(items []cart.LineItem) (*Order, error) {
			if len(items) == 0 {
				return nil, ErrEmptyCart
			}
			return c.newOrder(uid, key, items, shipping), nil
		})
		if err != nil {
			if errors.Is(err, ErrEmptyCart) {
				return ErrEmptyCart
			}
			return apperr.Persistence("place order", err)
		}
		res = Result{Order: o, Replayed: replayed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.placed(ctx, &res)
	return &res, nil
}

// BuyNow orders one unit of a catalog product directly, leaving the cart
// untouched.
func (c *Checkout) BuyNow(ctx context.Context, productID string, req Request) (*Result, error) {
	shipping := req.Shipping.Normalize()
	key := idempotencyKey(req.IdempotencyKey)

	var res Result
	err := c.binding.DoBound(ctx, func(ctx context.Context, uid string) error {
		if err := c.validator.Check(shipping); err != nil {
			return err
		}
		p, err := c.catalog.Get(ctx, productID)
		if err != nil {
			return errors.Wrap(err, "get product")
		}
		o, replayed, err := c.orders.Create(ctx, c.newOrder(uid, key, []cart.LineItem{p.LineItem()}, shipping))
		if err != nil {
			return apperr.Persistence("create order", err)
		}
		res = Result{Order: o, Replayed: replayed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.placed(ctx, &res)
	return &res, nil
}

// History returns the orders of the bound identity, newest first.
func (c *Checkout) History(ctx context.Context) ([]Order, error) {
	var out []Order
	err := c.binding.DoBound(ctx, func(ctx context.Context, uid string) error {
		orders, err := c.orders.List(ctx, uid)
		if err != nil {
			return apperr.Persistence("list orders", err)
		}
		out = orders
		return nil
	})
	return out, err
}

func (c *Checkout) newOrder(uid, key string, items []cart.LineItem, shipping Shipping) *Order {
	now := c.now().UTC()
	snapshot := cart.Clone(items)
	return &Order{
		ID:                newOrderID(),
		UID:               uid,
		IdempotencyKey:    key,
		Items:             snapshot,
		Total:             cart.Total(snapshot),
		Shipping:          shipping,
		Status:            StatusProcessing,
		PlacedAt:          now,
		EstimatedDelivery: now.Add(c.deliveryWindow),
	}
}

func (c *Checkout) placed(ctx context.Context, res *Result) {
	if c.observer != nil {
		c.observer.OrderPlaced(ctx, res.Order, res.Replayed)
	}
}

// newOrderID returns a time-ordered UUIDv7, falling back to a random UUID
// when the clock source fails.
func newOrderID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func idempotencyKey(k string) string {
	if k == "" {
		return uuid.NewString()
	}
	return k
}
