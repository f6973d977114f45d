package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
)

// Status is the fulfilment state of an order. Only StatusProcessing is ever
// assigned by this service.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// ErrEmptyCart is returned when checking out a cart without items.
var ErrEmptyCart = &apperr.ValidationError{Field: "cart", Message: "cart is empty"}

// Shipping holds the contact details captured at checkout.
type Shipping struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email,max=320"`
	Phone   string `json:"phone" validate:"required,max=40"`
	Address string `json:"address" validate:"required,max=1000"`
	Notes   string `json:"notes" validate:"max=2000"`
}

// Order is an immutable record created at checkout. Items is a copy taken
// when the order was built and never aliases a cart.
type Order struct {
	ID                string
	UID               string
	IdempotencyKey    string
	Items             []cart.LineItem
	Total             decimal.Decimal
	Shipping          Shipping
	Status            Status
	PlacedAt          time.Time
	EstimatedDelivery time.Time
}

// Count returns the number of units in the order.
func (o *Order) Count() int {
	n := 0
	for _, it := range o.Items {
		n += it.Qty
	}
	return n
}

// Repository persists orders under the identity that placed them.
type Repository interface {
	// PlaceFromCart reads the cart of uid, passes a copy of its items to
	// build, stores the returned order and empties the cart as one atomic
	// step. If an order with key already exists for uid it is returned with
	// replayed=true and neither build nor the cart is touched. When build or
	// the insert fails the cart is left as it was.
	PlaceFromCart(ctx context.Context, uid, key string, build func(items []cart.LineItem) (*Order, error)) (o *Order, replayed bool, err error)
	// Create stores o, or returns the existing order with the same
	// idempotency key and replayed=true.
	Create(ctx context.Context, o *Order) (stored *Order, replayed bool, err error)
	// List returns the orders of uid, newest first.
	List(ctx context.Context, uid string) ([]Order, error)
}
