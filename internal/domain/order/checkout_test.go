package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/memory"
)

var placedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// binding runs fn as uid, or fails when uid is empty.
type binding struct {
	mu  sync.Mutex
	uid string
}

func (b *binding) DoBound(ctx context.Context, fn func(ctx context.Context, uid string) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uid == "" {
		return apperr.ErrAuthRequired
	}
	return fn(ctx, b.uid)
}

type catalog map[string]product.Product

func (c catalog) List(context.Context) ([]product.Product, error) { return nil, nil }

func (c catalog) ListByCategory(context.Context, string) ([]product.Product, error) {
	return nil, nil
}

func (c catalog) Get(_ context.Context, id string) (*product.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// brokenOrders fails every write.
type brokenOrders struct {
	*memory.DB
}

func (brokenOrders) PlaceFromCart(context.Context, string, string, func([]cart.LineItem) (*order.Order, error)) (*order.Order, bool, error) {
	return nil, false, errors.New("write conflict")
}

func (brokenOrders) Create(context.Context, *order.Order) (*order.Order, bool, error) {
	return nil, false, errors.New("write conflict")
}

type recorder struct {
	placed   int
	replayed int
}

func (r *recorder) OrderPlaced(_ context.Context, _ *order.Order, replayed bool) {
	if replayed {
		r.replayed++
		return
	}
	r.placed++
}

type fixture struct {
	db       *memory.DB
	binding  *binding
	observer *recorder
	checkout *order.Checkout
}

func newFixture(repo func(db *memory.DB) order.Repository) *fixture {
	db := memory.New()
	f := &fixture{
		db:       db,
		binding:  &binding{uid: "u1"},
		observer: &recorder{},
	}
	var orders order.Repository = db
	if repo != nil {
		orders = repo(db)
	}
	f.checkout = order.NewCheckout(
		order.CheckoutConfig{Now: func() time.Time { return placedAt }},
		f.binding,
		orders,
		catalog{"7": {ID: "7", Title: "Ring", Price: decimal.RequireFromString("9.99")}},
		order.NewValidator(),
		f.observer,
	)
	return f
}

func (f *fixture) fillCart(t *testing.T, items ...cart.LineItem) {
	t.Helper()
	_, err := f.db.UpdateCart(context.Background(), "u1", func([]cart.LineItem) ([]cart.LineItem, error) {
		return items, nil
	})
	require.NoError(t, err)
}

func (f *fixture) cart(t *testing.T) []cart.LineItem {
	t.Helper()
	doc, err := f.db.Get(context.Background(), "u1")
	require.NoError(t, err)
	return doc.Cart
}

func shipping() order.Shipping {
	return order.Shipping{Name: " Ann Lee ", Phone: "555-0100", Address: "1 Main St"}
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.fillCart(t,
		cart.LineItem{ProductID: "1", Title: "Bag", Price: decimal.RequireFromString("109.95"), Qty: 1},
		cart.LineItem{ProductID: "2", Title: "Shirt", Price: decimal.RequireFromString("22.30"), Qty: 2},
	)

	res, err := f.checkout.PlaceOrder(ctx, order.Request{Shipping: shipping(), IdempotencyKey: "k1"})
	require.NoError(t, err)
	require.False(t, res.Replayed)

	o := res.Order
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "u1", o.UID)
	assert.Equal(t, "154.55", o.Total.StringFixed(2))
	assert.Equal(t, 3, o.Count())
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, "Ann Lee", o.Shipping.Name)
	assert.Equal(t, placedAt, o.PlacedAt)
	assert.Equal(t, placedAt.Add(order.DefaultDeliveryWindow), o.EstimatedDelivery)

	assert.Empty(t, f.cart(t))
	assert.Equal(t, 1, f.observer.placed)

	history, err := f.checkout.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, o.ID, history[0].ID)
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.fillCart(t, cart.LineItem{ProductID: "1", Price: decimal.RequireFromString("5"), Qty: 1})

	first, err := f.checkout.PlaceOrder(ctx, order.Request{Shipping: shipping(), IdempotencyKey: "k1"})
	require.NoError(t, err)

	// The cart is empty now; a retry must still return the first order.
	again, err := f.checkout.PlaceOrder(ctx, order.Request{Shipping: shipping(), IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Order.ID, again.Order.ID)

	history, err := f.checkout.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, 1, f.observer.replayed)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(nil)
	_, err := f.checkout.PlaceOrder(context.Background(), order.Request{Shipping: shipping()})
	require.ErrorIs(t, err, order.ErrEmptyCart)
	assert.True(t, apperr.IsValidation(err))
}

func TestPlaceOrder_Anonymous(t *testing.T) {
	f := newFixture(nil)
	f.binding.uid = ""
	_, err := f.checkout.PlaceOrder(context.Background(), order.Request{Shipping: shipping()})
	require.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestPlaceOrder_InvalidShippingKeepsCart(t *testing.T) {
	f := newFixture(nil)
	f.fillCart(t, cart.LineItem{ProductID: "1", Price: decimal.RequireFromString("5"), Qty: 1})

	s := shipping()
	s.Phone = "   "
	_, err := f.checkout.PlaceOrder(context.Background(), order.Request{Shipping: s})

	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "phone", ve.Field)
	assert.Len(t, f.cart(t), 1)
}

func TestPlaceOrder_PersistenceFailureKeepsCart(t *testing.T) {
	f := newFixture(func(db *memory.DB) order.Repository { return brokenOrders{db} })
	f.fillCart(t, cart.LineItem{ProductID: "1", Price: decimal.RequireFromString("5"), Qty: 1})

	_, err := f.checkout.PlaceOrder(context.Background(), order.Request{Shipping: shipping()})
	require.True(t, apperr.IsPersistence(err))
	assert.Len(t, f.cart(t), 1)
	assert.Zero(t, f.observer.placed)
}

func TestBuyNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	f.fillCart(t, cart.LineItem{ProductID: "1", Price: decimal.RequireFromString("5"), Qty: 1})

	res, err := f.checkout.BuyNow(ctx, "7", order.Request{Shipping: shipping(), IdempotencyKey: "b1"})
	require.NoError(t, err)
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, "7", res.Order.Items[0].ProductID)
	assert.Equal(t, "9.99", res.Order.Total.StringFixed(2))
	assert.Len(t, f.cart(t), 1, "buy now leaves the cart alone")

	again, err := f.checkout.BuyNow(ctx, "7", order.Request{Shipping: shipping(), IdempotencyKey: "b1"})
	require.NoError(t, err)
	assert.True(t, again.Replayed)

	_, err = f.checkout.BuyNow(ctx, "404", order.Request{Shipping: shipping()})
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	now := placedAt
	b := &binding{uid: "u1"}
	c := order.NewCheckout(
		order.CheckoutConfig{Now: func() time.Time { now = now.Add(time.Hour); return now }},
		b, db, catalog{"7": {ID: "7", Price: decimal.NewFromInt(1)}}, order.NewValidator(), nil,
	)

	first, err := c.BuyNow(ctx, "7", order.Request{Shipping: shipping()})
	require.NoError(t, err)
	second, err := c.BuyNow(ctx, "7", order.Request{Shipping: shipping()})
	require.NoError(t, err)

	history, err := c.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.Order.ID, history[0].ID)
	assert.Equal(t, first.Order.ID, history[1].ID)
}
