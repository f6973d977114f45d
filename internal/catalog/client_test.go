package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

const productsJSON = `[
	{"id":1,"title":"Backpack","price":109.95,"description":"Fits laptops","category":"men's clothing","image":"https://img.test/1.jpg","rating":{"rate":3.9,"count":120}},
	{"id":2,"title":"T-Shirt","price":22.3,"category":"men's clothing","image":"https://img.test/2.jpg","extra":{"nested":[1,2]}}
]`

func newTestClient(t *testing.T, h http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestClient_List(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		_, _ = w.Write([]byte(productsJSON))
	}), Config{})

	products, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	p := products[0]
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, "Backpack", p.Title)
	assert.Equal(t, "109.95", p.Price.String())
	assert.Equal(t, "3.9", p.Rating.Rate.String())
	assert.Equal(t, 120, p.Rating.Count)
	assert.Equal(t, "22.3", products[1].Price.String())
}

func TestClient_ListByCategory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/category/men's clothing", r.URL.Path)
		_, _ = w.Write([]byte(productsJSON))
	}), Config{})

	products, err := c.ListByCategory(context.Background(), "men's clothing")
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestClient_Get(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/1":
			_, _ = w.Write([]byte(`{"id":1,"title":"Backpack","price":"109.95"}`))
		case "/products/999":
			// fakestoreapi answers unknown ids with an empty 200.
		case "/products/null":
			_, _ = w.Write([]byte("null"))
		default:
			http.NotFound(w, r)
		}
	}), Config{})
	ctx := context.Background()

	p, err := c.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Backpack", p.Title)
	assert.Equal(t, "109.95", p.LineItem().Price.StringFixed(2))

	for _, id := range []string{"999", "null", "missing", " "} {
		_, err := c.Get(ctx, id)
		assert.ErrorIs(t, err, product.ErrNotFound, id)
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), Config{FailureThreshold: 2, OpenTimeout: time.Minute})
	ctx := context.Background()
	require.NoError(t, c.Check(ctx))

	for range 2 {
		_, err := c.List(ctx)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := c.List(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualError(t, c.Check(ctx), "catalog breaker is open")
}

func TestClient_NotFoundDoesNotTrip(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), Config{FailureThreshold: 1})
	ctx := context.Background()

	for range 3 {
		_, err := c.Get(ctx, "5")
		require.ErrorIs(t, err, product.ErrNotFound)
	}
}

func TestClient_SharesInflightRequests(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(productsJSON))
	}), Config{})

	const n = 5
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			products, err := c.List(context.Background())
			assert.NoError(t, err)
			assert.Len(t, products, 2)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(productsJSON))
	}), Config{FailureThreshold: 1, OpenTimeout: time.Minute})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.List(first)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan []product.Product, 1)
	go func() {
		products, err := c.List(context.Background())
		assert.NoError(t, err)
		second <- products
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Len(t, <-second, 2)
	assert.EqualValues(t, 1, calls.Load())
	require.NoError(t, c.Check(context.Background()), "breaker must stay closed")
}
