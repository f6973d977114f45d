package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/device"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/storage/memory"
)

const sid = "sid-1"

// stubAuth signs everyone in as the identity whose UID equals the email.
type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, email, _ string) (*identity.Identity, error) {
	return &identity.Identity{UID: email, Email: email, Provider: "password"}, nil
}

func (stubAuth) Register(_ context.Context, c identity.Credentials) (*identity.Identity, error) {
	return &identity.Identity{UID: c.Email, Email: c.Email, Provider: "password"}, nil
}

// flakyUsers fails cart writes while fail is set.
type flakyUsers struct {
	*memory.DB
	fail atomic.Bool
}

func (f *flakyUsers) UpdateCart(ctx context.Context, uid string, fn func([]cart.LineItem) ([]cart.LineItem, error)) ([]cart.LineItem, error) {
	if f.fail.Load() {
		return nil, errors.New("remote store unavailable")
	}
	return f.DB.UpdateCart(ctx, uid, fn)
}

// flakyDevices fails device removals while fail is set.
type flakyDevices struct {
	*memory.DB
	fail atomic.Bool
}

func (f *flakyDevices) Device(id string) device.Storage {
	return flakyStorage{Storage: f.DB.Device(id), fail: &f.fail}
}

type flakyStorage struct {
	device.Storage
	fail *atomic.Bool
}

func (s flakyStorage) RemoveItem(ctx context.Context, key string) error {
	if s.fail.Load() {
		return errors.New("storage locked")
	}
	return s.Storage.RemoveItem(ctx, key)
}

func lineItem(id string) cart.LineItem {
	return cart.LineItem{
		ProductID: id,
		Title:     "Product " + id,
		Price:     decimal.RequireFromString("10.00"),
	}
}

func quantities(items []cart.LineItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ProductID] = it.Qty
	}
	return out
}

func seedRemote(t *testing.T, db *memory.DB, uid string, items ...cart.LineItem) {
	t.Helper()
	_, err := db.UpdateCart(context.Background(), uid, func([]cart.LineItem) ([]cart.LineItem, error) {
		return items, nil
	})
	require.NoError(t, err)
}

func deviceCart(t *testing.T, db *memory.DB) []cart.LineItem {
	t.Helper()
	c, err := device.NewCartBackend(db.Device(sid)).Load(context.Background())
	require.NoError(t, err)
	return c.Items
}

func remoteCart(t *testing.T, db *memory.DB, uid string) []cart.LineItem {
	t.Helper()
	doc, err := db.Get(context.Background(), uid)
	require.NoError(t, err)
	return doc.Cart
}

func newSession(deps Deps) *Session {
	deps.Password = stubAuth{}
	return New(context.Background(), sid, deps)
}

func TestBinder_AnonymousCartIsDeviceCart(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	s := newSession(Deps{Users: db, Orders: db, Devices: db})
	defer s.Close()

	_, err := s.Cart.Add(ctx, lineItem("A"), 2)
	require.NoError(t, err)

	assert.Nil(t, s.Binder.Identity())
	assert.Equal(t, map[string]int{"A": 2}, quantities(deviceCart(t, db)))
}

func TestBinder_SignInMergesOnce(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	s := newSession(Deps{Users: db, Orders: db, Devices: db})
	defer s.Close()

	seedRemote(t, db, "u1", cart.LineItem{ProductID: "A", Qty: 1}, cart.LineItem{ProductID: "C", Qty: 4})
	_, err := s.Cart.Add(ctx, lineItem("A"), 2)
	require.NoError(t, err)

	_, err = s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)

	assert.False(t, s.Binder.MergePending())
	assert.Equal(t, map[string]int{"A": 3, "C": 4}, quantities(remoteCart(t, db, "u1")))
	assert.Empty(t, deviceCart(t, db))

	// A token refresh re-delivers the same identity and must not merge again.
	s.Identity.Refresh(ctx)
	_, err = s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)

	count, err := s.Cart.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestBinder_SignOutRevertsToDeviceCart(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	s := newSession(Deps{Users: db, Orders: db, Devices: db})
	defer s.Close()

	_, err := s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)
	_, err = s.Cart.Add(ctx, lineItem("A"), 1)
	require.NoError(t, err)

	s.Identity.SignOut(ctx)
	assert.Nil(t, s.Binder.Identity())

	count, err := s.Cart.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = s.Cart.Add(ctx, lineItem("B"), 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1}, quantities(remoteCart(t, db, "u1")))

	// Signing back in merges what was added while signed out.
	_, err = s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, quantities(remoteCart(t, db, "u1")))
}

func TestBinder_SwitchingIdentityMergesIntoNewOne(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	s := newSession(Deps{Users: db, Orders: db, Devices: db})
	defer s.Close()

	_, err := s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)
	_, err = s.Cart.Add(ctx, lineItem("A"), 1)
	require.NoError(t, err)

	_, err = s.Identity.SignInWithPassword(ctx, "u2", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u2", s.Binder.Identity().UID)

	count, err := s.Cart.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "carts of different identities are separate")
}

func TestBinder_FailedMergeIsRetried(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	users := &flakyUsers{DB: db}
	s := newSession(Deps{Users: users, Orders: db, Devices: db})
	defer s.Close()

	_, err := s.Cart.Add(ctx, lineItem("A"), 2)
	require.NoError(t, err)

	users.fail.Store(true)
	_, err = s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)
	assert.True(t, s.Binder.MergePending())

	_, err = s.Cart.Count(ctx)
	require.True(t, apperr.IsPersistence(err))
	assert.Equal(t, map[string]int{"A": 2}, quantities(deviceCart(t, db)))

	users.fail.Store(false)
	count, err := s.Cart.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.False(t, s.Binder.MergePending())
	assert.Empty(t, deviceCart(t, db))
}

func TestBinder_FailedDeviceClearDoesNotMergeTwice(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	devices := &flakyDevices{DB: db}
	s := newSession(Deps{Users: db, Orders: db, Devices: devices})
	defer s.Close()

	_, err := s.Cart.Add(ctx, lineItem("A"), 2)
	require.NoError(t, err)

	devices.fail.Store(true)
	_, err = s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)
	assert.True(t, s.Binder.MergePending())

	_, err = s.Cart.Count(ctx)
	require.Error(t, err)

	devices.fail.Store(false)
	count, err := s.Cart.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Empty(t, deviceCart(t, db))
}

func TestBinder_CheckoutRequiresIdentity(t *testing.T) {
	db := memory.New()
	s := newSession(Deps{Users: db, Orders: db, Devices: db})
	defer s.Close()

	_, err := s.Checkout.History(context.Background())
	require.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestBinder_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	s := newSession(Deps{Users: db, Orders: db, Devices: db})
	defer s.Close()

	_, err := s.Identity.SignInWithPassword(ctx, "u1", "secret1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Cart.Add(ctx, lineItem("A"), 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"A": 20}, quantities(remoteCart(t, db, "u1")))
}
