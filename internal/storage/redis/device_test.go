package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/device"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*DeviceStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewDeviceStore(client, ttl), mr
}

func TestDeviceStore_SetGetRemove(t *testing.T) {
	store, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()
	s := store.Device("dev-1")

	_, ok, err := s.GetItem(ctx, device.CartKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem(ctx, device.CartKey, `[]`))
	v, ok, err := s.GetItem(ctx, device.CartKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, v)
	assert.True(t, mr.Exists("storefront:device:dev-1:guestCart"))
	assert.Equal(t, time.Hour, mr.TTL("storefront:device:dev-1:guestCart"))

	require.NoError(t, s.RemoveItem(ctx, device.CartKey))
	_, ok, err = s.GetItem(ctx, device.CartKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeviceStore_IsolatesDevices(t *testing.T) {
	store, _ := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Device("a").SetItem(ctx, "k", "1"))
	_, ok, err := store.Device("b").GetItem(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeviceStore_CartBackendExpires(t *testing.T) {
	store, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()
	backend := device.NewCartBackend(store.Device("dev-2"))

	_, err := backend.Update(ctx, func(c *cart.Cart) error {
		return c.Add(cart.LineItem{ProductID: "1", Title: "Bag"}, 2)
	})
	require.NoError(t, err)

	c, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count())

	mr.FastForward(2 * time.Minute)

	c, err = backend.Load(ctx)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestDeviceStore_ConnectionError(t *testing.T) {
	store, mr := setupTestRedis(t, 0)
	mr.Close()

	_, _, err := store.Device("x").GetItem(context.Background(), "k")
	require.Error(t, err)
}
