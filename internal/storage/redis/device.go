// Package redis keeps device-scoped storage in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/device"
)

// DefaultTTL is how long an untouched device entry is kept.
const DefaultTTL = 30 * 24 * time.Hour

var _ device.Provider = (*DeviceStore)(nil)

// DeviceStore implements device.Provider with one Redis string per key.
// Every write renews the TTL of the entry.
type DeviceStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewDeviceStore returns a DeviceStore. A zero ttl selects DefaultTTL.
func NewDeviceStore(client redis.Cmdable, ttl time.Duration) *DeviceStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DeviceStore{client: client, prefix: "storefront:device:", ttl: ttl}
}

// Device returns the storage of device id.
func (s *DeviceStore) Device(id string) device.Storage {
	return &storage{store: s, id: id}
}

func (s *DeviceStore) key(id, key string) string {
	return fmt.Sprintf("%s%s:%s", s.prefix, id, key)
}

type storage struct {
	store *DeviceStore
	id    string
}

func (d *storage) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := d.store.client.Get(ctx, d.store.key(d.id, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return v, true, nil
}

func (d *storage) SetItem(ctx context.Context, key, value string) error {
	if err := d.store.client.Set(ctx, d.store.key(d.id, key), value, d.store.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (d *storage) RemoveItem(ctx context.Context, key string) error {
	if err := d.store.client.Del(ctx, d.store.key(d.id, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
