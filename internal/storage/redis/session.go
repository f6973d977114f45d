package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

var _ scs.CtxStore = (*SessionStore)(nil)

// SessionStore keeps scs session data in Redis, expiring with the session.
type SessionStore struct {
	client redis.Cmdable
	prefix string
}

// NewSessionStore returns a SessionStore using client.
func NewSessionStore(client redis.Cmdable) *SessionStore {
	return &SessionStore{client: client, prefix: "storefront:session:"}
}

// FindCtx returns the data of token.
func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return b, true, nil
}

// CommitCtx stores b under token until expiry.
func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	if err := s.client.Set(ctx, s.prefix+token, b, time.Until(expiry)).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// DeleteCtx removes token.
func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.prefix+token).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Find implements scs.Store.
func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

// Commit implements scs.Store.
func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

// Delete implements scs.Store.
func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}
