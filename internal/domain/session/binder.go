package session

import (
	"context"
	"sync"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	_ cart.Router   = (*Binder)(nil)
	_ order.Binding = (*Binder)(nil)
)

// Binder decides which backend the cart of a session lives in. It observes
// the session's identity client: while signed out the cart is the device
// cart, while signed in it is the cart in the identity's user document.
//
// The first time an identity is observed after being signed out, the device
// cart is merged into the remote cart. The merge completes before any other
// operation of the session runs; a failed merge is retried before the next
// one. Re-delivery of the bound identity does not merge again.
type Binder struct {
	local     cart.Backend
	users     user.Store
	telemetry *Telemetry

	mu           sync.Mutex
	bound        *identity.Identity
	pendingMerge bool
	pendingClear bool

	unsubscribe func()
}

// NewBinder subscribes a Binder to client. local is the device cart backend.
func NewBinder(ctx context.Context, client *identity.Client, local cart.Backend, users user.Store, t *Telemetry) *Binder {
	b := &Binder{
		local:     local,
		users:     users,
		telemetry: t,
	}
	b.unsubscribe = client.Subscribe(ctx, b.observe)
	return b
}

// Close stops observing the identity client.
func (b *Binder) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

// Identity returns the bound identity, nil when anonymous.
func (b *Binder) Identity() *identity.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bound == nil {
		return nil
	}
	id := *b.bound
	return &id
}

// MergePending reports whether a sign-in merge has not completed yet.
func (b *Binder) MergePending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingMerge || b.pendingClear
}

func (b *Binder) observe(ctx context.Context, id *identity.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lg := zctx.From(ctx)
	switch {
	case id == nil:
		if b.bound != nil {
			lg.Info("Identity unbound, cart reverts to device", zap.String("uid", b.bound.UID))
		}
		b.bound = nil
		b.pendingMerge = false
		b.pendingClear = false
	case b.bound != nil && b.bound.UID == id.UID:
		// Token refresh or profile update of the same identity.
		b.bound = id
	default:
		b.bound = id
		b.pendingMerge = true
		b.pendingClear = false
		lg.Info("Identity bound", zap.String("uid", id.UID), zap.String("provider", id.Provider))
		if err := b.reconcile(ctx); err != nil {
			lg.Warn("Cart merge deferred", zap.String("uid", id.UID), zap.Error(err))
		}
	}
}

// reconcile finishes a pending sign-in merge. b.mu must be held.
func (b *Binder) reconcile(ctx context.Context) (rerr error) {
	if !b.pendingMerge && !b.pendingClear {
		return nil
	}
	uid := b.bound.UID
	ctx, end := b.telemetry.startMerge(ctx, uid)
	defer func() { end(rerr) }()

	if b.pendingMerge {
		if _, err := b.users.Ensure(ctx, *b.bound); err != nil {
			return apperr.Persistence("ensure user document", err)
		}
		local, err := b.local.Load(ctx)
		if err != nil {
			return err
		}
		items := local.Snapshot()
		if len(items) > 0 {
			_, err := b.users.UpdateCart(ctx, uid, func(remote []cart.LineItem) ([]cart.LineItem, error) {
				return cart.Merge(items, remote), nil
			})
			if err != nil {
				return apperr.Persistence("merge device cart", err)
			}
			b.pendingClear = true
		}
		b.pendingMerge = false
		b.telemetry.merged(ctx, local.Count())
		zctx.From(ctx).Info("Device cart merged",
			zap.String("uid", uid),
			zap.Int("items", len(items)),
		)
	}

	if b.pendingClear {
		// The remote side already holds these items; only the device copy
		// is left to drop. Retrying the merge here would double quantities.
		if _, err := b.local.Update(ctx, func(c *cart.Cart) error {
			c.Clear()
			return nil
		}); err != nil {
			return err
		}
		b.pendingClear = false
	}
	return nil
}

// Do runs fn against the backend of the current binding, after finishing a
// pending merge. Calls are serialized.
func (b *Binder) Do(ctx context.Context, fn func(ctx context.Context, backend cart.Backend) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound == nil {
		return fn(ctx, b.local)
	}
	if err := b.reconcile(ctx); err != nil {
		return err
	}
	return fn(ctx, user.NewCartBackend(b.users, b.bound.UID))
}

// DoBound runs fn with the uid of the bound identity, or returns
// apperr.ErrAuthRequired when the session is anonymous. Calls are serialized
// with Do.
func (b *Binder) DoBound(ctx context.Context, fn func(ctx context.Context, uid string) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound == nil {
		return apperr.ErrAuthRequired
	}
	if err := b.reconcile(ctx); err != nil {
		return err
	}
	return fn(ctx, b.bound.UID)
}
