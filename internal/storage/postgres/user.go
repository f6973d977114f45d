package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/user"
)

const (
	userColumns = `uid, email, name, photo_url, cart, version, created_at, updated_at`

	getUserSQL = `SELECT ` + userColumns + ` FROM users WHERE uid = $1`

	ensureUserSQL = `INSERT INTO users (uid, email, name, photo_url)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (uid) DO UPDATE SET
		email = EXCLUDED.email,
		name = EXCLUDED.name,
		photo_url = EXCLUDED.photo_url,
		version = users.version + 1,
		updated_at = now()
	RETURNING ` + userColumns

	touchUserSQL = `INSERT INTO users (uid) VALUES ($1) ON CONFLICT (uid) DO NOTHING`

	lockCartSQL = `SELECT cart FROM users WHERE uid = $1 FOR UPDATE`

	setCartSQL = `UPDATE users SET cart = $2, version = version + 1, updated_at = now() WHERE uid = $1`
)

var _ user.Store = (*UserRepository)(nil)

// UserRepository implements user.Store backed by PostgreSQL. The cart is kept
// as a JSONB array on the user row.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*user.Document, error) {
	var (
		d   user.Document
		raw []byte
	)
	if err := row.Scan(&d.UID, &d.Email, &d.Name, &d.PhotoURL, &raw, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	items, err := cart.UnmarshalItems(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding cart of %q: %w", d.UID, err)
	}
	d.Cart = items
	return &d, nil
}

// Get returns the document of uid or user.ErrNotFound.
func (r *UserRepository) Get(ctx context.Context, uid string) (*user.Document, error) {
	d, err := scanUser(r.pool.QueryRow(ctx, getUserSQL, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", uid, err)
	}
	return d, nil
}

// Ensure upserts the profile fields of id.
func (r *UserRepository) Ensure(ctx context.Context, id identity.Identity) (*user.Document, error) {
	d, err := scanUser(r.pool.QueryRow(ctx, ensureUserSQL, id.UID, id.Email, id.Name, id.PhotoURL))
	if err != nil {
		return nil, fmt.Errorf("ensuring user %q: %w", id.UID, err)
	}
	return d, nil
}

// UpdateCart locks the user row, runs fn on its cart and writes the result in
// the same transaction.
func (r *UserRepository) UpdateCart(ctx context.Context, uid string, fn func([]cart.LineItem) ([]cart.LineItem, error)) ([]cart.LineItem, error) {
	var out []cart.LineItem
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockCart(ctx, tx, uid)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, setCartSQL, uid, cart.MarshalItems(next)); err != nil {
			return fmt.Errorf("writing cart of %q: %w", uid, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockCart creates the user row when missing and returns its cart with the
// row locked until tx ends.
func lockCart(ctx context.Context, tx pgx.Tx, uid string) ([]cart.LineItem, error) {
	if _, err := tx.Exec(ctx, touchUserSQL, uid); err != nil {
		return nil, fmt.Errorf("creating user %q: %w", uid, err)
	}
	var raw []byte
	if err := tx.QueryRow(ctx, lockCartSQL, uid).Scan(&raw); err != nil {
		return nil, fmt.Errorf("locking cart of %q: %w", uid, err)
	}
	items, err := cart.UnmarshalItems(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding cart of %q: %w", uid, err)
	}
	return items, nil
}
