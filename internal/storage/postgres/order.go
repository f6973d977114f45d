package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, uid, idempotency_key, items, total,
	shipping_name, shipping_email, shipping_phone, shipping_address, shipping_notes,
	status, placed_at, estimated_delivery`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (uid, idempotency_key) DO NOTHING`

	findOrderByKeySQL = `SELECT ` + orderColumns + `
	FROM orders WHERE uid = $1 AND idempotency_key = $2`

	listOrdersSQL = `SELECT ` + orderColumns + `
	FROM orders WHERE uid = $1 ORDER BY placed_at DESC`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Order
// items are stored as a JSONB snapshot.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		raw    []byte
		status string
	)
	err := row.Scan(
		&o.ID, &o.UID, &o.IdempotencyKey, &raw, &o.Total,
		&o.Shipping.Name, &o.Shipping.Email, &o.Shipping.Phone, &o.Shipping.Address, &o.Shipping.Notes,
		&status, &o.PlacedAt, &o.EstimatedDelivery,
	)
	if err != nil {
		return nil, err
	}
	items, err := cart.UnmarshalItems(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	o.Items = items
	o.Status = order.Status(status)
	return &o, nil
}

func findByKey(ctx context.Context, q querier, uid, key string) (*order.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, findOrderByKeySQL, uid, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding order by key: %w", err)
	}
	return o, nil
}

// insert stores o and reports false when an order with the same key exists.
func insert(ctx context.Context, q querier, o *order.Order) (bool, error) {
	tag, err := q.Exec(ctx, insertOrderSQL,
		o.ID, o.UID, o.IdempotencyKey, cart.MarshalItems(o.Items), o.Total,
		o.Shipping.Name, o.Shipping.Email, o.Shipping.Phone, o.Shipping.Address, o.Shipping.Notes,
		string(o.Status), o.PlacedAt, o.EstimatedDelivery,
	)
	if err != nil {
		return false, fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// PlaceFromCart locks the cart row of uid, then creates the order and clears
// the cart in one transaction.
func (r *OrderRepository) PlaceFromCart(ctx context.Context, uid, key string, build func([]cart.LineItem) (*order.Order, error)) (*order.Order, bool, error) {
	var (
		placed   *order.Order
		replayed bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		items, err := lockCart(ctx, tx, uid)
		if err != nil {
			return err
		}
		existing, err := findByKey(ctx, tx, uid, key)
		if err != nil {
			return err
		}
		if existing != nil {
			placed, replayed = existing, true
			return nil
		}

		o, err := build(items)
		if err != nil {
			return err
		}
		o.UID = uid
		o.IdempotencyKey = key
		ok, err := insert(ctx, tx, o)
		if err != nil {
			return err
		}
		if !ok {
			// Create does not lock the cart, so a buy-now with the same key
			// may have committed since findByKey. The cart stays as it is.
			existing, err := findByKey(ctx, tx, uid, key)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("order with key %q vanished", key)
			}
			placed, replayed = existing, true
			return nil
		}
		if _, err := tx.Exec(ctx, setCartSQL, uid, cart.MarshalItems(nil)); err != nil {
			return fmt.Errorf("clearing cart of %q: %w", uid, err)
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return placed, replayed, nil
}

// Create stores o, or returns the order already stored under its key.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
	ok, err := insert(ctx, r.pool, o)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return o, false, nil
	}
	existing, err := findByKey(ctx, r.pool, o.UID, o.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("order with key %q vanished", o.IdempotencyKey)
	}
	return existing, true, nil
}

// List returns the orders of uid, newest first.
func (r *OrderRepository) List(ctx context.Context, uid string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, uid)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", uid, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning orders of %q: %w", uid, err)
	}
	return out, nil
}
