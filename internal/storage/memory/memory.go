// Package memory implements the storefront stores in process memory. It backs
// tests and single-node deployments without a database.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/device"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	_ user.Store            = (*DB)(nil)
	_ order.Repository      = (*DB)(nil)
	_ identity.AccountStore = (*DB)(nil)
	_ device.Provider       = (*DB)(nil)
)

// DB holds users, orders, accounts and device storage behind one lock, so
// that order placement and the cart clear it implies are a single step.
type DB struct {
	now func() time.Time

	mu       sync.Mutex
	users    map[string]*user.Document
	accounts map[string]identity.Account
	orders   map[string][]*order.Order
	devices  map[string]map[string]string
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		now:      time.Now,
		users:    make(map[string]*user.Document),
		accounts: make(map[string]identity.Account),
		orders:   make(map[string][]*order.Order),
		devices:  make(map[string]map[string]string),
	}
}

func cloneDoc(d *user.Document) *user.Document {
	c := *d
	c.Cart = cart.Clone(d.Cart)
	return &c
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = cart.Clone(o.Items)
	return &c
}

// Get returns the document of uid.
func (db *DB) Get(_ context.Context, uid string) (*user.Document, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	d, ok := db.users[uid]
	if !ok {
		return nil, user.ErrNotFound
	}
	return cloneDoc(d), nil
}

// Ensure creates or refreshes the document of id.
func (db *DB) Ensure(_ context.Context, id identity.Identity) (*user.Document, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now().UTC()
	d, ok := db.users[id.UID]
	if !ok {
		d = &user.Document{UID: id.UID, CreatedAt: now}
		db.users[id.UID] = d
	}
	d.Email = id.Email
	d.Name = id.Name
	d.PhotoURL = id.PhotoURL
	d.UpdatedAt = now
	d.Version++
	return cloneDoc(d), nil
}

// UpdateCart runs fn on the cart of uid while holding the lock.
func (db *DB) UpdateCart(_ context.Context, uid string, fn func([]cart.LineItem) ([]cart.LineItem, error)) ([]cart.LineItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var current []cart.LineItem
	if d, ok := db.users[uid]; ok {
		current = cart.Clone(d.Cart)
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	db.setCart(uid, next)
	return cart.Clone(next), nil
}

// setCart must be called with mu held.
func (db *DB) setCart(uid string, items []cart.LineItem) {
	now := db.now().UTC()
	d, ok := db.users[uid]
	if !ok {
		d = &user.Document{UID: uid, CreatedAt: now}
		db.users[uid] = d
	}
	d.Cart = cart.Clone(items)
	d.UpdatedAt = now
	d.Version++
}

// findOrder must be called with mu held.
func (db *DB) findOrder(uid, key string) *order.Order {
	for _, o := range db.orders[uid] {
		if o.IdempotencyKey == key {
			return o
		}
	}
	return nil
}

// PlaceFromCart builds an order from the cart of uid, stores it and empties
// the cart under one lock.
func (db *DB) PlaceFromCart(_ context.Context, uid, key string, build func([]cart.LineItem) (*order.Order, error)) (*order.Order, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if o := db.findOrder(uid, key); o != nil {
		return cloneOrder(o), true, nil
	}
	var items []cart.LineItem
	if d, ok := db.users[uid]; ok {
		items = cart.Clone(d.Cart)
	}
	o, err := build(items)
	if err != nil {
		return nil, false, err
	}
	o.UID = uid
	o.IdempotencyKey = key
	stored := cloneOrder(o)
	db.orders[uid] = append(db.orders[uid], stored)
	db.setCart(uid, nil)
	return cloneOrder(stored), false, nil
}

// Create stores o unless an order with its idempotency key exists.
func (db *DB) Create(_ context.Context, o *order.Order) (*order.Order, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if existing := db.findOrder(o.UID, o.IdempotencyKey); existing != nil {
		return cloneOrder(existing), true, nil
	}
	stored := cloneOrder(o)
	db.orders[o.UID] = append(db.orders[o.UID], stored)
	return cloneOrder(stored), false, nil
}

// List returns the orders of uid, newest first.
func (db *DB) List(_ context.Context, uid string) ([]order.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	src := db.orders[uid]
	out := make([]order.Order, 0, len(src))
	for _, o := range src {
		out = append(out, *cloneOrder(o))
	}
	slices.SortStableFunc(out, func(a, b order.Order) int {
		return b.PlacedAt.Compare(a.PlacedAt)
	})
	return out, nil
}

// FindAccountByEmail returns the account registered with email.
func (db *DB) FindAccountByEmail(_ context.Context, email string) (*identity.Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.accounts[strings.ToLower(email)]
	if !ok {
		return nil, identity.ErrAccountNotFound
	}
	a.PasswordHash = slices.Clone(a.PasswordHash)
	return &a, nil
}

// CreateAccount stores a unless its email is taken.
func (db *DB) CreateAccount(_ context.Context, a identity.Account) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	email := strings.ToLower(a.Email)
	if _, ok := db.accounts[email]; ok {
		return identity.ErrAccountExists
	}
	a.Email = email
	a.PasswordHash = slices.Clone(a.PasswordHash)
	db.accounts[email] = a
	return nil
}

// Device returns the storage of device id.
func (db *DB) Device(id string) device.Storage {
	return &deviceStorage{db: db, id: id}
}

type deviceStorage struct {
	db *DB
	id string
}

func (s *deviceStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	v, ok := s.db.devices[s.id][key]
	return v, ok, nil
}

func (s *deviceStorage) SetItem(_ context.Context, key, value string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.devices[s.id]
	if !ok {
		m = make(map[string]string)
		s.db.devices[s.id] = m
	}
	m[key] = value
	return nil
}

func (s *deviceStorage) RemoveItem(_ context.Context, key string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m := s.db.devices[s.id]
	delete(m, key)
	if len(m) == 0 {
		delete(s.db.devices, s.id)
	}
	return nil
}
