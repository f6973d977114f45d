// Package session wires the cart, identity and checkout of one browser
// session into an explicit context object, and keeps the live objects of all
// sessions in a registry.
package session

import (
	"context"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/device"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Deps holds the collaborators shared by all sessions.
type Deps struct {
	Users     user.Store
	Orders    order.Repository
	Catalog   product.Catalog
	Devices   device.Provider
	Password  identity.PasswordAuthenticator
	Federated identity.FederatedAuthenticator
	Validator *order.Validator
	Telemetry *Telemetry
	Checkout  order.CheckoutConfig
}

// Session is the state of one browser session. Its device storage is scoped
// to the session id.
type Session struct {
	ID       string
	Identity *identity.Client
	Binder   *Binder
	Cart     *cart.Store
	Checkout *order.Checkout
}

// New builds a signed-out session with id.
func New(ctx context.Context, id string, deps Deps) *Session {
	client := identity.NewClient(deps.Password, deps.Federated)
	local := device.NewCartBackend(deps.Devices.Device(id))
	binder := NewBinder(ctx, client, local, deps.Users, deps.Telemetry)

	validator := deps.Validator
	if validator == nil {
		validator = order.NewValidator()
	}

	return &Session{
		ID:       id,
		Identity: client,
		Binder:   binder,
		Cart:     cart.NewStore(binder, deps.Telemetry),
		Checkout: order.NewCheckout(deps.Checkout, binder, deps.Orders, deps.Catalog, validator, deps.Telemetry),
	}
}

// Close detaches the session from its identity client.
func (s *Session) Close() {
	s.Binder.Close()
}
