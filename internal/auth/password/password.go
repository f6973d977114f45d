// Package password implements email/password authentication over an
// identity.AccountStore with bcrypt hashes.
package password

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/identity"
)

// MinLength is the shortest accepted password.
const MinLength = 6

var _ identity.PasswordAuthenticator = (*Authenticator)(nil)

// Authenticator verifies and registers password accounts.
type Authenticator struct {
	accounts identity.AccountStore
	cost     int
	now      func() time.Time
}

// New returns an Authenticator hashing with bcrypt cost. A cost of zero
// selects bcrypt.DefaultCost.
func New(accounts identity.AccountStore, cost int) *Authenticator {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Authenticator{accounts: accounts, cost: cost, now: time.Now}
}

// Authenticate returns the identity of the account with email when password
// matches, otherwise identity.ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*identity.Identity, error) {
	acc, err := a.accounts.FindAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, apperr.Persistence("find account", err)
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	return acc.Identity(), nil
}

// Register creates an account for c and returns its identity.
func (a *Authenticator) Register(ctx context.Context, c identity.Credentials) (*identity.Identity, error) {
	email := normalizeEmail(c.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperr.Validation("email", "a valid email is required")
	}
	if len(c.Password) < MinLength {
		return nil, apperr.Validation("password", "password must be at least 6 characters")
	}

	acc, err := a.NewAccount(email, c.Password, strings.TrimSpace(c.Name))
	if err != nil {
		return nil, err
	}
	if err := a.accounts.CreateAccount(ctx, *acc); err != nil {
		if errors.Is(err, identity.ErrAccountExists) {
			return nil, identity.ErrEmailTaken
		}
		return nil, apperr.Persistence("create account", err)
	}
	return acc.Identity(), nil
}

// NewAccount hashes password into a fresh account value without storing it.
func (a *Authenticator) NewAccount(email, password, name string) (*identity.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	return &identity.Account{
		UID:          uuid.NewString(),
		Email:        normalizeEmail(email),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    a.now().UTC(),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
