package identity

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrAccountNotFound is returned by AccountStore lookups without a match.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account whose email is
	// already registered.
	ErrAccountExists = errors.New("account already exists")
)

// Account is a stored email/password credential.
type Account struct {
	UID          string
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Identity returns the identity the account signs in as.
func (a *Account) Identity() *Identity {
	return &Identity{
		UID:      a.UID,
		Email:    a.Email,
		Name:     a.Name,
		Provider: "password",
	}
}

// AccountStore persists password accounts. Emails are compared in lower case.
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	CreateAccount(ctx context.Context, a Account) error
}
