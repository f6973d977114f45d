// Package identity models authenticated users as seen by one browser
// session. Credential checking is delegated to authenticators; the Client
// turns their results into an observable stream of identity changes.
package identity

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does not
	// match an account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned on sign-up with an email that already has an
	// account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPopupClosed is returned when the user abandons federated consent.
	ErrPopupClosed = errors.New("sign-in cancelled")
	// ErrNetwork is returned when the identity provider cannot be reached or
	// its response cannot be verified.
	ErrNetwork = errors.New("identity provider unavailable")
	// ErrFederatedDisabled is returned when no federated provider is configured.
	ErrFederatedDisabled = errors.New("federated sign-in is not configured")
)

// Identity is an authenticated user handle.
type Identity struct {
	UID      string
	Email    string
	Name     string
	PhotoURL string
	Provider string
}

// Credentials is an email/password sign-up request.
type Credentials struct {
	Email    string
	Password string
	Name     string
}

// PasswordAuthenticator verifies and registers email/password accounts.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
	Register(ctx context.Context, c Credentials) (*Identity, error)
}

// FederatedAuthenticator runs an authorization code flow against an external
// identity provider.
type FederatedAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}
