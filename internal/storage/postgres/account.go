package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/identity"
)

const (
	findAccountSQL = `SELECT uid, email, name, password_hash, created_at
	FROM accounts WHERE email = $1`

	createAccountSQL = `INSERT INTO accounts (uid, email, name, password_hash, created_at)
	VALUES ($1, $2, $3, $4, $5)`
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var _ identity.AccountStore = (*AccountRepository)(nil)

// AccountRepository implements identity.AccountStore backed by PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// FindAccountByEmail returns the account registered with email.
func (r *AccountRepository) FindAccountByEmail(ctx context.Context, email string) (*identity.Account, error) {
	var a identity.Account
	err := r.pool.QueryRow(ctx, findAccountSQL, strings.ToLower(email)).
		Scan(&a.UID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding account by email: %w", err)
	}
	return &a, nil
}

// CreateAccount inserts a. A taken email yields identity.ErrAccountExists.
func (r *AccountRepository) CreateAccount(ctx context.Context, a identity.Account) error {
	_, err := r.pool.Exec(ctx, createAccountSQL,
		a.UID, strings.ToLower(a.Email), a.Name, a.PasswordHash, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrAccountExists
		}
		return fmt.Errorf("creating account %q: %w", a.UID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
