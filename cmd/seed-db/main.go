package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/auth/password"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type accountJSON struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Name     string          `json:"name"`
	Cart     json.RawMessage `json:"cart"`
}

func main() {
	var (
		databaseURL  string
		accountsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&accountsFile, "accounts-file", "db/seed/accounts.json", "path to accounts JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, accountsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, accountsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAccounts(ctx, pool, accountsFile); err != nil {
		return errors.Wrap(err, "seed accounts")
	}

	return nil
}

// seedAccounts registers every account of the file that does not exist yet,
// creates its user document and stores its initial cart.
func seedAccounts(ctx context.Context, pool *pgxpool.Pool, accountsFile string) error {
	slog.Info("reading accounts file", slog.String("path", accountsFile))

	data, err := os.ReadFile(accountsFile)
	if err != nil {
		return errors.Wrap(err, "read accounts file")
	}

	var accounts []accountJSON
	if err := json.Unmarshal(data, &accounts); err != nil {
		return errors.Wrap(err, "parse accounts JSON")
	}

	slog.Info("registering accounts", slog.Int("count", len(accounts)))

	auth := password.New(postgres.NewAccountRepository(pool), 0)
	users := postgres.NewUserRepository(pool)

	for _, a := range accounts {
		id, err := auth.Register(ctx, identity.Credentials{Email: a.Email, Password: a.Password, Name: a.Name})
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			slog.Info("account exists, skipping", slog.String("email", a.Email))
			continue
		case err != nil:
			return errors.Wrapf(err, "register %s", a.Email)
		}

		if _, err := users.Ensure(ctx, *id); err != nil {
			return errors.Wrapf(err, "create user %s", id.UID)
		}

		items, err := cart.UnmarshalItems(a.Cart)
		if err != nil {
			return errors.Wrapf(err, "parse cart of %s", a.Email)
		}
		if len(items) > 0 {
			if _, err := users.UpdateCart(ctx, id.UID, func([]cart.LineItem) ([]cart.LineItem, error) {
				return items, nil
			}); err != nil {
				return errors.Wrapf(err, "store cart of %s", a.Email)
			}
		}

		slog.Info("registered account",
			slog.String("uid", id.UID),
			slog.String("email", a.Email),
			slog.Int("cart_items", len(items)),
		)
	}

	return nil
}
