package app

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/auth/oidc"
	"github.com/xenking/storefront/internal/auth/password"
	"github.com/xenking/storefront/internal/catalog"
	"github.com/xenking/storefront/internal/domain/device"
	"github.com/xenking/storefront/internal/domain/identity"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// stores groups the persistence backends selected by the configuration.
type stores struct {
	users    user.Store
	orders   order.Repository
	accounts identity.AccountStore
	devices  device.Provider
	// sessions is nil for the scs in-memory default.
	sessions scs.Store
}

// openStores connects PostgreSQL and Redis when configured and falls back to
// process memory for whichever is not. The returned func releases them.
func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (*stores, func(), error) {
	var (
		s       stores
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	mem := memory.New()

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		closers = append(closers, pool.Close)

		if err := postgres.RunMigrations(pool); err != nil {
			closeAll()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		hs.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})

		s.users = postgres.NewUserRepository(pool)
		s.orders = postgres.NewOrderRepository(pool)
		s.accounts = postgres.NewAccountRepository(pool)
	} else {
		lg.Warn("No database configured, users and orders are kept in memory")
		s.users, s.orders, s.accounts = mem, mem, mem
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })

		hs.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})

		s.devices = redis.NewDeviceStore(client, cfg.Redis.DeviceTTL)
		s.sessions = redis.NewSessionStore(client)
	} else {
		lg.Warn("No Redis configured, device carts and cookie sessions are kept in memory")
		s.devices = mem
	}

	return &s, closeAll, nil
}

func newCookieSessions(cfg SessionConfig, store scs.Store) *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = cfg.Lifetime
	sm.IdleTimeout = cfg.IdleTimeout
	sm.Cookie.Name = cfg.CookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.SecureCookie
	if store != nil {
		sm.Store = store
	}
	return sm
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	st, closeStores, err := openStores(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeStores()

	products, err := catalog.New(catalog.Config{
		BaseURL:          cfg.Catalog.URL,
		Timeout:          cfg.Catalog.Timeout,
		FailureThreshold: cfg.Catalog.FailureThreshold,
		OpenTimeout:      cfg.Catalog.OpenTimeout,
		Logger:           lg.Named("catalog"),
		MeterProvider:    m.MeterProvider(),
		TracerProvider:   m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create catalog client")
	}
	healthSvc.Add(health.Readiness, health.Check{
		Name:             "catalog",
		Timeout:          time.Second,
		Func:             products.Check,
		FailureThreshold: 1,
		Informational:    true,
	})

	// Federated sign-in stays a nil interface when not configured.
	var federated identity.FederatedAuthenticator
	if cfg.OIDC.Issuer != "" {
		a, err := oidc.New(ctx, oidc.Config{
			Name:         cfg.OIDC.Name,
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
		})
		if err != nil {
			return errors.Wrap(err, "create oidc provider")
		}
		federated = a
	}

	telemetry, err := session.NewTelemetry(m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return errors.Wrap(err, "create session telemetry")
	}

	sessions := session.NewManager(session.Deps{
		Users:     st.users,
		Orders:    st.orders,
		Catalog:   products,
		Devices:   st.devices,
		Password:  password.New(st.accounts, cfg.Session.BcryptCost),
		Federated: federated,
		Validator: order.NewValidator(),
		Telemetry: telemetry,
		Checkout:  order.CheckoutConfig{DeliveryWindow: cfg.Checkout.DeliveryWindow},
	}, cfg.Session.LiveTTL)
	sessions.StartCleanup(ctx, cfg.Session.LiveTTL/2)
	healthSvc.AddLivenessCheck("sessions", time.Second, health.CountCheck("live session", sessions.Len, cfg.Session.MaxLive))

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.NewHandler(
		handler.HandlerConfig{
			ImageBaseURL:  cfg.ImageBaseURL,
			AfterLoginURL: cfg.OIDC.AfterLoginURL,
		},
		sessions,
		newCookieSessions(cfg.Session, st.sessions),
		products,
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	limiter := httpmiddleware.NewLimiter(httpmiddleware.LimiterConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
		Key:    httpmiddleware.SessionOrIP(cfg.Session.CookieName),
		Skip:   httpmiddleware.SkipPaths("/livez", "/readyz"),
	})
	go limiter.Run(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(nil),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Headers:     []string{"Content-Type", handler.IdempotencyHeader, httpmiddleware.RequestIDHeader},
				Expose:      []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			limiter.Middleware(),
			httpmiddleware.Instrument("storefront-api", m),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
