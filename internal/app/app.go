package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/foodrun/internal/domain/cart"
	"github.com/xenking/foodrun/internal/domain/catalog"
	"github.com/xenking/foodrun/internal/domain/challenge"
	"github.com/xenking/foodrun/internal/domain/coupon"
	"github.com/xenking/foodrun/internal/domain/order"
	"github.com/xenking/foodrun/internal/handler"
	"github.com/xenking/foodrun/internal/repository"
	"github.com/xenking/foodrun/pkg/health"
	"github.com/xenking/foodrun/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Register(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Register(health.Liveness, "goroutines", time.Second, health.GoroutineCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	h, err := newHandler(pool, m, cfg)
	if err != nil {
		return err
	}

	router := handler.NewRouter(h, handler.RouterOptions{
		Middlewares: []httpmiddleware.Middleware{httpmiddleware.LogRequests()},
		ChallengeLimit: httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		Live:  healthSvc.Live,
		Ready: healthSvc.Ready,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins: cfg.CORS.Origins,
				MaxAge:  86400,
			}),
			httpmiddleware.Instrument("foodrun-api", m),
		),
	}

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

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler builds repositories, domain services and the HTTP handler.
func newHandler(pool *pgxpool.Pool, m httpmiddleware.Telemetry, cfg *Config) (*handler.Handler, error) {
	deliveryPayment, err := cfg.DeliveryPayment()
	if err != nil {
		return nil, err
	}

	reader := catalog.WithRetry(repository.NewCatalogRepository(pool))
	ledger := coupon.NewLedger(coupon.DefaultCodes)

	orders, err := order.NewService(order.Deps{
		Tx:             repository.NewTxManager(pool, repository.OrderTx),
		Orders:         repository.NewOrderRepository(pool),
		Catalog:        reader,
		Ledger:         ledger,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, order.Config{
		DeliveryPayment: deliveryPayment,
		Timeout:         cfg.Checkout.Timeout,
		StoreTimeout:    cfg.Store.Timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "order service")
	}

	challenges, err := challenge.NewManager(challenge.Deps{
		Tx:             repository.NewTxManager(pool, repository.ChallengeTx),
		Signer:         challenge.NewSigner([]byte(cfg.Challenge.Secret)),
		Ledger:         ledger,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, challenge.Config{
		Ceiling:      cfg.Challenge.Ceiling,
		CouponTTL:    cfg.Challenge.CouponTTL,
		UIBaseURL:    cfg.Challenge.UIBaseURL,
		StoreTimeout: cfg.Store.Timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "challenge manager")
	}

	return handler.New(
		cart.NewService(repository.NewCartRepository(pool), reader, cart.Config{StoreTimeout: cfg.Store.Timeout}),
		orders,
		coupon.NewService(repository.NewCouponRepository(pool), ledger, coupon.Config{StoreTimeout: cfg.Store.Timeout}),
		challenges,
		handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret)),
	), nil
}
