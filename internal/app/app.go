// Package app wires the sales API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/sales-engine/internal/domain/sale"
	"github.com/xenking/sales-engine/internal/handler"
	"github.com/xenking/sales-engine/internal/storage/postgres"
	"github.com/xenking/sales-engine/pkg/health"
	"github.com/xenking/sales-engine/pkg/httpmiddleware"
)

const serviceName = "sales-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)

	salesSvc, err := sale.NewService(
		postgres.NewProductRepository(pool),
		postgres.NewDiscountRepository(pool),
		postgres.NewClientRepository(pool),
		postgres.NewSaleRepository(pool),
		append(cfg.saleOptions(),
			sale.WithTracerProvider(m.TracerProvider()),
			sale.WithMeterProvider(m.MeterProvider()),
		)...,
	)
	if err != nil {
		return errors.Wrap(err, "create sale service")
	}
	sec := handler.NewSecurityHandler(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, lg, m, cfg, salesSvc, sec, healthSvc),
	}
	healthSvc.SetReady(true)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
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
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler builds the HTTP handler: health probes and the authenticated
// sales API on one chi router, wrapped in the process-wide middleware.
func newHandler(
	ctx context.Context,
	lg *zap.Logger,
	m httpmiddleware.Telemetry,
	cfg *Config,
	sales *sale.Service,
	sec *handler.SecurityHandler,
	healthSvc *health.Health,
) http.Handler {
	find := httpmiddleware.RouteFinder(handler.RoutePattern)

	r := handler.NewRouter(
		handler.NewHandler(handler.HandlerConfig{MaxBodyBytes: cfg.MaxBodyBytes}, sales),
		sec,
		httpmiddleware.Instrument(serviceName, find, m),
		httpmiddleware.LogRequests(find),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)

	return httpmiddleware.Wrap(r,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:          cfg.CORS.Origins,
			Headers:          []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			Expose:           []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Key:    httpmiddleware.KeyByHeader(handler.APIKeyHeader),
		}),
	)
}
