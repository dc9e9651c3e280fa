// cartd - Serves optimistic, per-session carts backed by a Shopify storefront.
// Cart identities survive restarts when IDENTITY_DB is set.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cartsync/internal/config"
	"cartsync/internal/gateway"
	"cartsync/internal/handler"
	"cartsync/internal/identity"
	"cartsync/internal/middleware"
	"cartsync/internal/session"
	"cartsync/internal/shopify"
	"cartsync/internal/store"
	"cartsync/internal/syncer"
	"cartsync/internal/transport"
)

// sweepInterval is how often idle sessions are looked for.
const sweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("backend", cfg.Backend),
		slog.String("environment", cfg.Environment),
		slog.String("store_domain", cfg.Store.StoreDomain),
	)

	storefront, err := createStorefront(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating storefront: %w", err)
	}
	gw := gateway.NewService(storefront, logger)

	local, err := openIdentityStore(cfg)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	defer local.Close()

	registry := session.NewRegistry(storeFactory(cfg, gw, local, logger), logger)
	defer registry.Close()
	go registry.Run(ctx, cfg.SessionIdleTTL, sweepInterval)

	h := handler.New(registry, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware.
	// The session middleware runs inside Logging so the session id is logged.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.WithSession(registry, middleware.SessionOptions{
			Secure: cfg.SecureCookies,
			Exempt: handler.ExemptPaths,
			Logger: logger,
		}),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped", slog.Int("sessions", registry.Len()))
	return nil
}

// createStorefront builds the backend client selected by configuration.
func createStorefront(cfg *config.Config, logger *slog.Logger) (gateway.Storefront, error) {
	breaker := transport.DefaultBreakerSettings()
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: transport.New(transport.Options{
			Fingerprint: !cfg.Store.DisableFingerprint,
			Breaker:     &breaker,
			Logger:      logger,
		}),
	}

	switch cfg.Backend {
	case config.BackendShopify:
		return shopify.New(shopify.Config{
			StoreDomain:     cfg.Store.StoreDomain,
			StorefrontToken: cfg.Store.StorefrontToken,
			APIVersion:      cfg.Store.APIVersion,
			HTTPClient:      httpClient,
			Logger:          logger,
		})
	case config.BackendProxy:
		return shopify.NewProxy(cfg.Store.ProxyURL, httpClient, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

func openIdentityStore(cfg *config.Config) (identity.LocalStore, error) {
	if cfg.IdentityDB == "" {
		return identity.NewMemoryStore(), nil
	}
	return identity.OpenSQLite(cfg.IdentityDB)
}

// storeFactory builds one cart store per session. Each store gets its own
// notification inbox; the gateway and identity store are shared.
func storeFactory(cfg *config.Config, gw gateway.Gateway, local identity.LocalStore, logger *slog.Logger) session.Factory {
	return func(ctx context.Context, sessionID string, seed identity.Identity) *store.Store {
		sessionLogger := logger.With("session_id", sessionID)

		p := identity.NewPersister(sessionID, local, sessionLogger)
		p.Observe(seed)

		return store.New(ctx, gw, p, store.Options{
			Sync: syncer.Options{
				Debounce:     cfg.Sync.Debounce.Std(),
				PollInterval: cfg.Sync.PollInterval.Std(),
				FlushTimeout: cfg.Sync.FlushTimeout.Std(),
				Logger:       sessionLogger,
			},
			CheckoutTimeout: cfg.Sync.CheckoutTimeout.Std(),
			OpenDelay:       cfg.Sync.OpenDelay.Std(),
			Notifier:        store.NewInbox(store.DefaultInboxSize),
			Logger:          sessionLogger,
		})
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
