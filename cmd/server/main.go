package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/config"
	"salonpos/backend/internal/httpapi"
	"salonpos/backend/internal/logging"
	"salonpos/backend/internal/metrics"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/session"
	"salonpos/backend/internal/settlement"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/store/memory"
	pgstore "salonpos/backend/internal/store/postgres"
	sqlitestore "salonpos/backend/internal/store/sqlite"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closeRepo, err := openRepository(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	var (
		rosters cache.RosterCache = cache.NoopRosterCache{}
		guard   settlement.Guard  = settlement.NewLocalGuard()
	)
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if pingErr := redisCache.Ping(startCtx); pingErr != nil {
			logger.Warn("redis unavailable, using process-local cache and guard", "error", pingErr)
			_ = redisCache.Close()
		} else {
			rosters = redisCache
			guard = cache.NewRedisGuard(redisCache, cfg.SessionGuardTTL())
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis", "addr", cfg.RedisAddr)
		}
	} else {
		logger.Info("cache: process-local")
	}

	denominations, err := cfg.Denominations()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := service.New(repo, service.Options{
		DefaultStoreID: cfg.StoreID,
		Unit:           cfg.CurrencyUnitCents,
		Denominations:  denominations,
		RosterCache:    rosters,
		RosterCacheTTL: cfg.RosterCacheTTL(),
		Logger:         logger,
	})
	sessions := session.NewRegistry(svc, svc, session.Config{
		DefaultStoreID: cfg.StoreID,
		Unit:           cfg.CurrencyUnitCents,
		IdleTTL:        cfg.SessionIdleTTL(),
		Guard:          guard,
		Metrics:        metrics.NewSettlement(registry),
		Logger:         logger,
	})
	defer sessions.CloseAll()
	go sessions.Run(ctx, sweepInterval)

	auth := httpapi.NewAuthManager(startCtx, cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	api := httpapi.New(httpapi.Deps{
		Service:       svc,
		Sessions:      sessions,
		Auth:          auth,
		Gatherer:      registry,
		Metrics:       metrics.NewHTTP(registry),
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("salon POS backend listening", "addr", cfg.Address(), "store_driver", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openRepository picks the store driver. A configured database that cannot
// be reached is fatal; there is no silent fallback to memory.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, pg.Close, nil
	case config.StoreDriverSQLite:
		db, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite unavailable: %w", err)
		}
		logger.Info("repository: sqlite", "path", cfg.SQLitePath)
		return db, db.Close, nil
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	var errs error
	if len(cfg.AuthSecret) < 32 {
		errs = multierr.Append(errs, errors.New("AUTH_SECRET must be set and at least 32 characters"))
	}
	// An empty PIN disables void and refund approval over HTTP.
	if cfg.ManagerPIN == "" {
		return errs
	}
	if len(cfg.ManagerPIN) < 6 {
		errs = multierr.Append(errs, errors.New("MANAGER_PIN must be at least 6 digits"))
	} else if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("MANAGER_PIN is too weak: %w", err))
	}
	return errs
}

// validatePINStrength rejects PINs that are all the same digit, sequential
// (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "696969": true,
	}
	if known[pin] {
		return errors.New("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return errors.New("sequential PIN not allowed")
	}
	return nil
}
