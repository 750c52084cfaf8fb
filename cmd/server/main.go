package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/defectcriteria/activation"
	"github.com/liamcoop/defectcriteria/criteria"
	"github.com/liamcoop/defectcriteria/internal/bundle"
	"github.com/liamcoop/defectcriteria/internal/config"
	"github.com/liamcoop/defectcriteria/internal/logger"
	"github.com/liamcoop/defectcriteria/internal/metrics"
	"github.com/liamcoop/defectcriteria/library"
	"github.com/liamcoop/defectcriteria/migrations"
)

// app owns the long-lived resources behind the server.
type app struct {
	server  *Server
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	checks := map[string]HealthCheck{}

	var (
		store      criteria.Store
		libClient  library.Client
		selections activation.SelectionStore
		seed       *bundle.Bundle
	)
	switch cfg.Storage.Driver {
	case config.StorePostgres:
		if cfg.Storage.AutoMigrate {
			log.InfoContext(ctx, "running migrations")
			if err := migrations.Up(cfg.Storage.DatabaseURL); err != nil {
				return nil, err
			}
		}

		db, err := sql.Open("postgres", cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		checks["postgres"] = db.PingContext

		store = criteria.NewPostgresStore(db)
		libClient = library.NewPostgresClient(db)
		selections = activation.NewPostgresSelectionStore(db)

	default:
		store = criteria.NewMemoryStore()
		selections = activation.NewMemorySelectionStore()
		memClient := library.NewMemoryClient()
		if cfg.Storage.SeedBundle != "" {
			b, err := bundle.Load(cfg.Storage.SeedBundle)
			if err != nil {
				return nil, err
			}
			if memClient, err = b.LibraryClient(); err != nil {
				return nil, err
			}
			seed = b
		}
		libClient = memClient
	}

	var cache criteria.RulesCache = criteria.NewInMemoryRulesCache(criteria.CacheConfig{TTL: cfg.Cache.RuleTTL})
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		cache = criteria.NewRedisRulesCache(rdb, criteria.CacheConfig{TTL: cfg.Cache.RuleTTL}, log)
	}

	m, err := metrics.New()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	resolver := library.NewResolver(libClient, cfg.Cache.LibraryTTL, log)
	engine, err := criteria.NewEngine(store,
		criteria.WithCache(cache),
		criteria.WithTaxonomy(resolver),
		criteria.WithObserver(m),
		criteria.WithLogger(log),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	if seed != nil {
		loaded, err := seed.Apply(ctx, engine)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to seed bundle: %w", err)
		}
		log.InfoContext(ctx, "seed bundle loaded", "path", cfg.Storage.SeedBundle, "procedures", len(loaded.Procedures))
	}

	contexts := activation.NewManager(engine, selections, log)
	if err := contexts.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.server = NewServer(Deps{
		Engine:   engine,
		Contexts: contexts,
		Resolver: resolver,
		Metrics:  m,
		Logger:   log,
		Checks:   checks,
	})
	return a, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	log, err := logger.Setup(ctx, logger.Options{
		Level:       cfg.Log.Level,
		OTELEnabled: cfg.Log.OTELEnabled,
		ServiceName: cfg.Log.ServiceName,
	})
	if err != nil {
		log.Warn("logger setup degraded", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = logger.Shutdown(shutdownCtx)
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "store", cfg.Storage.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-sigChan:
		log.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
