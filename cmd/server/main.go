package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openmohaa/match-server/internal/config"
	"github.com/openmohaa/match-server/internal/engine"
	"github.com/openmohaa/match-server/internal/handlers"
	"github.com/openmohaa/match-server/internal/identity"
	"github.com/openmohaa/match-server/internal/logic"
	"github.com/openmohaa/match-server/internal/maps"
	"github.com/openmohaa/match-server/internal/notify"
	"github.com/openmohaa/match-server/internal/profile"
	"github.com/openmohaa/match-server/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, logger); err != nil {
		sugar.Fatalw("Server exited with error", "error", err)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()
	settings := config.Configure(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]handlers.Check)

	// Profile store
	var store profile.Store
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		checks["postgres"] = pool.Ping
		store = profile.NewPostgresStore(pool)
		sugar.Infow("Using Postgres profile store")
	} else {
		lite, err := profile.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer lite.Close()
		checks["sqlite"] = lite.Ping
		store = lite
		sugar.Infow("Using SQLite profile store", "path", cfg.SQLitePath)
	}

	// Access groups
	var groups profile.GroupResolver = identity.StaticResolver{}
	if cfg.ForumDSN != "" {
		forum, err := identity.OpenForum(cfg.ForumDSN)
		if err != nil {
			return err
		}
		defer forum.Close()
		groups = forum
	}

	profiles := profile.NewService(profile.ServiceConfig{
		Store:    store,
		Settings: settings,
		Groups:   groups,
		Logger:   logger,
	})

	// ClickHouse archive
	ch, err := openClickHouse(ctx, cfg.ClickHouseURL)
	if err != nil {
		return err
	}
	defer ch.Close()
	checks["clickhouse"] = ch.Ping

	// Redis fan-out and shared state
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	shared := notify.NewSharedState(rdb, "", settings.RoundDuration*2)
	hub := handlers.NewHub(cfg.AllowedOrigins, logger)
	dispatcher := notify.NewDispatcher(0, logger, notify.NewRedisSink(rdb, shared), hub)
	go dispatcher.Run(context.Background())

	catalog, err := maps.Load(cfg.MapCatalogPath)
	if err != nil {
		return err
	}

	// The pool reports failures back to the engine, which is built after it.
	var eng *engine.Engine
	persist := worker.NewPool(worker.PoolConfig{
		WorkerCount:   cfg.WorkerCount,
		QueueSize:     cfg.QueueSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		SaveAttempts:  settings.SaveAttempts,
		ClickHouse:    ch,
		Profiles:      profiles,
		Logger:        logger,
		OnFailure: func(f worker.Failure) {
			id := f.Job.ProfileID
			if f.Job.Archive != nil {
				id = f.Job.Archive.ID
			}
			eng.ReportPersistenceFailure(string(f.Job.Kind), id, f.Err)
		},
	})
	persist.Start(context.Background())

	eng = engine.New(engine.Config{
		Settings:    settings,
		Maps:        catalog,
		Profiles:    profiles,
		Persistence: persist,
		Notifier:    dispatcher,
		Logger:      logger,
	})
	engineCtx, stopEngine := context.WithCancel(context.Background())
	go eng.Run(engineCtx)

	h := handlers.New(handlers.Config{
		Engine:         eng,
		History:        logic.NewHistoryService(ch),
		Live:           shared,
		Hub:            hub,
		Queue:          persist,
		Checks:         checks,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		sugar.Infow("HTTP server listening", "addr", srv.Addr, "env", cfg.Env, "maps", len(catalog.All()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		sugar.Info("Shutdown signal received")
	case err := <-errc:
		if err != nil {
			sugar.Errorw("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("HTTP shutdown incomplete", "error", err)
	}
	hub.Close()

	// Stop the engine first so its final saves reach the pool, then drain.
	stopEngine()
	<-eng.Done()
	persist.Stop()
	dispatcher.Close()

	sugar.Info("Server stopped")
	return nil
}

func openClickHouse(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse url: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return conn, nil
}
