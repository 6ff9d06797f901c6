package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	goredis "github.com/redis/go-redis/v9"

	"github.com/playmatatu/duel/internal/api"
	"github.com/playmatatu/duel/internal/archive"
	"github.com/playmatatu/duel/internal/config"
	"github.com/playmatatu/duel/internal/database"
	"github.com/playmatatu/duel/internal/events"
	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/middleware"
	"github.com/playmatatu/duel/internal/migrations"
	"github.com/playmatatu/duel/internal/redis"
	"github.com/playmatatu/duel/internal/store"
	"github.com/playmatatu/duel/internal/store/memstore"
	"github.com/playmatatu/duel/internal/store/pgstore"
	"github.com/playmatatu/duel/internal/ws"
)

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	checks := map[string]func(context.Context) error{}

	var st store.Store
	switch strings.ToLower(cfg.StoreDriver) {
	case "memory":
		logger.Warn("using in-memory store, state is lost on restart")
		st = memstore.New()
	default:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if cfg.MigrateOnStart {
			logger.Info("running database migrations", "dir", cfg.MigrationsDir)
			if err := migrations.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
				db.Close()
				return err
			}
		}
		st = pgstore.New(db)
		checks["postgres"] = db.PingContext
	}
	defer st.Close()

	hub := ws.NewHub(logger, middleware.WebSocketOriginCheck(cfg))

	var publisher events.Publisher = ws.NewLocalPublisher(events.NewLogPublisher(logger), hub)
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, events reach only this instance's sockets", "error", err)
		} else {
			rdb = client
			defer rdb.Close()
			publisher = events.NewRedisPublisher(rdb, logger)
			if err := ws.StartEventSubscriber(ctx, rdb, hub, logger); err != nil {
				return err
			}
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	var archiver game.Archiver
	if cfg.ArchiveEnabled {
		a, err := archive.NewS3Archiver(ctx, archive.Config{
			AccountID:       cfg.ArchiveAccountID,
			AccessKeyID:     cfg.ArchiveAccessKey,
			SecretAccessKey: cfg.ArchiveSecretKey,
			BucketName:      cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			Prefix:          "matches",
		}, logger)
		if err != nil {
			return err
		}
		archiver = a
	}

	gm := game.NewManager(st, ledger.New(logger), game.Options{
		QueueWait:       cfg.QueueWait(),
		MaxJoinAttempts: cfg.JoinMaxAttempts,
		MinStake:        cfg.MinStakeAmount,
		ProblemCount:    cfg.ProblemCount,
		Logger:          logger,
		Publisher:       publisher,
		Archiver:        archiver,
	})

	reaper := game.NewReaper(gm, game.ReaperOptions{
		Interval:    cfg.ReaperInterval(),
		BatchSize:   cfg.ReaperBatchSize,
		Concurrency: cfg.ReaperConcurrency,
	})
	if err := reaper.Start(ctx); err != nil {
		return err
	}
	defer reaper.Stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Deps{
		Manager:      gm,
		Hub:          hub,
		Config:       cfg,
		Logger:       logger,
		HealthChecks: checks,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting duel server", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
