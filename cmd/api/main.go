package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/cartwatch/api/controllers"
	"github.com/angelmondragon/cartwatch/api/routes"
	"github.com/angelmondragon/cartwatch/internal/backup"
	"github.com/angelmondragon/cartwatch/internal/cart"
	"github.com/angelmondragon/cartwatch/internal/cron"
	"github.com/angelmondragon/cartwatch/pkg/config"
	"github.com/angelmondragon/cartwatch/pkg/db"
	"github.com/angelmondragon/cartwatch/pkg/logger"
	"github.com/angelmondragon/cartwatch/pkg/metrics"
	"github.com/angelmondragon/cartwatch/pkg/migrate"
	"github.com/angelmondragon/cartwatch/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	carts, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	var (
		backups   controllers.BackupInspector
		scheduler controllers.BackupRunner
		cronSvc   *cron.Service
	)
	if job := newBackupJob(cfg, logg, registry); job != nil {
		cronSvc, err = newScheduler(cfg, logg, registry, redisClient, job)
		if err != nil {
			logg.Error(context.Background(), "failed to create backup scheduler", err)
			os.Exit(1)
		}
		backups, scheduler = job, cronSvc
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"driver":  dbClient.Driver(),
		"backups": cronSvc != nil,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Carts:     carts,
			Backups:   backups,
			Scheduler: scheduler,
			Gatherer:  registry,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	if cronSvc != nil {
		cronSvc.Start(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	if cronSvc != nil {
		cronSvc.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
	}
	logg.Info(shutdownCtx, "api server stopped")
}

// newBackupJob returns nil when backups are disabled or the store is not a
// local file.
func newBackupJob(cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) *backup.Job {
	ctx := context.Background()
	if !cfg.Backup.Enabled {
		logg.Info(ctx, "store backups disabled")
		return nil
	}
	if !cfg.DB.IsSQLite() {
		logg.Warn(logg.WithField(ctx, "driver", cfg.DB.Driver), "store backups need the sqlite driver; skipping")
		return nil
	}
	job, err := backup.NewJob(backup.JobParams{
		Logger:    logg,
		Metrics:   metrics.NewBackupMetrics(reg),
		Source:    cfg.Backup.SourcePath(cfg.DB),
		Dir:       cfg.Backup.Dir,
		Retention: cfg.Backup.Retention,
	})
	if err != nil {
		logg.Error(ctx, "failed to create backup job", err)
		os.Exit(1)
	}
	return job
}

func newScheduler(cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer, redisClient *redis.Client, job *backup.Job) (*cron.Service, error) {
	var lock cron.Lock
	if redisClient != nil {
		redisLock, err := cron.NewRedisLock(redisClient, cfg.Backup.LockKey, cfg.Backup.LockTTL)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}
	return cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     cron.NewRegistry(job),
		Lock:         lock,
		Metrics:      metrics.NewCronJobMetrics(reg),
		InitialDelay: cfg.Backup.InitialDelay,
		Interval:     cfg.Backup.Interval,
	})
}
