package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/cartwatch/internal/backup"
	"github.com/angelmondragon/cartwatch/internal/cron"
	"github.com/angelmondragon/cartwatch/pkg/config"
	"github.com/angelmondragon/cartwatch/pkg/logger"
	"github.com/angelmondragon/cartwatch/pkg/metrics"
	"github.com/angelmondragon/cartwatch/pkg/redis"
)

// backup-worker runs the snapshot schedule outside the API process. Run it
// with CARTWATCH_BACKUP_ENABLED=false on the API side, or share a Redis lock.
func main() {
	logg := logger.New(logger.Options{ServiceName: "backup-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "backup-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if !cfg.DB.IsSQLite() {
		logg.Error(context.Background(), "backup worker requires the sqlite driver", errors.New("driver "+cfg.DB.Driver))
		os.Exit(1)
	}

	var lock cron.Lock
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisLock, err := cron.NewRedisLock(redisClient, cfg.Backup.LockKey, cfg.Backup.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create backup lock", err)
			os.Exit(1)
		}
		lock = redisLock
	}

	job, err := backup.NewJob(backup.JobParams{
		Logger:    logg,
		Metrics:   metrics.NewBackupMetrics(prometheus.DefaultRegisterer),
		Source:    cfg.Backup.SourcePath(cfg.DB),
		Dir:       cfg.Backup.Dir,
		Retention: cfg.Backup.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create backup job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     cron.NewRegistry(job),
		Lock:         lock,
		Metrics:      metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		InitialDelay: cfg.Backup.InitialDelay,
		Interval:     cfg.Backup.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create backup scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"dir":       cfg.Backup.Dir,
		"interval":  cfg.Backup.Interval.String(),
		"retention": cfg.Backup.Retention.String(),
	})
	logg.Info(ctx, "starting backup worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "backup worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "backup worker shutting down gracefully")
}
