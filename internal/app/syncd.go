package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go-attendsync/internal/shared/connection"
	"go-attendsync/internal/syncer"

	"go.uber.org/zap"
)

// RunSyncd runs the continuous per-branch sync scheduler until the process
// receives SIGINT or SIGTERM.
func RunSyncd() error {
	logger := zap.L().Named("app.syncd")

	gormDB, err := connection.ConnectGORMWithRetry(
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		5,
	)
	if err != nil {
		return err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	redisClient, err := connection.ConnectRedisWithRetry(os.Getenv("REDIS_ADDR"), 5)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	orch, branchRepo := buildOrchestrator(sqlDB, gormDB, redisClient, zap.L())
	scheduler := syncer.NewScheduler(orch, branchRepo, zap.L())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("sync scheduler starting")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("sync scheduler stopped")
	return nil
}
