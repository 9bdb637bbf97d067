package connection

import (
	"context"
	"fmt"
	"time"

	"go-attendsync/internal/shared/retry"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ConnectGORMWithRetry opens the central postgres store, retrying with
// backoff until it answers a ping.
func ConnectGORMWithRetry(host, user, password, dbname, port, sslmode string, maxRetries int) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, password, dbname, port, sslmode,
	)

	var db *gorm.DB
	err := retry.Do(context.Background(), policy(maxRetries), func(ctx context.Context) error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if openErr != nil {
			zap.L().Warn("postgres open failed", zap.Error(openErr))
			return openErr
		}
		return pingAndPool(db)
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed after %d retries: %w", maxRetries, err)
	}

	zap.L().Info("connected to postgres", zap.String("db", dbname))
	return db, nil
}

// ConnectVendorDB opens the read-only vendor attendance database the
// biometric terminal vendor populates. Vendor installations run MySQL.
func ConnectVendorDB(dsn string, maxRetries int) (*gorm.DB, error) {
	var db *gorm.DB
	err := retry.Do(context.Background(), policy(maxRetries), func(ctx context.Context) error {
		var openErr error
		db, openErr = gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if openErr != nil {
			zap.L().Warn("vendor db open failed", zap.Error(openErr))
			return openErr
		}
		return pingAndPool(db)
	})
	if err != nil {
		return nil, fmt.Errorf("vendor db connection failed after %d retries: %w", maxRetries, err)
	}

	zap.L().Info("connected to vendor db")
	return db, nil
}

func ConnectRedisWithRetry(addr string, maxRetries int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	err := retry.Do(context.Background(), policy(maxRetries), func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		return nil, fmt.Errorf("redis connection failed after %d retries: %w", maxRetries, err)
	}

	zap.L().Info("connected to redis", zap.String("addr", addr))
	return rdb, nil
}

// ConnectKafkaWithRetry builds the shared writer used by the outbox worker.
// kafka-go dials lazily, so readiness is probed with an explicit dial.
func ConnectKafkaWithRetry(broker string, maxRetries int) (*kafkago.Writer, error) {
	err := retry.Do(context.Background(), policy(maxRetries), func(ctx context.Context) error {
		conn, dialErr := kafkago.DialContext(ctx, "tcp", broker)
		if dialErr != nil {
			zap.L().Warn("kafka dial failed", zap.Error(dialErr))
			return dialErr
		}
		return conn.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("kafka connection failed after %d retries: %w", maxRetries, err)
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(broker),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	zap.L().Info("connected to kafka", zap.String("broker", broker))
	return writer, nil
}

func policy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxAttempts: maxRetries,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

func pingAndPool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		zap.L().Warn("db ping failed", zap.Error(err))
		return err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}
