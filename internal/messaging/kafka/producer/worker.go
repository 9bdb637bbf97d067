package producer

import (
	"context"
	"time"

	"go-attendsync/internal/messaging/kafka"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const sweepBatchSize = 50

// ProcessOutboxEvents polls the outbox on pollInterval and publishes whatever
// is due, until ctx is cancelled. A row that fails to publish gets marked
// failed with backoff and the sweep moves on; one broken event never blocks
// the stream behind it.
func ProcessOutboxEvents(
	ctx context.Context,
	repo kafka.OutboxRepository,
	writer *kafkago.Writer,
	logger *zap.Logger,
	pollInterval time.Duration,
) {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}

	log := logger.Named("kafka.producer.worker")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info("outbox worker started", zap.Duration("poll_interval", pollInterval))

	for {
		select {
		case <-ctx.Done():
			log.Info("outbox worker stopped")
			return
		case <-ticker.C:
			if err := sweep(ctx, repo, writer, log); err != nil {
				log.Error("outbox sweep failed", zap.Error(err))
			}
		}
	}
}

func sweep(ctx context.Context, repo kafka.OutboxRepository, writer *kafkago.Writer, log *zap.Logger) error {
	events, err := repo.ListPending(ctx, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	sent, failed := 0, 0
	for _, event := range events {
		if err := publishEvent(ctx, writer, event); err != nil {
			failed++
			log.Warn("publish outbox event failed",
				zap.String("outbox_id", event.ID),
				zap.String("topic", event.Topic),
				zap.Int("retry_count", event.RetryCount),
				zap.Error(err),
			)
			_ = repo.MarkFailed(ctx, event.ID, err.Error())
			continue
		}
		if err := repo.MarkSent(ctx, event.ID); err != nil {
			// The message is on the broker but the row stays pending, so the
			// next sweep re-publishes it. Consumers must dedupe on event id.
			log.Error("mark outbox sent failed",
				zap.String("outbox_id", event.ID), zap.Error(err))
			continue
		}
		sent++
	}

	log.Info("outbox sweep complete",
		zap.Int("picked_up", len(events)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
	return nil
}
