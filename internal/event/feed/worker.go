package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civreg/internal/event/store"
	"civreg/internal/platform/metrics"
)

// Publisher is the outbound message boundary (Kafka in production).
type Publisher interface {
	Produce(ctx context.Context, key, value []byte) error
}

// Worker drains the outbox in insertion order. Messages are keyed by event
// id so the feed preserves per-event ordering; entries are only marked
// published after the broker acknowledges, so a crash re-delivers rather
// than drops (consumers deduplicate on action id).
type Worker struct {
	store     store.Store
	publisher Publisher
	logger    *slog.Logger
	meter     *metrics.Metrics
	interval  time.Duration
	batchSize int
}

func NewWorker(st store.Store, publisher Publisher, logger *slog.Logger, meter *metrics.Metrics, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{
		store:     st,
		publisher: publisher,
		logger:    logger,
		meter:     meter,
		interval:  interval,
		batchSize: 100,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes every pending entry once. Exported so tests and shutdown
// paths can flush without the ticker.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		pending, err := w.store.PendingOutbox(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		published := make([]uuid.UUID, 0, len(pending))
		for _, entry := range pending {
			key := []byte(entry.EventID.String())
			if err := w.publisher.Produce(ctx, key, entry.Payload); err != nil {
				w.meter.IncFeedError()
				w.logger.Error("publish change event failed",
					"event_id", entry.EventID.String(),
					"action_id", entry.ActionID.String(),
					"error", err)
				// Stop at the first failure to preserve per-event order.
				break
			}
			w.meter.IncFeedPublished()
			published = append(published, entry.ID)
		}
		if len(published) > 0 {
			if err := w.store.MarkPublished(ctx, published); err != nil {
				return err
			}
		}
		if len(published) < len(pending) {
			return nil
		}
	}
}
