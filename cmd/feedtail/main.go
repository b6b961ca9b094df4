// Command feedtail consumes the change feed and prints each change event as
// a structured log line. It doubles as a reference consumer: real
// projections (search indexer, notification dispatcher) register their own
// handlers on the same router.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"civreg/internal/event/feed"
	"civreg/internal/platform/config"
	"civreg/internal/platform/kafka/consumer"
	"civreg/internal/platform/logger"
)

type tailHandler struct {
	logger *slog.Logger
}

func (h *tailHandler) Handle(_ context.Context, msg *consumer.Message) error {
	var change feed.ChangeEvent
	if err := json.Unmarshal(msg.Value, &change); err != nil {
		h.logger.Warn("skipping undecodable message", "topic", msg.Topic, "error", err)
		return nil
	}
	h.logger.Info("change",
		"eventId", change.EventID,
		"actionId", change.ActionID,
		"actionType", change.ActionType,
		"status", change.Status,
	)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "feedtail:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	log := logger.New()

	router := feed.NewRouter(log, nil)
	router.Register(cfg.FeedTopic, &tailHandler{logger: log})

	c, err := consumer.New(cfg.KafkaBrokers, "civreg-feedtail", []string{cfg.FeedTopic}, router, log)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("tailing change feed", "topic", cfg.FeedTopic, "brokers", cfg.KafkaBrokers)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
