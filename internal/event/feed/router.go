package feed

import (
	"context"
	"log/slog"

	"civreg/internal/platform/kafka/consumer"
)

// Router dispatches consumed feed messages to topic-specific handlers so a
// search-index projector and a notification dispatcher can share one
// consumer group.
type Router struct {
	handlers map[string]consumer.Handler
	fallback consumer.Handler
	logger   *slog.Logger
}

// NewRouter creates a topic router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback consumer.Handler) *Router {
	return &Router{
		handlers: make(map[string]consumer.Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a specific topic.
func (r *Router) Register(topic string, handler consumer.Handler) {
	r.handlers[topic] = handler
}

// Handle routes the message to its topic handler.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.Warn("no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil // commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}
