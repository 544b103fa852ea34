package services

import (
	"context"
	"log/slog"

	"tracker/internal/amqp"
	"tracker/internal/core"
)

// EventPublisher announces committed changes. *amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, e amqp.Event) error
}

// notify publishes e when a publisher is configured. Failures are logged
// only; the change they describe is already committed.
func notify(ctx context.Context, p EventPublisher, e amqp.Event) {
	if p == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping event", "type", e.Type)
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", e.Type,
			"resource_id", e.ResourceID,
			"error", err)
	}
}

// Option configures a service.
type Option func(*options)

type options struct {
	ids       core.IDGenerator
	clock     core.Clock
	publisher EventPublisher
}

func defaultOptions(opts []Option) options {
	o := options{ids: core.UUIDGenerator{}, clock: core.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithIDGenerator(ids core.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

func WithClock(c core.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPublisher enables change events. A nil publisher leaves them off.
func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}
