package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-reservation/internal/metrics"
	"github.com/iliyamo/ticket-reservation/internal/queue"
)

// EventPublisher receives domain events once the producing transaction
// has committed.  Delivery is best effort.
type EventPublisher interface {
	PublishOrderSettled(ctx context.Context, ev queue.OrderSettledEvent) error
	PublishReservationExpired(ctx context.Context, ev queue.ReservationExpiredEvent) error
}

type Option func(*options)

type options struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records counters on m.  A nil m disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPublisher sends domain events to p.  A nil p disables publishing.
func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) publishSettled(ctx context.Context, ev queue.OrderSettledEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishOrderSettled(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn("publish order.settled failed", "order_id", ev.OrderID, "err", err)
	}
}

func (o options) publishExpired(ctx context.Context, ev queue.ReservationExpiredEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishReservationExpired(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn("publish reservation.expired failed", "reservation_id", ev.ReservationID, "err", err)
	}
}

func newID() string { return uuid.NewString() }
