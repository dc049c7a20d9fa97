package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// OutcomeHandler applies a decoded payment outcome.  Returning an error
// that wraps ErrPermanent drops the message; any other error requeues it.
type OutcomeHandler interface {
	HandlePaymentOutcome(ctx context.Context, out PaymentOutcome) error
}

// ErrPermanent marks a message that can never be applied (malformed body,
// unknown order, conflicting outcome).
var ErrPermanent = errors.New("permanent message failure")

// Consumer reads payment.outcome messages and hands them to an
// OutcomeHandler.
type Consumer struct {
	url      string
	handler  OutcomeHandler
	logger   *slog.Logger
	prefetch int
}

func NewConsumer(url string, h OutcomeHandler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{url: url, handler: h, logger: logger, prefetch: 50}
}

// Run connects, declares the queue and consumes until ctx is cancelled.
// Broker failures are retried with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("payment consumer dial failed", "err", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("payment consumer loop ended, reconnecting", "err", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.Warn("payment consumer qos failed", "err", err)
	}
	if _, err := ch.QueueDeclare(PaymentOutcomeQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(PaymentOutcomeQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d.Body, d)
		}
	}
}

// acknowledger is the part of amqp.Delivery that handle needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) handle(ctx context.Context, body []byte, ack acknowledger) {
	err := c.apply(ctx, body)
	switch {
	case err == nil:
		_ = ack.Ack(false)
	case errors.Is(err, ErrPermanent):
		c.logger.Error("payment outcome dropped", "err", err)
		_ = ack.Nack(false, false)
	default:
		c.logger.Warn("payment outcome requeued", "err", err)
		_ = ack.Nack(false, true)
	}
}

func (c *Consumer) apply(ctx context.Context, body []byte) error {
	out, err := DecodePaymentOutcome(body)
	if err != nil {
		return err
	}
	return c.handler.HandlePaymentOutcome(ctx, out)
}

// DecodePaymentOutcome parses and validates a payment.outcome body.
func DecodePaymentOutcome(body []byte) (PaymentOutcome, error) {
	var out PaymentOutcome
	if err := json.Unmarshal(body, &out); err != nil {
		return PaymentOutcome{}, fmt.Errorf("%w: unmarshal: %v", ErrPermanent, err)
	}
	out.OrderID = strings.TrimSpace(out.OrderID)
	out.Outcome = strings.ToUpper(strings.TrimSpace(out.Outcome))
	if out.OrderID == "" {
		return PaymentOutcome{}, fmt.Errorf("%w: missing order_id", ErrPermanent)
	}
	if out.Outcome != "SUCCESS" && out.Outcome != "FAILED" {
		return PaymentOutcome{}, fmt.Errorf("%w: unknown outcome %q", ErrPermanent, out.Outcome)
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
