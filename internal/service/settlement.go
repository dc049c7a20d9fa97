package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
)

// Outcome is a payment decision reported by the payment collaborator.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// ParseOutcome accepts SUCCESS or FAILED.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeSuccess, OutcomeFailed:
		return o, nil
	}
	return "", model.ErrInvalidOutcome
}

// SettleResult is the order after settlement.  Changed is false when the
// call was a repeat of an outcome already applied.
type SettleResult struct {
	Order   model.Order
	Changed bool
}

// Settlement applies terminal payment decisions to orders and is the only
// writer of ticket_types.sold.
type Settlement struct {
	store Store
	opts  options
}

func NewSettlement(store Store, opts ...Option) *Settlement {
	return &Settlement{store: store, opts: buildOptions(opts)}
}

// Settle moves a PENDING or AWAITING_VERIFICATION order to SUCCESS or
// FAILED.  SUCCESS adds the order's units to sold and activates its
// tickets; FAILED cancels the tickets, which releases the units because
// only unsettled orders count as held.  Reapplying the outcome an order
// already has is a no-op.
func (s *Settlement) Settle(ctx context.Context, orderID string, outcome Outcome) (SettleResult, error) {
	var target model.OrderStatus
	switch outcome {
	case OutcomeSuccess:
		target = model.OrderSuccess
	case OutcomeFailed:
		target = model.OrderFailed
	default:
		return SettleResult{}, model.ErrInvalidOutcome
	}

	res, err := s.apply(ctx, orderID, target, func(o model.Order) bool { return o.Status.Unsettled() },
		func(ctx context.Context, o model.Order, now time.Time) error {
			if target == model.OrderFailed {
				_, err := s.store.UpdateTicketStatuses(ctx, o.ID, model.TicketPending, model.TicketCancelled, now)
				return err
			}
			for _, tt := range sortedTypes(o) {
				if err := s.store.AddSold(ctx, tt, o.QuantityByType()[tt]); err != nil {
					return err
				}
			}
			_, err := s.store.UpdateTicketStatuses(ctx, o.ID, model.TicketPending, model.TicketActive, now)
			return err
		})
	return res, err
}

// MarkAwaitingVerification parks a PENDING order paid by a manual method.
// The order keeps its units held and the sweeper no longer expires it.
func (s *Settlement) MarkAwaitingVerification(ctx context.Context, orderID string) (SettleResult, error) {
	return s.apply(ctx, orderID, model.OrderAwaitingVerification,
		func(o model.Order) bool { return o.Status == model.OrderPending }, nil)
}

// Reverse is the administrative correction of a successful order: the
// order becomes CANCELLED, its active tickets are cancelled and sold is
// decremented by its units.
func (s *Settlement) Reverse(ctx context.Context, orderID string) (SettleResult, error) {
	return s.apply(ctx, orderID, model.OrderCancelled,
		func(o model.Order) bool { return o.Status == model.OrderSuccess },
		func(ctx context.Context, o model.Order, now time.Time) error {
			for _, tt := range sortedTypes(o) {
				if err := s.store.AddSold(ctx, tt, -o.QuantityByType()[tt]); err != nil {
					return err
				}
			}
			_, err := s.store.UpdateTicketStatuses(ctx, o.ID, model.TicketActive, model.TicketCancelled, now)
			return err
		})
}

// HandlePaymentOutcome adapts Settle to the payment.outcome consumer.
// Outcomes that can never apply are reported as permanent so the message
// is dropped rather than redelivered.
func (s *Settlement) HandlePaymentOutcome(ctx context.Context, out queue.PaymentOutcome) error {
	outcome, err := ParseOutcome(out.Outcome)
	if err == nil {
		_, err = s.Settle(ctx, out.OrderID, outcome)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrInvalidOutcome):
		return fmt.Errorf("%w: order %s: %v", queue.ErrPermanent, out.OrderID, err)
	}
	return err
}

// apply runs one guarded order transition.  allowed decides from the
// locked row whether the transition may start; effects runs before the
// status flips.
func (s *Settlement) apply(
	ctx context.Context,
	orderID string,
	target model.OrderStatus,
	allowed func(model.Order) bool,
	effects func(ctx context.Context, o model.Order, now time.Time) error,
) (SettleResult, error) {
	var res SettleResult
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == target {
			res = SettleResult{Order: o}
			return nil
		}
		if !allowed(o) {
			return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, model.ErrOrderSettled)
		}
		now, err := s.store.Now(ctx)
		if err != nil {
			return err
		}
		if effects != nil {
			if err := effects(ctx, o, now); err != nil {
				return err
			}
		}
		ok, err := s.store.TransitionOrder(ctx, o.ID, o.Status, target, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s changed concurrently: %w", o.ID, model.ErrInvalidState)
		}
		o.Status = target
		o.UpdatedAt = now
		res = SettleResult{Order: o, Changed: true}
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}
	if res.Changed {
		s.opts.metrics.OrderSettled(string(target))
		if target != model.OrderAwaitingVerification {
			s.opts.publishSettled(ctx, settledEvent(res.Order))
		}
	}
	return res, nil
}

func settledEvent(o model.Order) queue.OrderSettledEvent {
	ev := queue.OrderSettledEvent{
		OrderID:     o.ID,
		SessionID:   o.SessionID,
		Status:      string(o.Status),
		Amount:      o.Amount.StringFixed(2),
		TicketCount: o.TicketCount(),
		SettledAt:   o.UpdatedAt.Format(time.RFC3339Nano),
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, queue.OrderSettledItem{TicketTypeID: it.TicketTypeID, Quantity: it.Quantity})
	}
	return ev
}

// sortedTypes lists the order's ticket types in ascending ID order, the
// lock order shared with the ledger.
func sortedTypes(o model.Order) []string {
	q := o.QuantityByType()
	ids := make([]string, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
