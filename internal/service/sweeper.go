package service

import (
	"context"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
)

// Locker elects a single sweeping instance per interval.  A lock taken
// with TryLock is never released; it lapses after ttl.  Correctness never
// depends on it; it only saves duplicate work.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
}

// SweepReport counts what one pass did.
type SweepReport struct {
	ReservationsExpired int `json:"reservationsExpired"`
	ReservationsFailed  int `json:"reservationsFailed"`
	OrdersExpired       int `json:"ordersExpired"`
	OrdersFailed        int `json:"ordersFailed"`
	TicketsCancelled    int `json:"ticketsCancelled"`
}

func (r SweepReport) empty() bool { return r == SweepReport{} }

// Sweeper returns inventory held by abandoned holds and unpaid orders.
// Every record is moved in its own transaction with a status-guarded
// update, so overlapping passes and concurrent user operations are
// harmless.
type Sweeper struct {
	store  Store
	policy config.Policy
	locker Locker
	opts   options
}

func NewSweeper(store Store, policy config.Policy, locker Locker, opts ...Option) *Sweeper {
	return &Sweeper{store: store, policy: policy, locker: locker, opts: buildOptions(opts)}
}

// Sweep runs one pass: expired ACTIVE reservations first, then PENDING
// orders older than the policy's order expiry age.  Orders awaiting
// manual verification are left alone.  Per-record failures are logged
// and counted; only failures to list candidates abort the pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	defer func() { s.opts.metrics.SweepDuration(time.Since(start)) }()

	var rep SweepReport
	now, err := s.store.Now(ctx)
	if err != nil {
		return rep, err
	}
	if err := s.sweepReservations(ctx, now, &rep); err != nil {
		return rep, err
	}
	if err := s.sweepOrders(ctx, now.Add(-s.policy.OrderExpiryAge), &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func (s *Sweeper) sweepReservations(ctx context.Context, now time.Time, rep *SweepReport) error {
	for {
		batch, err := s.store.ListExpiredReservations(ctx, now, s.policy.SweepBatchSize)
		if err != nil {
			return err
		}
		progressed := false
		for _, r := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed, at, err := s.expireReservation(ctx, r.ID)
			if err != nil {
				rep.ReservationsFailed++
				s.opts.metrics.SweepRecord("reservation", "failed")
				s.opts.logger.Error("sweep: expire reservation failed", "reservation_id", r.ID, "err", err)
				continue
			}
			if !changed {
				continue
			}
			progressed = true
			rep.ReservationsExpired++
			s.opts.metrics.SweepRecord("reservation", "expired")
			s.opts.metrics.ReservationTransition(string(model.ReservationExpired))
			s.opts.publishExpired(ctx, queue.ReservationExpiredEvent{
				ReservationID: r.ID,
				SessionID:     r.SessionID,
				TicketTypeID:  r.TicketTypeID,
				Quantity:      r.Quantity,
				ExpiredAt:     at.Format(time.RFC3339Nano),
			})
		}
		if len(batch) < s.policy.SweepBatchSize || !progressed {
			return nil
		}
	}
}

func (s *Sweeper) expireReservation(ctx context.Context, id string) (bool, time.Time, error) {
	var (
		changed bool
		at      time.Time
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		now, err := s.store.Now(ctx)
		if err != nil {
			return err
		}
		at = now
		changed, err = s.store.ExpireReservation(ctx, id, now)
		return err
	})
	return changed, at, err
}

func (s *Sweeper) sweepOrders(ctx context.Context, cutoff time.Time, rep *SweepReport) error {
	for {
		ids, err := s.store.ListStaleOrderIDs(ctx, cutoff, s.policy.SweepBatchSize)
		if err != nil {
			return err
		}
		progressed := false
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed, cancelled, err := s.expireOrder(ctx, id, cutoff)
			if err != nil {
				rep.OrdersFailed++
				s.opts.metrics.SweepRecord("order", "failed")
				s.opts.logger.Error("sweep: expire order failed", "order_id", id, "err", err)
				continue
			}
			if !changed {
				continue
			}
			progressed = true
			rep.OrdersExpired++
			rep.TicketsCancelled += cancelled
			s.opts.metrics.SweepRecord("order", "expired")
		}
		if len(ids) < s.policy.SweepBatchSize || !progressed {
			return nil
		}
	}
}

// expireOrder moves one stale PENDING order to EXPIRED and cancels its
// tickets.  Its units stop counting as held the moment the status
// changes; sold was never incremented for it.
func (s *Sweeper) expireOrder(ctx context.Context, id string, cutoff time.Time) (bool, int, error) {
	var (
		changed   bool
		cancelled int
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		now, err := s.store.Now(ctx)
		if err != nil {
			return err
		}
		changed, err = s.store.ExpireOrder(ctx, id, cutoff, now)
		if err != nil || !changed {
			return err
		}
		cancelled, err = s.store.UpdateTicketStatuses(ctx, id, model.TicketPending, model.TicketCancelled, now)
		return err
	})
	return changed, cancelled, err
}

// Run sweeps immediately and then every interval until ctx is done.  When
// a Locker is configured only the instance holding the lock sweeps.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx, interval)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context, interval time.Duration) {
	if s.locker != nil {
		// Slightly shorter than the interval so the holder can take it
		// again on its next tick.
		ok, err := s.locker.TryLock(ctx, interval-interval/10)
		if err != nil {
			s.opts.logger.Warn("sweep: lock unavailable, sweeping anyway", "err", err)
		} else if !ok {
			return
		}
	}
	rep, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.opts.logger.Error("sweep failed", "err", err)
		}
		return
	}
	if !rep.empty() {
		s.opts.logger.Info("sweep finished",
			"reservations_expired", rep.ReservationsExpired,
			"reservations_failed", rep.ReservationsFailed,
			"orders_expired", rep.OrdersExpired,
			"orders_failed", rep.OrdersFailed,
			"tickets_cancelled", rep.TicketsCancelled,
		)
	}
}
