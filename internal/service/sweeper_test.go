package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

func TestSweeper_ExpiresReservations(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, typeSpec{id: "tt-1", capacity: 5, price: 10})

	short, err := e.reservations.Create(ctx, "s-1", "tt-1", 2, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	long, err := e.reservations.Create(ctx, "s-1", "tt-1", 1, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e.clock.Advance(time.Minute)
	rep, err := e.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.ReservationsExpired != 0 {
		t.Fatalf("a hold at its exact expiry instant is still valid, report %+v", rep)
	}

	e.clock.Advance(time.Second)
	rep, err = e.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.ReservationsExpired != 1 {
		t.Fatalf("expected 1 expired reservation, got %+v", rep)
	}
	if got, _ := e.store.GetReservation(ctx, short.ID); got.Status != model.ReservationExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
	if got, _ := e.store.GetReservation(ctx, long.ID); got.Status != model.ReservationActive {
		t.Fatalf("unexpired hold must stay ACTIVE, got %s", got.Status)
	}
	if avail := e.available(t, "tt-1"); avail != 4 {
		t.Fatalf("expected 4 available, got %d", avail)
	}
	if len(e.pub.expired) != 1 || e.pub.expired[0].ReservationID != short.ID || e.pub.expired[0].Quantity != 2 {
		t.Fatalf("expected one expired event, got %+v", e.pub.expired)
	}

	rep, err = e.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep != (service.SweepReport{}) {
		t.Fatalf("second pass must find nothing, got %+v", rep)
	}
	if _, err := e.reservations.Cancel(ctx, short.ID, "s-1"); !errors.Is(err, model.ErrNotActive) {
		t.Fatalf("expired hold cannot be cancelled, got %v", err)
	}
}

func TestSweeper_ExpiresStaleOrders(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, typeSpec{id: "tt-1", capacity: 10, price: 10})

	stale := pendingOrder(t, e, 2)
	parked := pendingOrder(t, e, 1)
	if _, err := e.settlement.MarkAwaitingVerification(ctx, parked.ID); err != nil {
		t.Fatalf("mark awaiting: %v", err)
	}

	e.clock.Advance(e.policy.OrderExpiryAge - time.Second)
	fresh := pendingOrder(t, e, 1)
	e.clock.Advance(2 * time.Second)

	rep, err := e.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.OrdersExpired != 1 || rep.TicketsCancelled != 2 {
		t.Fatalf("expected one stale order with 2 tickets, got %+v", rep)
	}

	for id, want := range map[string]model.OrderStatus{
		stale.ID:  model.OrderExpired,
		parked.ID: model.OrderAwaitingVerification,
		fresh.ID:  model.OrderPending,
	} {
		o, err := e.store.GetOrder(ctx, id)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if o.Status != want {
			t.Fatalf("order %s: expected %s, got %s", id, want, o.Status)
		}
	}
	if tt := e.ticketType(t, "tt-1"); tt.Sold != 0 {
		t.Fatalf("order expiry must not touch sold, got %d", tt.Sold)
	}
	if avail := e.available(t, "tt-1"); avail != 8 {
		t.Fatalf("expected 8 available, got %d", avail)
	}

	if _, err := e.settlement.Settle(ctx, stale.ID, service.OutcomeSuccess); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("expired order cannot settle, got %v", err)
	}
}

func TestSweeper_BatchesUntilDrained(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, typeSpec{id: "tt-1", capacity: 20, price: 10})
	policy := e.policy
	policy.SweepBatchSize = 2
	sw := service.NewSweeper(e.store, policy, nil)

	for i := 0; i < 5; i++ {
		if _, err := e.reservations.Create(ctx, "s-1", "tt-1", 1, 1); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	e.clock.Advance(2 * time.Minute)

	rep, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.ReservationsExpired != 5 {
		t.Fatalf("expected 5 expired across batches, got %+v", rep)
	}
}

type stubLocker struct {
	ok    bool
	calls int
}

func (l *stubLocker) TryLock(context.Context, time.Duration) (bool, error) {
	l.calls++
	return l.ok, nil
}

func TestSweeper_RunRespectsLock(t *testing.T) {
	e := newEngine(t, typeSpec{id: "tt-1", capacity: 5, price: 10})
	r, err := e.reservations.Create(context.Background(), "s-1", "tt-1", 1, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.clock.Advance(2 * time.Minute)

	locker := &stubLocker{ok: false}
	sw := service.NewSweeper(e.store, e.policy, locker)
	runBriefly := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		sw.Run(ctx, time.Minute)
	}
	runBriefly()

	if locker.calls != 1 {
		t.Fatalf("expected one lock attempt, got %d", locker.calls)
	}
	if got, _ := e.store.GetReservation(context.Background(), r.ID); got.Status != model.ReservationActive {
		t.Fatalf("sweep must be skipped without the lock, got %s", got.Status)
	}

	locker.ok = true
	runBriefly()
	if got, _ := e.store.GetReservation(context.Background(), r.ID); got.Status != model.ReservationExpired {
		t.Fatalf("expected the lock holder to sweep, got %s", got.Status)
	}
}
