package service_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// slowLockStore records lock and clock reads and lets the clock run on
// while a reservation row lock is being acquired.
type slowLockStore struct {
	*repository.MemoryStore
	clock *clock.Fake
	wait  time.Duration
	calls []string
}

func (s *slowLockStore) GetReservationForUpdate(ctx context.Context, id string) (model.Reservation, error) {
	s.calls = append(s.calls, "reservation")
	s.clock.Advance(s.wait)
	return s.MemoryStore.GetReservationForUpdate(ctx, id)
}

func (s *slowLockStore) GetTicketTypeForUpdate(ctx context.Context, id string) (model.TicketType, error) {
	s.calls = append(s.calls, "ticket_type")
	return s.MemoryStore.GetTicketTypeForUpdate(ctx, id)
}

func (s *slowLockStore) Now(ctx context.Context) (time.Time, error) {
	s.calls = append(s.calls, "now")
	return s.MemoryStore.Now(ctx)
}

type slowEngine struct {
	store        *slowLockStore
	ledger       *service.Ledger
	reservations *service.ReservationManager
	converter    *service.Converter
}

func newSlowEngine(t *testing.T) *slowEngine {
	t.Helper()
	e := newEngine(t, typeSpec{id: "tt-1", capacity: 4, price: 10})
	ss := &slowLockStore{MemoryStore: e.store, clock: e.clock}
	ledger := service.NewLedger(ss)
	return &slowEngine{
		store:        ss,
		ledger:       ledger,
		reservations: service.NewReservationManager(ss, ledger, e.policy),
		converter:    service.NewConverter(ss),
	}
}

// holdExpiringDuringLockWait creates a one minute hold, moves to one
// second before it expires and makes the next row lock take two minutes.
func (se *slowEngine) holdExpiringDuringLockWait(t *testing.T) model.Reservation {
	t.Helper()
	r, err := se.reservations.Create(context.Background(), "s-1", "tt-1", 4, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	se.store.clock.Set(r.ExpiresAt.Add(-time.Second))
	se.store.wait = 2 * time.Minute
	se.store.calls = nil
	return r
}

func TestConvert_JudgesExpiryAfterLocks(t *testing.T) {
	ctx := context.Background()
	se := newSlowEngine(t)
	r := se.holdExpiringDuringLockWait(t)

	_, err := se.converter.Convert(ctx, service.ConvertInput{ReservationID: r.ID, SessionID: "s-1", Holders: holders(4)})
	if !errors.Is(err, model.ErrExpiredHold) {
		t.Fatalf("expected ErrExpiredHold once the lock wait outlived the hold, got %v", err)
	}
	got, err := se.store.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if got.Status != model.ReservationActive {
		t.Fatalf("expected rejected conversion to leave the hold ACTIVE, got %s", got.Status)
	}

	// The ledger no longer counts the hold, so a new buyer can take the
	// units without them also sitting in a pending order.
	se.store.wait = 0
	if _, err := se.reservations.Create(ctx, "s-2", "tt-1", 4, 5); err != nil {
		t.Fatalf("expected released units to be reservable, got %v", err)
	}
	sums, err := se.ledger.Summary(ctx, "ev-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s := sums[0]; s.Reserved+s.Pending+s.Sold > s.Capacity {
		t.Fatalf("capacity invariant violated: %+v", s)
	}
}

func TestExtend_JudgesExpiryAfterLocks(t *testing.T) {
	ctx := context.Background()
	se := newSlowEngine(t)
	r := se.holdExpiringDuringLockWait(t)

	if _, err := se.reservations.Extend(ctx, r.ID, "s-1", 5); !errors.Is(err, model.ErrExpiredHold) {
		t.Fatalf("expected ErrExpiredHold, got %v", err)
	}
	got, err := se.store.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if !got.ExpiresAt.Equal(r.ExpiresAt) {
		t.Fatalf("expected expiry to stay %v, got %v", r.ExpiresAt, got.ExpiresAt)
	}
}

func TestCapacityDecisionsLockTicketTypeBeforeClock(t *testing.T) {
	ctx := context.Background()

	t.Run("convert", func(t *testing.T) {
		se := newSlowEngine(t)
		r, err := se.reservations.Create(ctx, "s-1", "tt-1", 1, 5)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		se.store.calls = nil
		if _, err := se.converter.Convert(ctx, service.ConvertInput{ReservationID: r.ID, SessionID: "s-1", Holders: holders(1)}); err != nil {
			t.Fatalf("convert: %v", err)
		}
		want := []string{"reservation", "ticket_type", "now"}
		if !reflect.DeepEqual(se.store.calls, want) {
			t.Fatalf("expected %v, got %v", want, se.store.calls)
		}
	})

	t.Run("extend", func(t *testing.T) {
		se := newSlowEngine(t)
		r, err := se.reservations.Create(ctx, "s-1", "tt-1", 1, 5)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		se.store.calls = nil
		if _, err := se.reservations.Extend(ctx, r.ID, "s-1", 1); err != nil {
			t.Fatalf("extend: %v", err)
		}
		want := []string{"reservation", "ticket_type", "now"}
		if !reflect.DeepEqual(se.store.calls, want) {
			t.Fatalf("expected %v, got %v", want, se.store.calls)
		}
	})

	t.Run("reserve", func(t *testing.T) {
		se := newSlowEngine(t)
		if _, err := se.ledger.TryReserve(ctx, service.HoldRequest{SessionID: "s-1", TicketTypeID: "tt-1", Quantity: 1, TTL: time.Minute}); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		want := []string{"ticket_type", "now"}
		if !reflect.DeepEqual(se.store.calls, want) {
			t.Fatalf("expected %v, got %v", want, se.store.calls)
		}
	})
}
