package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

var testStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu      sync.Mutex
	settled []queue.OrderSettledEvent
	expired []queue.ReservationExpiredEvent
}

func (p *fakePublisher) PublishOrderSettled(_ context.Context, ev queue.OrderSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, ev)
	return nil
}

func (p *fakePublisher) PublishReservationExpired(_ context.Context, ev queue.ReservationExpiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, ev)
	return nil
}

type engine struct {
	store        *repository.MemoryStore
	clock        *clock.Fake
	policy       config.Policy
	pub          *fakePublisher
	ledger       *service.Ledger
	reservations *service.ReservationManager
	converter    *service.Converter
	settlement   *service.Settlement
	sweeper      *service.Sweeper
}

type typeSpec struct {
	id       string
	capacity int
	price    int64
}

func newEngine(t *testing.T, types ...typeSpec) *engine {
	t.Helper()
	clk := clock.NewFake(testStart)
	store := repository.NewMemoryStore(clk)

	tts := make([]model.TicketType, 0, len(types))
	for _, ts := range types {
		tts = append(tts, model.TicketType{
			ID:       ts.id,
			EventID:  "ev-1",
			Name:     ts.id,
			Capacity: ts.capacity,
			Price:    decimal.NewFromInt(ts.price),
		})
	}
	if err := store.UpsertCatalog(context.Background(), []model.Event{{ID: "ev-1", Name: "Concert", StartsAt: testStart.Add(72 * time.Hour)}}, tts); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	policy := config.DefaultPolicy()
	pub := &fakePublisher{}
	opts := []service.Option{service.WithPublisher(pub)}
	ledger := service.NewLedger(store, opts...)
	return &engine{
		store:        store,
		clock:        clk,
		policy:       policy,
		pub:          pub,
		ledger:       ledger,
		reservations: service.NewReservationManager(store, ledger, policy, opts...),
		converter:    service.NewConverter(store, opts...),
		settlement:   service.NewSettlement(store, opts...),
		sweeper:      service.NewSweeper(store, policy, nil, opts...),
	}
}

func (e *engine) ticketType(t *testing.T, id string) model.TicketType {
	t.Helper()
	tt, err := e.store.GetTicketType(context.Background(), id)
	if err != nil {
		t.Fatalf("get ticket type %s: %v", id, err)
	}
	return tt
}

func (e *engine) available(t *testing.T, id string) int {
	t.Helper()
	sums, err := e.ledger.Summary(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, s := range sums {
		if s.TicketTypeID == id {
			return s.Available
		}
	}
	t.Fatalf("ticket type %s missing from summary", id)
	return 0
}

// assertInvariant checks sold + reserved + pending <= capacity for every
// ticket type.
func (e *engine) assertInvariant(t *testing.T) {
	t.Helper()
	sums, err := e.ledger.Summary(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, s := range sums {
		if s.Sold+s.Reserved+s.Pending > s.Capacity {
			t.Fatalf("capacity invariant violated for %s: %+v", s.TicketTypeID, s)
		}
	}
}

func holders(n int) []service.Holder {
	hs := make([]service.Holder, n)
	for i := range hs {
		hs[i] = service.Holder{Name: "Holder", Email: "holder@example.com"}
	}
	return hs
}
