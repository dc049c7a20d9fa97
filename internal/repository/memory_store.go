package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
)

// MemoryStore keeps the engine's state in process.  Transactions are
// serialised by a single mutex and rolled back by restoring a snapshot,
// which gives the same all-or-nothing behaviour as the MySQL store for a
// single instance.  It backs STORE=memory and the service tests.
type MemoryStore struct {
	clock clock.Clock

	mu           sync.Mutex
	events       map[string]model.Event
	types        map[string]model.TicketType
	reservations map[string]model.Reservation
	orders       map[string]model.Order
	tickets      map[string]model.Ticket
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryStore{
		clock:        clk,
		events:       map[string]model.Event{},
		types:        map[string]model.TicketType{},
		reservations: map[string]model.Reservation{},
		orders:       map[string]model.Order{},
		tickets:      map[string]model.Ticket{},
	}
}

type memTxKey struct{}

type memSnapshot struct {
	events       map[string]model.Event
	types        map[string]model.TicketType
	reservations map[string]model.Reservation
	orders       map[string]model.Order
	tickets      map[string]model.Ticket
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*MemoryStore)
	return owner == s
}

// guard locks the store unless ctx already runs inside one of its
// transactions.  Use as defer s.guard(ctx)().
func (s *MemoryStore) guard(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := memSnapshot{
		events:       cloneMap(s.events),
		types:        cloneMap(s.types),
		reservations: cloneMap(s.reservations),
		orders:       cloneMap(s.orders),
		tickets:      cloneMap(s.tickets),
	}
	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.events = snap.events
		s.types = snap.types
		s.reservations = snap.reservations
		s.orders = snap.orders
		s.tickets = snap.tickets
		return err
	}
	return nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) Now(context.Context) (time.Time, error) {
	return s.clock.Now().UTC(), nil
}

// UpsertCatalog inserts or updates events and ticket types.  Existing
// ticket types keep their sold count.
func (s *MemoryStore) UpsertCatalog(ctx context.Context, events []model.Event, types []model.TicketType) error {
	return s.WithTx(ctx, func(context.Context) error {
		return s.upsertCatalogLocked(events, types)
	})
}

func (s *MemoryStore) upsertCatalogLocked(events []model.Event, types []model.TicketType) error {
	now := s.clock.Now().UTC()
	for _, ev := range events {
		if old, ok := s.events[ev.ID]; ok {
			ev.CreatedAt = old.CreatedAt
		} else {
			ev.CreatedAt = now
		}
		s.events[ev.ID] = ev
	}
	for _, tt := range types {
		if _, ok := s.events[tt.EventID]; !ok {
			return fmt.Errorf("ticket type %s: %w", tt.ID, model.ErrEventNotFound)
		}
		if old, ok := s.types[tt.ID]; ok {
			tt.Sold = old.Sold
			tt.CreatedAt = old.CreatedAt
		} else {
			tt.CreatedAt = now
		}
		if tt.Sold > tt.Capacity {
			return fmt.Errorf("ticket type %s: capacity %d below sold %d: %w", tt.ID, tt.Capacity, tt.Sold, model.ErrInvalidState)
		}
		tt.UpdatedAt = now
		s.types[tt.ID] = tt
	}
	return nil
}

func (s *MemoryStore) GetTicketType(ctx context.Context, id string) (model.TicketType, error) {
	defer s.guard(ctx)()
	tt, ok := s.types[id]
	if !ok {
		return model.TicketType{}, model.ErrTicketTypeNotFound
	}
	return tt, nil
}

// GetTicketTypeForUpdate is GetTicketType; the transaction mutex already
// excludes every other writer.
func (s *MemoryStore) GetTicketTypeForUpdate(ctx context.Context, id string) (model.TicketType, error) {
	return s.GetTicketType(ctx, id)
}

func (s *MemoryStore) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]model.TicketType, error) {
	defer s.guard(ctx)()
	var out []model.TicketType
	for _, tt := range s.types {
		if tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) HeldQuantity(ctx context.Context, ticketTypeID string, now time.Time) (int, int, error) {
	defer s.guard(ctx)()
	reserved, pending := 0, 0
	for _, r := range s.reservations {
		if r.TicketTypeID == ticketTypeID && r.Status == model.ReservationActive && !r.ExpiresAt.Before(now) {
			reserved += r.Quantity
		}
	}
	for _, o := range s.orders {
		if !o.Status.Unsettled() {
			continue
		}
		for _, it := range o.Items {
			if it.TicketTypeID == ticketTypeID {
				pending += it.Quantity
			}
		}
	}
	return reserved, pending, nil
}

func (s *MemoryStore) AddSold(ctx context.Context, ticketTypeID string, delta int) error {
	defer s.guard(ctx)()
	tt, ok := s.types[ticketTypeID]
	if !ok {
		return model.ErrTicketTypeNotFound
	}
	sold := tt.Sold + delta
	if sold < 0 || sold > tt.Capacity {
		return fmt.Errorf("ticket type %s: sold %d%+d outside [0, %d]: %w", tt.ID, tt.Sold, delta, tt.Capacity, model.ErrInvalidState)
	}
	tt.Sold = sold
	tt.UpdatedAt = s.clock.Now().UTC()
	s.types[tt.ID] = tt
	return nil
}

func (s *MemoryStore) CreateReservations(ctx context.Context, rs []model.Reservation) error {
	defer s.guard(ctx)()
	for _, r := range rs {
		if _, ok := s.types[r.TicketTypeID]; !ok {
			return model.ErrTicketTypeNotFound
		}
		if _, dup := s.reservations[r.ID]; dup {
			return fmt.Errorf("reservation %s: duplicate id", r.ID)
		}
	}
	for _, r := range rs {
		s.reservations[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	defer s.guard(ctx)()
	r, ok := s.reservations[id]
	if !ok {
		return model.Reservation{}, model.ErrReservationNotFound
	}
	return r, nil
}

func (s *MemoryStore) GetReservationForUpdate(ctx context.Context, id string) (model.Reservation, error) {
	return s.GetReservation(ctx, id)
}

func (s *MemoryStore) ListReservationsBySession(ctx context.Context, sessionID string, limit int) ([]model.Reservation, error) {
	defer s.guard(ctx)()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) TransitionReservation(ctx context.Context, id string, from, to model.ReservationStatus, now time.Time) (bool, error) {
	defer s.guard(ctx)()
	r, ok := s.reservations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = now
	s.reservations[id] = r
	return true, nil
}

func (s *MemoryStore) UpdateReservationExpiry(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	defer s.guard(ctx)()
	r, ok := s.reservations[id]
	if !ok || r.Status != model.ReservationActive {
		return false, nil
	}
	r.ExpiresAt = expiresAt
	r.UpdatedAt = now
	s.reservations[id] = r
	return true, nil
}

func (s *MemoryStore) ExpireReservation(ctx context.Context, id string, now time.Time) (bool, error) {
	defer s.guard(ctx)()
	r, ok := s.reservations[id]
	if !ok || r.Status != model.ReservationActive || !r.ExpiresAt.Before(now) {
		return false, nil
	}
	r.Status = model.ReservationExpired
	r.UpdatedAt = now
	s.reservations[id] = r
	return true, nil
}

func (s *MemoryStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	defer s.guard(ctx)()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.Status == model.ReservationActive && r.ExpiresAt.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o model.Order) error {
	defer s.guard(ctx)()
	if _, dup := s.orders[o.ID]; dup {
		return fmt.Errorf("order %s: duplicate id", o.ID)
	}
	for _, it := range o.Items {
		for _, existing := range s.orders {
			for _, other := range existing.Items {
				if other.ReservationID == it.ReservationID {
					return fmt.Errorf("reservation %s already has an order: %w", it.ReservationID, model.ErrAlreadyConverted)
				}
			}
		}
	}
	o.Items = append([]model.OrderItem(nil), o.Items...)
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) CreateTickets(ctx context.Context, ts []model.Ticket) error {
	defer s.guard(ctx)()
	for _, t := range ts {
		if _, ok := s.orders[t.OrderID]; !ok {
			return model.ErrOrderNotFound
		}
	}
	for _, t := range ts {
		s.tickets[t.ID] = t
	}
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	defer s.guard(ctx)()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, model.ErrOrderNotFound
	}
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return o, nil
}

func (s *MemoryStore) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *MemoryStore) TransitionOrder(ctx context.Context, id string, from, to model.OrderStatus, now time.Time) (bool, error) {
	defer s.guard(ctx)()
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = now
	s.orders[id] = o
	return true, nil
}

func (s *MemoryStore) ExpireOrder(ctx context.Context, id string, cutoff, now time.Time) (bool, error) {
	defer s.guard(ctx)()
	o, ok := s.orders[id]
	if !ok || o.Status != model.OrderPending || !o.CreatedAt.Before(cutoff) {
		return false, nil
	}
	o.Status = model.OrderExpired
	o.UpdatedAt = now
	s.orders[id] = o
	return true, nil
}

func (s *MemoryStore) ListStaleOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	defer s.guard(ctx)()
	var stale []model.Order
	for _, o := range s.orders {
		if o.Status == model.OrderPending && o.CreatedAt.Before(cutoff) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].CreatedAt.Equal(stale[j].CreatedAt) {
			return stale[i].CreatedAt.Before(stale[j].CreatedAt)
		}
		return stale[i].ID < stale[j].ID
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]string, 0, len(stale))
	for _, o := range stale {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func (s *MemoryStore) ListTickets(ctx context.Context, orderID string) ([]model.Ticket, error) {
	defer s.guard(ctx)()
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateTicketStatuses(ctx context.Context, orderID string, from, to model.TicketStatus, now time.Time) (int, error) {
	defer s.guard(ctx)()
	n := 0
	for id, t := range s.tickets {
		if t.OrderID == orderID && t.Status == from {
			t.Status = to
			t.UpdatedAt = now
			s.tickets[id] = t
			n++
		}
	}
	return n, nil
}
