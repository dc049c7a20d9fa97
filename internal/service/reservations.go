package service

import (
	"context"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ReservationManager owns the lifecycle of holds: creation through the
// ledger, then extension, cancellation and lookup by the holding session.
type ReservationManager struct {
	store  Store
	ledger *Ledger
	policy config.Policy
	opts   options
}

func NewReservationManager(store Store, ledger *Ledger, policy config.Policy, opts ...Option) *ReservationManager {
	return &ReservationManager{store: store, ledger: ledger, policy: policy, opts: buildOptions(opts)}
}

// BulkItem is one line of a bulk hold request.
type BulkItem struct {
	TicketTypeID string
	Quantity     int
}

// ReservationView is a reservation as seen by its holder at a given
// instant.
type ReservationView struct {
	model.Reservation
	RemainingSeconds int
	IsExpired        bool
}

// Create holds quantity units of a ticket type.  A ttlMinutes of zero
// selects the policy default.
func (m *ReservationManager) Create(ctx context.Context, sessionID, ticketTypeID string, quantity, ttlMinutes int) (model.Reservation, error) {
	if quantity < 1 || quantity > m.policy.MaxQuantity {
		return model.Reservation{}, model.ErrQuantityOutOfRange
	}
	ttl, err := m.holdTTL(ttlMinutes)
	if err != nil {
		return model.Reservation{}, err
	}
	return m.ledger.TryReserve(ctx, HoldRequest{
		SessionID:    sessionID,
		TicketTypeID: ticketTypeID,
		Quantity:     quantity,
		TTL:          ttl,
	})
}

// CreateBulk holds several ticket types in one transaction.  Either every
// item is reserved or none is.  The per-request maximum applies to the
// total quantity across items.
func (m *ReservationManager) CreateBulk(ctx context.Context, sessionID string, items []BulkItem, ttlMinutes int) ([]model.Reservation, error) {
	if len(items) == 0 {
		return nil, model.ErrQuantityOutOfRange
	}
	ttl, err := m.holdTTL(ttlMinutes)
	if err != nil {
		return nil, err
	}
	total := 0
	reqs := make([]HoldRequest, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, model.ErrQuantityOutOfRange
		}
		total += it.Quantity
		reqs = append(reqs, HoldRequest{
			SessionID:    sessionID,
			TicketTypeID: it.TicketTypeID,
			Quantity:     it.Quantity,
			TTL:          ttl,
		})
	}
	if total > m.policy.MaxQuantity {
		return nil, model.ErrQuantityOutOfRange
	}
	return m.ledger.TryReserveMany(ctx, reqs)
}

// Get returns the reservation with its remaining lifetime.  A reservation
// held by another session yields ErrForbidden; transports must not
// distinguish that from ErrNotFound.
func (m *ReservationManager) Get(ctx context.Context, id, sessionID string) (ReservationView, error) {
	r, err := m.store.GetReservation(ctx, id)
	if err != nil {
		return ReservationView{}, err
	}
	if r.SessionID != sessionID {
		return ReservationView{}, model.ErrForbidden
	}
	now, err := m.store.Now(ctx)
	if err != nil {
		return ReservationView{}, err
	}
	return viewAt(r, now), nil
}

func viewAt(r model.Reservation, now time.Time) ReservationView {
	v := ReservationView{Reservation: r}
	switch r.Status {
	case model.ReservationExpired:
		v.IsExpired = true
	case model.ReservationActive:
		v.IsExpired = r.ExpiredAt(now)
		if rem := r.ExpiresAt.Sub(now); rem > 0 {
			v.RemainingSeconds = int(rem / time.Second)
		}
	}
	return v
}

// ListBySession returns the session's reservations, newest first.
func (m *ReservationManager) ListBySession(ctx context.Context, sessionID string, limit int) ([]ReservationView, error) {
	if sessionID == "" {
		return nil, model.ErrForbidden
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rs, err := m.store.ListReservationsBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	now, err := m.store.Now(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ReservationView, 0, len(rs))
	for _, r := range rs {
		out = append(out, viewAt(r, now))
	}
	return out, nil
}

// Cancel releases an ACTIVE hold.  Nothing was sold, so only the status
// changes.
func (m *ReservationManager) Cancel(ctx context.Context, id, sessionID string) (model.Reservation, error) {
	var out model.Reservation
	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := m.lockOwned(ctx, id, sessionID)
		if err != nil {
			return err
		}
		if r.Status != model.ReservationActive {
			return model.ErrNotActive
		}
		now, err := m.store.Now(ctx)
		if err != nil {
			return err
		}
		ok, err := m.store.TransitionReservation(ctx, r.ID, model.ReservationActive, model.ReservationCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNotActive
		}
		r.Status = model.ReservationCancelled
		r.UpdatedAt = now
		out = r
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	m.opts.metrics.ReservationTransition(string(model.ReservationCancelled))
	return out, nil
}

// Extend pushes expires_at out by additionalMinutes.  The hold must be
// ACTIVE and not yet expired, and its total lifetime stays within
// policy.
func (m *ReservationManager) Extend(ctx context.Context, id, sessionID string, additionalMinutes int) (model.Reservation, error) {
	add := time.Duration(additionalMinutes) * time.Minute
	if additionalMinutes < 1 || add > m.policy.MaxExtension {
		return model.Reservation{}, model.ErrTTLOutOfRange
	}
	var out model.Reservation
	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := m.lockOwned(ctx, id, sessionID)
		if err != nil {
			return err
		}
		if r.Status != model.ReservationActive {
			return model.ErrNotActive
		}
		if _, err := lockTicketTypes(ctx, m.store, []string{r.TicketTypeID}); err != nil {
			return err
		}
		now, err := m.store.Now(ctx)
		if err != nil {
			return err
		}
		if r.ExpiredAt(now) {
			return model.ErrExpiredHold
		}
		expiresAt := r.ExpiresAt.Add(add)
		if expiresAt.Sub(r.CreatedAt) > m.policy.MaxHoldLifetime {
			return model.ErrTTLOutOfRange
		}
		ok, err := m.store.UpdateReservationExpiry(ctx, r.ID, expiresAt, now)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNotActive
		}
		r.ExpiresAt = expiresAt
		r.UpdatedAt = now
		out = r
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return out, nil
}

func (m *ReservationManager) lockOwned(ctx context.Context, id, sessionID string) (model.Reservation, error) {
	r, err := m.store.GetReservationForUpdate(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if r.SessionID != sessionID {
		return model.Reservation{}, model.ErrForbidden
	}
	return r, nil
}

func (m *ReservationManager) holdTTL(minutes int) (time.Duration, error) {
	if minutes == 0 {
		return m.policy.DefaultTTL, nil
	}
	ttl := time.Duration(minutes) * time.Minute
	if minutes < 0 || ttl > m.policy.MaxTTL {
		return 0, model.ErrTTLOutOfRange
	}
	return ttl, nil
}
