package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// HoldRequest asks the ledger for Quantity units of one ticket type for
// TTL.  Range checks against policy belong to the caller; the ledger only
// rejects values that can never be valid.
type HoldRequest struct {
	SessionID    string
	TicketTypeID string
	Quantity     int
	TTL          time.Duration
}

// Ledger is the only place that decides whether capacity is available.
// The check and the insert of the resulting reservation happen in one
// transaction under the ticket type's row lock.
type Ledger struct {
	store Store
	opts  options
}

func NewLedger(store Store, opts ...Option) *Ledger {
	return &Ledger{store: store, opts: buildOptions(opts)}
}

// TryReserve atomically checks availability and records an ACTIVE
// reservation.  On rejection nothing is written and the error is an
// *model.InsufficientInventoryError.
func (l *Ledger) TryReserve(ctx context.Context, req HoldRequest) (model.Reservation, error) {
	rs, err := l.reserve(ctx, []HoldRequest{req}, "")
	if err != nil {
		return model.Reservation{}, err
	}
	return rs[0], nil
}

// TryReserveMany reserves every request or none of them.  Ticket types
// are locked in ascending ID order so that concurrent multi-type
// requests cannot deadlock.  Reservations are returned in request order
// and share a GroupID.
func (l *Ledger) TryReserveMany(ctx context.Context, reqs []HoldRequest) ([]model.Reservation, error) {
	if len(reqs) == 0 {
		return nil, model.ErrQuantityOutOfRange
	}
	group := ""
	if len(reqs) > 1 {
		group = newID()
	}
	return l.reserve(ctx, reqs, group)
}

func (l *Ledger) reserve(ctx context.Context, reqs []HoldRequest, group string) ([]model.Reservation, error) {
	for _, r := range reqs {
		switch {
		case r.SessionID == "":
			return nil, model.ErrForbidden
		case r.Quantity < 1:
			return nil, model.ErrQuantityOutOfRange
		case r.TTL <= 0:
			return nil, model.ErrTTLOutOfRange
		}
	}

	var out []model.Reservation
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		ids := make([]string, 0, len(reqs))
		for _, r := range reqs {
			ids = append(ids, r.TicketTypeID)
		}
		types, err := lockTicketTypes(ctx, l.store, ids)
		if err != nil {
			return err
		}
		now, err := l.store.Now(ctx)
		if err != nil {
			return err
		}
		held := make(map[string]int, len(types))
		for id := range types {
			reserved, pending, err := l.store.HeldQuantity(ctx, id, now)
			if err != nil {
				return err
			}
			held[id] = reserved + pending
		}

		out = make([]model.Reservation, 0, len(reqs))
		for _, r := range reqs {
			tt := types[r.TicketTypeID]
			available := model.ComputeAvailable(tt.Capacity, tt.Sold, held[tt.ID], 0)
			if r.Quantity > available {
				return &model.InsufficientInventoryError{
					TicketTypeID: tt.ID,
					Requested:    r.Quantity,
					Available:    available,
				}
			}
			held[tt.ID] += r.Quantity
			out = append(out, model.Reservation{
				ID:           newID(),
				GroupID:      group,
				SessionID:    r.SessionID,
				TicketTypeID: tt.ID,
				Quantity:     r.Quantity,
				UnitPrice:    tt.Price,
				Status:       model.ReservationActive,
				CreatedAt:    now,
				ExpiresAt:    now.Add(r.TTL),
				UpdatedAt:    now,
			})
		}
		return l.store.CreateReservations(ctx, out)
	})
	if err != nil {
		if errors.Is(err, model.ErrInsufficientInventory) {
			l.opts.metrics.ReservationRequest("insufficient_inventory", len(reqs))
		} else {
			l.opts.metrics.ReservationRequest("rejected", len(reqs))
		}
		return nil, err
	}
	l.opts.metrics.ReservationRequest("created", len(out))
	return out, nil
}

// Summary reports per ticket type accounting for an event.  The numbers
// are a snapshot for display and may be stale by the time they are read.
func (l *Ledger) Summary(ctx context.Context, eventID string) ([]model.InventorySummary, error) {
	types, err := l.store.ListTicketTypesByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, model.ErrEventNotFound
	}
	now, err := l.store.Now(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.InventorySummary, 0, len(types))
	for _, tt := range types {
		reserved, pending, err := l.store.HeldQuantity(ctx, tt.ID, now)
		if err != nil {
			return nil, err
		}
		out = append(out, model.InventorySummary{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Capacity:     tt.Capacity,
			Sold:         tt.Sold,
			Reserved:     reserved,
			Pending:      pending,
			Available:    model.ComputeAvailable(tt.Capacity, tt.Sold, reserved, pending),
		})
	}
	return out, nil
}

// lockTicketTypes row-locks the distinct ticket types in ids in ascending
// ID order.  Every transaction that decides on capacity takes these locks
// in this order and reads the clock only once they are granted.
func lockTicketTypes(ctx context.Context, store Store, ids []string) (map[string]model.TicketType, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	types := make(map[string]model.TicketType, len(sorted))
	for _, id := range sorted {
		if _, ok := types[id]; ok {
			continue
		}
		tt, err := store.GetTicketTypeForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		types[id] = tt
	}
	return types, nil
}
