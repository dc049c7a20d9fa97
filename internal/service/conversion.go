package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Buyer identifies who pays for an order.
type Buyer struct {
	Name  string
	Email string
}

// Holder is the person a single ticket is issued to.
type Holder struct {
	Name  string
	Email string
}

type ConvertInput struct {
	ReservationID string
	SessionID     string
	Buyer         Buyer
	Holders       []Holder
	PaymentMethod string
}

// ConvertManyInput converts several holds of one session into a single
// order.  Holders are assigned to tickets in reservation order.
type ConvertManyInput struct {
	ReservationIDs []string
	SessionID      string
	Buyer          Buyer
	Holders        []Holder
	PaymentMethod  string
}

// OrderView is an order with its tickets.
type OrderView struct {
	model.Order
	Tickets []model.Ticket
}

// Converter turns ACTIVE holds into PENDING orders.  It never touches
// sold: the order's units stay held until settlement decides them.
type Converter struct {
	store Store
	opts  options
}

func NewConverter(store Store, opts ...Option) *Converter {
	return &Converter{store: store, opts: buildOptions(opts)}
}

// Convert creates a PENDING order with one line item mirroring the
// reservation, one PENDING ticket per unit, and marks the reservation
// CONVERTED.  All checks run against the locked reservation and ticket
// type rows.
func (c *Converter) Convert(ctx context.Context, in ConvertInput) (OrderView, error) {
	return c.ConvertMany(ctx, ConvertManyInput{
		ReservationIDs: []string{in.ReservationID},
		SessionID:      in.SessionID,
		Buyer:          in.Buyer,
		Holders:        in.Holders,
		PaymentMethod:  in.PaymentMethod,
	})
}

// ConvertMany is Convert over several reservations.  Any failing
// reservation aborts the whole conversion.
func (c *Converter) ConvertMany(ctx context.Context, in ConvertManyInput) (OrderView, error) {
	if len(in.ReservationIDs) == 0 {
		return OrderView{}, model.ErrReservationNotFound
	}
	seen := make(map[string]bool, len(in.ReservationIDs))
	for _, id := range in.ReservationIDs {
		if seen[id] {
			return OrderView{}, model.ErrDuplicateHold
		}
		seen[id] = true
	}

	var out OrderView
	err := c.store.WithTx(ctx, func(ctx context.Context) error {
		locked := make(map[string]model.Reservation, len(in.ReservationIDs))
		ordered := append([]string(nil), in.ReservationIDs...)
		sort.Strings(ordered)
		typeIDs := make([]string, 0, len(ordered))
		for _, id := range ordered {
			r, err := c.store.GetReservationForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = r
			typeIDs = append(typeIDs, r.TicketTypeID)
		}
		// Expiry is judged against the clock read after the ticket type
		// locks, the same clock the ledger counts holds with.
		if _, err := lockTicketTypes(ctx, c.store, typeIDs); err != nil {
			return err
		}
		now, err := c.store.Now(ctx)
		if err != nil {
			return err
		}

		total := 0
		for _, id := range in.ReservationIDs {
			r := locked[id]
			if r.SessionID != in.SessionID {
				return model.ErrForbidden
			}
			if err := convertible(r); err != nil {
				return err
			}
			if r.ExpiredAt(now) {
				return model.ErrExpiredHold
			}
			total += r.Quantity
		}
		if len(in.Holders) != total {
			return model.ErrHolderCountMismatch
		}

		order := model.Order{
			ID:            newID(),
			SessionID:     in.SessionID,
			Status:        model.OrderPending,
			Amount:        decimal.Zero,
			PaymentMethod: in.PaymentMethod,
			BuyerName:     in.Buyer.Name,
			BuyerEmail:    in.Buyer.Email,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		tickets := make([]model.Ticket, 0, total)
		next := 0
		for _, id := range in.ReservationIDs {
			r := locked[id]
			item := model.OrderItem{
				ID:            newID(),
				OrderID:       order.ID,
				ReservationID: r.ID,
				TicketTypeID:  r.TicketTypeID,
				Quantity:      r.Quantity,
				UnitPrice:     r.UnitPrice,
			}
			order.Items = append(order.Items, item)
			order.Amount = order.Amount.Add(item.Subtotal())
			for i := 0; i < r.Quantity; i++ {
				h := in.Holders[next]
				next++
				tickets = append(tickets, model.Ticket{
					ID:           newID(),
					OrderID:      order.ID,
					TicketTypeID: r.TicketTypeID,
					HolderName:   h.Name,
					HolderEmail:  h.Email,
					Status:       model.TicketPending,
					CreatedAt:    now,
					UpdatedAt:    now,
				})
			}
		}

		if err := c.store.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := c.store.CreateTickets(ctx, tickets); err != nil {
			return err
		}
		for _, id := range in.ReservationIDs {
			ok, err := c.store.TransitionReservation(ctx, id, model.ReservationActive, model.ReservationConverted, now)
			if err != nil {
				return err
			}
			if !ok {
				return model.ErrNotActive
			}
		}
		out = OrderView{Order: order, Tickets: tickets}
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}
	c.opts.metrics.OrderCreated()
	for range in.ReservationIDs {
		c.opts.metrics.ReservationTransition(string(model.ReservationConverted))
	}
	return out, nil
}

// GetOrder returns an order and its tickets to the session that created
// it.
func (c *Converter) GetOrder(ctx context.Context, id, sessionID string) (OrderView, error) {
	o, err := c.store.GetOrder(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	if o.SessionID != sessionID {
		return OrderView{}, model.ErrForbidden
	}
	tickets, err := c.store.ListTickets(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	return OrderView{Order: o, Tickets: tickets}, nil
}

func convertible(r model.Reservation) error {
	switch r.Status {
	case model.ReservationActive:
		return nil
	case model.ReservationConverted:
		return model.ErrAlreadyConverted
	case model.ReservationCancelled:
		return model.ErrAlreadyCancelled
	case model.ReservationExpired:
		return model.ErrExpiredHold
	}
	return model.ErrNotActive
}
