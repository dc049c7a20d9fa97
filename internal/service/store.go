// Package service implements the reservation engine: the inventory
// ledger, the reservation lifecycle, purchase conversion, order
// settlement and the expiration sweeper.  Every capacity-affecting step
// runs inside Store.WithTx and reads time from Store.Now so that all
// instances agree on one clock.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Store is the persistence contract of the engine.  Methods called with a
// context returned by WithTx run inside that transaction.  The *ForUpdate
// variants take a row lock held until the transaction ends.  Transition
// methods are conditional: they report false, not an error, when the row
// is no longer in the expected state.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Now returns the store's clock in UTC.
	Now(ctx context.Context) (time.Time, error)

	GetTicketType(ctx context.Context, id string) (model.TicketType, error)
	GetTicketTypeForUpdate(ctx context.Context, id string) (model.TicketType, error)
	ListTicketTypesByEvent(ctx context.Context, eventID string) ([]model.TicketType, error)
	// HeldQuantity returns the units held by ACTIVE reservations with
	// expires_at >= now and by unsettled orders.
	HeldQuantity(ctx context.Context, ticketTypeID string, now time.Time) (reserved, pending int, err error)
	// AddSold adjusts sold by delta, refusing to leave [0, capacity].
	AddSold(ctx context.Context, ticketTypeID string, delta int) error

	CreateReservations(ctx context.Context, rs []model.Reservation) error
	GetReservation(ctx context.Context, id string) (model.Reservation, error)
	GetReservationForUpdate(ctx context.Context, id string) (model.Reservation, error)
	ListReservationsBySession(ctx context.Context, sessionID string, limit int) ([]model.Reservation, error)
	TransitionReservation(ctx context.Context, id string, from, to model.ReservationStatus, now time.Time) (bool, error)
	UpdateReservationExpiry(ctx context.Context, id string, expiresAt, now time.Time) (bool, error)
	// ExpireReservation moves an ACTIVE reservation whose expires_at is
	// before now to EXPIRED.
	ExpireReservation(ctx context.Context, id string, now time.Time) (bool, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)

	CreateOrder(ctx context.Context, o model.Order) error
	CreateTickets(ctx context.Context, ts []model.Ticket) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (model.Order, error)
	TransitionOrder(ctx context.Context, id string, from, to model.OrderStatus, now time.Time) (bool, error)
	// ExpireOrder moves a PENDING order created before cutoff to EXPIRED.
	ExpireOrder(ctx context.Context, id string, cutoff, now time.Time) (bool, error)
	ListStaleOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ListTickets(ctx context.Context, orderID string) ([]model.Ticket, error)
	UpdateTicketStatuses(ctx context.Context, orderID string, from, to model.TicketStatus, now time.Time) (int, error)
}
