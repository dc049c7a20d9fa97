package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

const ticketTypeColumns = `id, event_id, name, capacity, sold, price, created_at, updated_at`

func scanTicketType(row interface{ Scan(...any) error }) (model.TicketType, error) {
	var tt model.TicketType
	err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Capacity, &tt.Sold, &tt.Price, &tt.CreatedAt, &tt.UpdatedAt)
	return tt, err
}

// GetTicketType returns the ticket type or model.ErrTicketTypeNotFound.
func (s *MySQLStore) GetTicketType(ctx context.Context, id string) (model.TicketType, error) {
	return s.getTicketType(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = ?`, id)
}

// GetTicketTypeForUpdate locks the ticket type row until the surrounding
// transaction ends.  Every capacity decision for the type is serialised
// on this lock.
func (s *MySQLStore) GetTicketTypeForUpdate(ctx context.Context, id string) (model.TicketType, error) {
	return s.getTicketType(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = ? FOR UPDATE`, id)
}

func (s *MySQLStore) getTicketType(ctx context.Context, q, id string) (model.TicketType, error) {
	tt, err := scanTicketType(s.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TicketType{}, model.ErrTicketTypeNotFound
	}
	if err != nil {
		return model.TicketType{}, fmt.Errorf("get ticket type %s: %w", id, err)
	}
	return tt, nil
}

// ListTicketTypesByEvent returns an event's ticket types ordered by name.
func (s *MySQLStore) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]model.TicketType, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE event_id = ? ORDER BY name, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()
	var out []model.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tt)
	}
	return out, rows.Err()
}

// HeldQuantity sums the units held against a ticket type: ACTIVE
// reservations that have not yet expired at now, and line items of
// orders still awaiting a payment decision.
func (s *MySQLStore) HeldQuantity(ctx context.Context, ticketTypeID string, now time.Time) (int, int, error) {
	const q = `
SELECT
    (SELECT COALESCE(SUM(r.quantity), 0)
       FROM reservations r
      WHERE r.ticket_type_id = ? AND r.status = 'ACTIVE' AND r.expires_at >= ?),
    (SELECT COALESCE(SUM(oi.quantity), 0)
       FROM order_items oi
       JOIN orders o ON o.id = oi.order_id
      WHERE oi.ticket_type_id = ? AND o.status IN ('PENDING', 'AWAITING_VERIFICATION'))`
	var reserved, pending int
	if err := s.conn(ctx).QueryRowContext(ctx, q, ticketTypeID, now, ticketTypeID).Scan(&reserved, &pending); err != nil {
		return 0, 0, fmt.Errorf("held quantity for %s: %w", ticketTypeID, err)
	}
	return reserved, pending, nil
}

// AddSold adjusts sold by delta.  The update is guarded so sold never
// leaves [0, capacity]; a refused update reports model.ErrInvalidState.
func (s *MySQLStore) AddSold(ctx context.Context, ticketTypeID string, delta int) error {
	ok, err := rowsChanged(s.conn(ctx).ExecContext(ctx, `
UPDATE ticket_types
   SET sold = sold + ?
 WHERE id = ? AND sold + ? >= 0 AND sold + ? <= capacity`,
		delta, ticketTypeID, delta, delta))
	if err != nil {
		return fmt.Errorf("add sold to %s: %w", ticketTypeID, err)
	}
	if !ok {
		return fmt.Errorf("ticket type %s: sold%+d outside capacity: %w", ticketTypeID, delta, model.ErrInvalidState)
	}
	return nil
}
