package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

const orderColumns = `id, session_id, status, amount, payment_method, buyer_name, buyer_email, created_at, updated_at`

// CreateOrder inserts the order row and its line items.  A reservation
// can back at most one line item; a second attempt reports
// model.ErrAlreadyConverted.
func (s *MySQLStore) CreateOrder(ctx context.Context, o model.Order) error {
	q := s.conn(ctx)
	if _, err := q.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SessionID, string(o.Status), o.Amount, o.PaymentMethod, o.BuyerName, o.BuyerEmail,
		o.CreatedAt, o.UpdatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if len(o.Items) == 0 {
		return nil
	}
	args := make([]any, 0, len(o.Items)*6)
	for _, it := range o.Items {
		args = append(args, it.ID, o.ID, it.ReservationID, it.TicketTypeID, it.Quantity, it.UnitPrice)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, reservation_id, ticket_type_id, quantity, unit_price) VALUES `+
			placeholders(len(o.Items), 6), args...); err != nil {
		if isDuplicate(err) {
			return model.ErrAlreadyConverted
		}
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

// CreateTickets inserts ticket rows with a single multi-row INSERT.
func (s *MySQLStore) CreateTickets(ctx context.Context, ts []model.Ticket) error {
	if len(ts) == 0 {
		return nil
	}
	args := make([]any, 0, len(ts)*8)
	for _, t := range ts {
		args = append(args, t.ID, t.OrderID, t.TicketTypeID, t.HolderName, t.HolderEmail, string(t.Status), t.CreatedAt, t.UpdatedAt)
	}
	if _, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO tickets (id, order_id, ticket_type_id, holder_name, holder_email, status, created_at, updated_at) VALUES `+
			placeholders(len(ts), 8), args...); err != nil {
		return fmt.Errorf("insert tickets: %w", err)
	}
	return nil
}

// GetOrder returns the order with its items or model.ErrOrderNotFound.
func (s *MySQLStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetOrderForUpdate locks the order row; settlement decides on this lock.
func (s *MySQLStore) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

func (s *MySQLStore) getOrder(ctx context.Context, q, id string) (model.Order, error) {
	var o model.Order
	err := s.conn(ctx).QueryRowContext(ctx, q, id).Scan(&o.ID, &o.SessionID, &o.Status, &o.Amount,
		&o.PaymentMethod, &o.BuyerName, &o.BuyerEmail, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	rows, err := s.conn(ctx).QueryContext(ctx, `
SELECT id, order_id, reservation_id, ticket_type_id, quantity, unit_price
  FROM order_items
 WHERE order_id = ?
 ORDER BY id`, id)
	if err != nil {
		return model.Order{}, fmt.Errorf("get order items %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ReservationID, &it.TicketTypeID, &it.Quantity, &it.UnitPrice); err != nil {
			return model.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// TransitionOrder moves an order between statuses while it is still in
// from.
func (s *MySQLStore) TransitionOrder(ctx context.Context, id string, from, to model.OrderStatus, now time.Time) (bool, error) {
	ok, err := rowsChanged(s.conn(ctx).ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, id, string(from)))
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", id, err)
	}
	return ok, nil
}

// ExpireOrder marks a PENDING order created before cutoff as EXPIRED.
// Orders awaiting manual verification never match.
func (s *MySQLStore) ExpireOrder(ctx context.Context, id string, cutoff, now time.Time) (bool, error) {
	ok, err := rowsChanged(s.conn(ctx).ExecContext(ctx, `
UPDATE orders
   SET status = 'EXPIRED', updated_at = ?
 WHERE id = ? AND status = 'PENDING' AND created_at < ?`,
		now, id, cutoff))
	if err != nil {
		return false, fmt.Errorf("expire order %s: %w", id, err)
	}
	return ok, nil
}

// ListStaleOrderIDs returns PENDING orders created before cutoff, oldest
// first.
func (s *MySQLStore) ListStaleOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
SELECT id
  FROM orders
 WHERE status = 'PENDING' AND created_at < ?
 ORDER BY created_at, id
 LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListTickets returns an order's tickets in creation order.
func (s *MySQLStore) ListTickets(ctx context.Context, orderID string) ([]model.Ticket, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
SELECT id, order_id, ticket_type_id, holder_name, holder_email, status, created_at, updated_at
  FROM tickets
 WHERE order_id = ?
 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.TicketTypeID, &t.HolderName, &t.HolderEmail,
			&t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTicketStatuses moves all of an order's tickets in from to to and
// returns how many changed.
func (s *MySQLStore) UpdateTicketStatuses(ctx context.Context, orderID string, from, to model.TicketStatus, now time.Time) (int, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE order_id = ? AND status = ?`,
		string(to), now, orderID, string(from))
	if err != nil {
		return 0, fmt.Errorf("update tickets of %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
