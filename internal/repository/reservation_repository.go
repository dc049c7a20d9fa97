package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

const reservationColumns = `id, group_id, session_id, ticket_type_id, quantity, unit_price, status, created_at, expires_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (model.Reservation, error) {
	var (
		r     model.Reservation
		group sql.NullString
	)
	err := row.Scan(&r.ID, &group, &r.SessionID, &r.TicketTypeID, &r.Quantity, &r.UnitPrice,
		&r.Status, &r.CreatedAt, &r.ExpiresAt, &r.UpdatedAt)
	r.GroupID = group.String
	return r, err
}

// CreateReservations inserts all holds with a single multi-row INSERT.
// Passing an empty slice has no effect.
func (s *MySQLStore) CreateReservations(ctx context.Context, rs []model.Reservation) error {
	if len(rs) == 0 {
		return nil
	}
	args := make([]any, 0, len(rs)*10)
	for _, r := range rs {
		var group any
		if r.GroupID != "" {
			group = r.GroupID
		}
		args = append(args, r.ID, group, r.SessionID, r.TicketTypeID, r.Quantity, r.UnitPrice,
			string(r.Status), r.CreatedAt, r.ExpiresAt, r.UpdatedAt)
	}
	q := `INSERT INTO reservations (` + reservationColumns + `) VALUES ` + placeholders(len(rs), 10)
	if _, err := s.conn(ctx).ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert reservations: %w", err)
	}
	return nil
}

// GetReservation returns the reservation or model.ErrReservationNotFound.
func (s *MySQLStore) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	return s.getReservation(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
}

// GetReservationForUpdate locks the reservation row for the rest of the
// transaction.  Cancel, extend and convert all decide on this lock.
func (s *MySQLStore) GetReservationForUpdate(ctx context.Context, id string) (model.Reservation, error) {
	return s.getReservation(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id)
}

func (s *MySQLStore) getReservation(ctx context.Context, q, id string) (model.Reservation, error) {
	r, err := scanReservation(s.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, model.ErrReservationNotFound
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return r, nil
}

// ListReservationsBySession returns the newest reservations of a session.
func (s *MySQLStore) ListReservationsBySession(ctx context.Context, sessionID string, limit int) ([]model.Reservation, error) {
	return s.listReservations(ctx, `
SELECT `+reservationColumns+`
  FROM reservations
 WHERE session_id = ?
 ORDER BY created_at DESC, id
 LIMIT ?`, sessionID, limit)
}

// ListExpiredReservations returns ACTIVE holds whose expires_at is before
// now, oldest first.
func (s *MySQLStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	return s.listReservations(ctx, `
SELECT `+reservationColumns+`
  FROM reservations
 WHERE status = 'ACTIVE' AND expires_at < ?
 ORDER BY expires_at, id
 LIMIT ?`, now, limit)
}

func (s *MySQLStore) listReservations(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionReservation moves a reservation from one status to another
// only while it is still in from.
func (s *MySQLStore) TransitionReservation(ctx context.Context, id string, from, to model.ReservationStatus, now time.Time) (bool, error) {
	ok, err := rowsChanged(s.conn(ctx).ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, id, string(from)))
	if err != nil {
		return false, fmt.Errorf("transition reservation %s: %w", id, err)
	}
	return ok, nil
}

// UpdateReservationExpiry sets a new expires_at on an ACTIVE reservation.
func (s *MySQLStore) UpdateReservationExpiry(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	ok, err := rowsChanged(s.conn(ctx).ExecContext(ctx,
		`UPDATE reservations SET expires_at = ?, updated_at = ? WHERE id = ? AND status = 'ACTIVE'`,
		expiresAt, now, id))
	if err != nil {
		return false, fmt.Errorf("extend reservation %s: %w", id, err)
	}
	return ok, nil
}

// ExpireReservation marks an ACTIVE reservation EXPIRED if its lifetime
// ended before now.  A second call, or a call racing a conversion, is a
// no-op.
func (s *MySQLStore) ExpireReservation(ctx context.Context, id string, now time.Time) (bool, error) {
	ok, err := rowsChanged(s.conn(ctx).ExecContext(ctx, `
UPDATE reservations
   SET status = 'EXPIRED', updated_at = ?
 WHERE id = ? AND status = 'ACTIVE' AND expires_at < ?`,
		now, id, now))
	if err != nil {
		return false, fmt.Errorf("expire reservation %s: %w", id, err)
	}
	return ok, nil
}
