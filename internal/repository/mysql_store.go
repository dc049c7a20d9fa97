package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// MySQLStore implements the engine's store on MySQL/InnoDB.  A transaction
// started by WithTx travels in the context; every method runs on it when
// present and on the pool otherwise.  Transactions use READ COMMITTED so
// that reads made after a row lock is granted see the latest committed
// state.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a store bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// DB exposes the underlying pool for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

type txKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *MySQLStore) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.  Nested calls join the outer transaction.
// Deadlocks and lock wait timeouts come back wrapping
// model.ErrContention.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return contention(err)
	}
	if err := tx.Commit(); err != nil {
		return contention(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// contention tags lock errors with model.ErrContention and keeps the
// driver error in the chain.
func contention(err error) error {
	if isRetryable(err) {
		return fmt.Errorf("%w: %w", model.ErrContention, err)
	}
	return err
}

// Now reads the database server's clock so that every instance compares
// expiry times against the same source.
func (s *MySQLStore) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT UTC_TIMESTAMP(6)`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("read db clock: %w", err)
	}
	return now.UTC(), nil
}

// UpsertCatalog inserts or updates events and ticket types in one
// transaction.  sold is never overwritten; lowering capacity below sold
// fails on the table's check constraint.
func (s *MySQLStore) UpsertCatalog(ctx context.Context, events []model.Event, types []model.TicketType) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)
		for _, ev := range events {
			if _, err := q.ExecContext(ctx, `
INSERT INTO events (id, name, starts_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name), starts_at = VALUES(starts_at)`,
				ev.ID, ev.Name, ev.StartsAt.UTC()); err != nil {
				return fmt.Errorf("upsert event %s: %w", ev.ID, err)
			}
		}
		for _, tt := range types {
			if _, err := q.ExecContext(ctx, `
INSERT INTO ticket_types (id, event_id, name, capacity, sold, price) VALUES (?, ?, ?, ?, 0, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name), capacity = VALUES(capacity), price = VALUES(price)`,
				tt.ID, tt.EventID, tt.Name, tt.Capacity, tt.Price); err != nil {
				return fmt.Errorf("upsert ticket type %s: %w", tt.ID, err)
			}
		}
		return nil
	})
}

// rowsChanged returns whether an UPDATE touched at least one row.
func rowsChanged(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func placeholders(n, width int) string {
	group := "("
	for i := 0; i < width; i++ {
		if i > 0 {
			group += ", "
		}
		group += "?"
	}
	group += ")"
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += group
	}
	return out
}
