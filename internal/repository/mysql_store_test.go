package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewMySQLStore(db), mock
}

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE reservations SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.WithTx(context.Background(), func(ctx context.Context) error {
			ok, err := s.TransitionReservation(ctx, "r-1", model.ReservationActive, model.ReservationCancelled, time.Now())
			if !ok {
				t.Errorf("expected transition to apply")
			}
			return err
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		if err := s.WithTx(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})

	t.Run("lock errors wrap ErrContention", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
		err := s.WithTx(context.Background(), func(context.Context) error {
			return fmt.Errorf("lock ticket type tt-1: %w", deadlock)
		})
		if !errors.Is(err, model.ErrContention) {
			t.Fatalf("expected ErrContention, got %v", err)
		}
		var me *mysql.MySQLError
		if !errors.As(err, &me) || me.Number != 1213 {
			t.Fatalf("expected driver error in chain, got %v", err)
		}
	})

	t.Run("commit lock timeout wraps ErrContention", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})

		err := s.WithTx(context.Background(), func(context.Context) error { return nil })
		if !errors.Is(err, model.ErrContention) {
			t.Fatalf("expected ErrContention, got %v", err)
		}
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		err := s.WithTx(context.Background(), func(ctx context.Context) error {
			return s.WithTx(ctx, func(context.Context) error { return nil })
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestNowReadsDatabaseClock(t *testing.T) {
	s, mock := newMockStore(t)
	dbNow := time.Date(2025, 6, 1, 12, 0, 0, 500, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT UTC_TIMESTAMP(6)`)).
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(dbNow))

	got, err := s.Now(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !got.Equal(dbNow) {
		t.Fatalf("expected %v, got %v", dbNow, got)
	}
}

func TestGetTicketTypeForUpdate(t *testing.T) {
	cols := []string{"id", "event_id", "name", "capacity", "sold", "price", "created_at", "updated_at"}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("locks and scans the row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM ticket_types WHERE id = \? FOR UPDATE`).
			WithArgs("tt-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("tt-1", "ev-1", "GA", 100, 7, "25.50", now, now))

		tt, err := s.GetTicketTypeForUpdate(context.Background(), "tt-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tt.Capacity != 100 || tt.Sold != 7 || !tt.Price.Equal(decimal.RequireFromString("25.5")) {
			t.Fatalf("unexpected ticket type %+v", tt)
		}
	})

	t.Run("maps no rows to not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM ticket_types WHERE id = \? FOR UPDATE`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		if _, err := s.GetTicketTypeForUpdate(context.Background(), "missing"); !errors.Is(err, model.ErrTicketTypeNotFound) {
			t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
		}
	})
}

func TestHeldQuantity(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`r.status = 'ACTIVE' AND r.expires_at >= \?`).
		WithArgs("tt-1", now, "tt-1").
		WillReturnRows(sqlmock.NewRows([]string{"reserved", "pending"}).AddRow(4, 2))

	reserved, pending, err := s.HeldQuantity(context.Background(), "tt-1", now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reserved != 4 || pending != 2 {
		t.Fatalf("expected 4/2, got %d/%d", reserved, pending)
	}
}

func TestAddSoldGuard(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE ticket_types`).
		WithArgs(3, "tt-1", 3, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.AddSold(context.Background(), "tt-1", 3); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCreateReservationsMultiRowInsert(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rs := []model.Reservation{
		{ID: "r-1", GroupID: "g-1", SessionID: "s", TicketTypeID: "tt-1", Quantity: 1, UnitPrice: decimal.NewFromInt(5), Status: model.ReservationActive, CreatedAt: now, ExpiresAt: now, UpdatedAt: now},
		{ID: "r-2", GroupID: "g-1", SessionID: "s", TicketTypeID: "tt-2", Quantity: 2, UnitPrice: decimal.NewFromInt(5), Status: model.ReservationActive, CreatedAt: now, ExpiresAt: now, UpdatedAt: now},
	}
	mock.ExpectExec(regexp.QuoteMeta(`VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.CreateReservations(context.Background(), rs); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestExpireReservationIsConditional(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`WHERE id = \? AND status = 'ACTIVE' AND expires_at < \?`).
		WithArgs(now, "r-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.ExpireReservation(context.Background(), "r-1", now)
	if err != nil || ok {
		t.Fatalf("expected no-op, got ok=%v err=%v", ok, err)
	}
}

func TestCreateOrderDuplicateReservation(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	o := model.Order{
		ID: "o-1", SessionID: "s", Status: model.OrderPending, Amount: decimal.NewFromInt(10),
		CreatedAt: now, UpdatedAt: now,
		Items: []model.OrderItem{{ID: "i-1", ReservationID: "r-1", TicketTypeID: "tt-1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	}
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'r-1' for key 'uq_order_items_reservation'"})

	if err := s.CreateOrder(context.Background(), o); !errors.Is(err, model.ErrAlreadyConverted) {
		t.Fatalf("expected ErrAlreadyConverted, got %v", err)
	}
}

func TestGetOrderLoadsItems(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM orders WHERE id = \? FOR UPDATE`).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "status", "amount", "payment_method", "buyer_name", "buyer_email", "created_at", "updated_at"}).
			AddRow("o-1", "s", "PENDING", "30.00", "card", "Ada", "ada@example.com", now, now))
	mock.ExpectQuery(`FROM order_items`).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "reservation_id", "ticket_type_id", "quantity", "unit_price"}).
			AddRow("i-1", "o-1", "r-1", "tt-1", 2, "10.00").
			AddRow("i-2", "o-1", "r-2", "tt-2", 1, "10.00"))

	o, err := s.GetOrderForUpdate(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if o.Status != model.OrderPending || o.TicketCount() != 3 || len(o.Items) != 2 {
		t.Fatalf("unexpected order %+v", o)
	}
}

func TestIsRetryable(t *testing.T) {
	if !isRetryable(&mysql.MySQLError{Number: 1213}) || !isRetryable(&mysql.MySQLError{Number: 1205}) {
		t.Fatalf("deadlock and lock wait timeout should be retryable")
	}
	if isRetryable(&mysql.MySQLError{Number: 1062}) || isRetryable(errors.New("x")) {
		t.Fatalf("only lock errors are retryable")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(2, 3); got != "(?, ?, ?), (?, ?, ?)" {
		t.Fatalf("unexpected placeholders %q", got)
	}
}
