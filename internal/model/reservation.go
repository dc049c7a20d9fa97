package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the lifecycle state of a hold.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationConverted ReservationStatus = "CONVERTED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool { return s != ReservationActive }

// Reservation is a time-boxed hold on Quantity units of one ticket type.
// It is created ACTIVE and ends exactly once in EXPIRED, CONVERTED or
// CANCELLED.
//
// Fields:
//
//	ID           – primary key (UUID string).
//	GroupID      – shared by reservations created in one bulk request (empty otherwise).
//	SessionID    – opaque identity of the holder; guests and users alike.
//	TicketTypeID – inventory unit being held.
//	Quantity     – number of units held.
//	UnitPrice    – ticket type price captured when the hold was taken.
//	Status       – ACTIVE, EXPIRED, CONVERTED or CANCELLED.
//	ExpiresAt    – end of the hold (database clock, UTC).
type Reservation struct {
	ID           string            // reservations.id
	GroupID      string            // reservations.group_id (nullable)
	SessionID    string            // reservations.session_id
	TicketTypeID string            // reservations.ticket_type_id
	Quantity     int               // reservations.quantity
	UnitPrice    decimal.Decimal   // reservations.unit_price
	Status       ReservationStatus // reservations.status
	CreatedAt    time.Time         // reservations.created_at
	ExpiresAt    time.Time         // reservations.expires_at
	UpdatedAt    time.Time         // reservations.updated_at
}

// ExpiredAt reports whether the hold's lifetime has elapsed at now.  A
// hold is still valid at the exact instant of ExpiresAt.
func (r Reservation) ExpiredAt(now time.Time) bool { return now.After(r.ExpiresAt) }
