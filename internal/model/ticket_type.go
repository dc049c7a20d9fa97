package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketType is the unit of inventory.  Capacity is fixed when the type
// is created.  Sold counts settled units only; held units live in
// reservations and pending orders and are derived by query.
//
// Invariant: Sold + reserved + pending <= Capacity.
type TicketType struct {
	ID        string          // ticket_types.id
	EventID   string          // ticket_types.event_id
	Name      string          // ticket_types.name
	Capacity  int             // ticket_types.capacity
	Sold      int             // ticket_types.sold
	Price     decimal.Decimal // ticket_types.price
	CreatedAt time.Time       // ticket_types.created_at
	UpdatedAt time.Time       // ticket_types.updated_at
}

// InventorySummary is a read-only snapshot of a ticket type's
// accounting.  It is for display and must never drive a write.
type InventorySummary struct {
	TicketTypeID string `json:"ticketTypeId"`
	Name         string `json:"name"`
	Capacity     int    `json:"capacity"`
	Sold         int    `json:"sold"`
	Reserved     int    `json:"reserved"`
	Pending      int    `json:"pending"`
	Available    int    `json:"available"`
}

// ComputeAvailable returns capacity minus every unit that is sold or
// held, floored at zero.
func ComputeAvailable(capacity, sold, reserved, pending int) int {
	n := capacity - sold - reserved - pending
	if n < 0 {
		return 0
	}
	return n
}
