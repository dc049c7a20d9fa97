package model

import "time"

// TicketStatus is the state of an individual admission.
type TicketStatus string

const (
	TicketPending   TicketStatus = "PENDING"
	TicketActive    TicketStatus = "ACTIVE"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// Ticket is one purchased slot.  Tickets are created PENDING at
// conversion and only become ACTIVE when their order settles SUCCESS.
type Ticket struct {
	ID           string       // tickets.id
	OrderID      string       // tickets.order_id
	TicketTypeID string       // tickets.ticket_type_id
	HolderName   string       // tickets.holder_name
	HolderEmail  string       // tickets.holder_email
	Status       TicketStatus // tickets.status
	CreatedAt    time.Time    // tickets.created_at
	UpdatedAt    time.Time    // tickets.updated_at
}
