// Package queue carries the engine's RabbitMQ traffic: domain events that
// are published after commit and payment outcomes consumed from the
// payment collaborator.
package queue

// Queue names.  All queues are durable and bound to the default exchange.
const (
	OrderSettledQueue       = "order.settled"
	ReservationExpiredQueue = "reservation.expired"
	PaymentOutcomeQueue     = "payment.outcome"
)

// OrderSettledEvent is published when settlement moves an order to a new
// terminal state (SUCCESS, FAILED or CANCELLED after a reversal).
type OrderSettledEvent struct {
	OrderID     string             `json:"order_id"`
	SessionID   string             `json:"session_id"`
	Status      string             `json:"status"`
	Amount      string             `json:"amount"`
	TicketCount int                `json:"ticket_count"`
	Items       []OrderSettledItem `json:"items"`
	SettledAt   string             `json:"settled_at"`
}

type OrderSettledItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// ReservationExpiredEvent is published by the sweeper for every hold it
// expires, so carts and notification services can react.
type ReservationExpiredEvent struct {
	ReservationID string `json:"reservation_id"`
	SessionID     string `json:"session_id"`
	TicketTypeID  string `json:"ticket_type_id"`
	Quantity      int    `json:"quantity"`
	ExpiredAt     string `json:"expired_at"`
}

// PaymentOutcome is the message the payment collaborator sends once a
// charge is decided.  Outcome is SUCCESS or FAILED.
type PaymentOutcome struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
}
