package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the payment lifecycle state of an order.
type OrderStatus string

const (
	OrderPending              OrderStatus = "PENDING"
	OrderAwaitingVerification OrderStatus = "AWAITING_VERIFICATION"
	OrderSuccess              OrderStatus = "SUCCESS"
	OrderFailed               OrderStatus = "FAILED"
	OrderExpired              OrderStatus = "EXPIRED"
	OrderCancelled            OrderStatus = "CANCELLED"
)

// Unsettled reports whether the order still holds capacity.
func (s OrderStatus) Unsettled() bool {
	return s == OrderPending || s == OrderAwaitingVerification
}

// Order is created from one or more converted reservations.  Its ticket
// count always equals the sum of its item quantities.
type Order struct {
	ID            string          // orders.id
	SessionID     string          // orders.session_id
	Status        OrderStatus     // orders.status
	Amount        decimal.Decimal // orders.amount
	PaymentMethod string          // orders.payment_method
	BuyerName     string          // orders.buyer_name
	BuyerEmail    string          // orders.buyer_email
	Items         []OrderItem     // order_items rows
	CreatedAt     time.Time       // orders.created_at
	UpdatedAt     time.Time       // orders.updated_at
}

// TicketCount is the number of tickets the order carries.
func (o Order) TicketCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// QuantityByType sums item quantities per ticket type.
func (o Order) QuantityByType() map[string]int {
	m := make(map[string]int, len(o.Items))
	for _, it := range o.Items {
		m[it.TicketTypeID] += it.Quantity
	}
	return m
}

// OrderItem is one line of an order and mirrors exactly one reservation.
type OrderItem struct {
	ID            string          // order_items.id
	OrderID       string          // order_items.order_id
	ReservationID string          // order_items.reservation_id (unique)
	TicketTypeID  string          // order_items.ticket_type_id
	Quantity      int             // order_items.quantity
	UnitPrice     decimal.Decimal // order_items.unit_price
}

// Subtotal is UnitPrice * Quantity.
func (it OrderItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}
