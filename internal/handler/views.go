package handler

import (
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

type reservationJSON struct {
	ID               string    `json:"id"`
	GroupID          string    `json:"groupId,omitempty"`
	TicketTypeID     string    `json:"ticketTypeId"`
	Quantity         int       `json:"quantity"`
	UnitPrice        string    `json:"unitPrice"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingSeconds *int      `json:"remainingSeconds,omitempty"`
	IsExpired        *bool     `json:"isExpired,omitempty"`
}

func toReservationJSON(r model.Reservation) reservationJSON {
	return reservationJSON{
		ID:           r.ID,
		GroupID:      r.GroupID,
		TicketTypeID: r.TicketTypeID,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice.StringFixed(2),
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

func toReservationViewJSON(v service.ReservationView) reservationJSON {
	out := toReservationJSON(v.Reservation)
	remaining, expired := v.RemainingSeconds, v.IsExpired
	out.RemainingSeconds = &remaining
	out.IsExpired = &expired
	return out
}

type orderItemJSON struct {
	ReservationID string `json:"reservationId"`
	TicketTypeID  string `json:"ticketTypeId"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unitPrice"`
}

type ticketJSON struct {
	ID           string `json:"id"`
	TicketTypeID string `json:"ticketTypeId"`
	HolderName   string `json:"holderName"`
	HolderEmail  string `json:"holderEmail"`
	Status       string `json:"status"`
}

type orderJSON struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Amount        string          `json:"amount"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Items         []orderItemJSON `json:"items"`
	Tickets       []ticketJSON    `json:"tickets,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toOrderJSON(o model.Order, tickets []model.Ticket) orderJSON {
	out := orderJSON{
		ID:            o.ID,
		Status:        string(o.Status),
		Amount:        o.Amount.StringFixed(2),
		PaymentMethod: o.PaymentMethod,
		Items:         make([]orderItemJSON, 0, len(o.Items)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemJSON{
			ReservationID: it.ReservationID,
			TicketTypeID:  it.TicketTypeID,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice.StringFixed(2),
		})
	}
	for _, t := range tickets {
		out.Tickets = append(out.Tickets, ticketJSON{
			ID:           t.ID,
			TicketTypeID: t.TicketTypeID,
			HolderName:   t.HolderName,
			HolderEmail:  t.HolderEmail,
			Status:       string(t.Status),
		})
	}
	return out
}

type buyerJSON struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type holderJSON struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toHolders(in []holderJSON) []service.Holder {
	out := make([]service.Holder, 0, len(in))
	for _, h := range in {
		out = append(out, service.Holder{Name: h.Name, Email: h.Email})
	}
	return out
}
