package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/middleware"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// OrderHandler creates multi-reservation orders and shows orders to the
// session that placed them.
type OrderHandler struct {
	Converter *service.Converter
	Logger    *slog.Logger
}

func NewOrderHandler(converter *service.Converter, logger *slog.Logger) *OrderHandler {
	if converter == nil {
		panic("nil converter passed to NewOrderHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{Converter: converter, Logger: logger}
}

// Create handles POST /v1/orders.  The body lists reservation ids of the
// calling session; holders are assigned to tickets in that order.
func (h *OrderHandler) Create(c echo.Context) error {
	var body struct {
		ReservationIDs []string     `json:"reservationIds"`
		Buyer          buyerJSON    `json:"buyer"`
		Holders        []holderJSON `json:"holders"`
		PaymentMethod  string       `json:"paymentMethod"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(body.ReservationIDs) == 0 {
		return badRequest(c, "reservationIds is required")
	}
	o, err := h.Converter.ConvertMany(c.Request().Context(), service.ConvertManyInput{
		ReservationIDs: body.ReservationIDs,
		SessionID:      middleware.SessionID(c),
		Buyer:          service.Buyer{Name: body.Buyer.Name, Email: body.Buyer.Email},
		Holders:        toHolders(body.Holders),
		PaymentMethod:  body.PaymentMethod,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, toOrderJSON(o.Order, o.Tickets))
}

// Get handles GET /v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	o, err := h.Converter.GetOrder(c.Request().Context(), c.Param("id"), middleware.SessionID(c))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, toOrderJSON(o.Order, o.Tickets))
}
