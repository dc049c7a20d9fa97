package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/middleware"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// ReservationHandler serves the hold lifecycle for the calling session.
// Every route sits behind SessionAuth, so a session id is always present.
type ReservationHandler struct {
	Reservations *service.ReservationManager
	Converter    *service.Converter
	Logger       *slog.Logger
}

func NewReservationHandler(reservations *service.ReservationManager, converter *service.Converter, logger *slog.Logger) *ReservationHandler {
	if reservations == nil || converter == nil {
		panic("nil service passed to NewReservationHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReservationHandler{Reservations: reservations, Converter: converter, Logger: logger}
}

type createReservationRequest struct {
	TicketTypeID string `json:"ticketTypeId"`
	Quantity     int    `json:"quantity"`
	TTLMinutes   int    `json:"ttlMinutes"`
}

// Create handles POST /v1/reservations.  ttlMinutes may be omitted to use
// the default hold time.
func (h *ReservationHandler) Create(c echo.Context) error {
	var body createReservationRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.TicketTypeID == "" {
		return badRequest(c, "ticketTypeId is required")
	}
	r, err := h.Reservations.Create(c.Request().Context(), middleware.SessionID(c), body.TicketTypeID, body.Quantity, body.TTLMinutes)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, toReservationJSON(r))
}

type bulkReservationRequest struct {
	Items []struct {
		TicketTypeID string `json:"ticketTypeId"`
		Quantity     int    `json:"quantity"`
	} `json:"items"`
	TTLMinutes int `json:"ttlMinutes"`
}

// CreateBulk handles POST /v1/reservations/bulk.  All items are held or
// none are.
func (h *ReservationHandler) CreateBulk(c echo.Context) error {
	var body bulkReservationRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(body.Items) == 0 {
		return badRequest(c, "items is required")
	}
	items := make([]service.BulkItem, 0, len(body.Items))
	for _, it := range body.Items {
		if it.TicketTypeID == "" {
			return badRequest(c, "ticketTypeId is required")
		}
		items = append(items, service.BulkItem{TicketTypeID: it.TicketTypeID, Quantity: it.Quantity})
	}
	rs, err := h.Reservations.CreateBulk(c.Request().Context(), middleware.SessionID(c), items, body.TTLMinutes)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	out := make([]reservationJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReservationJSON(r))
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservations": out})
}

// List handles GET /v1/reservations?limit=N.
func (h *ReservationHandler) List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest(c, "invalid limit")
		}
		limit = n
	}
	views, err := h.Reservations.ListBySession(c.Request().Context(), middleware.SessionID(c), limit)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	out := make([]reservationJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toReservationViewJSON(v))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	v, err := h.Reservations.Get(c.Request().Context(), c.Param("id"), middleware.SessionID(c))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, toReservationViewJSON(v))
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	r, err := h.Reservations.Cancel(c.Request().Context(), c.Param("id"), middleware.SessionID(c))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, toReservationJSON(r))
}

// Extend handles POST /v1/reservations/:id/extend with
// {"additionalMinutes": N}.
func (h *ReservationHandler) Extend(c echo.Context) error {
	var body struct {
		AdditionalMinutes int `json:"additionalMinutes"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := h.Reservations.Extend(c.Request().Context(), c.Param("id"), middleware.SessionID(c), body.AdditionalMinutes)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, toReservationJSON(r))
}

type convertRequest struct {
	Buyer         buyerJSON    `json:"buyer"`
	Holders       []holderJSON `json:"holders"`
	PaymentMethod string       `json:"paymentMethod"`
}

// Convert handles POST /v1/reservations/:id/convert.  It returns the new
// PENDING order with its tickets.
func (h *ReservationHandler) Convert(c echo.Context) error {
	var body convertRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	o, err := h.Converter.Convert(c.Request().Context(), service.ConvertInput{
		ReservationID: c.Param("id"),
		SessionID:     middleware.SessionID(c),
		Buyer:         service.Buyer{Name: body.Buyer.Name, Email: body.Buyer.Email},
		Holders:       toHolders(body.Holders),
		PaymentMethod: body.PaymentMethod,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, toOrderJSON(o.Order, o.Tickets))
}
