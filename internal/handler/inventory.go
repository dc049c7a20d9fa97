package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/service"
)

// InventoryHandler exposes the public, read-only availability summary.
type InventoryHandler struct {
	Ledger *service.Ledger
	Logger *slog.Logger
}

func NewInventoryHandler(ledger *service.Ledger, logger *slog.Logger) *InventoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryHandler{Ledger: ledger, Logger: logger}
}

// Summary handles GET /v1/events/:id/inventory.
func (h *InventoryHandler) Summary(c echo.Context) error {
	eventID := c.Param("id")
	sums, err := h.Ledger.Summary(c.Request().Context(), eventID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"eventId": eventID, "ticketTypes": sums})
}
