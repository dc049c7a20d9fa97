package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/service"
)

// OperatorHandler serves the internal routes used by the payment
// collaborator, support staff and schedulers.  Routes are guarded by
// RequireOperatorKey.
type OperatorHandler struct {
	Settlement *service.Settlement
	Sweeper    *service.Sweeper
	Logger     *slog.Logger
}

func NewOperatorHandler(settlement *service.Settlement, sweeper *service.Sweeper, logger *slog.Logger) *OperatorHandler {
	if settlement == nil || sweeper == nil {
		panic("nil service passed to NewOperatorHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OperatorHandler{Settlement: settlement, Sweeper: sweeper, Logger: logger}
}

// Settle handles POST /v1/internal/orders/:id/settle with
// {"outcome": "SUCCESS"|"FAILED"}.  Replaying an applied outcome returns
// 200 with "changed": false.
func (h *OperatorHandler) Settle(c echo.Context) error {
	var body struct {
		Outcome string `json:"outcome"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	outcome, err := service.ParseOutcome(strings.ToUpper(strings.TrimSpace(body.Outcome)))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	res, err := h.Settlement.Settle(c.Request().Context(), c.Param("id"), outcome)
	return h.settled(c, res, err)
}

// AwaitingVerification handles POST /v1/internal/orders/:id/awaiting-verification.
func (h *OperatorHandler) AwaitingVerification(c echo.Context) error {
	res, err := h.Settlement.MarkAwaitingVerification(c.Request().Context(), c.Param("id"))
	return h.settled(c, res, err)
}

// Reverse handles POST /v1/internal/orders/:id/reverse.
func (h *OperatorHandler) Reverse(c echo.Context) error {
	res, err := h.Settlement.Reverse(c.Request().Context(), c.Param("id"))
	return h.settled(c, res, err)
}

func (h *OperatorHandler) settled(c echo.Context, res service.SettleResult, err error) error {
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order":   toOrderJSON(res.Order, nil),
		"changed": res.Changed,
	})
}

// Sweep handles POST /v1/internal/sweep and runs one pass synchronously.
func (h *OperatorHandler) Sweep(c echo.Context) error {
	rep, err := h.Sweeper.Sweep(c.Request().Context())
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, rep)
}
