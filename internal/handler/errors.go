package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Error codes returned in the "code" field of every error body.
const (
	codeInvalidRequestBody    = "invalid_request_body"
	codeNotFound              = "not_found"
	codeInsufficientInventory = "insufficient_inventory"
	codeQuantityOutOfRange    = "quantity_out_of_range"
	codeTTLOutOfRange         = "ttl_out_of_range"
	codeExpiredHold           = "expired_hold"
	codeNotActive             = "not_active"
	codeAlreadyConverted      = "already_converted"
	codeAlreadyCancelled      = "already_cancelled"
	codeDuplicateHold         = "duplicate_reservation"
	codeOrderSettled          = "order_settled"
	codeInvalidState          = "invalid_state"
	codeHolderCountMismatch   = "holder_count_mismatch"
	codeInvalidOutcome        = "invalid_outcome"
	codeRetry                 = "retry"
	codeInternalError         = "internal_error"
)

func errorBody(code, msg string) echo.Map {
	return echo.Map{"error": msg, "code": code}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody(codeInvalidRequestBody, msg))
}

// respondError maps a service error to a status and JSON body.  A resource
// owned by another session is reported exactly like a missing one.
func respondError(c echo.Context, logger *slog.Logger, err error) error {
	var inv *model.InsufficientInventoryError
	switch {
	case errors.As(err, &inv):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "insufficient inventory",
			"code":      codeInsufficientInventory,
			"available": inv.Available,
		})
	case errors.Is(err, model.ErrForbidden), errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody(codeNotFound, "not found"))
	case errors.Is(err, model.ErrQuantityOutOfRange):
		return c.JSON(http.StatusBadRequest, errorBody(codeQuantityOutOfRange, err.Error()))
	case errors.Is(err, model.ErrTTLOutOfRange):
		return c.JSON(http.StatusBadRequest, errorBody(codeTTLOutOfRange, err.Error()))
	case errors.Is(err, model.ErrHolderCountMismatch):
		return c.JSON(http.StatusBadRequest, errorBody(codeHolderCountMismatch, err.Error()))
	case errors.Is(err, model.ErrInvalidOutcome):
		return c.JSON(http.StatusBadRequest, errorBody(codeInvalidOutcome, err.Error()))
	case errors.Is(err, model.ErrExpiredHold):
		return c.JSON(http.StatusGone, errorBody(codeExpiredHold, err.Error()))
	case errors.Is(err, model.ErrNotActive):
		return c.JSON(http.StatusConflict, errorBody(codeNotActive, err.Error()))
	case errors.Is(err, model.ErrAlreadyConverted):
		return c.JSON(http.StatusConflict, errorBody(codeAlreadyConverted, err.Error()))
	case errors.Is(err, model.ErrAlreadyCancelled):
		return c.JSON(http.StatusConflict, errorBody(codeAlreadyCancelled, err.Error()))
	case errors.Is(err, model.ErrDuplicateHold):
		return c.JSON(http.StatusBadRequest, errorBody(codeDuplicateHold, err.Error()))
	case errors.Is(err, model.ErrOrderSettled):
		return c.JSON(http.StatusConflict, errorBody(codeOrderSettled, err.Error()))
	case errors.Is(err, model.ErrInvalidState):
		return c.JSON(http.StatusConflict, errorBody(codeInvalidState, err.Error()))
	case errors.Is(err, model.ErrContention):
		logger.Warn("transaction aborted by lock contention", "method", c.Request().Method, "path", c.Path(), "err", err)
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, errorBody(codeRetry, "busy, retry the request"))
	}
	logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, errorBody(codeInternalError, "internal error"))
}
