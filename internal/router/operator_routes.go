package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
)

// RegisterOperator registers the internal routes guarded by the operator
// key.
func RegisterOperator(e *echo.Echo, op *handler.OperatorHandler, operatorKeyHash string) {
	g := e.Group("/v1/internal")
	g.Use(middleware.RequireOperatorKey(operatorKeyHash))

	g.POST("/orders/:id/settle", op.Settle)
	g.POST("/orders/:id/awaiting-verification", op.AwaitingVerification)
	g.POST("/orders/:id/reverse", op.Reverse)
	g.POST("/sweep", op.Sweep)
}
