package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
)

// RegisterSession registers the routes that act on behalf of the calling
// session.  SessionAuth runs first so the rate limiter can key on the
// session id.
func RegisterSession(e *echo.Echo, r *handler.ReservationHandler, o *handler.OrderHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.SessionAuth(jwtSecret))
	limit = orPass(limit)

	g.POST("/reservations", r.Create, limit)
	g.POST("/reservations/bulk", r.CreateBulk, limit)
	g.GET("/reservations", r.List)
	g.GET("/reservations/:id", r.Get)
	g.DELETE("/reservations/:id", r.Cancel)
	g.POST("/reservations/:id/extend", r.Extend, limit)
	g.POST("/reservations/:id/convert", r.Convert, limit)

	g.POST("/orders", o.Create, limit)
	g.GET("/orders/:id", o.Get)
}
