package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/handler"
)

// RegisterRoutes registers unauthenticated infrastructure routes: the
// health check and, when a metrics handler is supplied, /metrics.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc, metrics http.Handler) {
	e.GET("/healthz", health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterPublic registers routes that need no session: guest session
// issuance and the cached inventory summary.
func RegisterPublic(e *echo.Echo, s *handler.SessionHandler, inv *handler.InventoryHandler, limit, cache echo.MiddlewareFunc) {
	e.POST("/v1/sessions", s.Create, orPass(limit))
	e.GET("/v1/events/:id/inventory", inv.Summary, orPass(cache))
}

// orPass turns a nil middleware into a pass-through so callers may leave
// optional Redis-backed layers out.
func orPass(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m != nil {
		return m
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
}
