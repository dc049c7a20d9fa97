package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/utils"
)

// OperatorKeyHeader carries the shared key for the internal routes.
const OperatorKeyHeader = "X-Operator-Key"

// RequireOperatorKey guards operator routes (settlement, reversal, manual
// sweep) with a key whose bcrypt hash is configured.  With no hash
// configured every request is refused.
func RequireOperatorKey(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(OperatorKeyHeader)
			if !utils.VerifyOperatorKey(hash, key) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "forbidden"})
			}
			return next(c)
		}
	}
}
