package middleware

// identity.go holds the context key shared by SessionAuth, the rate
// limiter and the handlers.

import "github.com/labstack/echo/v4"

const sessionKey = "session_id"

// SessionID returns the session id stored by SessionAuth, or "" when the
// request is unauthenticated.
func SessionID(c echo.Context) string {
	if v, ok := c.Get(sessionKey).(string); ok {
		return v
	}
	return ""
}

// sessionOrAnon is SessionID with a placeholder for anonymous callers, used
// when building rate limit keys.
func sessionOrAnon(c echo.Context) string {
	if s := SessionID(c); s != "" {
		return s
	}
	return "anon"
}
