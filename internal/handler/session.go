package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/utils"
)

// SessionHandler issues guest session tokens.  Registered users get their
// tokens from the identity service, signed with the same secret.
type SessionHandler struct {
	Secret string
	TTL    time.Duration
	Logger *slog.Logger
}

func NewSessionHandler(secret string, ttl time.Duration, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{Secret: secret, TTL: ttl, Logger: logger}
}

// Create handles POST /v1/sessions.  It returns a fresh guest session id
// and the bearer token carrying it.
func (h *SessionHandler) Create(c echo.Context) error {
	tok, err := utils.NewSessionToken(h.Secret, "", h.TTL)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"sessionId": tok.SessionID,
		"token":     tok.Token,
		"expiresAt": tok.Exp,
	})
}
