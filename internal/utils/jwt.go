package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionToken represents a signed JWT carrying a session id along with its
// expiry.  Guests receive one from POST /v1/sessions; logged-in users may
// present any token signed with the same secret whose subject is their id.
type SessionToken struct {
	Token     string    // the serialized JWT string
	SessionID string    // the subject (sub) claim
	Exp       time.Time // the UTC expiration time
}

// NewSessionToken builds and signs an HS256 JWT whose subject is sessionID.
// When sessionID is empty a random guest id is generated.
func NewSessionToken(secret, sessionID string, ttl time.Duration) (SessionToken, error) {
	if secret == "" {
		return SessionToken{}, errors.New("session token: empty signing secret")
	}
	if sessionID == "" {
		raw, err := randomHex(16)
		if err != nil {
			return SessionToken{}, err
		}
		sessionID = "guest-" + raw
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	// sub carries the session id, exp and iat are the standard claims
	// checked by SessionAuth.
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, SessionID: sessionID, Exp: exp}, nil
}

// ParseSessionToken validates raw with secret and returns its subject.
// Only HMAC signing methods are accepted.
func ParseSessionToken(secret, raw string) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Type assert the signing method to HMAC; reject others.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
