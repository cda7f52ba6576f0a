package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const idBytes = 32

type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer wraps session ids into HS256-signed cookie values and derives the
// store key for an id.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(sessionID string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()

	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the session id carried by a cookie value.
func (s *Signer) Verify(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.New("invalid session token")
	}

	if claims.SessionID == "" {
		return "", errors.New("missing session id")
	}

	return claims.SessionID, nil
}

// Key is a deterministic HMAC of the id (server-side pepper = session secret).
// Stores index by this, never by the raw id.
func (s *Signer) Key(sessionID string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(sessionID))
	return hex.EncodeToString(h.Sum(nil))
}

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
