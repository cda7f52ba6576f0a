// Package session owns server-side session records: how they are keyed,
// where they are stored and when they stop being valid.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/memberhub/internal/domain/user"
)

var ErrNotFound = errors.New("session not found")

// Session is the server-held state behind a session cookie. ID is the
// capability the client holds; it is never persisted. Stores index records by
// Key, an HMAC of ID.
type Session struct {
	ID            string    `json:"-" bson:"-"`
	Key           string    `json:"-" bson:"_id"`
	Authenticated bool      `json:"authenticated" bson:"authenticated"`
	UserID        string    `json:"userId,omitempty" bson:"userId,omitempty"`
	Name          string    `json:"name,omitempty" bson:"name,omitempty"`
	Role          user.Role `json:"role,omitempty" bson:"role,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt" bson:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// IsAuthenticated is false for nil, unauthenticated and expired sessions alike.
func (s *Session) IsAuthenticated(now time.Time) bool {
	return s != nil && s.Authenticated && !s.Expired(now)
}

// Persisted reports whether the session has a backing record.
func (s *Session) Persisted() bool {
	return s != nil && s.Key != ""
}

type Store interface {
	Get(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
