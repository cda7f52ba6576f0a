package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/memberhub/internal/domain/user"
)

const DefaultTTL = time.Hour

// Manager applies the session lifecycle on top of a Store: lazy anonymous
// sessions, a fresh id on every authentication, expiry, and outright deletion
// on logout.
type Manager struct {
	store  Store
	signer *Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store Store, signer *Signer, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Manager{
		store:  store,
		signer: signer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock swaps the time source; tests use it to step past expiry.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Now() time.Time {
	return m.now()
}

// Anonymous returns an unsaved, unauthenticated session.
func (m *Manager) Anonymous() *Session {
	return &Session{CreatedAt: m.now().UTC()}
}

// Load resolves a cookie value. Missing, forged, unknown and expired cookies
// all yield an anonymous session; only store faults are returned as errors.
func (m *Manager) Load(ctx context.Context, cookieValue string) (*Session, error) {
	if cookieValue == "" {
		return m.Anonymous(), nil
	}

	id, err := m.signer.Verify(cookieValue)
	if err != nil {
		return m.Anonymous(), nil
	}

	key := m.signer.Key(id)

	s, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return m.Anonymous(), nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if s.Expired(m.now()) {
		if err := m.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("drop expired session: %w", err)
		}
		return m.Anonymous(), nil
	}

	s.ID = id
	s.Key = key
	return s, nil
}

// Authenticate replaces current with a new authenticated session under a
// fresh id and persists it. The previous record, if any, is deleted.
func (m *Manager) Authenticate(ctx context.Context, current *Session, userID, name string, role user.Role) (*Session, error) {
	if current.Persisted() {
		if err := m.store.Delete(ctx, current.Key); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("drop previous session: %w", err)
		}
	}

	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := m.now().UTC()

	next := &Session{
		ID:            id,
		Key:           m.signer.Key(id),
		Authenticated: true,
		UserID:        userID,
		Name:          name,
		Role:          role,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.ttl),
	}

	if err := m.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return next, nil
}

// Destroy deletes the backing record. Unsaved sessions are a no-op.
func (m *Manager) Destroy(ctx context.Context, s *Session) error {
	if !s.Persisted() {
		return nil
	}

	err := m.store.Delete(ctx, s.Key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// CookieValue signs the session id for the client.
func (m *Manager) CookieValue(s *Session) (string, error) {
	if s == nil || s.ID == "" {
		return "", errors.New("session has no id")
	}
	return m.signer.Sign(s.ID, s.ExpiresAt)
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
