package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. A janitor goroutine sweeps expired
// entries when sweepEvery > 0; call Close to stop it.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]Session

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		m:    make(map[string]Session),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if sweepEvery > 0 {
		go s.janitor(sweepEvery)
	} else {
		close(s.done)
	}

	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Session, error) {
	now := time.Now()

	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if e.Expired(now) {
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	return &e, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	if sess == nil || sess.Key == "" {
		return errors.New("session key is required")
	}

	stored := *sess
	stored.ID = ""

	s.mu.Lock()
	s.m[sess.Key] = stored
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.m[key]
	delete(s.m, key)
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len counts stored entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryStore) janitor(every time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.m {
		if e.Expired(now) {
			delete(s.m, k)
		}
	}
}
