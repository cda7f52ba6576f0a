package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geocoder89/memberhub/internal/domain/user"
)

// UsersRepo keeps users in process memory. It backs local development and
// tests; nothing survives a restart.
type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) FindBy(_ context.Context, field user.Field, value string) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []user.User{}
	for _, u := range r.items {
		var candidate string
		switch field {
		case user.FieldEmail:
			candidate = u.Email
		case user.FieldName:
			candidate = u.Name
		default:
			return nil, fmt.Errorf("unsupported lookup field %q", field)
		}

		if candidate == value {
			out = append(out, u)
		}
	}

	sortByCreated(out)
	return out, nil
}

func (r *UsersRepo) Insert(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// exact match, like the unique index on the other backends
	for _, existing := range r.items {
		if existing.Email == u.Email {
			return user.User{}, user.ErrEmailTaken
		}
	}

	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now

	r.items[u.ID] = u
	return u, nil
}

func (r *UsersRepo) SetRole(_ context.Context, id string, role user.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u
	return nil
}

func (r *UsersRepo) List(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, u)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *UsersRepo) Ping(context.Context) error { return nil }

func sortByCreated(us []user.User) {
	sort.SliceStable(us, func(i, j int) bool { return us[i].CreatedAt.Before(us[j].CreatedAt) })
}
