package db

import (
	"context"
	"errors"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/domain/user"
	"github.com/geocoder89/memberhub/internal/observability"
	"github.com/geocoder89/memberhub/internal/session"
)

// observe records latency and error class for one store call. Missing
// records are an expected answer, not a store error.
func observe(p *observability.Prom, backend, op string, fn func() error) error {
	var callErr error
	_ = p.ObserveStore(backend, op, func() error {
		callErr = fn()
		if errors.Is(callErr, session.ErrNotFound) || errors.Is(callErr, user.ErrNotFound) {
			return nil
		}
		return callErr
	})
	return callErr
}

type instrumentedUsers struct {
	next    auth.UserStore
	prom    *observability.Prom
	backend string
}

func (s instrumentedUsers) FindBy(ctx context.Context, field user.Field, value string) (out []user.User, err error) {
	err = observe(s.prom, s.backend, "users_find_by_"+string(field), func() error {
		out, err = s.next.FindBy(ctx, field, value)
		return err
	})
	return out, err
}

func (s instrumentedUsers) Insert(ctx context.Context, u user.User) (out user.User, err error) {
	err = observe(s.prom, s.backend, "users_insert", func() error {
		out, err = s.next.Insert(ctx, u)
		return err
	})
	return out, err
}

func (s instrumentedUsers) SetRole(ctx context.Context, id string, role user.Role) error {
	return observe(s.prom, s.backend, "users_set_role", func() error {
		return s.next.SetRole(ctx, id, role)
	})
}

func (s instrumentedUsers) List(ctx context.Context) (out []user.User, err error) {
	err = observe(s.prom, s.backend, "users_list", func() error {
		out, err = s.next.List(ctx)
		return err
	})
	return out, err
}

func (s instrumentedUsers) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

type instrumentedSessions struct {
	next    session.Store
	prom    *observability.Prom
	backend string
}

func (s instrumentedSessions) Get(ctx context.Context, key string) (out *session.Session, err error) {
	err = observe(s.prom, s.backend, "sessions_get", func() error {
		out, err = s.next.Get(ctx, key)
		return err
	})
	return out, err
}

func (s instrumentedSessions) Save(ctx context.Context, sess *session.Session) error {
	return observe(s.prom, s.backend, "sessions_save", func() error {
		return s.next.Save(ctx, sess)
	})
}

func (s instrumentedSessions) Delete(ctx context.Context, key string) error {
	return observe(s.prom, s.backend, "sessions_delete", func() error {
		return s.next.Delete(ctx, key)
	})
}

func (s instrumentedSessions) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}
