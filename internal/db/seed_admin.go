package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/config"
	"github.com/geocoder89/memberhub/internal/domain/user"
	"github.com/geocoder89/memberhub/internal/validate"
)

// EnsureAdminUser creates the bootstrap admin from ADMIN_EMAIL and
// ADMIN_PASSWORD. An existing account with that email is promoted instead.
// Nothing happens when either setting is empty.
func EnsureAdminUser(ctx context.Context, users auth.UserStore, hasher auth.PasswordHasher, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	in := auth.SignUpInput{Name: cfg.AdminName, Email: cfg.AdminEmail, Password: cfg.AdminPassword}
	if err := in.Validate(); err != nil {
		var ve *validate.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("admin account: %s", ve.Message)
		}
		return err
	}

	existing, err := users.FindBy(ctx, user.FieldEmail, cfg.AdminEmail)
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		for _, u := range existing {
			if u.Role == user.RoleAdmin {
				continue
			}
			if err := users.SetRole(ctx, u.ID, user.RoleAdmin); err != nil {
				return err
			}
		}
		return nil
	}

	hash, err := hasher.Hash(cfg.AdminPassword)

	if err != nil {
		return err
	}

	_, err = users.Insert(ctx, user.User{
		Name:         cfg.AdminName,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
	})

	return err
}
