package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/config"
	"github.com/geocoder89/memberhub/internal/db"
	"github.com/geocoder89/memberhub/internal/domain/user"
	"github.com/geocoder89/memberhub/internal/observability"
	"github.com/geocoder89/memberhub/internal/security"
)

const defaultTimeout = 30 * time.Second

var timeout time.Duration

// openUsers is swapped in tests.
var openUsers = func(ctx context.Context, cfg config.Config) (auth.UserStore, func(context.Context) error, error) {
	// stdout carries command output
	log := slog.New(observability.NewTraceHandler(slog.NewTextHandler(os.Stderr, nil)))

	stores, err := db.OpenUsers(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return stores.Users, stores.Close, nil
}

// NewRootCmd creates the operator CLI. It talks to the credential store
// directly, so it works before any admin account exists.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "memberhub-admin",
		Short:        "Manage memberhub accounts",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "timeout for store operations")

	cmd.AddCommand(newSeedAdminCmd())
	cmd.AddCommand(newRoleCmd("promote", user.RoleAdmin))
	cmd.AddCommand(newRoleCmd("demote", user.RoleUser))
	cmd.AddCommand(newSetRoleCmd())
	cmd.AddCommand(newListUsersCmd())

	return cmd
}

func newSeedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or promote the account named by ADMIN_EMAIL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUsers(cmd, func(ctx context.Context, cfg config.Config, users auth.UserStore) error {
				if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
					return oops.Code("CONFIG_INVALID").Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required")
				}
				if err := db.EnsureAdminUser(ctx, users, security.NewHasher(), cfg); err != nil {
					return oops.Code("SEED_FAILED").With("email", cfg.AdminEmail).Wrap(err)
				}
				cmd.Printf("admin %s is ready\n", cfg.AdminEmail)
				return nil
			})
		},
	}
}

func newRoleCmd(use string, role user.Role) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: fmt.Sprintf("Set the role of every account with this email to %q", role),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd, func(ctx context.Context, _ config.Config, users auth.UserStore) error {
				return setRole(ctx, cmd, users, args[0], role)
			})
		},
	}
}

func newSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Set the role of every account with this email",
		Long:  `Role is one of "user" or "admin".`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := user.ParseRole(strings.ToLower(strings.TrimSpace(args[1])))
			if err != nil {
				return oops.Code("INVALID_ROLE").With("role", args[1]).Wrap(err)
			}

			return withUsers(cmd, func(ctx context.Context, _ config.Config, users auth.UserStore) error {
				return setRole(ctx, cmd, users, args[0], role)
			})
		},
	}
}

func newListUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-users",
		Short: "Print every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUsers(cmd, func(ctx context.Context, _ config.Config, users auth.UserStore) error {
				all, err := users.List(ctx)
				if err != nil {
					return oops.Code("STORE_FAULT").With("operation", "list users").Wrap(err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
				for _, u := range all {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
				}
				return w.Flush()
			})
		},
	}
}

func setRole(ctx context.Context, cmd *cobra.Command, users auth.UserStore, email string, role user.Role) error {
	email = strings.TrimSpace(email)

	matches, err := users.FindBy(ctx, user.FieldEmail, email)
	if err != nil {
		return oops.Code("STORE_FAULT").With("operation", "find user").Wrap(err)
	}
	if len(matches) == 0 {
		return oops.Code("USER_NOT_FOUND").With("email", email).Wrap(user.ErrNotFound)
	}

	for _, u := range matches {
		if err := users.SetRole(ctx, u.ID, role); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				continue
			}
			return oops.Code("STORE_FAULT").With("operation", "set role").With("id", u.ID).Wrap(err)
		}
		cmd.Printf("%s (%s) is now %s\n", u.Name, u.ID, role)
	}
	return nil
}

func withUsers(cmd *cobra.Command, fn func(context.Context, config.Config, auth.UserStore) error) error {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	users, closeFn, err := openUsers(ctx, cfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("backend", cfg.UserStore).Wrap(err)
	}
	defer func() { _ = closeFn(context.Background()) }()

	return fn(ctx, cfg, users)
}
