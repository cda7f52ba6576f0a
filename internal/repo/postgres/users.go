package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/geocoder89/memberhub/internal/domain/user"
)

// Querier is the subset of *pgxpool.Pool the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const userColumns = `id, email, password_hash, name, role, created_at, updated_at`

// lookup columns; never interpolate anything else into SQL
var lookupColumns = map[user.Field]string{
	user.FieldEmail: "email",
	user.FieldName:  "name",
}

const uniqueViolation = "23505"

type UsersRepo struct {
	pool Querier
}

func NewUsersRepo(pool Querier) *UsersRepo {
	return &UsersRepo{pool: pool}
}

func (r *UsersRepo) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name          TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (r *UsersRepo) FindBy(ctx context.Context, field user.Field, value string) ([]user.User, error) {
	column, ok := lookupColumns[field]
	if !ok {
		return nil, fmt.Errorf("unsupported lookup field %q", field)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`,
		value,
	)
	if err != nil {
		return nil, err
	}

	return collectUsers(rows)
}

func (r *UsersRepo) Insert(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()

	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) SetRole(ctx context.Context, id string, role user.Role) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`,
		id, string(role),
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}

	return collectUsers(rows)
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func collectUsers(rows pgx.Rows) ([]user.User, error) {
	defer rows.Close()

	out := []user.User{}
	for rows.Next() {
		var (
			u    user.User
			role string
		)

		err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.PasswordHash,
			&u.Name,
			&role,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		u.Role = user.Role(role)
		if !u.Role.Valid() {
			u.Role = user.RoleUser
		}

		out = append(out, u)
	}

	return out, rows.Err()
}
