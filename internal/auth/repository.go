package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/online-shop/internal/db"
)

// Repository is the read side of the user store used for authentication.
type Repository interface {
	GetByToken(ctx context.Context, token string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}

type repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

const selectUser = `
	SELECT id, username, email, password_hash, COALESCE(api_token, ''), is_staff
	FROM users
`

func (r *repository) GetByToken(ctx context.Context, token string) (*User, error) {
	return r.getOne(ctx, selectUser+" WHERE api_token = $1", token)
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, selectUser+" WHERE username = $1", username)
}

func (r *repository) getOne(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.APIToken,
		&u.IsStaff,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user: %w", err)
	}

	return &u, nil
}
