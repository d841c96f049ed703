package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUser loads a single user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var (
		user      User
		signature *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, username, email, role, signature_path FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Username, &user.Email, &user.Role, &signature)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w %d", ErrUserNotFound, id)
	}
	if err != nil {
		return User{}, err
	}
	if signature != nil {
		user.SignaturePath = *signature
	}
	return user, nil
}
