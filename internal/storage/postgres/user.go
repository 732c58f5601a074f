package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/user"
)

const (
	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	upsertUserSQL = `INSERT INTO users (id, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name`

	syncUserSequenceSQL = `SELECT setval(pg_get_serial_sequence('users', 'id'),
		GREATEST((SELECT MAX(id) FROM users), 1))`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, userExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking user %d: %w", id, err)
	}
	return ok, nil
}

// UpsertUsers writes the given users in one transaction.
func (r *UserRepository) UpsertUsers(ctx context.Context, users []user.User) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, u := range users {
			if _, err := tx.Exec(ctx, upsertUserSQL, u.ID, u.Email, u.FullName); err != nil {
				return fmt.Errorf("upserting user %d: %w", u.ID, err)
			}
		}
		if _, err := tx.Exec(ctx, syncUserSequenceSQL); err != nil {
			return fmt.Errorf("syncing user sequence: %w", err)
		}
		return nil
	})
}
