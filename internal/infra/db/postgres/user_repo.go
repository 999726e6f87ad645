package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/users"
)

type UserRepository struct{ db *sql.DB }

func NewUserRepository(db *sql.DB) *UserRepository { return &UserRepository{db: db} }

const userColumns = `id, username, email, password_hash, is_active, created_at`

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO users (username, email, password_hash, is_active, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id;`,
		u.Username, u.Email, u.PasswordHash, u.IsActive, created,
	).Scan(&u.ID)
	if err != nil {
		return err
	}
	u.CreatedAt = created
	return nil
}

func userRow(row *sql.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) ByID(ctx context.Context, id int64) (*domain.User, error) {
	return userRow(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1 LIMIT 1;`, id))
}

func (r *UserRepository) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	return userRow(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username=$1 LIMIT 1;`, username))
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return userRow(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=$1 LIMIT 1;`, email))
}
