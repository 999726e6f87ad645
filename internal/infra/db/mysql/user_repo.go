package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/depscan-io/depscan/internal/domain/users"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (username, email, password_hash, is_active, created_at)
VALUES (?,?,?,?,?);`,
		u.Username, u.Email, u.PasswordHash, u.IsActive, created,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	u.CreatedAt = created
	return nil
}

const userColumns = `id, username, email, password_hash, is_active, created_at`

func userRow(row *sql.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) ByID(ctx context.Context, id int64) (*domain.User, error) {
	return userRow(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=? LIMIT 1;`, id))
}

func (r *UserRepository) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	return userRow(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username=? LIMIT 1;`, username))
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return userRow(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=? LIMIT 1;`, email))
}
