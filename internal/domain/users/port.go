package users

import "context"

// Repository port for user persistence
type Repository interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id int64) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
}
