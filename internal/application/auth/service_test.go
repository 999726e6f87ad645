package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscan-io/depscan/internal/application"
	domain "github.com/depscan-io/depscan/internal/domain/users"
)

type fakeUserRepo struct {
	users  map[int64]*domain.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*domain.User), nextID: 1}
}

func (r *fakeUserRepo) Create(ctx context.Context, u *domain.User) error {
	u.ID = r.nextID
	r.nextID++
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) ByID(ctx context.Context, id int64) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

var secret = []byte("0123456789abcdef0123456789abcdef")

func newAuthService() (*Service, *fakeUserRepo) {
	repo := newFakeUserRepo()
	return &Service{
		Repo:      repo,
		JWTSecret: secret,
		TokenTTL:  time.Hour,
		Clock:     application.SystemClock{},
	}, repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterCommand{
		Username: "alice", Email: "alice@example.com", Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	session, err := svc.Login(ctx, LoginCommand{Username: "alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", session.TokenType)
	assert.Equal(t, user.ID, session.User.ID)

	// token round-trips with the same secret
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(session.Token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "1", claims["sub"])
	assert.Equal(t, "alice", claims["usr"])
}

func TestRegisterShortPassword(t *testing.T) {
	svc, _ := newAuthService()
	_, err := svc.Register(context.Background(), RegisterCommand{
		Username: "alice", Email: "a@example.com", Password: "short",
	})
	assert.Error(t, err)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterCommand{Username: "alice", Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterCommand{Username: "alice", Email: "b@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Register(ctx, RegisterCommand{Username: "bob", Email: "a@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterCommand{Username: "alice", Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginCommand{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newAuthService()
	_, err := svc.Login(context.Background(), LoginCommand{Username: "ghost", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginInactiveUser(t *testing.T) {
	svc, repo := newAuthService()
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterCommand{Username: "alice", Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)
	repo.users[u.ID].IsActive = false

	_, err = svc.Login(ctx, LoginCommand{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, ErrInactiveUser)
}
