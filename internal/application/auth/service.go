package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/depscan-io/depscan/internal/application"
	domain "github.com/depscan-io/depscan/internal/domain/users"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username or email already registered")
	ErrInactiveUser       = errors.New("user account is disabled")
)

// Service implements registration, login and token verification.
type Service struct {
	Repo      domain.Repository
	JWTSecret []byte
	TokenTTL  time.Duration
	Clock     application.Clock
}

type RegisterCommand struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginCommand struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Session struct {
	Token     string       `json:"access_token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*domain.User, error) {
	if len(cmd.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	if existing, err := s.Repo.ByUsername(ctx, cmd.Username); err == nil && existing != nil {
		return nil, ErrUserExists
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing, err := s.Repo.ByEmail(ctx, cmd.Email); err == nil && existing != nil {
		return nil, ErrUserExists
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     cmd.Username,
		Email:        cmd.Email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    s.Clock.Now(),
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, cmd LoginCommand) (*Session, error) {
	user, err := s.Repo.ByUsername(ctx, cmd.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	now := s.Clock.Now()
	expires := now.Add(s.TokenTTL)
	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", user.ID),
		"usr": user.Username,
		"iat": now.Unix(),
		"exp": expires.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		Token:     token,
		TokenType: "bearer",
		ExpiresAt: expires,
		User:      user,
	}, nil
}

// Profile returns the user behind an authenticated request.
func (s *Service) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	return s.Repo.ByID(ctx, userID)
}
