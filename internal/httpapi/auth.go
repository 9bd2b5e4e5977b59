package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"teapos/backend/internal/domain"
	"teapos/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type userStore interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

type authClaims struct {
	jwtlib.RegisteredClaims
}

// AuthManager issues and validates the bearer tokens used by the admin UI.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
	users  userStore
}

func NewAuthManager(secret string, ttl time.Duration, users userStore) *AuthManager {
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	return &AuthManager{
		secret: []byte(secret),
		ttl:    ttl,
		users:  users,
	}
}

// EnsureDefaultAdmin seeds the admin account if no such user exists yet. The
// password comes from SEED_ADMIN_PASSWORD, defaulting to a dev-only value.
func (m *AuthManager) EnsureDefaultAdmin(ctx context.Context) error {
	if _, err := m.users.GetUserByUsername(ctx, "admin"); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check admin user: %w", err)
	}

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("[auth] WARNING: seeding admin with default dev password. Set SEED_ADMIN_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	return m.users.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		CreatedAt: time.Now().UTC(),
	})
}

func (m *AuthManager) Login(ctx context.Context, username, password string) (*domain.LoginResponse, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := m.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(m.ttl)
	claims := authClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    "teapos",
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &domain.LoginResponse{
		Username:    user.Username,
		AccessToken: signed,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (m *AuthManager) ParseToken(tokenString string) (domain.Actor, error) {
	var claims authClaims
	_, err := jwtlib.ParseWithClaims(tokenString, &claims, func(t *jwtlib.Token) (any, error) {
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return domain.Actor{}, ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return domain.Actor{}, ErrInvalidCredentials
	}
	return domain.Actor{Username: claims.Subject}, nil
}
