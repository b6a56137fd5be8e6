// Package auth implements registration, login, and refresh-token rotation.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/serroba/url-shortener/internal/apperr"
	"github.com/serroba/url-shortener/internal/token"
)

// Failure messages surfaced to callers. Credential and token mismatches share
// a message class so callers cannot tell which check failed.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgRefreshNotFound    = "Refresh token not found"
	MsgRefreshInvalid     = "Invalid or expired refresh token"
	MsgUserNotFound       = "User not found"
	MsgEmailAlreadyTaken  = "Email already registered"
	MsgInvalidEmail       = "Email is required"
	MsgPasswordTooShort   = "Password must be at least 6 characters"

	minPasswordLength = 6
)

// Storage-level failures.
var (
	ErrEmailTaken = apperr.Conflict(MsgEmailAlreadyTaken)
	ErrNotFound   = errors.New("not found")
)

// User is a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// RefreshToken is a persisted refresh credential. Only the hash of the secret is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PublicUser is the caller-safe projection of a User.
type PublicUser struct {
	ID    string
	Email string
}

// TokenPair is the result of a refresh rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is the result of a successful login.
type LoginResult struct {
	TokenPair
	User PublicUser
}

// Repository is the persistence contract for users and refresh tokens.
type Repository interface {
	// CreateUser fails with ErrEmailTaken when the email is already registered.
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	// GetUserByEmail and GetUserByID exclude soft-deleted users and return ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*RefreshToken, error)
	// ListRefreshTokens returns the user's tokens newest first.
	ListRefreshTokens(ctx context.Context, userID string) ([]RefreshToken, error)
	// DeleteRefreshToken returns ErrNotFound when no row was removed.
	DeleteRefreshToken(ctx context.Context, id string) error
	// DeleteExpiredRefreshTokens removes the user's tokens that expired at or before now.
	DeleteExpiredRefreshTokens(ctx context.Context, userID string, now time.Time) error
	// WithTx runs fn against a transactional view of the repository.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}

// Hasher hashes and verifies passwords and refresh-token secrets.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) (bool, error)
}

// TokenIssuer mints and verifies signed tokens.
type TokenIssuer interface {
	Issue(claims token.Claims, ttl time.Duration) (string, error)
	Verify(raw string) (token.Claims, error)
}
