package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/serroba/url-shortener/internal/apperr"
	"github.com/serroba/url-shortener/internal/token"
	"go.uber.org/zap"
)

// Config holds token lifetimes.
type Config struct {
	// AccessTTL is the embedded expiry of access tokens.
	AccessTTL time.Duration
	// RefreshTTL is the embedded expiry of refresh tokens.
	RefreshTTL time.Duration
	// RefreshStoreTTL is the persisted expiry checked during rotation.
	RefreshStoreTTL time.Duration
}

// DefaultConfig returns the standard token lifetimes.
func DefaultConfig() Config {
	return Config{
		AccessTTL:       3 * time.Hour,
		RefreshTTL:      24 * time.Hour,
		RefreshStoreTTL: 24 * time.Hour,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for persisted expiries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates registration, login and refresh rotation.
type Service struct {
	repo      Repository
	hasher    Hasher
	issuer    TokenIssuer
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	dummyHash string
}

// NewService creates an auth service.
func NewService(
	repo Repository,
	hasher Hasher,
	issuer TokenIssuer,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) (*Service, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.RefreshStoreTTL <= 0 {
		return nil, errors.New("token lifetimes must be > 0")
	}

	// Unknown emails are verified against this digest so login takes the same
	// time whether or not the account exists.
	dummy, err := hasher.Hash("timing-equalisation-placeholder")
	if err != nil {
		return nil, fmt.Errorf("hash placeholder: %w", err)
	}

	s := &Service{
		repo:      repo,
		hasher:    hasher,
		issuer:    issuer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		dummyHash: dummy,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user. Only the password hash is persisted.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperr.InvalidInput(MsgInvalidEmail)
	}

	if len(password) < minPasswordLength {
		return nil, apperr.InvalidInput(MsgPasswordTooShort)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, email, digest)
	if errors.Is(err, ErrEmailTaken) {
		return nil, ErrEmailTaken
	}

	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	digest := s.dummyHash
	if user != nil {
		digest = user.PasswordHash
	}

	ok, err := s.hasher.Verify(password, digest)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if user == nil || !ok {
		return nil, apperr.Unauthorized(MsgInvalidCredentials)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.storeRefreshToken(ctx, s.repo, user.ID, pair.RefreshToken); err != nil {
		return nil, err
	}

	return &LoginResult{
		TokenPair: *pair,
		User:      PublicUser{ID: user.ID, Email: user.Email},
	}, nil
}

// Refresh rotates a refresh token. The presented token must match exactly one
// unexpired stored row for userID; that row is removed in the same transaction
// that persists its replacement, so each refresh token rotates at most once.
func (s *Service) Refresh(ctx context.Context, userID, presented string) (*TokenPair, error) {
	stored, err := s.repo.ListRefreshTokens(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}

	if len(stored) == 0 {
		return nil, apperr.Unauthorized(MsgRefreshNotFound)
	}

	claims, err := s.issuer.Verify(presented)
	if err != nil || claims.Type != token.TypeRefresh || claims.Subject != userID {
		return nil, apperr.Unauthorized(MsgRefreshInvalid)
	}

	match, err := s.matchRefreshToken(presented, stored)
	if err != nil {
		return nil, err
	}

	if match == nil {
		return nil, apperr.Unauthorized(MsgRefreshInvalid)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized(MsgUserNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.storeRefreshToken(ctx, tx, user.ID, pair.RefreshToken); err != nil {
			return err
		}

		if err := tx.DeleteRefreshToken(ctx, match.ID); err != nil {
			return fmt.Errorf("delete refresh token: %w", err)
		}

		return tx.DeleteExpiredRefreshTokens(ctx, user.ID, s.now())
	})
	if errors.Is(err, ErrNotFound) {
		// Another rotation consumed the matched row first.
		return nil, apperr.Unauthorized(MsgRefreshInvalid)
	}

	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.logger.Debug("refresh token rotated", zap.String("user_id", user.ID))

	return pair, nil
}

// Profile returns the public projection of an active user.
func (s *Service) Profile(ctx context.Context, userID string) (*PublicUser, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized(MsgUserNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	return &PublicUser{ID: user.ID, Email: user.Email}, nil
}

func (s *Service) matchRefreshToken(presented string, stored []RefreshToken) (*RefreshToken, error) {
	now := s.now()

	for i := range stored {
		if !stored[i].ExpiresAt.After(now) {
			continue
		}

		ok, err := s.hasher.Verify(presented, stored[i].TokenHash)
		if err != nil {
			return nil, fmt.Errorf("verify refresh token: %w", err)
		}

		if ok {
			return &stored[i], nil
		}
	}

	return nil, nil
}

func (s *Service) issuePair(user *User) (*TokenPair, error) {
	access, err := s.issuer.Issue(token.Claims{
		Subject: user.ID,
		Email:   user.Email,
		Type:    token.TypeAccess,
	}, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.issuer.Issue(token.Claims{
		Subject: user.ID,
		Email:   user.Email,
		Type:    token.TypeRefresh,
	}, s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) storeRefreshToken(ctx context.Context, repo Repository, userID, raw string) error {
	digest, err := s.hasher.Hash(raw)
	if err != nil {
		return fmt.Errorf("hash refresh token: %w", err)
	}

	if _, err := repo.CreateRefreshToken(ctx, userID, digest, s.now().Add(s.cfg.RefreshStoreTTL)); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}

	return nil
}
