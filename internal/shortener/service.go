package shortener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/url-shortener/internal/apperr"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds the code allocation loop.
const DefaultMaxAttempts = 5

// ErrCodeSpaceExhausted is returned when every allocation attempt collided.
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique short code")

// Option configures a Service.
type Option func(*Service)

// WithMaxAttempts sets how many candidate codes Create tries.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates short code allocation, ownership-checked mutation and
// redirect resolution.
type Service struct {
	store       Repository
	generate    CodeGenerator
	baseURL     string
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a URL service.
func NewService(store Repository, generate CodeGenerator, baseURL string, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		generate:    generate,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ShortLink returns the fully qualified short URL for code.
func (s *Service) ShortLink(code Code) string {
	return s.baseURL + "/" + string(code)
}

// Create allocates a fresh code for rawURL. ownerID is empty for anonymous callers.
func (s *Service) Create(ctx context.Context, rawURL, ownerID string) (*ShortURL, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code := Code(s.generate())

		_, err := s.store.GetByCode(ctx, code)
		if err == nil {
			s.logger.Debug("short code collision", zap.String("code", string(code)), zap.Int("attempt", attempt))

			continue
		}

		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check code: %w", err)
		}

		now := s.now()
		shortURL := &ShortURL{
			ID:          uuid.NewString(),
			Code:        code,
			OriginalURL: rawURL,
			OwnerID:     ownerID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.store.Save(ctx, shortURL)
		if errors.Is(err, ErrCodeTaken) {
			// Lost a race with a concurrent insert of the same code.
			s.logger.Debug("short code taken on insert", zap.String("code", string(code)), zap.Int("attempt", attempt))

			continue
		}

		if err != nil {
			return nil, fmt.Errorf("save short url: %w", err)
		}

		return shortURL, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, s.maxAttempts)
}

// Update applies patch to a URL owned by callerID.
func (s *Service) Update(ctx context.Context, id string, patch Patch, callerID string) (*ShortURL, error) {
	if patch.OriginalURL != nil {
		if err := ValidateURL(*patch.OriginalURL); err != nil {
			return nil, err
		}
	}

	if err := s.authorize(ctx, id, callerID, "You cannot update this URL"); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, id, patch)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("URL not found")
	}

	if err != nil {
		return nil, fmt.Errorf("update short url: %w", err)
	}

	return updated, nil
}

// Delete soft-deletes a URL owned by callerID.
func (s *Service) Delete(ctx context.Context, id, callerID string) (*ShortURL, error) {
	if err := s.authorize(ctx, id, callerID, "You cannot delete this URL"); err != nil {
		return nil, err
	}

	deleted, err := s.store.SoftDelete(ctx, id, callerID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("URL not found")
	}

	if err != nil {
		return nil, fmt.Errorf("delete short url: %w", err)
	}

	return deleted, nil
}

// ListByOwner returns the owner's active URLs newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]ShortURL, error) {
	urls, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list short urls: %w", err)
	}

	return urls, nil
}

// Get returns the active URL for code.
func (s *Service) Get(ctx context.Context, code Code) (*ShortURL, error) {
	shortURL, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Short URL not found")
	}

	if err != nil {
		return nil, fmt.Errorf("get short url: %w", err)
	}

	return shortURL, nil
}

// Resolve returns the destination for code and records the hit. The
// increment is checked against the store, so a URL deleted behind a stale
// cache entry stops redirecting. Other increment failures are logged and do
// not fail the redirect.
func (s *Service) Resolve(ctx context.Context, code Code) (string, error) {
	shortURL, err := s.Get(ctx, code)
	if err != nil {
		return "", err
	}

	_, err = s.store.IncrementClicks(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return "", apperr.NotFound("Short URL not found")
	}

	if err != nil {
		s.logger.Warn("failed to record click",
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}

	return shortURL.OriginalURL, nil
}

// RecordClick increments the click counter for code and returns the new count.
func (s *Service) RecordClick(ctx context.Context, code Code) (int64, error) {
	clicks, err := s.store.IncrementClicks(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return 0, apperr.NotFound("Short URL not found")
	}

	if err != nil {
		return 0, fmt.Errorf("record click: %w", err)
	}

	return clicks, nil
}

func (s *Service) authorize(ctx context.Context, id, callerID, forbidden string) error {
	shortURL, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("URL not found")
	}

	if err != nil {
		return fmt.Errorf("get short url: %w", err)
	}

	if shortURL.Deleted() {
		return apperr.NotFound("URL not found")
	}

	if shortURL.OwnerID == "" || shortURL.OwnerID != callerID {
		return apperr.Forbidden(forbidden)
	}

	return nil
}
