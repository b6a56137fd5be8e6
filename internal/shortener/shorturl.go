// Package shortener allocates short codes and manages shortened URLs.
package shortener

import (
	"context"
	"errors"
	"time"
)

// Code represents a short URL code.
type Code string

// ShortURL represents a shortened URL entity.
type ShortURL struct {
	ID          string
	Code        Code
	OriginalURL string
	Clicks      int64
	OwnerID     string // empty for anonymous URLs
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the URL has been soft-deleted.
func (u *ShortURL) Deleted() bool {
	return u.DeletedAt != nil
}

// Patch is a partial update of a ShortURL. Nil fields are left unchanged.
type Patch struct {
	OriginalURL *string
}

// Storage-level failures.
var (
	ErrNotFound  = errors.New("short url not found")
	ErrCodeTaken = errors.New("short code already in use")
)

// Repository is the persistence contract for short URLs.
type Repository interface {
	// Save fails with ErrCodeTaken when a non-deleted URL already uses the code.
	Save(ctx context.Context, shortURL *ShortURL) error
	// GetByCode excludes soft-deleted URLs.
	GetByCode(ctx context.Context, code Code) (*ShortURL, error)
	// GetByID includes soft-deleted URLs.
	GetByID(ctx context.Context, id string) (*ShortURL, error)
	Update(ctx context.Context, id string, patch Patch) (*ShortURL, error)
	// IncrementClicks atomically adds one click and returns the new count.
	IncrementClicks(ctx context.Context, code Code) (int64, error)
	SoftDelete(ctx context.Context, id, ownerID string) (*ShortURL, error)
	// ListByOwner returns non-deleted URLs newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]ShortURL, error)
}
