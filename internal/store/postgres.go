package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/serroba/url-shortener/internal/shortener"
)

const uniqueViolation = "23505"

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUUID guards uuid columns against malformed identifiers from the request path.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)

	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PostgresStore is a PostgreSQL implementation of shortener.Repository.
type PostgresStore struct {
	db dbtx
}

// NewPostgresStore creates a new PostgreSQL-backed URL store.
func NewPostgresStore(db dbtx) *PostgresStore {
	return &PostgresStore{db: db}
}

const shortURLColumns = `id::text, code, original_url, clicks, COALESCE(owner_id::text, ''), created_at, updated_at, deleted_at`

func (p *PostgresStore) Save(ctx context.Context, shortURL *shortener.ShortURL) error {
	query := `
		INSERT INTO short_urls (id, code, original_url, clicks, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.Exec(ctx, query,
		shortURL.ID,
		string(shortURL.Code),
		shortURL.OriginalURL,
		shortURL.Clicks,
		nullableString(shortURL.OwnerID),
		shortURL.CreatedAt,
		shortURL.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return shortener.ErrCodeTaken
	}

	if err != nil {
		return fmt.Errorf("insert short url: %w", err)
	}

	return nil
}

func (p *PostgresStore) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortURL, error) {
	query := `SELECT ` + shortURLColumns + ` FROM short_urls WHERE code = $1 AND deleted_at IS NULL`

	return scanShortURL(p.db.QueryRow(ctx, query, string(code)))
}

func (p *PostgresStore) GetByID(ctx context.Context, id string) (*shortener.ShortURL, error) {
	if !isUUID(id) {
		return nil, shortener.ErrNotFound
	}

	query := `SELECT ` + shortURLColumns + ` FROM short_urls WHERE id = $1`

	return scanShortURL(p.db.QueryRow(ctx, query, id))
}

func (p *PostgresStore) Update(ctx context.Context, id string, patch shortener.Patch) (*shortener.ShortURL, error) {
	if !isUUID(id) {
		return nil, shortener.ErrNotFound
	}

	query := `
		UPDATE short_urls
		SET original_url = COALESCE($2, original_url), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + shortURLColumns

	return scanShortURL(p.db.QueryRow(ctx, query, id, patch.OriginalURL))
}

func (p *PostgresStore) IncrementClicks(ctx context.Context, code shortener.Code) (int64, error) {
	query := `
		UPDATE short_urls
		SET clicks = clicks + 1
		WHERE code = $1 AND deleted_at IS NULL
		RETURNING clicks
	`

	var clicks int64

	err := p.db.QueryRow(ctx, query, string(code)).Scan(&clicks)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shortener.ErrNotFound
	}

	if err != nil {
		return 0, fmt.Errorf("increment clicks: %w", err)
	}

	return clicks, nil
}

func (p *PostgresStore) SoftDelete(ctx context.Context, id, ownerID string) (*shortener.ShortURL, error) {
	if !isUUID(id) || !isUUID(ownerID) {
		return nil, shortener.ErrNotFound
	}

	query := `
		UPDATE short_urls
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
		RETURNING ` + shortURLColumns

	return scanShortURL(p.db.QueryRow(ctx, query, id, ownerID))
}

func (p *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]shortener.ShortURL, error) {
	if !isUUID(ownerID) {
		return []shortener.ShortURL{}, nil
	}

	query := `
		SELECT ` + shortURLColumns + `
		FROM short_urls
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
	`

	rows, err := p.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list short urls: %w", err)
	}

	urls, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shortener.ShortURL, error) {
		u, err := scanShortURL(row)
		if err != nil {
			return shortener.ShortURL{}, err
		}

		return *u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list short urls: %w", err)
	}

	return urls, nil
}

func scanShortURL(row pgx.Row) (*shortener.ShortURL, error) {
	var (
		u    shortener.ShortURL
		code string
	)

	err := row.Scan(
		&u.ID,
		&code,
		&u.OriginalURL,
		&u.Clicks,
		&u.OwnerID,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shortener.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("scan short url: %w", err)
	}

	u.Code = shortener.Code(code)

	return &u, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

var _ shortener.Repository = (*PostgresStore)(nil)
