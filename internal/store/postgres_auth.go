package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/serroba/url-shortener/internal/auth"
)

// PostgresAuthStore is a PostgreSQL implementation of auth.Repository.
type PostgresAuthStore struct {
	db dbtx
}

// NewPostgresAuthStore creates a new PostgreSQL-backed user and refresh token store.
func NewPostgresAuthStore(db dbtx) *PostgresAuthStore {
	return &PostgresAuthStore{db: db}
}

const userColumns = `id::text, email, password_hash, created_at, updated_at, deleted_at`

func (p *PostgresAuthStore) CreateUser(ctx context.Context, email, passwordHash string) (*auth.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	u, err := scanUser(p.db.QueryRow(ctx, query, uuid.NewString(), email, passwordHash))
	if isUniqueViolation(err) {
		return nil, auth.ErrEmailTaken
	}

	return u, err
}

func (p *PostgresAuthStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`

	return scanUser(p.db.QueryRow(ctx, query, email))
}

func (p *PostgresAuthStore) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	if !isUUID(id) {
		return nil, auth.ErrNotFound
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`

	return scanUser(p.db.QueryRow(ctx, query, id))
}

func (p *PostgresAuthStore) CreateRefreshToken(
	ctx context.Context, userID, tokenHash string, expiresAt time.Time,
) (*auth.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, user_id::text, token_hash, expires_at, created_at
	`

	var rt auth.RefreshToken

	err := p.db.QueryRow(ctx, query, uuid.NewString(), userID, tokenHash, expiresAt).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}

	return &rt, nil
}

func (p *PostgresAuthStore) ListRefreshTokens(ctx context.Context, userID string) ([]auth.RefreshToken, error) {
	if !isUUID(userID) {
		return []auth.RefreshToken{}, nil
	}

	query := `
		SELECT id::text, user_id::text, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}

	tokens, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (auth.RefreshToken, error) {
		var rt auth.RefreshToken

		err := row.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt)

		return rt, err
	})
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}

	return tokens, nil
}

func (p *PostgresAuthStore) DeleteRefreshToken(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}

	return nil
}

func (p *PostgresAuthStore) DeleteExpiredRefreshTokens(ctx context.Context, userID string, now time.Time) error {
	_, err := p.db.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= $2`,
		userID, now,
	)
	if err != nil {
		return fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	return nil
}

// WithTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (p *PostgresAuthStore) WithTx(ctx context.Context, fn func(context.Context, auth.Repository) error) error {
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		return fn(ctx, NewPostgresAuthStore(tx))
	})
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

var _ auth.Repository = (*PostgresAuthStore)(nil)
