package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAuthStore_Users(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and finds user", func(t *testing.T) {
		s := store.NewMemoryAuthStore()

		created, err := s.CreateUser(ctx, "user@example.com", "digest")
		require.NoError(t, err)

		byEmail, err := s.GetUserByEmail(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byID, err := s.GetUserByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "digest", byID.PasswordHash)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		s := store.NewMemoryAuthStore()
		_, err := s.CreateUser(ctx, "user@example.com", "digest")
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, "user@example.com", "digest")

		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("hides soft-deleted users", func(t *testing.T) {
		s := store.NewMemoryAuthStore()
		u, err := s.CreateUser(ctx, "user@example.com", "digest")
		require.NoError(t, err)
		require.NoError(t, s.SoftDeleteUser(ctx, u.ID))

		_, err = s.GetUserByID(ctx, u.ID)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		_, err = s.GetUserByEmail(ctx, "user@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestMemoryAuthStore_RefreshTokens(t *testing.T) {
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	t.Run("lists newest first", func(t *testing.T) {
		s := store.NewMemoryAuthStore()
		first, err := s.CreateRefreshToken(ctx, "u1", "h1", expiry)
		require.NoError(t, err)
		second, err := s.CreateRefreshToken(ctx, "u1", "h2", expiry)
		require.NoError(t, err)
		_, err = s.CreateRefreshToken(ctx, "u2", "h3", expiry)
		require.NoError(t, err)

		got, err := s.ListRefreshTokens(ctx, "u1")

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, second.ID, got[0].ID)
		assert.Equal(t, first.ID, got[1].ID)
	})

	t.Run("delete of missing row fails", func(t *testing.T) {
		err := store.NewMemoryAuthStore().DeleteRefreshToken(ctx, "missing")

		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestMemoryAuthStore_WithTx(t *testing.T) {
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	t.Run("commits staged writes", func(t *testing.T) {
		s := store.NewMemoryAuthStore()
		old, err := s.CreateRefreshToken(ctx, "u1", "old", expiry)
		require.NoError(t, err)

		err = s.WithTx(ctx, func(ctx context.Context, tx auth.Repository) error {
			if _, err := tx.CreateRefreshToken(ctx, "u1", "new", expiry); err != nil {
				return err
			}

			return tx.DeleteRefreshToken(ctx, old.ID)
		})
		require.NoError(t, err)

		got, err := s.ListRefreshTokens(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].TokenHash)
	})

	t.Run("commit purges the user's expired tokens", func(t *testing.T) {
		s := store.NewMemoryAuthStore()
		_, err := s.CreateRefreshToken(ctx, "u1", "expired", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		_, err = s.CreateRefreshToken(ctx, "u2", "other-expired", time.Now().Add(-time.Minute))
		require.NoError(t, err)

		err = s.WithTx(ctx, func(ctx context.Context, tx auth.Repository) error {
			if _, err := tx.CreateRefreshToken(ctx, "u1", "new", expiry); err != nil {
				return err
			}

			return tx.DeleteExpiredRefreshTokens(ctx, "u1", time.Now())
		})
		require.NoError(t, err)

		got, err := s.ListRefreshTokens(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].TokenHash)

		other, err := s.ListRefreshTokens(ctx, "u2")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("discards staged writes on error", func(t *testing.T) {
		s := store.NewMemoryAuthStore()
		old, err := s.CreateRefreshToken(ctx, "u1", "old", expiry)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.WithTx(ctx, func(ctx context.Context, tx auth.Repository) error {
			_, _ = tx.CreateRefreshToken(ctx, "u1", "new", expiry)
			_ = tx.DeleteRefreshToken(ctx, old.ID)

			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.ListRefreshTokens(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, old.ID, got[0].ID)
	})

	t.Run("commit fails when delete target vanished", func(t *testing.T) {
		s := store.NewMemoryAuthStore()
		old, err := s.CreateRefreshToken(ctx, "u1", "old", expiry)
		require.NoError(t, err)

		err = s.WithTx(ctx, func(ctx context.Context, tx auth.Repository) error {
			if _, err := tx.CreateRefreshToken(ctx, "u1", "new", expiry); err != nil {
				return err
			}

			if err := tx.DeleteRefreshToken(ctx, old.ID); err != nil {
				return err
			}

			// A concurrent rotation removes the row before this one commits.
			return s.DeleteRefreshToken(ctx, old.ID)
		})

		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := s.ListRefreshTokens(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
