package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/url-shortener/internal/apperr"
	"github.com/serroba/url-shortener/internal/shortener"
	"github.com/serroba/url-shortener/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRepo struct {
	shortener.Repository
	getByCode int
}

func (c *countingRepo) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortURL, error) {
	c.getByCode++

	return c.Repository.GetByCode(ctx, code)
}

// staleRepo returns row for code lookups when set, like a reader that loaded
// the row before it was changed.
type staleRepo struct {
	shortener.Repository
	row *shortener.ShortURL
}

func (s *staleRepo) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortURL, error) {
	if s.row != nil {
		return s.row, nil
	}

	return s.Repository.GetByCode(ctx, code)
}

func newCachedService(t *testing.T) (*shortener.Service, *miniredis.Miniredis) {
	t.Helper()

	cache, _, mr := newCache(t)
	gen, err := shortener.NewCodeGenerator(shortener.MinCodeLength)
	require.NoError(t, err)

	return shortener.NewService(cache, gen, "http://localhost:8888", zap.NewNop()), mr
}

func newCache(t *testing.T) (*store.RedisCacheRepository, *countingRepo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingRepo{Repository: store.NewMemoryStore()}

	return store.NewRedisCacheRepository(backing, client, time.Hour), backing, mr
}

func TestRedisCacheRepository_GetByCode(t *testing.T) {
	ctx := context.Background()

	t.Run("serves saved url from cache", func(t *testing.T) {
		cache, backing, _ := newCache(t)
		u := newShortURL("id-1", "abc123", "owner")
		require.NoError(t, cache.Save(ctx, u))

		got, err := cache.GetByCode(ctx, "abc123")

		require.NoError(t, err)
		assert.Equal(t, 0, backing.getByCode)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.OriginalURL, got.OriginalURL)
		assert.Equal(t, "owner", got.OwnerID)
		assert.True(t, u.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("populates cache on miss", func(t *testing.T) {
		cache, backing, mr := newCache(t)
		require.NoError(t, backing.Save(ctx, newShortURL("id-1", "abc123", "")))

		_, err := cache.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		_, err = cache.GetByCode(ctx, "abc123")
		require.NoError(t, err)

		assert.Equal(t, 1, backing.getByCode)
		assert.True(t, mr.Exists("url:abc123"))
		assert.Equal(t, time.Hour, mr.TTL("url:abc123"))
	})

	t.Run("propagates not found", func(t *testing.T) {
		cache, _, _ := newCache(t)

		_, err := cache.GetByCode(ctx, "missing")

		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})

	t.Run("partial entry is treated as a miss", func(t *testing.T) {
		cache, backing, mr := newCache(t)
		require.NoError(t, backing.Save(ctx, newShortURL("id-1", "abc123", "")))
		mr.HSet("url:abc123", "clicks", "7")

		got, err := cache.GetByCode(ctx, "abc123")

		require.NoError(t, err)
		assert.Equal(t, 1, backing.getByCode)
		assert.Equal(t, "id-1", got.ID)
	})
}

func TestRedisCacheRepository_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("update refreshes cached destination", func(t *testing.T) {
		cache, _, _ := newCache(t)
		require.NoError(t, cache.Save(ctx, newShortURL("id-1", "abc123", "owner")))
		dest := "https://new.example.com"

		_, err := cache.Update(ctx, "id-1", shortener.Patch{OriginalURL: &dest})
		require.NoError(t, err)

		got, err := cache.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, dest, got.OriginalURL)
	})

	t.Run("update replaces tombstone with the new row", func(t *testing.T) {
		cache, _, mr := newCache(t)
		require.NoError(t, cache.Save(ctx, newShortURL("id-1", "abc123", "owner")))
		dest := "https://new.example.com"

		_, err := cache.Update(ctx, "id-1", shortener.Patch{OriginalURL: &dest})
		require.NoError(t, err)

		assert.Equal(t, dest, mr.HGet("url:abc123", "original_url"))
		assert.Empty(t, mr.HGet("url:abc123", "tombstone"))
		assert.Equal(t, time.Hour, mr.TTL("url:abc123"))
	})

	t.Run("soft delete leaves a tombstone", func(t *testing.T) {
		cache, _, mr := newCache(t)
		require.NoError(t, cache.Save(ctx, newShortURL("id-1", "abc123", "owner")))

		_, err := cache.SoftDelete(ctx, "id-1", "owner")
		require.NoError(t, err)

		assert.Equal(t, "1", mr.HGet("url:abc123", "tombstone"))
		assert.Empty(t, mr.HGet("url:abc123", "id"))
		assert.Equal(t, time.Minute, mr.TTL("url:abc123"))

		_, err = cache.GetByCode(ctx, "abc123")
		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})

	t.Run("increment keeps cached clicks in step", func(t *testing.T) {
		cache, _, _ := newCache(t)
		require.NoError(t, cache.Save(ctx, newShortURL("id-1", "abc123", "")))

		for range 3 {
			_, err := cache.IncrementClicks(ctx, "abc123")
			require.NoError(t, err)
		}

		got, err := cache.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Clicks)
	})

	t.Run("increment does not create a cache entry", func(t *testing.T) {
		cache, backing, mr := newCache(t)
		require.NoError(t, backing.Save(ctx, newShortURL("id-1", "abc123", "")))

		clicks, err := cache.IncrementClicks(ctx, "abc123")

		require.NoError(t, err)
		assert.Equal(t, int64(1), clicks)
		assert.False(t, mr.Exists("url:abc123"))
	})

	t.Run("store stays authoritative when redis is down", func(t *testing.T) {
		cache, _, mr := newCache(t)
		mr.Close()

		require.NoError(t, cache.Save(ctx, newShortURL("id-1", "abc123", "")))

		got, err := cache.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, "id-1", got.ID)
	})
}

func TestRedisCacheRepository_Invalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("delete fails while redis errors and succeeds once it recovers", func(t *testing.T) {
		svc, mr := newCachedService(t)
		u, err := svc.Create(ctx, "https://example.com/landing", "owner")
		require.NoError(t, err)

		mr.SetError("LOADING transient")
		_, err = svc.Delete(ctx, u.ID, "owner")
		require.Error(t, err)
		mr.SetError("")

		dest, err := svc.Resolve(ctx, u.Code)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/landing", dest)

		_, err = svc.Delete(ctx, u.ID, "owner")
		require.NoError(t, err)

		_, err = svc.Resolve(ctx, u.Code)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("update fails while redis errors and succeeds once it recovers", func(t *testing.T) {
		svc, mr := newCachedService(t)
		u, err := svc.Create(ctx, "https://old.example.com", "owner")
		require.NoError(t, err)
		dest := "https://new.example.com"

		mr.SetError("LOADING transient")
		_, err = svc.Update(ctx, u.ID, shortener.Patch{OriginalURL: &dest}, "owner")
		require.Error(t, err)
		mr.SetError("")

		got, err := svc.Resolve(ctx, u.Code)
		require.NoError(t, err)
		assert.Equal(t, "https://old.example.com", got)

		_, err = svc.Update(ctx, u.ID, shortener.Patch{OriginalURL: &dest}, "owner")
		require.NoError(t, err)

		got, err = svc.Resolve(ctx, u.Code)
		require.NoError(t, err)
		assert.Equal(t, dest, got)
	})

	t.Run("reader holding a deleted row cannot cache it again", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		backing := &staleRepo{Repository: store.NewMemoryStore()}
		cache := store.NewRedisCacheRepository(backing, client, time.Hour)
		require.NoError(t, cache.Save(ctx, newShortURL("id-1", "abc123", "owner")))

		loaded, err := backing.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		stale := *loaded

		_, err = cache.SoftDelete(ctx, "id-1", "owner")
		require.NoError(t, err)

		backing.row = &stale
		_, err = cache.GetByCode(ctx, "abc123")
		require.NoError(t, err)

		assert.Equal(t, "1", mr.HGet("url:abc123", "tombstone"))
		assert.Empty(t, mr.HGet("url:abc123", "id"))
	})

	t.Run("increment of a code deleted behind the cache drops the entry", func(t *testing.T) {
		cache, backing, mr := newCache(t)
		require.NoError(t, cache.Save(ctx, newShortURL("id-1", "abc123", "owner")))
		_, err := backing.SoftDelete(ctx, "id-1", "owner")
		require.NoError(t, err)

		_, err = cache.IncrementClicks(ctx, "abc123")
		require.ErrorIs(t, err, shortener.ErrNotFound)

		assert.Equal(t, "1", mr.HGet("url:abc123", "tombstone"))

		_, err = cache.GetByCode(ctx, "abc123")
		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})
}
