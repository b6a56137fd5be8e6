package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/url-shortener/internal/shortener"
)

// tombstoneTTL covers reads that loaded a row before it was changed and
// have not yet written it back to the cache.
const tombstoneTTL = time.Minute

// setClicks raises the cached click count without creating the key and
// without moving the count backwards.
var setClicks = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], "id") == 1 then
	local current = tonumber(redis.call("HGET", KEYS[1], "clicks") or "0")
	if tonumber(ARGV[1]) > current then
		redis.call("HSET", KEYS[1], "clicks", ARGV[1])
	end
end
return 1
`)

// writeURL replaces the cached hash. ARGV[1] is the TTL in milliseconds,
// ARGV[2] forces the write, ARGV[3] is the row version and the rest are
// field/value pairs. Unforced writes never replace a tombstone or a newer
// version.
var writeURL = redis.NewScript(`
if ARGV[2] ~= "1" and redis.call("EXISTS", KEYS[1]) == 1 then
	if redis.call("HEXISTS", KEYS[1], "tombstone") == 1 then
		return 0
	end
	local current = tonumber(redis.call("HGET", KEYS[1], "version") or "0")
	if current >= tonumber(ARGV[3]) then
		return 0
	end
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "version", ARGV[3], unpack(ARGV, 4))
if tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return 1
`)

// RedisCacheRepository wraps a Repository with Redis caching for code lookups.
// Only active URLs are cached. Updates and deletes tombstone the key before
// touching the store, so a reader holding the old row cannot cache it again.
type RedisCacheRepository struct {
	store  shortener.Repository
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCacheRepository creates a new Redis-cached repository decorator.
func NewRedisCacheRepository(
	store shortener.Repository, client redis.UniversalClient, ttl time.Duration,
) *RedisCacheRepository {
	return &RedisCacheRepository{
		store:  store,
		client: client,
		prefix: "url:",
		ttl:    ttl,
	}
}

// Save stores a short URL in the underlying store and updates the cache.
func (r *RedisCacheRepository) Save(ctx context.Context, shortURL *shortener.ShortURL) error {
	if err := r.store.Save(ctx, shortURL); err != nil {
		return err
	}

	_ = r.cacheURL(ctx, shortURL, false)

	return nil
}

// GetByCode retrieves an active short URL by its code, checking cache first.
func (r *RedisCacheRepository) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortURL, error) {
	if url, ok := r.getFromCache(ctx, code); ok {
		return url, nil
	}

	url, err := r.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	_ = r.cacheURL(ctx, url, false)

	return url, nil
}

// GetByID reads through to the store; ownership checks need the deleted state.
func (r *RedisCacheRepository) GetByID(ctx context.Context, id string) (*shortener.ShortURL, error) {
	return r.store.GetByID(ctx, id)
}

// Update fails without touching the store when the cached entry cannot be
// invalidated.
func (r *RedisCacheRepository) Update(ctx context.Context, id string, patch shortener.Patch) (*shortener.ShortURL, error) {
	current, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.tombstone(ctx, current.Code); err != nil {
		return nil, err
	}

	url, err := r.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	// On failure the tombstone stays and reads fall through to the store.
	_ = r.cacheURL(ctx, url, true)

	return url, nil
}

// IncrementClicks goes to the store on every hit. A NotFound from the store
// means the cached entry is stale and it is dropped.
func (r *RedisCacheRepository) IncrementClicks(ctx context.Context, code shortener.Code) (int64, error) {
	clicks, err := r.store.IncrementClicks(ctx, code)
	if errors.Is(err, shortener.ErrNotFound) {
		_ = r.tombstone(ctx, code)

		return 0, err
	}

	if err != nil {
		return 0, err
	}

	_ = setClicks.Run(ctx, r.client, []string{r.key(code)}, clicks).Err()

	return clicks, nil
}

// SoftDelete fails without touching the store when the cached entry cannot
// be invalidated.
func (r *RedisCacheRepository) SoftDelete(ctx context.Context, id, ownerID string) (*shortener.ShortURL, error) {
	current, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.tombstone(ctx, current.Code); err != nil {
		return nil, err
	}

	return r.store.SoftDelete(ctx, id, ownerID)
}

func (r *RedisCacheRepository) ListByOwner(ctx context.Context, ownerID string) ([]shortener.ShortURL, error) {
	return r.store.ListByOwner(ctx, ownerID)
}

func (r *RedisCacheRepository) key(code shortener.Code) string {
	return r.prefix + string(code)
}

func (r *RedisCacheRepository) getFromCache(ctx context.Context, code shortener.Code) (*shortener.ShortURL, bool) {
	result, err := r.client.HGetAll(ctx, r.key(code)).Result()
	if err != nil || result["id"] == "" || result["tombstone"] != "" {
		return nil, false
	}

	clicks, _ := strconv.ParseInt(result["clicks"], 10, 64)

	return &shortener.ShortURL{
		ID:          result["id"],
		Code:        shortener.Code(result["code"]),
		OriginalURL: result["original_url"],
		Clicks:      clicks,
		OwnerID:     result["owner_id"],
		CreatedAt:   parseUnixNano(result["created_at"]),
		UpdatedAt:   parseUnixNano(result["updated_at"]),
	}, true
}

func (r *RedisCacheRepository) cacheURL(ctx context.Context, url *shortener.ShortURL, force bool) error {
	if url.Deleted() {
		return nil
	}

	forced := "0"
	if force {
		forced = "1"
	}

	err := writeURL.Run(ctx, r.client, []string{r.key(url.Code)},
		r.ttl.Milliseconds(), forced, url.UpdatedAt.UnixMicro(),
		"id", url.ID,
		"code", string(url.Code),
		"original_url", url.OriginalURL,
		"clicks", url.Clicks,
		"owner_id", url.OwnerID,
		"created_at", url.CreatedAt.UnixNano(),
		"updated_at", url.UpdatedAt.UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("cache short url: %w", err)
	}

	return nil
}

func (r *RedisCacheRepository) tombstone(ctx context.Context, code shortener.Code) error {
	key := r.key(code)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "tombstone", 1)
		pipe.Expire(ctx, key, tombstoneTTL)

		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached short url: %w", err)
	}

	return nil
}

func parseUnixNano(s string) time.Time {
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(0, nanos)
}

// Compile-time check.
var _ shortener.Repository = (*RedisCacheRepository)(nil)
