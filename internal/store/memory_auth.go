package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/url-shortener/internal/auth"
)

// MemoryAuthStore is an in-memory implementation of auth.Repository.
type MemoryAuthStore struct {
	mu     sync.RWMutex
	users  map[string]*auth.User         // id -> user
	emails map[string]string             // email -> id
	tokens map[string]*auth.RefreshToken // id -> token
	order  map[string]uint64             // token id -> insertion sequence
	seq    uint64
	nowFn  func() time.Time
}

// NewMemoryAuthStore creates a new in-memory user and refresh token store.
func NewMemoryAuthStore() *MemoryAuthStore {
	return &MemoryAuthStore{
		users:  make(map[string]*auth.User),
		emails: make(map[string]string),
		tokens: make(map[string]*auth.RefreshToken),
		order:  make(map[string]uint64),
		nowFn:  time.Now,
	}
}

func (m *MemoryAuthStore) CreateUser(_ context.Context, email, passwordHash string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.emails[email]; taken {
		return nil, auth.ErrEmailTaken
	}

	now := m.nowFn()
	u := &auth.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	m.emails[email] = u.ID

	created := *u

	return &created, nil
}

func (m *MemoryAuthStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	m.mu.RLock()
	id, ok := m.emails[email]
	m.mu.RUnlock()

	if !ok {
		return nil, auth.ErrNotFound
	}

	return m.GetUserByID(ctx, id)
}

func (m *MemoryAuthStore) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, auth.ErrNotFound
	}

	found := *u

	return &found, nil
}

// SoftDeleteUser marks a user as deleted. Deleted users are invisible to lookups.
func (m *MemoryAuthStore) SoftDeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return auth.ErrNotFound
	}

	now := m.nowFn()
	u.DeletedAt = &now

	return nil
}

func (m *MemoryAuthStore) CreateRefreshToken(
	_ context.Context, userID, tokenHash string, expiresAt time.Time,
) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt := m.newRefreshToken(userID, tokenHash, expiresAt)
	m.insertToken(rt)

	created := *rt

	return &created, nil
}

func (m *MemoryAuthStore) ListRefreshTokens(_ context.Context, userID string) ([]auth.RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]auth.RefreshToken, 0)

	for _, rt := range m.tokens {
		if rt.UserID == userID {
			result = append(result, *rt)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return m.order[result[i].ID] > m.order[result[j].ID]
	})

	return result, nil
}

func (m *MemoryAuthStore) DeleteRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[id]; !ok {
		return auth.ErrNotFound
	}

	delete(m.tokens, id)
	delete(m.order, id)

	return nil
}

func (m *MemoryAuthStore) DeleteExpiredRefreshTokens(_ context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpired(userID, now)

	return nil
}

// WithTx stages refresh token writes made through tx and applies them
// atomically when fn returns nil. The commit fails with auth.ErrNotFound, and
// applies nothing, if a staged delete targets a row that no longer exists.
func (m *MemoryAuthStore) WithTx(ctx context.Context, fn func(context.Context, auth.Repository) error) error {
	tx := &memoryAuthTx{MemoryAuthStore: m, deleted: make(map[string]bool)}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range tx.deleted {
		if _, ok := m.tokens[id]; !ok {
			return auth.ErrNotFound
		}
	}

	for id := range tx.deleted {
		delete(m.tokens, id)
		delete(m.order, id)
	}

	for _, p := range tx.purges {
		m.purgeExpired(p.userID, p.now)
	}

	for _, rt := range tx.created {
		m.insertToken(rt)
	}

	return nil
}

func (m *MemoryAuthStore) newRefreshToken(userID, tokenHash string, expiresAt time.Time) *auth.RefreshToken {
	return &auth.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: m.nowFn(),
	}
}

// purgeExpired must be called with m.mu held.
func (m *MemoryAuthStore) purgeExpired(userID string, now time.Time) {
	for id, rt := range m.tokens {
		if rt.UserID == userID && !rt.ExpiresAt.After(now) {
			delete(m.tokens, id)
			delete(m.order, id)
		}
	}
}

func (m *MemoryAuthStore) insertToken(rt *auth.RefreshToken) {
	m.seq++
	m.tokens[rt.ID] = rt
	m.order[rt.ID] = m.seq
}

// memoryAuthTx reads through to the store and buffers refresh token writes.
// User writes are not staged.
type memoryAuthTx struct {
	*MemoryAuthStore
	created []*auth.RefreshToken
	deleted map[string]bool
	purges  []expiredPurge
}

type expiredPurge struct {
	userID string
	now    time.Time
}

func (t *memoryAuthTx) CreateRefreshToken(
	_ context.Context, userID, tokenHash string, expiresAt time.Time,
) (*auth.RefreshToken, error) {
	rt := t.newRefreshToken(userID, tokenHash, expiresAt)
	t.created = append(t.created, rt)

	created := *rt

	return &created, nil
}

func (t *memoryAuthTx) DeleteRefreshToken(_ context.Context, id string) error {
	t.mu.RLock()
	_, ok := t.tokens[id]
	t.mu.RUnlock()

	if !ok || t.deleted[id] {
		return auth.ErrNotFound
	}

	t.deleted[id] = true

	return nil
}

func (t *memoryAuthTx) DeleteExpiredRefreshTokens(_ context.Context, userID string, now time.Time) error {
	t.purges = append(t.purges, expiredPurge{userID: userID, now: now})

	return nil
}

func (t *memoryAuthTx) WithTx(ctx context.Context, fn func(context.Context, auth.Repository) error) error {
	return fn(ctx, t)
}

var (
	_ auth.Repository = (*MemoryAuthStore)(nil)
	_ auth.Repository = (*memoryAuthTx)(nil)
)
