package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/serroba/url-shortener/internal/shortener"
)

// MemoryStore is an in-memory implementation of shortener.Repository.
type MemoryStore struct {
	mu    sync.RWMutex
	urls  map[string]*shortener.ShortURL // id -> url
	codes map[shortener.Code]string      // active code -> id
	order map[string]uint64              // id -> insertion sequence
	seq   uint64
	nowFn func() time.Time
}

// NewMemoryStore creates a new in-memory URL store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		urls:  make(map[string]*shortener.ShortURL),
		codes: make(map[shortener.Code]string),
		order: make(map[string]uint64),
		nowFn: time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, shortURL *shortener.ShortURL) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.codes[shortURL.Code]; taken {
		return shortener.ErrCodeTaken
	}

	stored := *shortURL
	m.seq++
	m.urls[stored.ID] = &stored
	m.codes[stored.Code] = stored.ID
	m.order[stored.ID] = m.seq

	return nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code shortener.Code) (*shortener.ShortURL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	found := *m.urls[id]

	return &found, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*shortener.ShortURL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.urls[id]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	found := *u

	return &found, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, patch shortener.Patch) (*shortener.ShortURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.urls[id]
	if !ok || u.Deleted() {
		return nil, shortener.ErrNotFound
	}

	if patch.OriginalURL != nil {
		u.OriginalURL = *patch.OriginalURL
	}

	u.UpdatedAt = m.nowFn()
	updated := *u

	return &updated, nil
}

func (m *MemoryStore) IncrementClicks(_ context.Context, code shortener.Code) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.codes[code]
	if !ok {
		return 0, shortener.ErrNotFound
	}

	u := m.urls[id]
	u.Clicks++

	return u.Clicks, nil
}

func (m *MemoryStore) SoftDelete(_ context.Context, id, ownerID string) (*shortener.ShortURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.urls[id]
	if !ok || u.Deleted() || u.OwnerID != ownerID {
		return nil, shortener.ErrNotFound
	}

	now := m.nowFn()
	u.DeletedAt = &now
	u.UpdatedAt = now
	delete(m.codes, u.Code)

	deleted := *u

	return &deleted, nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]shortener.ShortURL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]shortener.ShortURL, 0)

	for _, u := range m.urls {
		if u.OwnerID == ownerID && !u.Deleted() {
			result = append(result, *u)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}

		return m.order[result[i].ID] > m.order[result[j].ID]
	})

	return result, nil
}

var _ shortener.Repository = (*MemoryStore)(nil)
