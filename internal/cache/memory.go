package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store and ResponseCache for single-instance
// runs and tests. Values are copied on the way in and out.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{value: append([]byte(nil), value...)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) GetCache(_ context.Context, key, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(responseKey(key))
	if !ok {
		return "", nil
	}
	return string(item.value), nil
}

func (m *MemoryStore) SetCache(_ context.Context, key, value string, ttl time.Duration, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := memoryItem{value: []byte(value)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[responseKey(key)] = item
	return nil
}

func (m *MemoryStore) InvalidateByPrefix(_ context.Context, prefix, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	full := responseKey(prefix)
	for k := range m.items {
		if strings.HasPrefix(k, full) {
			delete(m.items, k)
		}
	}
}

// lookup drops expired entries lazily. Caller holds mu.
func (m *MemoryStore) lookup(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ ResponseCache = (*MemoryStore)(nil)
)
