package cache

import (
	"sync"

	"github.com/saiset-co/sai-trade-client/types"
)

// MemoryDriver keeps serialized entries in a process-local map. When
// maxEntries is positive the oldest inserted key is evicted first.
type MemoryDriver struct {
	data       map[string][]byte
	order      []string
	maxEntries int
	closed     bool
	mu         sync.RWMutex
}

func NewMemoryDriver(config *types.MemoryCacheConfig) *MemoryDriver {
	maxEntries := 0
	if config != nil {
		maxEntries = config.MaxEntries
	}

	return &MemoryDriver{
		data:       make(map[string][]byte),
		maxEntries: maxEntries,
	}
}

func (m *MemoryDriver) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, types.ErrCacheClosed
	}

	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(value))
	copy(out, value)

	return out, true, nil
}

func (m *MemoryDriver) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return types.ErrCacheClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	if _, exists := m.data[key]; !exists {
		if m.maxEntries > 0 && len(m.data) >= m.maxEntries {
			m.evictOldest()
		}
		m.order = append(m.order, key)
	}

	m.data[key] = stored

	return nil
}

func (m *MemoryDriver) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists {
		return nil
	}

	delete(m.data, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	return nil
}

func (m *MemoryDriver) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, len(m.order))
	copy(keys, m.order)

	return keys, nil
}

func (m *MemoryDriver) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data), nil
}

func (m *MemoryDriver) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string][]byte)
	m.order = nil

	return nil
}

func (m *MemoryDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = make(map[string][]byte)
	m.order = nil

	return nil
}

func (m *MemoryDriver) evictOldest() {
	if len(m.order) == 0 {
		return
	}
	oldest := m.order[0]
	m.order = m.order[1:]
	delete(m.data, oldest)
}
