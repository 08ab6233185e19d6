package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process cache for single-replica deployments and tests.
// Values are stored JSON-encoded so callers see the same copy semantics as
// with Redis.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	sets    map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemory creates an empty in-process cache
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key Key, dest interface{}) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key.String()]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key.String())
		m.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key Key, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = entry
	set := namespaceSet(key.TenantID, key.Namespace)
	if m.sets[set] == nil {
		m.sets[set] = make(map[string]struct{})
	}
	m.sets[set][key.String()] = struct{}{}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, tenantID uuid.UUID, namespaces ...Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ns := range namespaces {
		set := namespaceSet(tenantID, ns)
		for key := range m.sets[set] {
			delete(m.entries, key)
		}
		delete(m.sets, set)
	}
	return nil
}

// Len returns the number of stored entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
