package cache

import (
	"sync"

	"github.com/dgnsrekt/narrate/tts"
)

// MemoryStore implements tts.Store in memory. Audio files are not checked,
// so it suits dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]tts.CacheEntry // cacheDir + "\x00" + key
	stats   CacheStats
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]tts.CacheEntry)}
}

// Get retrieves an entry.
func (m *MemoryStore) Get(cacheDir, key string) (*tts.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[cacheDir+"\x00"+key]
	if !ok {
		m.stats.Misses++
		return nil, false, nil
	}
	m.stats.Hits++
	return &entry, true, nil
}

// Put stores a copy of entry.
func (m *MemoryStore) Put(cacheDir, key string, entry *tts.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[cacheDir+"\x00"+key] = *entry
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stats returns cache statistics.
func (m *MemoryStore) Stats() CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.ItemCount = int64(len(m.entries))
	return stats
}
