package audio

import "sync"

// Cache holds synthesized MP3 bytes keyed by internal call id. Entries are
// written by the synthesis workers and released when the call reaches a
// terminal state.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewCache creates an empty audio cache
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string][]byte),
	}
}

// Put stores the audio for a call, replacing any previous entry.
func (c *Cache) Put(callID string, data []byte) {
	c.mu.Lock()
	c.entries[callID] = data
	c.mu.Unlock()
}

// Get returns the cached audio for a call.
func (c *Cache) Get(callID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.entries[callID]
	return data, ok
}

// Evict removes the entry for one call. Missing entries are a no-op.
func (c *Cache) Evict(callID string) {
	c.mu.Lock()
	delete(c.entries, callID)
	c.mu.Unlock()
}
