package sync

import (
	"sync"

	"session-service/internal/models"
)

// MessageCache holds per-session chat messages received over the realtime
// channel. Messages are deduplicated by id and kept in arrival order of
// first occurrence.
type MessageCache struct {
	mu        sync.RWMutex
	bySession map[string][]models.Message
	seen      map[string]map[string]struct{}
}

// NewMessageCache creates an empty cache.
func NewMessageCache() *MessageCache {
	return &MessageCache{
		bySession: make(map[string][]models.Message),
		seen:      make(map[string]map[string]struct{}),
	}
}

// Append adds messages for a session, skipping ids already cached, and
// returns the session's full message list.
func (c *MessageCache) Append(sessionID string, msgs ...models.Message) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, ok := c.seen[sessionID]
	if !ok {
		ids = make(map[string]struct{})
		c.seen[sessionID] = ids
	}
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		c.bySession[sessionID] = append(c.bySession[sessionID], m)
	}

	out := make([]models.Message, len(c.bySession[sessionID]))
	copy(out, c.bySession[sessionID])
	return out
}

// Messages returns the cached messages for a session.
func (c *MessageCache) Messages(sessionID string) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.bySession[sessionID]))
	copy(out, c.bySession[sessionID])
	return out
}

// QueryCache is a small keyed cache mirroring what UI subscribers read,
// so realtime pushes and request/response fetches stay consistent.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// NewQueryCache creates an empty query cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[string]interface{})}
}

// Set stores a value under the key.
func (c *QueryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

// Get returns the cached value for the key.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Invalidate removes the key so the next reader refetches.
func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
