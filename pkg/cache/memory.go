package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCache is an in-process Service used when Redis is disabled.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem)}
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(value)
		if err != nil {
			return err
		}
	}

	item := memoryItem{data: data}
	if expiration > 0 {
		item.expiresAt = time.Now().Add(expiration)
	}

	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || (!item.expiresAt.IsZero() && time.Now().After(item.expiresAt)) {
		return ErrCacheMiss
	}

	if s, ok := dest.(*string); ok {
		*s = string(item.data)
		return nil
	}
	return json.Unmarshal(item.data, dest)
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.items, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	for _, k := range keys {
		item, ok := c.items[k]
		if !ok || (!item.expiresAt.IsZero() && now.After(item.expiresAt)) {
			return false, nil
		}
	}
	return true, nil
}

func (c *MemoryCache) Close() error { return nil }
