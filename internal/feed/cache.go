package feed

import (
	"sync"
	"time"
)

// CacheEntry 一条缓存记录
type CacheEntry struct {
	Payload  interface{}
	CachedAt time.Time
}

// Cache 按 key 分组的有界 FIFO 缓存。插入追加到尾部，超过上限时淘汰最旧一条。
type Cache struct {
	mu   sync.RWMutex
	max  int
	data map[string][]CacheEntry
}

// NewCache 创建缓存，max 为每个 key 的条目上限
func NewCache(max int) *Cache {
	if max <= 0 {
		max = 1
	}
	return &Cache{
		max:  max,
		data: make(map[string][]CacheEntry),
	}
}

// Insert 追加一条记录，必要时淘汰最旧的
func (c *Cache) Insert(key string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.data[key], CacheEntry{Payload: payload, CachedAt: time.Now()})
	if len(entries) > c.max {
		entries = entries[len(entries)-c.max:]
	}
	c.data[key] = entries
}

// List 返回某个 key 的全部记录（按插入顺序的副本）
func (c *Cache) List(key string) []CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.data[key]
	out := make([]CacheEntry, len(entries))
	copy(out, entries)
	return out
}

// Latest 返回某个 key 的最新一条记录
func (c *Cache) Latest(key string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := c.data[key]
	if len(entries) == 0 {
		return CacheEntry{}, false
	}
	return entries[len(entries)-1], true
}

// Keys 返回所有已知 key
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Len 返回某个 key 当前的条目数
func (c *Cache) Len(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[key])
}

// Clear 清空全部缓存（断开连接时调用）
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]CacheEntry)
}
