// Package cache provides a best-effort read cache for hot tournament
// payloads (full brackets, leaderboards). A miss is never an error.
package cache

import (
	"sync"
	"time"
)

type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Invalidate(key string)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Memory is an in-process TTL cache. Expired entries are dropped lazily
// on read and swept whenever the map is written.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.Invalidate(key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := time.Now()
	m.mu.Lock()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	m.mu.Unlock()
}

func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
