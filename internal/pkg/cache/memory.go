package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	serviceName string
	nowFunc     func() time.Time
}

// NewMemoryCache is the single-process Cache used when no Redis is configured.
func NewMemoryCache(serviceName string) Cache {
	return &memoryCache{
		entries:     make(map[string]memoryEntry),
		serviceName: serviceName,
		nowFunc:     time.Now,
	}
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: fmt.Sprint(value)}
	if ttl > 0 {
		e.expires = m.nowFunc().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", nil
	}
	if e.expired(m.nowFunc()) {
		delete(m.entries, key)
		return "", nil
	}
	return e.value, nil
}

func (m *memoryCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", m.serviceName, operation, key)
}

type memoryLocker struct {
	mu      sync.Mutex
	held    map[string]memoryEntry
	seq     uint64
	nowFunc func() time.Time
}

func NewMemoryLocker() Locker {
	return &memoryLocker{
		held:    make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

func (l *memoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if e, ok := l.held[key]; ok && !e.expired(now) {
		return nil, ErrLocked
	}
	l.seq++
	token := fmt.Sprint(l.seq)
	e := memoryEntry{value: token}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	l.held[key] = e

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.value == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
