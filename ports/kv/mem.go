package kv

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type memEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemStore is an in-process Store. Expired entries are dropped lazily on
// read.
type MemStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	data map[string]memEntry
}

func NewMemStore() *MemStore {
	return &MemStore{now: time.Now, data: map[string]memEntry{}}
}

// WithNow replaces the time source used for TTLs.
func (m *MemStore) WithNow(now func() time.Time) *MemStore {
	m.now = now
	return m
}

func (m *MemStore) Put(_ context.Context, key string, entry Entry, opts PutOptions) error {
	me := memEntry{entry: Entry{Data: slices.Clone(entry.Data), Meta: maps.Clone(entry.Meta)}}
	if opts.TTL > 0 {
		me.expiresAt = m.now().Add(opts.TTL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = me
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) (entry Entry, err error) {
	m.mu.RLock()
	me, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return entry, ErrNotFound
	}
	if !me.expiresAt.IsZero() && !m.now().Before(me.expiresAt) {
		_ = m.Delete(context.Background(), key)
		return entry, ErrNotFound
	}

	return Entry{Data: slices.Clone(me.entry.Data), Meta: maps.Clone(me.entry.Meta)}, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

var _ Store = (*MemStore)(nil)
