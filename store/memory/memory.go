// Package memory provides an in-memory Store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/swfrench/redisesh/store"
)

// Store is a simple in-memory implementation of the store.Store interface,
// for use in tests or where an external store is not available. Records are
// hashes of field to value, with an optional per-record TTL. It is safe for
// concurrent use.
//
// Eviction: Expired records are garbage collected on entry to any Store
// method. A record is expired once its deadline is not after the current time.
type Store struct {
	// Clock can be overridden in tests (e.g., to test eviction logic).
	Clock     func() time.Time
	mu        sync.Mutex
	records   map[string]map[string]string
	expires   map[string]time.Time
	evictions *evictionQueue
}

var _ store.Store = (*Store)(nil)

// New returns a new Store instance.
func New() *Store {
	return &Store{
		Clock:     func() time.Time { return time.Now() },
		records:   make(map[string]map[string]string),
		expires:   make(map[string]time.Time),
		evictions: newEvictionQueue(),
	}
}

func (ms *Store) evict(t time.Time) {
	for ms.evictions.Len() > 0 && !ms.evictions.Peek().expires.After(t) {
		d := ms.evictions.Pop()
		if exp, ok := ms.expires[d.key]; ok && exp.Equal(d.expires) {
			ms.deleteRecord(d.key)
		}
	}
}

func (ms *Store) deleteRecord(key string) {
	delete(ms.records, key)
	delete(ms.expires, key)
}

// SetIfAbsent creates field on the record at key only if it does not already
// exist, reporting whether it was created.
func (ms *Store) SetIfAbsent(ctx context.Context, key, field, value string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.evict(ms.Clock())
	r, ok := ms.records[key]
	if !ok {
		r = make(map[string]string)
		ms.records[key] = r
	}
	if _, ok := r[field]; ok {
		return false, nil
	}
	r[field] = value
	return true, nil
}

// FieldExists reports whether field exists on the record at key.
func (ms *Store) FieldExists(ctx context.Context, key, field string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.evict(ms.Clock())
	_, ok := ms.records[key][field]
	return ok, nil
}

// GetField returns the value of field on the record at key, or
// ErrFieldNotFound if none exists.
func (ms *Store) GetField(ctx context.Context, key, field string) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.evict(ms.Clock())
	v, ok := ms.records[key][field]
	if !ok {
		return "", store.ErrFieldNotFound
	}
	return v, nil
}

// DeleteField removes field from the record at key, deleting the record once
// it has no fields left.
func (ms *Store) DeleteField(ctx context.Context, key, field string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.evict(ms.Clock())
	r, ok := ms.records[key]
	if !ok {
		return nil
	}
	delete(r, field)
	if len(r) == 0 {
		// Note: We let the evictions entry get cleaned up lazily.
		ms.deleteRecord(key)
	}
	return nil
}

// Expire sets the TTL of the record at key, replacing any prior TTL. A
// non-positive TTL deletes the record immediately; a missing record is left
// alone.
func (ms *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t := ms.Clock()
	ms.evict(t)
	if _, ok := ms.records[key]; !ok {
		return nil
	}
	if ttl <= 0 {
		ms.deleteRecord(key)
		return nil
	}
	ms.expires[key] = t.Add(ttl)
	ms.evictions.Push(key, t.Add(ttl))
	return nil
}

// Len returns the number of live records.
func (ms *Store) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.evict(ms.Clock())
	return len(ms.records)
}
