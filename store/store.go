// Package store and its subpackages provide the key-value command interface
// consumed by the session Manager. See the redis, memory and badger
// subpackages for concrete implementations thereof.
//
// A session is materialized as a hash-like record keyed by its token, holding
// a single payload field. Implementations must provide Redis hash semantics:
// deleting the last field of a record deletes the record (and any TTL set on
// it), and setting a TTL on a missing record is a no-op.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConnection indicates that the store could not be reached, or that the
	// connection to it failed while a command was in flight (including
	// deadlines enforced by the store client).
	ErrConnection = errors.New("store connection error")
	// ErrResponse indicates that the store responded, but with an error or a
	// reply of unexpected shape (e.g., a WRONGTYPE error from Redis).
	ErrResponse = errors.New("store response error")
	// ErrFieldNotFound indicates that the requested record or field does not
	// exist.
	ErrFieldNotFound = errors.New("field not found")
)

// Store is the command interface the session Manager issues against a
// key-value store with hash-field and TTL semantics.
type Store interface {
	// SetIfAbsent creates field on the record at key with the provided value
	// only if the field does not yet exist, reporting whether it was created.
	SetIfAbsent(ctx context.Context, key, field, value string) (bool, error)
	// FieldExists reports whether field exists on the record at key.
	FieldExists(ctx context.Context, key, field string) (bool, error)
	// GetField returns the value of field on the record at key, or
	// ErrFieldNotFound if either does not exist.
	GetField(ctx context.Context, key, field string) (string, error)
	// DeleteField removes field from the record at key. Removing a missing
	// field is not an error.
	DeleteField(ctx context.Context, key, field string) error
	// Expire sets a TTL on the whole record at key, after which the store
	// removes it.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
