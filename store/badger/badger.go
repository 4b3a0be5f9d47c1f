// Package badger provides an embedded Store backed by Badger.
//
// Each hash field is stored as its own Badger entry under
// "<key>\x00<field>", and a record TTL is applied to every entry of the
// record. Badger tracks expiry with one second granularity. Since the NUL byte
// separates key from field, keys containing it are rejected with
// ErrInvalidKey.
package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/swfrench/redisesh/store"
	"golang.org/x/exp/slog"
)

const sep = "\x00"

// ErrInvalidKey indicates that a key contains the NUL byte. It is always
// accompanied by store.ErrResponse.
var ErrInvalidKey = errors.New("key contains NUL byte")

// Store is a Badger-based implementation of the store.Store interface. It is
// safe for concurrent use; conflicting concurrent writes to the same entry
// surface as store.ErrResponse.
type Store struct {
	db *badger.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) a Badger database in dir. An empty dir opens a
// purely in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(&badgerLogger{})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db (error: %v): %w", err, store.ErrConnection)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (bs *Store) Close() error {
	return bs.db.Close()
}

func entryKey(key, field string) []byte {
	return []byte(key + sep + field)
}

func recordPrefix(key string) []byte {
	return []byte(key + sep)
}

func checkKey(op, key string) error {
	if strings.Contains(key, sep) {
		return fmt.Errorf("%s failed: %w: %w", op, store.ErrResponse, ErrInvalidKey)
	}
	return nil
}

func wrapError(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%s failed: %w: %w", op, store.ErrConnection, err)
	}
	return fmt.Errorf("%s failed: %w: %w", op, store.ErrResponse, err)
}

// recordExpiry returns the expiry shared by the live entries of the record at
// key (zero if none is set).
func recordExpiry(txn *badger.Txn, key string) uint64 {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = recordPrefix(key)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if exp := it.Item().ExpiresAt(); exp > 0 {
			return exp
		}
	}
	return 0
}

// SetIfAbsent creates field on the record at key only if it does not already
// exist, reporting whether it was created. A new field joins any TTL already
// set on its record.
func (bs *Store) SetIfAbsent(ctx context.Context, key, field, value string) (bool, error) {
	if err := checkKey("set-if-absent", key); err != nil {
		return false, err
	}
	var set bool
	err := bs.db.Update(func(txn *badger.Txn) error {
		k := entryKey(key, field)
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		e := badger.NewEntry(k, []byte(value))
		e.ExpiresAt = recordExpiry(txn, key)
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		set = true
		return nil
	})
	if err != nil {
		return false, wrapError("set-if-absent", err)
	}
	return set, nil
}

// FieldExists reports whether field exists on the record at key.
func (bs *Store) FieldExists(ctx context.Context, key, field string) (bool, error) {
	if err := checkKey("field-exists", key); err != nil {
		return false, err
	}
	var ok bool
	err := bs.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(entryKey(key, field))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, wrapError("field-exists", err)
	}
	return ok, nil
}

// GetField returns the value of field on the record at key, or
// store.ErrFieldNotFound if none exists.
func (bs *Store) GetField(ctx context.Context, key, field string) (string, error) {
	if err := checkKey("get-field", key); err != nil {
		return "", err
	}
	var val []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key, field))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", store.ErrFieldNotFound
	}
	if err != nil {
		return "", wrapError("get-field", err)
	}
	return string(val), nil
}

// DeleteField removes field from the record at key.
func (bs *Store) DeleteField(ctx context.Context, key, field string) error {
	if err := checkKey("delete-field", key); err != nil {
		return err
	}
	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(key, field))
	})
	if err != nil {
		return wrapError("delete-field", err)
	}
	return nil
}

// Expire rewrites every entry of the record at key with the provided TTL. A
// non-positive TTL deletes the record.
func (bs *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := checkKey("expire", key); err != nil {
		return err
	}
	err := bs.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(key)
		it := txn.NewIterator(opts)
		var entries []*badger.Entry
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			entries = append(entries, badger.NewEntry(item.KeyCopy(nil), val).WithTTL(ttl))
		}
		it.Close()
		for _, e := range entries {
			var err error
			if ttl <= 0 {
				err = txn.Delete(e.Key)
			} else {
				err = txn.SetEntry(e)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapError("expire", err)
	}
	return nil
}

// TTL returns the time remaining before the record at key expires, or zero if
// the record does not exist or has no TTL.
func (bs *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := checkKey("ttl", key); err != nil {
		return 0, err
	}
	var exp uint64
	err := bs.db.View(func(txn *badger.Txn) error {
		exp = recordExpiry(txn, key)
		return nil
	})
	if err != nil {
		return 0, wrapError("ttl", err)
	}
	if exp == 0 {
		return 0, nil
	}
	return time.Until(time.Unix(int64(exp), 0)), nil
}

// badgerLogger routes Badger's internal logging to slog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...))
}
