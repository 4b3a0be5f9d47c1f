// Package session provides session management backed by an external
// key-value store.
//
// At a high level, Manager issues unguessable session tokens and persists an
// opaque payload for each in a store.Store, keyed by the token. A session is
// active from the moment Insert returns its token until it is removed with
// Remove or evicted by the store once its TTL (see Config) elapses. Expiration
// is entirely delegated to the store; Manager runs no timers of its own.
//
// Creation is atomic: the payload is written with a set-if-absent command, so
// at most one writer wins for any given token. Tokens are random, so a
// collision is treated as an error rather than reconciled.
//
// Open connects to Redis (see the store/redis subpackage), while NewManager
// accepts any store.Store (e.g., the store/memory or store/badger
// subpackages).
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/swfrench/redisesh/internal/token"
	"github.com/swfrench/redisesh/store"
	"github.com/swfrench/redisesh/store/metrics"
	"github.com/swfrench/redisesh/store/redis"
	"golang.org/x/exp/slog"
)

const (
	defaultIDLen           = token.MinLen // bytes
	defaultField           = "session_data"
	defaultConnectAttempts = 3
)

var (
	// ErrConnection indicates that the store could not be reached. It is an
	// alias of store.ErrConnection.
	ErrConnection = store.ErrConnection
	// ErrStoreResponse indicates that the store replied with an error or an
	// unexpected reply. It is an alias of store.ErrResponse.
	ErrStoreResponse = store.ErrResponse
	// ErrTokenCreation indicates that a session token could not be generated
	// (e.g., the random source failed). It is not retried.
	ErrTokenCreation = errors.New("session token creation failed")
	// ErrSessionExists indicates that a freshly generated token already maps
	// to a stored session.
	ErrSessionExists = errors.New("session exists")
)

// Config holds the session policy applied by Insert. It may be replaced at any
// time with Configure, affecting only sessions inserted afterwards.
type Config struct {
	// Expiration is the TTL given to each newly inserted session, applied in
	// whole seconds (rounded up). Zero means sessions do not expire.
	Expiration time.Duration
}

// Options represents tunable knobs that control the behavior of Manager.
type Options struct {
	// Config is the initial session policy.
	// Default if unspecified: no expiration
	Config Config
	// IDLen is the number of random bytes in each session token, which is then
	// base64 encoded. Values below 16 are raised to 16.
	// Default if unspecified: 16 bytes
	IDLen int
	// Field is the name of the record field holding the session payload.
	// Default if unspecified: "session_data"
	Field string
	// Rand is the source of random token bytes, which must be
	// cryptographically secure.
	// Default if unspecified: crypto/rand.Reader
	Rand io.Reader
	// ConnectAttempts is the number of connectivity checks Open makes before
	// giving up.
	// Default if unspecified: 3
	ConnectAttempts int
	// Registerer, if set, causes Open to instrument the store with Prometheus
	// metrics registered there (see the store/metrics subpackage).
	Registerer prometheus.Registerer
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.IDLen == 0 {
		opts.IDLen = defaultIDLen
	}
	if opts.Field == "" {
		opts.Field = defaultField
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = defaultConnectAttempts
	}
	return opts
}

// Manager manages sessions stored in a store.Store. Whether a Manager may be
// shared across goroutines depends on its store; all stores in this module are
// safe for concurrent use.
type Manager struct {
	store store.Store
	gen   *token.Generator
	field string
	mu    sync.RWMutex
	cfg   Config
}

// NewManager returns a new Manager using the provided store and respecting the
// provided options (which may be nil).
func NewManager(s store.Store, opts *Options) *Manager {
	o := opts.withDefaults()
	return &Manager{
		store: s,
		gen:   token.NewGenerator(o.IDLen, o.Rand),
		field: o.Field,
		cfg:   o.Config,
	}
}

// Open connects to the Redis server at the provided URL (e.g.,
// "redis://127.0.0.1:6379/0") and returns a Manager using it. Connection
// failures are reported as ErrConnection, and a server that rejects the
// connection (e.g., for missing credentials) as ErrStoreResponse. The Manager
// should be closed with Close when no longer needed.
func Open(ctx context.Context, url string, opts *Options) (*Manager, error) {
	o := opts.withDefaults()
	rs, err := redis.Dial(ctx, url, o.ConnectAttempts)
	if err != nil {
		return nil, err
	}
	var s store.Store = rs
	if o.Registerer != nil {
		ms, err := metrics.Wrap(rs, o.Registerer)
		if err != nil {
			rs.Close()
			return nil, fmt.Errorf("failed to register store metrics: %w", err)
		}
		s = ms
	}
	return NewManager(s, &o), nil
}

// Close releases the underlying store, if it supports closing.
func (m *Manager) Close() error {
	if c, ok := m.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Configure replaces the session policy. Sessions inserted earlier keep the
// TTL they were given.
func (m *Manager) Configure(c Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = c
}

// Config returns the current session policy.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Insert creates a new session holding the provided payload and returns its
// token. A nil payload is stored as the empty string; the session is active
// all the same.
//
// If an expiration is configured and setting it fails, the new session is
// removed (best effort) before the error is returned, so that no session
// outlives its intended TTL.
func (m *Manager) Insert(ctx context.Context, payload *string) (string, error) {
	tok, err := m.gen.New()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenCreation, err)
	}
	var val string
	if payload != nil {
		val = *payload
	}
	set, err := m.store.SetIfAbsent(ctx, tok, m.field, val)
	if err != nil {
		return "", err
	}
	if !set {
		slog.Error("Generated session token collides with a stored session")
		return "", ErrSessionExists
	}
	if exp := m.Config().Expiration; exp > 0 {
		if err := m.setExpiration(ctx, tok, exp); err != nil {
			if derr := m.store.DeleteField(context.WithoutCancel(ctx), tok, m.field); derr != nil {
				slog.Error("Failed to remove session after setting its expiration failed", "error", derr)
			}
			return "", err
		}
	}
	return tok, nil
}

// setExpiration gives the session a TTL of d, rounded up to whole seconds.
func (m *Manager) setExpiration(ctx context.Context, tok string, d time.Duration) error {
	secs := (d + time.Second - 1) / time.Second
	return m.store.Expire(ctx, tok, secs*time.Second)
}

// Get returns the payload of the session identified by the provided token, or
// nil if no such session exists (i.e., it was never inserted, was removed, or
// has expired).
func (m *Manager) Get(ctx context.Context, tok string) (*string, error) {
	val, err := m.store.GetField(ctx, tok, m.field)
	if errors.Is(err, store.ErrFieldNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &val, nil
}

// IsActive reports whether the session identified by the provided token
// exists. Sessions that were never inserted and those that were removed or
// have expired are indistinguishable.
func (m *Manager) IsActive(ctx context.Context, tok string) (bool, error) {
	return m.store.FieldExists(ctx, tok, m.field)
}

// Remove deletes the session identified by the provided token. Removing an
// unknown session is not an error.
func (m *Manager) Remove(ctx context.Context, tok string) error {
	return m.store.DeleteField(ctx, tok, m.field)
}
