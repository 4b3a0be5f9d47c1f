// Package config loads session manager settings from a YAML file and the
// environment, using koanf. Environment variables take precedence over the
// file, and both over the defaults returned by Default.
//
// Environment variables carry the prefix (REDISESH_ by default) followed by
// the upper-cased setting name, e.g. REDISESH_URL or REDISESH_ID_LEN.
// Durations are given as strings such as "30m".
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	session "github.com/swfrench/redisesh"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "REDISESH_"

// ErrInvalidSettings indicates that the loaded settings are unusable.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings describes how to reach the store and the session policy to apply.
type Settings struct {
	// URL addresses the Redis server.
	URL string `koanf:"url"`
	// Expiration is the TTL given to new sessions; zero disables expiration.
	Expiration time.Duration `koanf:"expiration"`
	// IDLen is the number of random bytes per session token.
	IDLen int `koanf:"id_len"`
	// Field names the record field holding the session payload.
	Field string `koanf:"field"`
	// ConnectAttempts bounds the connectivity checks made when opening.
	ConnectAttempts int `koanf:"connect_attempts"`
}

// Default returns the settings used for anything not otherwise configured.
func Default() Settings {
	return Settings{
		URL:             "redis://127.0.0.1:6379/0",
		IDLen:           16,
		Field:           "session_data",
		ConnectAttempts: 3,
	}
}

type loader struct {
	envPrefix string
	filePath  string
}

// Option configures Load.
type Option func(*loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// WithFile sets the YAML file to load. No file is read by default.
func WithFile(path string) Option {
	return func(l *loader) {
		l.filePath = path
	}
}

// Load returns Default overlaid with the configured file and then the
// environment.
func Load(opts ...Option) (*Settings, error) {
	l := &loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	k := koanf.New(".")
	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	}
	if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	s := Default()
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that s is usable.
func (s *Settings) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("url is empty: %w", ErrInvalidSettings)
	}
	if s.Expiration < 0 {
		return fmt.Errorf("expiration %v is negative: %w", s.Expiration, ErrInvalidSettings)
	}
	if s.IDLen < 0 {
		return fmt.Errorf("id_len %d is negative: %w", s.IDLen, ErrInvalidSettings)
	}
	if s.ConnectAttempts < 0 {
		return fmt.Errorf("connect_attempts %d is negative: %w", s.ConnectAttempts, ErrInvalidSettings)
	}
	return nil
}

// Options returns the session.Options corresponding to s.
func (s *Settings) Options() *session.Options {
	return &session.Options{
		Config:          session.Config{Expiration: s.Expiration},
		IDLen:           s.IDLen,
		Field:           s.Field,
		ConnectAttempts: s.ConnectAttempts,
	}
}

// Open connects to the configured store and returns a Manager applying the
// configured policy.
func (s *Settings) Open(ctx context.Context) (*session.Manager, error) {
	return session.Open(ctx, s.URL, s.Options())
}
