package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// RedisBundle bundles together a miniredis instance and an associated Redis
// client.
type RedisBundle struct {
	mr *miniredis.Miniredis
	rc *redis.Client
}

// MustCreateRedisBundle returns a new RedisBundle. The miniredis instance is
// shut down automatically at the end of the test.
func MustCreateRedisBundle(t *testing.T) *RedisBundle {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return &RedisBundle{mr: mr, rc: rc}
}

// Client returns the Redis client.
func (rb *RedisBundle) Client() *redis.Client {
	return rb.rc
}

// URL returns a redis:// URL addressing the miniredis instance.
func (rb *RedisBundle) URL() string {
	return "redis://" + rb.mr.Addr()
}

// FastForward advances miniredis' notion of time by d, evicting any keys whose
// TTL has elapsed.
func (rb *RedisBundle) FastForward(d time.Duration) {
	rb.mr.FastForward(d)
}

// TTL returns the TTL miniredis holds for key (zero if none).
func (rb *RedisBundle) TTL(key string) time.Duration {
	return rb.mr.TTL(key)
}

// Close shuts down the Redis client and miniredis instance.
func (rb *RedisBundle) Close() {
	rb.rc.Close()
	rb.mr.Close()
}
