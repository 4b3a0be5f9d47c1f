// Package metrics provides a store.Store decorator exporting Prometheus
// instrumentation: a counter of commands by outcome and a latency histogram
// per command.
package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/swfrench/redisesh/store"
)

// Outcome label values.
const (
	ResultOK              = "ok"
	ResultNotFound        = "not_found"
	ResultConnectionError = "connection_error"
	ResultResponseError   = "response_error"
	ResultError           = "error"
)

// Store wraps a store.Store, recording the outcome and latency of every
// command issued through it.
type Store struct {
	next     store.Store
	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var _ store.Store = (*Store)(nil)

// Wrap returns a Store instrumenting s, registering its collectors with reg.
// Collectors already registered with reg (e.g., by a previous call to Wrap)
// are shared.
func Wrap(s store.Store, reg prometheus.Registerer) (*Store, error) {
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "redisesh",
		Name:      "store_commands_total",
		Help:      "Total number of store commands issued, by command and result.",
	}, []string{"command", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "redisesh",
		Name:      "store_command_duration_seconds",
		Help:      "Store command round-trip latency in seconds.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"command"})
	var err error
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	return &Store{next: s, commands: commands, latency: latency}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, store.ErrFieldNotFound):
		return ResultNotFound
	case errors.Is(err, store.ErrConnection):
		return ResultConnectionError
	case errors.Is(err, store.ErrResponse):
		return ResultResponseError
	default:
		return ResultError
	}
}

func (ms *Store) observe(command string, start time.Time, err error) {
	ms.latency.WithLabelValues(command).Observe(time.Since(start).Seconds())
	ms.commands.WithLabelValues(command, result(err)).Inc()
}

// SetIfAbsent implements store.Store.
func (ms *Store) SetIfAbsent(ctx context.Context, key, field, value string) (bool, error) {
	start := time.Now()
	set, err := ms.next.SetIfAbsent(ctx, key, field, value)
	ms.observe("set_if_absent", start, err)
	return set, err
}

// FieldExists implements store.Store.
func (ms *Store) FieldExists(ctx context.Context, key, field string) (bool, error) {
	start := time.Now()
	ok, err := ms.next.FieldExists(ctx, key, field)
	ms.observe("field_exists", start, err)
	return ok, err
}

// GetField implements store.Store.
func (ms *Store) GetField(ctx context.Context, key, field string) (string, error) {
	start := time.Now()
	val, err := ms.next.GetField(ctx, key, field)
	ms.observe("get_field", start, err)
	return val, err
}

// DeleteField implements store.Store.
func (ms *Store) DeleteField(ctx context.Context, key, field string) error {
	start := time.Now()
	err := ms.next.DeleteField(ctx, key, field)
	ms.observe("delete_field", start, err)
	return err
}

// Expire implements store.Store.
func (ms *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := ms.next.Expire(ctx, key, ttl)
	ms.observe("expire", start, err)
	return err
}

// Close closes the wrapped store, if it supports closing.
func (ms *Store) Close() error {
	if c, ok := ms.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
