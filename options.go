package kubetable

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/kubetable/internal/ticker"
)

// storeConfig holds mutable state during Store construction.
type storeConfig struct {
	name         string
	ascending    bool
	extras       []Watchable
	postProcess  PostProcessFunc
	stopCallback func()
	transport    Transport
	logger       *slog.Logger
	tickInterval time.Duration
	clock        func() time.Time
}

// Option is a function that configures a [Store] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [NewStore] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*storeConfig) error

// WithName labels the store in log output, typically with the resource kind.
func WithName(name string) Option {
	return func(cfg *storeConfig) error {
		cfg.name = name
		return nil
	}
}

// WithSortAscending sets the initial sort direction. Defaults to true.
func WithSortAscending(ascending bool) Option {
	return func(cfg *storeConfig) error {
		cfg.ascending = ascending
		return nil
	}
}

// WithExtraStores makes every change of the given stores recompute the view.
//
// Use this when the post-process hook reads data that updates independently
// of the snapshot, such as a [SideTable] of live metrics.
//
// Example:
//
//	metrics := kubetable.NewSideTable()
//	pods, err := kubetable.NewStore("name",
//	    kubetable.WithExtraStores(metrics),
//	    kubetable.WithPostProcess(metrics.Merge("cpu", "memory")),
//	    kubetable.WithStopCallback(metrics.Stop),
//	)
//
// The watches last until [Store.Close].
//
// Returns an error if any store is nil.
func WithExtraStores(stores ...Watchable) Option {
	return func(cfg *storeConfig) error {
		for _, s := range stores {
			if s == nil {
				return errors.New("extra store cannot be nil")
			}
		}
		cfg.extras = append(cfg.extras, stores...)
		return nil
	}
}

// WithPostProcess sets a hook applied to the filtered entries before sorting.
//
// The hook runs on every recomputation, including every age tick, so it must
// be cheap. A panicking hook is recovered and logged, and that pass uses the
// entries as they were before the hook. Nil hooks are ignored.
func WithPostProcess(fn PostProcessFunc) Option {
	return func(cfg *storeConfig) error {
		cfg.postProcess = fn
		return nil
	}
}

// WithStopCallback sets a function called first whenever a started store is
// stopped, typically to close a correlated secondary stream.
func WithStopCallback(fn func()) Option {
	return func(cfg *storeConfig) error {
		cfg.stopCallback = fn
		return nil
	}
}

// WithTransport sets the transport used by [Store.Start]. Defaults to
// [DefaultTransport].
//
// Returns an error if the transport is nil.
func WithTransport(t Transport) Option {
	return func(cfg *storeConfig) error {
		if t == nil {
			return errors.New("transport cannot be nil")
		}
		cfg.transport = t
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the store.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTickInterval sets how often ages are refreshed while the store is
// started. Defaults to one second.
//
// Returns an error if the interval is zero or negative.
func WithTickInterval(d time.Duration) Option {
	return func(cfg *storeConfig) error {
		if d <= 0 {
			return errors.New("tick interval must be positive")
		}
		cfg.tickInterval = d
		return nil
	}
}

// WithClock sets the time source used to compute ages. Defaults to
// [time.Now]. Mostly useful in tests.
//
// Returns an error if the clock is nil.
func WithClock(now func() time.Time) Option {
	return func(cfg *storeConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = now
		return nil
	}
}

func defaultStoreConfig() *storeConfig {
	return &storeConfig{
		ascending:    true,
		tickInterval: ticker.DefaultInterval,
		clock:        time.Now,
	}
}
