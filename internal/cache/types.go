package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
)

// Common errors for cache operations
var (
	// ErrInvalidArgument is returned when a TTL, capacity or interval is out of range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSweeperRunning is returned by Start on a sweeper that is already running.
	ErrSweeperRunning = errors.New("sweeper already running")
)

const (
	// DefaultMaxSize is the entry capacity used when none is configured.
	DefaultMaxSize = 100

	// DefaultTTL is the time-to-live applied by Set.
	DefaultTTL = 5 * time.Minute

	// DefaultCleanupInterval is how often a Sweeper runs Cleanup.
	DefaultCleanupInterval = time.Minute
)

// Config holds configuration for cache instances
type Config struct {
	MaxSize         int           `mapstructure:"max_size" yaml:"max_size"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSize:         DefaultMaxSize,
		DefaultTTL:      DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// Validate reports the first out-of-range field, wrapped in ErrInvalidArgument.
func (c *Config) Validate() error {
	if c.MaxSize < 1 {
		return fmt.Errorf("%w: max size must be at least 1, got %d", ErrInvalidArgument, c.MaxSize)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("%w: negative default ttl %s", ErrInvalidArgument, c.DefaultTTL)
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("%w: negative cleanup interval %s", ErrInvalidArgument, c.CleanupInterval)
	}
	return nil
}

// Stats holds cache metrics
type Stats struct {
	Size    int // Live entry count, including expired entries not yet removed
	MaxSize int

	Hits        int64
	Misses      int64
	Evictions   int64   // Entries removed to make room for a new key
	Expirations int64   // Entries removed because their TTL elapsed
	HitRate     float64 // hits / (hits + misses), 0 with no lookups
}

// EntryMeta describes a stored entry without exposing its value.
type EntryMeta struct {
	Key        string
	InsertedAt time.Time
	TTL        time.Duration
	Age        time.Duration
	Expired    bool
}

// Cleaner is anything that can drop its expired entries.
type Cleaner interface {
	Cleanup() int
}

// Option configures a Store or Sweeper.
type Option func(*options)

type options struct {
	clock  clock.Clock
	logger *log.Logger
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

// WithClock sets the time source. Tests pass a *clock.Mock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
