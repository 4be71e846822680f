package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/common/validation"
	"github.com/vnykmshr/dataflow/pkg/metrics"
	"github.com/vnykmshr/dataflow/pkg/ratelimit/bucket"
)

// Throttle paces items across every process sharing the same Redis key.
// It satisfies dataflow.Throttle, so blocks in different processes can
// share one throughput budget.
type Throttle interface {
	// Allow takes a token if one is available now across all instances.
	Allow(ctx context.Context) bool

	// Wait blocks until a token is available or ctx is done.
	Wait(ctx context.Context) error

	// WaitN blocks until n tokens are available or ctx is done.
	WaitN(ctx context.Context, n int) error

	// SetRate changes the refill rate for every instance.
	SetRate(ctx context.Context, rate float64) error

	// SetBurst changes the bucket size for every instance.
	SetBurst(ctx context.Context, burst int) error

	// Stats returns the shared bucket state and request counters.
	Stats(ctx context.Context) (*Stats, error)

	// Reset clears the shared state and starts again with a full bucket.
	Reset(ctx context.Context) error

	// Close deregisters this instance.
	Close() error
}

// Stats holds the shared throttle state.
type Stats struct {
	Rate            float64
	Burst           int
	Tokens          float64
	LastRefill      time.Time
	TotalRequests   int64
	AllowedRequests int64
	DeniedRequests  int64
	ActiveInstances []string
}

// Config holds configuration for a distributed throttle.
type Config struct {
	// Redis client for coordination.
	Redis redis.UniversalClient

	// Key is the Redis key prefix shared by all instances.
	Key string

	// Rate is the number of tokens added per second.
	Rate float64

	// Burst is the maximum number of tokens that can be stored.
	Burst int

	// InstanceID identifies this process in the shared instance set.
	InstanceID string

	// Fallback, if set, is used while Redis is unreachable.
	Fallback bucket.Throttle

	// RedisTimeout bounds each Redis round trip.
	RedisTimeout time.Duration

	// KeyTTL is how long idle keys live.
	KeyTTL time.Duration

	// Name labels the throttle's metrics and log lines. Defaults to Key.
	Name string

	// Metrics records waits and denials. Nil disables recording.
	Metrics *metrics.Registry

	// Logger receives fallback and Redis failure events. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with defaults for everything but
// the Redis client, key, rate and burst.
func DefaultConfig() Config {
	return Config{
		InstanceID:   generateInstanceID(),
		RedisTimeout: 500 * time.Millisecond,
		KeyTTL:       time.Hour,
	}
}

// New creates a Redis-backed token-bucket throttle. If the initial Redis
// setup fails and no Fallback is configured, New returns the error.
func New(config Config) (Throttle, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	rtb, err := newRedisTokenBucket(applyConfigDefaults(config))
	if err != nil {
		return nil, err
	}
	return rtb, nil
}

func validateConfig(config Config) error {
	if config.Redis == nil {
		return dferrors.NewValidationError("distributed", "Redis", nil, "redis client is required").
			WithHint("pass a redis.NewClient or redis.NewUniversalClient")
	}
	if err := validation.ValidateNotEmpty("distributed", "Key", config.Key); err != nil {
		return err
	}
	if err := validation.ValidatePositiveFloat("distributed", "Rate", config.Rate); err != nil {
		return err
	}
	return validation.ValidatePositive("distributed", "Burst", config.Burst)
}

func applyConfigDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.InstanceID == "" {
		config.InstanceID = defaults.InstanceID
	}
	if config.RedisTimeout <= 0 {
		config.RedisTimeout = defaults.RedisTimeout
	}
	if config.KeyTTL <= 0 {
		config.KeyTTL = defaults.KeyTTL
	}
	if config.Name == "" {
		config.Name = config.Key
	}
	return config
}

// RedisError represents a failed Redis operation.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return fmt.Sprintf("distributed: redis %s: %v", e.Operation, e.Err)
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

// Is matches dferrors.ErrTimeout when the Redis call ran out of time.
func (e *RedisError) Is(target error) bool {
	return target == dferrors.ErrTimeout && errors.Is(e.Err, context.DeadlineExceeded)
}
