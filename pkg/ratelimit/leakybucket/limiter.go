package leakybucket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/metrics"
	"github.com/vnykmshr/dataflow/pkg/ratelimit/bucket"
)

// ErrStalled is returned by Wait when the bucket is full and its rate is
// zero, so the item could never drain.
var ErrStalled = fmt.Errorf("leakybucket: bucket full with zero leak rate: %w", dferrors.ErrRateLimited)

// Throttle spaces items evenly: the bucket drains at Rate items per second
// and holds at most Capacity items, so at most Capacity items pass back to
// back before the rest are released one per 1/Rate. With Capacity 1 every
// item is spaced exactly. It satisfies dataflow.Throttle.
type Throttle interface {
	// Allow admits one item if the bucket has room now. It does not block.
	Allow() bool

	// AllowN admits n items if the bucket has room for all of them now.
	AllowN(n int) bool

	// Wait blocks until one item may pass or ctx is done.
	Wait(ctx context.Context) error

	// WaitN blocks until n items may pass or ctx is done.
	WaitN(ctx context.Context, n int) error

	// SetRate changes the leak rate.
	SetRate(rate bucket.Rate)

	// SetCapacity changes the bucket size.
	SetCapacity(capacity int)

	// Rate returns the leak rate.
	Rate() bucket.Rate

	// Capacity returns the bucket size.
	Capacity() int

	// Level returns how full the bucket is. It exceeds Capacity while
	// waiters hold reservations.
	Level() float64
}

// Config holds configuration for a leaky bucket throttle.
type Config struct {
	// Rate is the number of items drained per second.
	Rate bucket.Rate

	// Capacity is the number of items the bucket holds.
	Capacity int

	// InitialLevel is the starting fill level. Negative starts empty.
	InitialLevel int

	// Clock provides the current time. If nil, bucket.SystemClock is used.
	Clock bucket.Clock

	// Name labels the throttle's metrics and log lines.
	Name string

	// Metrics records waits and denials. Nil disables recording.
	Metrics *metrics.Registry

	// Logger receives debug events for long waits. Nil disables logging.
	Logger *zerolog.Logger
}

const throttleType = "leaky_bucket"

// slowWait is the wait above which a debug event is logged.
const slowWait = time.Second

type leakyBucket struct {
	mu       sync.Mutex
	rate     bucket.Rate
	capacity int
	level    float64
	lastLeak time.Time
	clock    bucket.Clock

	name string
	m    *metrics.Registry
	log  zerolog.Logger
}

// New creates an empty leaky bucket. It panics if rate is negative or
// capacity is not positive.
func New(rate bucket.Rate, capacity int) Throttle {
	return NewWithConfig(Config{Rate: rate, Capacity: capacity, InitialLevel: -1})
}

// NewSafe is New returning an error instead of panicking.
func NewSafe(rate bucket.Rate, capacity int) (Throttle, error) {
	return NewWithConfigSafe(Config{Rate: rate, Capacity: capacity, InitialLevel: -1})
}

// NewWithConfig creates a leaky bucket from config. It panics on invalid config.
func NewWithConfig(config Config) Throttle {
	t, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return t
}

// NewWithConfigSafe is NewWithConfig returning an error instead of panicking.
func NewWithConfigSafe(config Config) (Throttle, error) {
	if config.Rate < 0 {
		return nil, dferrors.NewValidationError("leakybucket", "Rate", config.Rate, "cannot be negative").
			WithHint("use bucket.Inf for no limit")
	}
	if config.Capacity <= 0 {
		return nil, dferrors.NewValidationError("leakybucket", "Capacity", config.Capacity, "must be positive").
			WithHint("use 1 to space every item evenly")
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}

	level := float64(config.InitialLevel)
	if level < 0 {
		level = 0
	}
	if level > float64(config.Capacity) {
		level = float64(config.Capacity)
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("throttle", config.Name).Str("throttle_type", throttleType).Logger()
	}

	return &leakyBucket{
		rate:     config.Rate,
		capacity: config.Capacity,
		level:    level,
		lastLeak: config.Clock.Now(),
		clock:    config.Clock,
		name:     config.Name,
		m:        config.Metrics,
		log:      logger,
	}, nil
}
