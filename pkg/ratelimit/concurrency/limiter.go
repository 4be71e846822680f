package concurrency

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

// Limiter bounds how many operations hold a slot at once. It satisfies
// dataflow.ConcurrencyLimiter, so one Limiter assigned to several blocks
// caps their combined in-flight items.
type Limiter interface {
	// Acquire blocks until a slot is free or ctx is done.
	Acquire(ctx context.Context) error

	// AcquireN blocks until n slots are free or ctx is done.
	AcquireN(ctx context.Context, n int) error

	// TryAcquire takes a slot if one is free now.
	TryAcquire() bool

	// TryAcquireN takes n slots if they are all free now.
	TryAcquireN(n int) bool

	// Release returns one slot. It panics if no slot is held.
	Release()

	// ReleaseN returns n slots. It panics if fewer than n are held.
	ReleaseN(n int)

	// SetCapacity changes the number of slots. A reduction below the
	// current usage takes effect as slots are released.
	SetCapacity(capacity int)

	// Capacity returns the number of slots.
	Capacity() int

	// Available returns the number of free slots.
	Available() int

	// InUse returns the number of held slots.
	InUse() int
}

// Config holds configuration for a concurrency limiter.
type Config struct {
	// Capacity is the number of slots.
	Capacity int

	// InitialAvailable is the number of slots free at start.
	// If negative or greater than Capacity, defaults to Capacity.
	InitialAvailable int

	// Name labels the limiter's metrics and log lines.
	Name string

	// Metrics records slot usage and waits. Nil disables recording.
	Metrics *metrics.Registry

	// Logger receives debug events for long waits. Nil disables logging.
	Logger *zerolog.Logger
}

// limiter implements Limiter as a semaphore with a waiter list.
type limiter struct {
	mu        sync.Mutex
	capacity  int
	available int
	inUse     int
	waiters   []waiter

	name string
	m    *metrics.Registry
	log  zerolog.Logger
}

type waiter struct {
	n      int
	ready  chan struct{}
	cancel <-chan struct{}
}

// New creates a limiter with capacity slots, all free.
// It panics if capacity is not positive.
func New(capacity int) Limiter {
	l, err := NewSafe(capacity)
	if err != nil {
		panic(err)
	}
	return l
}

// NewSafe is New returning an error instead of panicking.
func NewSafe(capacity int) (Limiter, error) {
	return NewWithConfigSafe(Config{Capacity: capacity, InitialAvailable: -1})
}

// NewWithConfig creates a limiter from config. It panics on invalid config.
func NewWithConfig(config Config) Limiter {
	l, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return l
}

// NewWithConfigSafe is NewWithConfig returning an error instead of panicking.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if config.Capacity <= 0 {
		return nil, errors.NewValidationError("concurrency", "Capacity", config.Capacity, "must be positive").
			WithHint("capacity is the number of items allowed in flight at once")
	}

	available := config.InitialAvailable
	if available < 0 || available > config.Capacity {
		available = config.Capacity
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("limiter", config.Name).Logger()
	}

	l := &limiter{
		capacity:  config.Capacity,
		available: available,
		inUse:     config.Capacity - available,
		name:      config.Name,
		m:         config.Metrics,
		log:       logger,
	}
	l.observeInUse()
	return l, nil
}
