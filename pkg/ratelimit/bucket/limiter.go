package bucket

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

// Rate is the number of items let through per second.
// A zero Rate lets through only the tokens already in the bucket.
type Rate float64

// Inf lets every item through immediately.
var Inf = Rate(math.Inf(1))

// Every converts a minimum interval between items to a Rate.
func Every(interval time.Duration) Rate {
	if interval <= 0 {
		return Inf
	}
	return Rate(time.Second) / Rate(interval)
}

// ErrExhausted is returned by Wait when the bucket is empty and its rate
// is zero, so no amount of waiting would produce a token.
var ErrExhausted = fmt.Errorf("bucket: tokens exhausted: %w", dferrors.ErrRateLimited)

// Throttle paces items with a token bucket: each item takes one token,
// tokens refill at Rate per second, and up to Burst tokens accumulate
// while the bucket is idle. It satisfies dataflow.Throttle.
type Throttle interface {
	// Allow takes a token if one is available now. It does not block.
	Allow() bool

	// AllowN takes n tokens if they are available now. It does not block.
	AllowN(n int) bool

	// Wait blocks until a token is available or ctx is done.
	Wait(ctx context.Context) error

	// WaitN blocks until n tokens are available or ctx is done.
	WaitN(ctx context.Context, n int) error

	// SetRate changes the refill rate, keeping the tokens already earned.
	SetRate(rate Rate)

	// SetBurst changes the bucket size, trimming surplus tokens.
	SetBurst(burst int)

	// Rate returns the current refill rate.
	Rate() Rate

	// Burst returns the current bucket size.
	Burst() int

	// Tokens returns the number of tokens currently available.
	Tokens() float64
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a Throttle.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Rate

	// Burst is the maximum number of tokens that can be stored.
	Burst int

	// InitialTokens is the number of tokens to start with.
	// If negative, the bucket starts full.
	InitialTokens int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// Name labels the throttle's metrics and log lines.
	Name string

	// Metrics records waits and denials. Nil disables recording.
	Metrics *metrics.Registry

	// Logger receives debug events for long waits. Nil disables logging.
	Logger *zerolog.Logger
}

// New creates a throttle that starts with a full bucket.
// It panics if rate is negative or burst is not positive.
func New(rate Rate, burst int) Throttle {
	t, err := NewSafe(rate, burst)
	if err != nil {
		panic(err)
	}
	return t
}

// NewSafe is like New but returns an error instead of panicking.
func NewSafe(rate Rate, burst int) (Throttle, error) {
	return NewWithConfigSafe(Config{Rate: rate, Burst: burst, InitialTokens: -1})
}

// NewWithConfig creates a throttle from config. It panics on invalid config.
func NewWithConfig(config Config) Throttle {
	t, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return t
}

// NewWithConfigSafe creates a throttle from config, returning an error
// instead of panicking.
func NewWithConfigSafe(config Config) (Throttle, error) {
	if config.Rate < 0 {
		return nil, dferrors.NewValidationError("bucket", "rate", config.Rate, "rate cannot be negative").
			WithHint("use 0 to allow only the initial tokens, or bucket.Inf for no limit")
	}
	if config.Burst <= 0 {
		return nil, dferrors.NewValidationError("bucket", "burst", config.Burst, "burst must be positive").
			WithHint("burst is how many items may pass back to back after an idle period")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Name == "" {
		config.Name = "default"
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("throttle", config.Name).Logger()
	}

	initialTokens := float64(config.InitialTokens)
	if config.InitialTokens < 0 || config.InitialTokens > config.Burst {
		initialTokens = float64(config.Burst)
	}

	return &tokenBucket{
		rate:       config.Rate,
		burst:      config.Burst,
		tokens:     initialTokens,
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
		name:       config.Name,
		m:          config.Metrics,
		log:        logger,
	}, nil
}
