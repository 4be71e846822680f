package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/dataflow/pkg/metrics"
)

const throttleType = "token_bucket"

// slowWait is the wait above which a debug line is logged.
const slowWait = time.Second

// tokenBucket implements Throttle.
type tokenBucket struct {
	mu         sync.Mutex
	rate       Rate
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock

	name string
	m    *metrics.Registry
	log  zerolog.Logger
}

func (tb *tokenBucket) Allow() bool {
	return tb.AllowN(1)
}

func (tb *tokenBucket) AllowN(n int) bool {
	_, ok := tb.reserve(tb.clock.Now(), n, 0)
	if !ok && tb.m != nil {
		tb.m.ThrottleDenied.WithLabelValues(throttleType, tb.name).Add(float64(n))
	}
	return ok
}

func (tb *tokenBucket) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// WaitN reserves n tokens, going into debt if needed, and sleeps until the
// debt is repaid. A cancelled wait gives the tokens back.
func (tb *tokenBucket) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	delay, ok := tb.reserve(tb.clock.Now(), n, math.MaxInt64)
	if !ok {
		if tb.m != nil {
			tb.m.ThrottleDenied.WithLabelValues(throttleType, tb.name).Add(float64(n))
		}
		return ErrExhausted
	}
	tb.observeWait(delay)

	if delay <= 0 {
		return nil
	}
	if delay >= slowWait {
		tb.log.Debug().Dur("delay", delay).Int("tokens", n).Msg("throttle wait")
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		tb.refund(n)
		return ctx.Err()
	}
}

func (tb *tokenBucket) SetRate(rate Rate) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(tb.clock.Now())
	tb.rate = rate
}

func (tb *tokenBucket) SetBurst(burst int) {
	if burst <= 0 {
		panic("bucket: burst must be positive")
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(tb.clock.Now())
	tb.burst = burst
	if tb.tokens > float64(burst) {
		tb.tokens = float64(burst)
	}
}

func (tb *tokenBucket) Rate() Rate {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

func (tb *tokenBucket) Burst() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.burst
}

func (tb *tokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(tb.clock.Now())
	return tb.tokens
}

// reserve takes n tokens at now if the resulting wait is within maxWait.
// Tokens may go negative; the returned delay is how long until they are
// earned back.
func (tb *tokenBucket) reserve(now time.Time, n int, maxWait time.Duration) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if n <= 0 || tb.rate == Inf {
		return 0, true
	}

	tb.refillLocked(now)
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return 0, true
	}

	// Zero rate never refills.
	if tb.rate == 0 {
		return 0, false
	}

	missing := float64(n) - tb.tokens
	wait := time.Duration(float64(time.Second) * missing / float64(tb.rate))
	if wait > maxWait {
		return 0, false
	}

	tb.tokens -= float64(n)
	return wait, true
}

func (tb *tokenBucket) refund(n int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(tb.clock.Now())
	tb.tokens = math.Min(tb.tokens+float64(n), float64(tb.burst))
}

// refillLocked adds the tokens earned since the last update.
func (tb *tokenBucket) refillLocked(now time.Time) {
	if tb.rate == Inf {
		tb.tokens = float64(tb.burst)
		tb.lastUpdate = now
		return
	}

	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 {
		return
	}
	tb.lastUpdate = now
	if tb.rate == 0 {
		return
	}

	tb.tokens = math.Min(tb.tokens+elapsed.Seconds()*float64(tb.rate), float64(tb.burst))
}

func (tb *tokenBucket) observeWait(d time.Duration) {
	if tb.m != nil {
		tb.m.ThrottleWaitDuration.WithLabelValues(throttleType, tb.name).Observe(d.Seconds())
	}
}
