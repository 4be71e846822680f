package leakybucket

import (
	"context"
	"math"
	"time"

	"github.com/vnykmshr/dataflow/pkg/ratelimit/bucket"
)

func (lb *leakyBucket) Allow() bool {
	return lb.AllowN(1)
}

func (lb *leakyBucket) AllowN(n int) bool {
	if n <= 0 {
		return true
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked(lb.clock.Now())
	if lb.rate == bucket.Inf || lb.level+float64(n) <= float64(lb.capacity) {
		lb.level += float64(n)
		return true
	}
	if lb.m != nil {
		lb.m.ThrottleDenied.WithLabelValues(throttleType, lb.name).Inc()
	}
	return false
}

func (lb *leakyBucket) Wait(ctx context.Context) error {
	return lb.WaitN(ctx, 1)
}

func (lb *leakyBucket) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	delay, err := lb.reserve(n)
	if err != nil {
		return err
	}
	lb.observeWait(delay)
	if delay <= 0 {
		return nil
	}
	if delay >= slowWait {
		lb.log.Debug().Dur("delay", delay).Int("items", n).Msg("throttle wait")
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		lb.refund(n)
		return ctx.Err()
	}
}

// reserve adds n to the level and returns how long the caller must wait
// for the overflow above capacity to drain.
func (lb *leakyBucket) reserve(n int) (time.Duration, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.rate == bucket.Inf {
		return 0, nil
	}

	lb.leakLocked(lb.clock.Now())
	overflow := lb.level + float64(n) - float64(lb.capacity)
	if overflow <= 0 {
		lb.level += float64(n)
		return 0, nil
	}
	if lb.rate == 0 {
		return 0, ErrStalled
	}

	lb.level += float64(n)
	if lb.m != nil {
		lb.m.ThrottleDenied.WithLabelValues(throttleType, lb.name).Inc()
	}
	return time.Duration(float64(time.Second) * overflow / float64(lb.rate)), nil
}

func (lb *leakyBucket) refund(n int) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked(lb.clock.Now())
	lb.level = math.Max(0, lb.level-float64(n))
}

func (lb *leakyBucket) SetRate(rate bucket.Rate) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked(lb.clock.Now())
	lb.rate = rate
}

func (lb *leakyBucket) SetCapacity(capacity int) {
	if capacity <= 0 {
		panic("leakybucket: capacity must be positive")
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked(lb.clock.Now())
	lb.capacity = capacity
}

func (lb *leakyBucket) Rate() bucket.Rate {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

func (lb *leakyBucket) Capacity() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.capacity
}

func (lb *leakyBucket) Level() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked(lb.clock.Now())
	return lb.level
}

// leakLocked drains the level for the time elapsed since the last leak.
func (lb *leakyBucket) leakLocked(now time.Time) {
	switch {
	case lb.rate == bucket.Inf:
		lb.level = 0
	case lb.rate > 0:
		if elapsed := now.Sub(lb.lastLeak); elapsed > 0 {
			lb.level = math.Max(0, lb.level-elapsed.Seconds()*float64(lb.rate))
		}
	}
	lb.lastLeak = now
}

func (lb *leakyBucket) observeWait(d time.Duration) {
	if lb.m != nil {
		lb.m.ThrottleWaitDuration.WithLabelValues(throttleType, lb.name).Observe(d.Seconds())
	}
}
