package concurrency

import (
	"context"
	"time"
)

func (l *limiter) Acquire(ctx context.Context) error {
	return l.AcquireN(ctx, 1)
}

func (l *limiter) AcquireN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.available >= n {
		l.takeLocked(n)
		l.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	l.waiters = append(l.waiters, waiter{n: n, ready: ready, cancel: ctx.Done()})
	l.mu.Unlock()

	start := time.Now()
	select {
	case <-ready:
		l.observeWait(time.Since(start))
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ready:
			// Granted while ctx was being cancelled: hand the slots back.
			l.releaseLocked(n)
		default:
			l.removeWaiterLocked(ready)
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *limiter) TryAcquire() bool {
	return l.TryAcquireN(1)
}

func (l *limiter) TryAcquireN(n int) bool {
	if n <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.available >= n {
		l.takeLocked(n)
		return true
	}
	return false
}

func (l *limiter) Release() {
	l.ReleaseN(1)
}

func (l *limiter) ReleaseN(n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inUse < n {
		panic("concurrency: released more slots than acquired")
	}
	l.releaseLocked(n)
}

func (l *limiter) SetCapacity(capacity int) {
	if capacity <= 0 {
		panic("concurrency: capacity must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.capacity = capacity
	l.available = capacity - l.inUse
	if l.available < 0 {
		l.available = 0
	}
	l.notifyLocked()
	l.log.Debug().Int("capacity", capacity).Msg("capacity changed")
}

func (l *limiter) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

func (l *limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

func (l *limiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

func (l *limiter) takeLocked(n int) {
	l.available -= n
	l.inUse += n
	l.observeInUse()
}

// releaseLocked returns n slots, keeping available within the capacity
// after a shrink, and wakes waiters that now fit.
func (l *limiter) releaseLocked(n int) {
	l.inUse -= n
	l.available = l.capacity - l.inUse
	if l.available < 0 {
		l.available = 0
	}
	l.observeInUse()
	l.notifyLocked()
}

// notifyLocked grants slots to waiters in arrival order. A waiter that
// does not fit stays queued while smaller ones behind it may proceed.
func (l *limiter) notifyLocked() {
	remaining := l.waiters[:0]
	for _, w := range l.waiters {
		select {
		case <-w.cancel:
			continue
		default:
		}

		if l.available >= w.n {
			l.takeLocked(w.n)
			close(w.ready)
			continue
		}
		remaining = append(remaining, w)
	}
	for i := len(remaining); i < len(l.waiters); i++ {
		l.waiters[i] = waiter{}
	}
	l.waiters = remaining
}

// removeWaiterLocked drops the waiter owning ready if it is still queued.
func (l *limiter) removeWaiterLocked(ready chan struct{}) {
	for i, w := range l.waiters {
		if w.ready == ready {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

func (l *limiter) observeInUse() {
	if l.m != nil {
		l.m.ConcurrencyInUse.WithLabelValues(l.name).Set(float64(l.inUse))
	}
}

func (l *limiter) observeWait(d time.Duration) {
	if l.m != nil {
		l.m.ConcurrencyWaitDuration.WithLabelValues(l.name).Observe(d.Seconds())
	}
	if d >= time.Second {
		l.log.Debug().Dur("waited", d).Msg("slow concurrency slot acquisition")
	}
}
