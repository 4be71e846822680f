package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/dataflow/internal/testutil"
	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/dataflow"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

var _ dataflow.ConcurrencyLimiter = Limiter(nil)

func TestNewSafe(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"valid capacity", 10, false},
		{"capacity one", 1, false},
		{"zero capacity", 0, true},
		{"negative capacity", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewSafe(tt.capacity)
			if tt.wantErr {
				testutil.AssertErrorIs(t, err, dferrors.ErrInvalidConfiguration)
				if l != nil {
					t.Error("expected nil limiter on error")
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, l.Capacity(), tt.capacity)
			testutil.AssertEqual(t, l.Available(), tt.capacity)
			testutil.AssertEqual(t, l.InUse(), 0)
		})
	}
}

func TestNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(0) should panic")
		}
	}()
	New(0)
}

func TestNewWithConfig_InitialAvailable(t *testing.T) {
	tests := []struct {
		initial   int
		available int
	}{
		{-1, 4},
		{2, 2},
		{0, 0},
		{9, 4},
	}

	for _, tt := range tests {
		l := NewWithConfig(Config{Capacity: 4, InitialAvailable: tt.initial})
		testutil.AssertEqual(t, l.Available(), tt.available)
		testutil.AssertEqual(t, l.InUse(), 4-tt.available)
	}
}

func TestTryAcquireRelease(t *testing.T) {
	l := New(2)

	testutil.AssertEqual(t, l.TryAcquire(), true)
	testutil.AssertEqual(t, l.TryAcquire(), true)
	testutil.AssertEqual(t, l.TryAcquire(), false)
	testutil.AssertEqual(t, l.InUse(), 2)

	l.Release()
	testutil.AssertEqual(t, l.Available(), 1)
	testutil.AssertEqual(t, l.TryAcquireN(2), false)
	l.Release()
	testutil.AssertEqual(t, l.TryAcquireN(2), true)
	l.ReleaseN(2)

	testutil.AssertEqual(t, l.TryAcquireN(0), true)
	testutil.AssertEqual(t, l.InUse(), 0)
}

func TestRelease_Panics(t *testing.T) {
	l := New(1)
	defer func() {
		if recover() == nil {
			t.Error("releasing an unheld slot should panic")
		}
	}()
	l.Release()
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	l := New(1)
	testutil.AssertNoError(t, l.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		if err := l.Acquire(ctx); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should wait")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release()
	testutil.WaitClosed(t, acquired, testutil.TestTimeout)
	testutil.AssertEqual(t, l.InUse(), 1)
	l.Release()
}

func TestAcquire_ContextCancel(t *testing.T) {
	l := New(1)
	testutil.AssertEqual(t, l.TryAcquire(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	testutil.AssertErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	// The cancelled waiter must not hold or leak a slot.
	l.Release()
	testutil.AssertEqual(t, l.Available(), 1)
	testutil.AssertEqual(t, l.InUse(), 0)

	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()
	testutil.AssertErrorIs(t, l.Acquire(done), context.Canceled)
	testutil.AssertEqual(t, l.InUse(), 0)
}

func TestAcquireN_SmallerWaiterProceeds(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	l := New(3)
	testutil.AssertNoError(t, l.AcquireN(ctx, 2))

	big := make(chan struct{})
	go func() {
		if err := l.AcquireN(ctx, 3); err == nil {
			close(big)
		}
	}()
	testutil.Eventually(t, func() bool {
		lim := l.(*limiter)
		lim.mu.Lock()
		defer lim.mu.Unlock()
		return len(lim.waiters) == 1
	}, time.Second, time.Millisecond)

	// One slot is free, so a single-slot request still succeeds.
	testutil.AssertEqual(t, l.TryAcquire(), true)
	l.Release()

	l.ReleaseN(2)
	testutil.WaitClosed(t, big, testutil.TestTimeout)
	testutil.AssertEqual(t, l.InUse(), 3)
	l.ReleaseN(3)
}

func TestSetCapacity(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	l := New(2)
	testutil.AssertNoError(t, l.AcquireN(ctx, 2))

	waiting := make(chan struct{})
	go func() {
		if err := l.Acquire(ctx); err == nil {
			close(waiting)
		}
	}()

	l.SetCapacity(3)
	testutil.WaitClosed(t, waiting, testutil.TestTimeout)
	testutil.AssertEqual(t, l.InUse(), 3)

	// Shrinking below usage leaves no free slots until enough are released.
	l.SetCapacity(1)
	testutil.AssertEqual(t, l.Available(), 0)
	l.ReleaseN(2)
	testutil.AssertEqual(t, l.Available(), 0)
	l.Release()
	testutil.AssertEqual(t, l.Available(), 1)
}

func TestConcurrentAccess(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	const capacity = 3
	l := New(capacity)

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Error(err)
				return
			}
			defer l.Release()

			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&current, -1)
		}()
	}
	wg.Wait()

	if peak > capacity {
		t.Errorf("peak concurrency %d exceeded capacity %d", peak, capacity)
	}
	testutil.AssertEqual(t, l.InUse(), 0)
}

func TestLimiter_SharedAcrossBlocks(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	slots := NewWithConfig(Config{Capacity: 2, Name: "shared", Metrics: reg})

	var current, peak int32
	work := func(ctx context.Context, _ int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	}

	opts := dataflow.BlockOptions{MaxDegreeOfParallelism: 4, Concurrency: slots}
	a := dataflow.NewActionBlock(work, opts)
	b := dataflow.NewActionBlock(work, opts)

	for i := 0; i < 20; i++ {
		a.Post(i)
		b.Post(i)
	}
	a.Complete()
	b.Complete()
	testutil.AssertNoError(t, a.Wait(ctx))
	testutil.AssertNoError(t, b.Wait(ctx))

	if peak > 2 {
		t.Errorf("blocks ran %d items at once, want at most 2", peak)
	}
	testutil.AssertEqual(t, slots.InUse(), 0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.ConcurrencyInUse.WithLabelValues("shared")), 0.0)
}
