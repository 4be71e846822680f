package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		called := false
		Eventually(t, func() bool {
			called = true
			return true
		}, 100*time.Millisecond, 10*time.Millisecond)

		if !called {
			t.Error("condition function should be called")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		var counter int32
		go func() {
			time.Sleep(30 * time.Millisecond)
			atomic.StoreInt32(&counter, 1)
		}()

		Eventually(t, func() bool {
			return atomic.LoadInt32(&counter) == 1
		}, 500*time.Millisecond, 5*time.Millisecond)
	})
}

func TestWaitForInt32(t *testing.T) {
	var value int32

	go func() {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&value, 42)
	}()

	WaitForInt32(t, &value, 42, 500*time.Millisecond)
}

func TestWaitClosed(t *testing.T) {
	ch := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(ch)
	}()
	WaitClosed(t, ch, time.Second)
}

func TestRecorder(t *testing.T) {
	var rec Recorder[int]
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_ = rec.Record(ctx, v)
		}(i)
	}
	wg.Wait()

	AssertEqual(t, rec.Len(), 10)

	values := rec.Values()
	values[0] = -1
	if rec.Values()[0] == -1 {
		t.Error("Values should return a copy")
	}
}

func TestAssertSliceEqual(t *testing.T) {
	AssertSliceEqual(t, []int{8}, []int{8})
	AssertSliceEqual(t, []string{}, []string{})
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	AssertEqual(t, clock.Now(), start)

	clock.Advance(time.Second)
	AssertEqual(t, clock.Now(), start.Add(time.Second))

	clock.Set(start)
	AssertEqual(t, clock.Now(), start)
}
