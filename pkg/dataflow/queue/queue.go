package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/common/validation"
)

// Unbounded is the capacity sentinel for a queue that never blocks producers.
const Unbounded = -1

// initialSlots caps the first allocation so large or unbounded queues grow on demand.
const initialSlots = 16

var (
	// ErrQueueClosed is returned when enqueueing into a closed queue.
	ErrQueueClosed = fmt.Errorf("queue: %w", dferrors.ErrClosed)

	// ErrEndOfQueue is returned by Dequeue once the queue is closed and drained.
	ErrEndOfQueue = errors.New("queue: end of queue")
)

// Config holds configuration for a Queue.
type Config struct {
	// Capacity is the maximum number of buffered items, or Unbounded.
	Capacity int

	// Retain keeps each dequeued item counted against Capacity until the
	// consumer calls Release for it.
	Retain bool

	// OnBlock is called once for each Enqueue that has to wait for space. It
	// runs with the queue lock held and must not call back into the queue.
	OnBlock func()
}

// Stats holds queue counters.
type Stats struct {
	// Enqueued is the number of items accepted.
	Enqueued int64

	// Dequeued is the number of items handed to consumers.
	Dequeued int64

	// Rejected is the number of TryEnqueue calls refused because the queue was full or closed.
	Rejected int64

	// Discarded is the number of buffered items dropped by Discard.
	Discarded int64

	// BlockedEnqueues is the number of Enqueue calls that had to wait for space.
	BlockedEnqueues int64

	// HighWater is the largest number of items ever buffered at once.
	HighWater int

	// Len is the number of items buffered when the snapshot was taken.
	Len int

	// InFlight is the number of dequeued items not yet released. Always zero
	// unless the queue retains items.
	InFlight int
}

// Queue is a thread-safe FIFO of pending work items with an optional
// capacity bound. Producers suspend on a full queue and consumers on an
// empty one; both wake on Close or when their context is done.
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buffer   []T
	head     int
	count    int
	capacity int
	closed   bool
	retain   bool
	held     int

	onBlock func()
	stats   Stats
}

// New creates a queue with the given capacity. It panics on an invalid
// capacity; use NewWithConfigSafe to get an error instead.
func New[T any](capacity int) *Queue[T] {
	return NewWithConfig[T](Config{Capacity: capacity})
}

// NewWithConfig creates a queue from config, panicking on invalid settings.
func NewWithConfig[T any](config Config) *Queue[T] {
	q, err := NewWithConfigSafe[T](config)
	if err != nil {
		panic(err)
	}
	return q
}

// NewWithConfigSafe creates a queue from config and validates it.
func NewWithConfigSafe[T any](config Config) (*Queue[T], error) {
	if err := validation.ValidateLimit("queue", "capacity", config.Capacity, Unbounded); err != nil {
		return nil, err
	}

	slots := initialSlots
	if config.Capacity != Unbounded && config.Capacity < slots {
		slots = config.Capacity
	}

	q := &Queue[T]{
		buffer:   make([]T, slots),
		capacity: config.Capacity,
		retain:   config.Retain,
		onBlock:  config.OnBlock,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// TryEnqueue adds item without blocking. It reports false when the queue is
// full or closed.
func (q *Queue[T]) TryEnqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.fullLocked() {
		q.stats.Rejected++
		return false
	}

	q.pushLocked(item)
	return true
}

// Enqueue adds item, suspending while the queue is full. It fails with
// ErrQueueClosed if the queue is or becomes closed, or with the context
// error if ctx is done first.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if q.fullLocked() {
		q.stats.BlockedEnqueues++
		if q.onBlock != nil {
			q.onBlock()
		}
		stop := q.wakeOnDone(ctx, q.notFull)
		defer stop()

		for q.fullLocked() && !q.closed {
			if err := ctx.Err(); err != nil {
				// Pass on any wakeup this waiter consumed.
				q.notFull.Signal()
				return err
			}
			q.notFull.Wait()
		}
	}

	if q.closed {
		return ErrQueueClosed
	}

	q.pushLocked(item)
	return nil
}

// Dequeue removes the oldest item, suspending while the queue is empty and
// open. It returns ErrEndOfQueue once the queue is closed and drained.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 && !q.closed {
		stop := q.wakeOnDone(ctx, q.notEmpty)
		defer stop()

		for q.count == 0 && !q.closed {
			if err := ctx.Err(); err != nil {
				q.notEmpty.Signal()
				return zero, err
			}
			q.notEmpty.Wait()
		}
	}

	if q.count == 0 {
		return zero, ErrEndOfQueue
	}

	return q.popLocked(), nil
}

// Close marks the queue as accepting no further items. Buffered items are
// still handed out by Dequeue before it reports ErrEndOfQueue. Close is
// idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Release frees the capacity slot of one item handed out by Dequeue. It
// does nothing unless the queue retains items.
func (q *Queue[T]) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.held == 0 {
		return
	}
	q.held--
	q.notFull.Signal()
}

// Discard drops every buffered item and returns how many were dropped.
func (q *Queue[T]) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	var zero T
	for i := 0; i < q.count; i++ {
		q.buffer[(q.head+i)%len(q.buffer)] = zero
	}
	q.head = 0
	q.count = 0
	q.stats.Discarded += int64(n)

	q.notFull.Broadcast()
	return n
}

// IsClosed reports whether Close has been called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the configured capacity, or Unbounded.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.Len = q.count
	stats.InFlight = q.held
	return stats
}

// wakeOnDone broadcasts cond when ctx is done so waiters can observe the
// cancellation. The returned func unregisters the callback.
func (q *Queue[T]) wakeOnDone(ctx context.Context, cond *sync.Cond) func() bool {
	return context.AfterFunc(ctx, func() {
		q.mu.Lock()
		cond.Broadcast()
		q.mu.Unlock()
	})
}

// fullLocked reports whether buffered plus retained items reach capacity
// (must hold lock).
func (q *Queue[T]) fullLocked() bool {
	return q.capacity != Unbounded && q.count+q.held >= q.capacity
}

// pushLocked appends an item, growing the ring when needed (must hold lock).
func (q *Queue[T]) pushLocked(item T) {
	if q.count == len(q.buffer) {
		q.growLocked()
	}
	q.buffer[(q.head+q.count)%len(q.buffer)] = item
	q.count++

	q.stats.Enqueued++
	if q.count > q.stats.HighWater {
		q.stats.HighWater = q.count
	}
	q.notEmpty.Signal()
}

// popLocked removes the oldest item (must hold lock).
func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.buffer[q.head]
	q.buffer[q.head] = zero // Clear reference
	q.head = (q.head + 1) % len(q.buffer)
	q.count--

	q.stats.Dequeued++
	if q.retain {
		q.held++
	} else {
		q.notFull.Signal()
	}
	return item
}

// growLocked doubles the ring, bounded by capacity (must hold lock).
func (q *Queue[T]) growLocked() {
	size := len(q.buffer) * 2
	if size == 0 {
		size = 1
	}
	if q.capacity != Unbounded && size > q.capacity {
		size = q.capacity
	}

	buffer := make([]T, size)
	for i := 0; i < q.count; i++ {
		buffer[i] = q.buffer[(q.head+i)%len(q.buffer)]
	}
	q.buffer = buffer
	q.head = 0
}
