package dataflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Block is the part of every dataflow block that is independent of the
// item types: identity, lifecycle and completion.
type Block interface {
	// ID returns the block's unique identity.
	ID() uuid.UUID

	// Name returns the block's human-readable name.
	Name() string

	// State returns the current lifecycle state.
	State() State

	// Complete stops the block from accepting input. Items already
	// buffered are still processed. Calling it more than once is a no-op.
	Complete()

	// Fault drives the block to Faulted with err. Buffered items are
	// discarded and in-flight stage functions see their context cancelled.
	// Ignored once the block is terminal.
	Fault(err error)

	// Completion returns a channel closed when the block is terminal.
	Completion() <-chan struct{}

	// Wait blocks until the block is terminal or ctx is done. It returns nil
	// for a completed block and an *AggregateError for a faulted one.
	Wait(ctx context.Context) error

	// Err returns the block's *AggregateError once it has faulted, nil otherwise.
	Err() error

	// Stats returns a snapshot of the block's counters.
	Stats() Stats
}

// Target is a block that accepts items of type T.
type Target[T any] interface {
	Block

	// Post offers item without waiting. It returns false when the input
	// queue is full or the block no longer accepts input.
	Post(item T) bool

	// SendAsync enqueues item, waiting for capacity. It returns
	// ErrBlockNotAccepting when the block stops accepting input and the
	// context error when ctx is done first.
	SendAsync(ctx context.Context, item T) error
}

// Source is a block that produces items of type T.
type Source[T any] interface {
	Block

	// LinkTo connects the block's output to target.
	LinkTo(target Target[T], opts LinkOptions[T]) Link
}

// Propagator is a block that consumes I and produces O.
type Propagator[I, O any] interface {
	Target[I]
	Source[O]
}

// Link is a directed connection created by LinkTo.
type Link interface {
	// ID returns the link's unique identity.
	ID() uuid.UUID

	// Source returns the block the link reads from.
	Source() Block

	// Target returns the block the link delivers to.
	Target() Block

	// Unlink detaches the link. Items routed after Unlink returns are
	// never delivered through it. Calling it more than once is a no-op.
	Unlink()

	// Active reports whether the link can still deliver: it has not been
	// unlinked and neither endpoint is terminal.
	Active() bool

	// Delivered returns the number of items delivered through the link.
	Delivered() int64
}

// Stats holds statistics for a block.
type Stats struct {
	// State is the lifecycle state when the snapshot was taken.
	State State

	// Posted is the number of items accepted into the input queue.
	Posted int64

	// Declined is the number of Post calls refused.
	Declined int64

	// Processed is the number of items the stage function handled successfully.
	Processed int64

	// Failed is the number of items whose stage function returned an error or panicked.
	Failed int64

	// Dropped is the number of outputs no link accepted.
	Dropped int64

	// Discarded is the number of buffered items thrown away by a fault.
	Discarded int64

	// Backpressure is the number of times a producer waited for queue space.
	Backpressure int64

	// QueueLength is the number of buffered input items.
	QueueLength int

	// QueueHighWater is the largest number of input items ever buffered.
	QueueHighWater int

	// InFlight is the number of dequeued items whose processing, including
	// delivery of any output, has not finished.
	InFlight int

	// ActiveWorkers is the number of items being processed right now.
	ActiveWorkers int

	// TotalDuration is the total time spent in the stage function.
	TotalDuration time.Duration

	// AverageDuration is TotalDuration divided by the number of handled items.
	AverageDuration time.Duration
}
