package dataflow

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/dataflow/pkg/common/validation"
	"github.com/vnykmshr/dataflow/pkg/dataflow/queue"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

// Unbounded disables the capacity or parallelism limit it is assigned to.
const Unbounded = queue.Unbounded

// Throttle paces a block's workers. Wait is called before each item is
// handed to the stage function and blocks until the item may proceed.
// Limiters from the ratelimit packages satisfy it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// ConcurrencyLimiter bounds how many items run at once across every block
// sharing it. A worker acquires a slot after its Throttle wait and releases
// it when the stage function returns. The concurrency package provides one.
type ConcurrencyLimiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// BlockOptions configures a block. The zero value is usable: an unbounded
// input queue processed by a single worker.
type BlockOptions struct {
	// Name identifies the block in logs, metrics and errors.
	// Defaults to "<kind>-<first 8 chars of the block ID>".
	Name string

	// BoundedCapacity is the maximum number of undelivered items the block
	// holds, counting both buffered input and items being processed or
	// routed. Post is refused and SendAsync suspends at the bound. Zero
	// means Unbounded.
	BoundedCapacity int

	// MaxDegreeOfParallelism is the number of items processed concurrently.
	// Zero means 1, which preserves input order. Unbounded processes every
	// dequeued item on its own goroutine.
	MaxDegreeOfParallelism int

	// Throttle, if set, is waited on before each item is processed.
	Throttle Throttle

	// Concurrency, if set, caps the items in flight across all blocks that
	// share it, on top of each block's MaxDegreeOfParallelism.
	Concurrency ConcurrencyLimiter

	// Logger receives lifecycle and failure events. Nil disables logging.
	Logger *zerolog.Logger

	// Metrics records block metrics. Nil disables recording.
	Metrics *metrics.Registry
}

// DefaultBlockOptions returns the options used when none are given.
func DefaultBlockOptions() BlockOptions {
	return BlockOptions{
		BoundedCapacity:        Unbounded,
		MaxDegreeOfParallelism: 1,
	}
}

// withDefaults fills zero values.
func (o BlockOptions) withDefaults() BlockOptions {
	if o.BoundedCapacity == 0 {
		o.BoundedCapacity = Unbounded
	}
	if o.MaxDegreeOfParallelism == 0 {
		o.MaxDegreeOfParallelism = 1
	}
	return o
}

// validate checks the options after defaults were applied.
func (o BlockOptions) validate() error {
	if err := validation.ValidateLimit("dataflow", "BoundedCapacity", o.BoundedCapacity, Unbounded); err != nil {
		return err
	}
	return validation.ValidateLimit("dataflow", "MaxDegreeOfParallelism", o.MaxDegreeOfParallelism, Unbounded)
}

// LinkOptions configures a link created by LinkTo.
type LinkOptions[T any] struct {
	// Predicate filters the items the link offers to its target.
	// Nil accepts every item.
	Predicate func(T) bool

	// PropagateCompletion forwards the source's completion or fault to the
	// target once the source reaches a terminal state.
	PropagateCompletion bool

	// Broadcast delivers every accepted item to the target without
	// consuming it, so routing continues with the remaining links.
	Broadcast bool
}
