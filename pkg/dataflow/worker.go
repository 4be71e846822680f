package dataflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// processFunc handles one dequeued item. A non-nil error faults the block.
type processFunc[T any] func(ctx context.Context, item T) error

// start launches the worker set. A fixed degree of parallelism runs that
// many worker loops; Unbounded runs a dispatcher that gives every item its
// own goroutine. finish runs when the last goroutine returns.
func (c *core[T]) start(process processFunc[T]) {
	g := new(errgroup.Group)

	if c.opts.MaxDegreeOfParallelism == Unbounded {
		g.Go(func() error {
			for {
				item, err := c.queue.Dequeue(c.ctx)
				if err != nil {
					return nil
				}
				g.Go(func() error {
					c.execute(process, item)
					c.queue.Release()
					return nil
				})
			}
		})
	} else {
		for i := 0; i < c.opts.MaxDegreeOfParallelism; i++ {
			g.Go(func() error {
				for {
					item, err := c.queue.Dequeue(c.ctx)
					if err != nil {
						return nil
					}
					c.execute(process, item)
					c.queue.Release()
				}
			})
		}
	}

	go func() {
		_ = g.Wait()
		c.finish()
	}()
}

// execute runs process for one item and records the outcome. The item
// keeps its capacity slot until execute returns, so output a transform is
// still routing counts against the block's bound.
func (c *core[T]) execute(process processFunc[T], item T) {
	if c.m != nil {
		c.m.QueueDepth.WithLabelValues(c.name).Set(float64(c.queue.Len()))
	}

	if c.opts.Throttle != nil {
		if err := c.opts.Throttle.Wait(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.recordFailure(item, fmt.Errorf("throttle: %w", err))
			return
		}
	}

	if c.opts.Concurrency != nil {
		if err := c.opts.Concurrency.Acquire(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.recordFailure(item, fmt.Errorf("concurrency: %w", err))
			return
		}
		defer c.opts.Concurrency.Release()
	}

	c.active.Add(1)
	if c.m != nil {
		c.m.ActiveWorkers.WithLabelValues(c.name).Inc()
	}

	start := time.Now()
	err := c.invoke(process, item)
	duration := time.Since(start)

	c.active.Add(-1)
	c.busyNanos.Add(int64(duration))
	if c.m != nil {
		c.m.ActiveWorkers.WithLabelValues(c.name).Dec()
		c.m.ProcessingDuration.WithLabelValues(c.name).Observe(duration.Seconds())
	}

	if err != nil {
		c.recordFailure(item, err)
		return
	}

	c.processed.Add(1)
	if c.m != nil {
		c.m.ItemsProcessed.WithLabelValues(c.name).Inc()
	}
}

// invoke calls process, converting a panic into an error.
func (c *core[T]) invoke(process processFunc[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\nStack trace:\n%s", ErrStagePanic, r, debug.Stack())
		}
	}()
	return process(c.ctx, item)
}

func (c *core[T]) recordFailure(item T, err error) {
	// A cancelled context after a fault is the fault itself, not a new failure.
	if c.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}

	c.failed.Add(1)
	if c.m != nil {
		c.m.ItemsFailed.WithLabelValues(c.name).Inc()
	}
	c.log.Error().Err(err).Interface("item", item).Msg("stage function failed")
	c.fail(&StageError{Block: c.name, Item: item, Err: err})
}
