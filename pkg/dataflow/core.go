package dataflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/dataflow/pkg/dataflow/queue"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

// core is the input side shared by every block: the input queue, the
// lifecycle state machine, the worker set and the counters.
type core[T any] struct {
	id    uuid.UUID
	name  string
	opts  BlockOptions
	queue *queue.Queue[T]
	log   zerolog.Logger
	m     *metrics.Registry

	// ctx is cancelled when the block faults or becomes terminal.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	errs  []error
	final *AggregateError
	done  chan struct{}

	// onTerminal runs once after the final state is set and before done
	// closes. Blocks with outputs use it to propagate completion.
	onTerminal func(*AggregateError)

	posted    atomic.Int64
	declined  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	discarded atomic.Int64
	active    atomic.Int64
	busyNanos atomic.Int64
}

func newCore[T any](kind string, opts BlockOptions) (*core[T], error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	name := opts.Name
	if name == "" {
		name = kind + "-" + id.String()[:8]
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("block", name).Str("block_id", id.String()).Logger()
	}

	c := &core[T]{
		id:    id,
		name:  name,
		opts:  opts,
		log:   logger,
		m:     opts.Metrics,
		state: Accepting,
		done:  make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	q, err := queue.NewWithConfigSafe[T](queue.Config{
		Capacity: opts.BoundedCapacity,
		Retain:   true,
		OnBlock:  c.onBackpressure,
	})
	if err != nil {
		return nil, err
	}
	c.queue = q
	c.setStateGauge(Accepting)

	return c, nil
}

func (c *core[T]) ID() uuid.UUID { return c.id }

func (c *core[T]) Name() string { return c.name }

func (c *core[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *core[T]) Completion() <-chan struct{} { return c.done }

func (c *core[T]) Post(item T) bool {
	if !c.queue.TryEnqueue(item) {
		c.declined.Add(1)
		if c.m != nil {
			c.m.ItemsDeclined.WithLabelValues(c.name).Inc()
		}
		return false
	}
	c.onPosted()
	return true
}

func (c *core[T]) SendAsync(ctx context.Context, item T) error {
	if err := c.queue.Enqueue(ctx, item); err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			return ErrBlockNotAccepting
		}
		return err
	}
	c.onPosted()
	return nil
}

func (c *core[T]) Complete() {
	c.mu.Lock()
	if c.state != Accepting {
		c.mu.Unlock()
		return
	}
	c.state = Completing
	c.queue.Close()
	c.mu.Unlock()

	c.setStateGauge(Completing)
	c.log.Debug().Msg("block completing")
}

func (c *core[T]) Fault(err error) {
	if err == nil {
		err = errUnspecifiedFault
	}
	c.log.Warn().Err(err).Msg("block faulted externally")
	c.fail(err)
}

// fail records err and moves the block toward Faulted: no more input,
// buffered items discarded, in-flight work cancelled.
func (c *core[T]) fail(err error) {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.errs = append(c.errs, flatten(err)...)
	first := c.state == Accepting
	c.state = Completing
	c.queue.Close()
	c.mu.Unlock()

	if n := c.queue.Discard(); n > 0 {
		c.discarded.Add(int64(n))
		if c.m != nil {
			c.m.ItemsDiscarded.WithLabelValues(c.name).Add(float64(n))
			c.m.QueueDepth.WithLabelValues(c.name).Set(0)
		}
	}
	c.cancel()

	if first {
		c.setStateGauge(Completing)
	}
}

func (c *core[T]) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *core[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil {
		return nil
	}
	return c.final
}

func (c *core[T]) Stats() Stats {
	qs := c.queue.Stats()
	processed := c.processed.Load()
	failed := c.failed.Load()
	busy := time.Duration(c.busyNanos.Load())

	var avg time.Duration
	if handled := processed + failed; handled > 0 {
		avg = busy / time.Duration(handled)
	}

	return Stats{
		State:           c.State(),
		Posted:          c.posted.Load(),
		Declined:        c.declined.Load(),
		Processed:       processed,
		Failed:          failed,
		Dropped:         c.dropped.Load(),
		Discarded:       c.discarded.Load(),
		Backpressure:    qs.BlockedEnqueues,
		QueueLength:     qs.Len,
		QueueHighWater:  qs.HighWater,
		InFlight:        qs.InFlight,
		ActiveWorkers:   int(c.active.Load()),
		TotalDuration:   busy,
		AverageDuration: avg,
	}
}

// finish settles the final state once every worker has retired.
func (c *core[T]) finish() {
	c.mu.Lock()
	if len(c.errs) > 0 {
		c.state = Faulted
		c.final = &AggregateError{Errors: append([]error(nil), c.errs...)}
	} else {
		c.state = Completed
	}
	state, final := c.state, c.final
	c.mu.Unlock()

	c.cancel()
	c.setStateGauge(state)
	if final != nil {
		c.log.Error().Err(final).Int("errors", len(final.Errors)).Msg("block faulted")
	} else {
		c.log.Debug().Int64("processed", c.processed.Load()).Msg("block completed")
	}

	if c.onTerminal != nil {
		c.onTerminal(final)
	}
	close(c.done)
}

func (c *core[T]) onPosted() {
	c.posted.Add(1)
	if c.m != nil {
		c.m.ItemsPosted.WithLabelValues(c.name).Inc()
		c.m.QueueDepth.WithLabelValues(c.name).Set(float64(c.queue.Len()))
	}
}

// onBackpressure runs under the queue lock.
func (c *core[T]) onBackpressure() {
	if c.m != nil {
		c.m.BackpressureEvents.WithLabelValues(c.name).Inc()
	}
}

func (c *core[T]) onDropped() {
	c.dropped.Add(1)
	if c.m != nil {
		c.m.ItemsDropped.WithLabelValues(c.name).Inc()
	}
	c.log.Debug().Msg("item dropped: no link accepted it")
}

func (c *core[T]) setStateGauge(s State) {
	if c.m != nil {
		c.m.BlockState.WithLabelValues(c.name).Set(float64(s))
	}
}

func (c *core[T]) String() string {
	return fmt.Sprintf("%s(%s)", c.name, c.State())
}
