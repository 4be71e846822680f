package dataflow

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

// link is a connection from an outputs list to a target.
type link[T any] struct {
	id        uuid.UUID
	from      *outputs[T]
	target    Target[T]
	opts      LinkOptions[T]
	unlinked  atomic.Bool
	delivered atomic.Int64
}

func (l *link[T]) ID() uuid.UUID    { return l.id }
func (l *link[T]) Source() Block    { return l.from.owner }
func (l *link[T]) Target() Block    { return l.target }
func (l *link[T]) Delivered() int64 { return l.delivered.Load() }

// Active reports false once the link is unlinked or either endpoint is
// terminal.
func (l *link[T]) Active() bool {
	return !l.unlinked.Load() && !l.from.done.Load() && !l.target.State().IsTerminal()
}

func (l *link[T]) detached() bool { return l.unlinked.Load() }

func (l *link[T]) Unlink() {
	if l.unlinked.Swap(true) {
		return
	}
	l.from.remove(l)
	l.from.log.Debug().Str("target", l.target.Name()).Msg("unlinked")
}

func (l *link[T]) accepts(item T) bool {
	return l.Active() && (l.opts.Predicate == nil || l.opts.Predicate(item))
}

func (l *link[T]) recordDelivery() {
	l.delivered.Add(1)
	if m := l.from.m; m != nil {
		m.LinkDeliveries.WithLabelValues(l.from.owner.Name(), l.target.Name()).Inc()
	}
}

// outputs is the output side of a source block: its ordered link list,
// routing and completion propagation.
type outputs[T any] struct {
	owner   Block
	log     *zerolog.Logger
	m       *metrics.Registry
	dropped func()

	mu       sync.Mutex
	links    []*link[T]
	terminal bool
	final    *AggregateError

	// done mirrors terminal for lock-free reads.
	done atomic.Bool
}

func newOutputs[T any](owner Block, log *zerolog.Logger, m *metrics.Registry, dropped func()) *outputs[T] {
	return &outputs[T]{owner: owner, log: log, m: m, dropped: dropped}
}

func (o *outputs[T]) linkTo(target Target[T], opts LinkOptions[T]) Link {
	l := &link[T]{id: uuid.New(), from: o, target: target, opts: opts}

	o.mu.Lock()
	if o.terminal {
		final := o.final
		o.mu.Unlock()
		l.unlinked.Store(true)
		if opts.PropagateCompletion {
			propagate(target, final)
		}
		return l
	}
	o.links = append(o.links, l)
	o.mu.Unlock()

	o.log.Debug().
		Str("target", target.Name()).
		Bool("propagate", opts.PropagateCompletion).
		Bool("broadcast", opts.Broadcast).
		Msg("linked")
	return l
}

func (o *outputs[T]) remove(l *link[T]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i := slices.Index(o.links, l); i >= 0 {
		o.links = slices.Delete(o.links, i, i+1)
	}
}

func (o *outputs[T]) snapshot() []*link[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.links)
}

// route delivers item through the links in registration order. Broadcast
// links each get a copy. The first consuming link whose target takes the
// item without waiting consumes it; if every eligible target is full,
// route waits on them in order. Items nobody takes are dropped.
// Nothing is delivered once ctx is done.
func (o *outputs[T]) route(ctx context.Context, item T) {
	if ctx.Err() != nil {
		return
	}
	links := o.snapshot()
	delivered := false

	var consumers []*link[T]
	for _, l := range links {
		if !l.accepts(item) {
			continue
		}
		if !l.opts.Broadcast {
			consumers = append(consumers, l)
			continue
		}
		err := l.target.SendAsync(ctx, item)
		switch {
		case err == nil:
			l.recordDelivery()
			delivered = true
		case dferrors.IsNotAccepting(err):
		default:
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	for _, l := range consumers {
		if l.Active() && l.target.Post(item) {
			l.recordDelivery()
			return
		}
	}

	for _, l := range consumers {
		if !l.Active() {
			continue
		}
		err := l.target.SendAsync(ctx, item)
		switch {
		case err == nil:
			l.recordDelivery()
			return
		case dferrors.IsNotAccepting(err):
		default:
			return
		}
	}

	if !delivered {
		o.dropped()
	}
}

// complete marks the outputs terminal, releases the links and signals
// every propagating target.
func (o *outputs[T]) complete(final *AggregateError) {
	o.mu.Lock()
	o.terminal = true
	o.done.Store(true)
	o.final = final
	links := o.links
	o.links = nil
	o.mu.Unlock()

	for _, l := range links {
		if l.opts.PropagateCompletion && !l.detached() {
			propagate(l.target, final)
		}
	}
}

func propagate(target Block, final *AggregateError) {
	if final != nil {
		target.Fault(final)
		return
	}
	target.Complete()
}
