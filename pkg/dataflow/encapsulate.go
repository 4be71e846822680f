package dataflow

import (
	"context"

	"github.com/google/uuid"
)

// encapsulated presents an entry target and an exit source as one block.
type encapsulated[I, O any] struct {
	id    uuid.UUID
	entry Target[I]
	exit  Source[O]
}

// Encapsulate wraps a chain of blocks as a single Propagator. Input,
// Complete and Fault go to entry; state, completion and links come from
// exit. The caller links entry to exit beforehand, with propagating links,
// so that completing the wrapper completes the whole chain.
func Encapsulate[I, O any](entry Target[I], exit Source[O]) Propagator[I, O] {
	return &encapsulated[I, O]{id: uuid.New(), entry: entry, exit: exit}
}

func (e *encapsulated[I, O]) ID() uuid.UUID { return e.id }

func (e *encapsulated[I, O]) Name() string {
	return e.entry.Name() + ">" + e.exit.Name()
}

func (e *encapsulated[I, O]) Post(item I) bool { return e.entry.Post(item) }

func (e *encapsulated[I, O]) SendAsync(ctx context.Context, item I) error {
	return e.entry.SendAsync(ctx, item)
}

func (e *encapsulated[I, O]) Complete()       { e.entry.Complete() }
func (e *encapsulated[I, O]) Fault(err error) { e.entry.Fault(err) }

func (e *encapsulated[I, O]) State() State                   { return e.exit.State() }
func (e *encapsulated[I, O]) Completion() <-chan struct{}    { return e.exit.Completion() }
func (e *encapsulated[I, O]) Wait(ctx context.Context) error { return e.exit.Wait(ctx) }
func (e *encapsulated[I, O]) Err() error                     { return e.exit.Err() }
func (e *encapsulated[I, O]) Stats() Stats                   { return e.exit.Stats() }

func (e *encapsulated[I, O]) LinkTo(target Target[O], opts LinkOptions[O]) Link {
	return e.exit.LinkTo(target, opts)
}
