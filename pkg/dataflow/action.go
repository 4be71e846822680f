package dataflow

import (
	"context"

	"github.com/vnykmshr/dataflow/pkg/common/validation"
)

// ActionFunc consumes one item. A non-nil error faults the block.
type ActionFunc[T any] func(ctx context.Context, item T) error

// Do adapts a plain function into an ActionFunc that never fails.
func Do[T any](fn func(T)) ActionFunc[T] {
	return func(_ context.Context, item T) error {
		fn(item)
		return nil
	}
}

// ActionBlock runs a function for each input and produces no output.
type ActionBlock[T any] struct {
	*core[T]
	fn ActionFunc[T]
}

// NewActionBlock creates and starts an action block.
// It panics if opts are invalid.
func NewActionBlock[T any](fn ActionFunc[T], opts BlockOptions) *ActionBlock[T] {
	b, err := NewActionBlockSafe(fn, opts)
	if err != nil {
		panic(err)
	}
	return b
}

// NewActionBlockSafe creates and starts an action block, returning an
// error if fn is nil or opts are invalid.
func NewActionBlockSafe[T any](fn ActionFunc[T], opts BlockOptions) (*ActionBlock[T], error) {
	if fn == nil {
		return nil, validation.ValidateNotNil("dataflow", "action function", nil)
	}
	c, err := newCore[T]("action", opts)
	if err != nil {
		return nil, err
	}

	b := &ActionBlock[T]{core: c, fn: fn}
	c.start(func(ctx context.Context, item T) error {
		return b.fn(ctx, item)
	})
	return b, nil
}
