package dataflow

import (
	"context"
	"errors"

	"github.com/vnykmshr/dataflow/pkg/common/validation"
)

// TransformFunc converts one input item into one output item. Returning
// ErrSkip produces no output; any other error faults the block.
type TransformFunc[I, O any] func(ctx context.Context, item I) (O, error)

// Map adapts a plain function into a TransformFunc that never fails.
func Map[I, O any](fn func(I) O) TransformFunc[I, O] {
	return func(_ context.Context, item I) (O, error) {
		return fn(item), nil
	}
}

// TransformBlock applies a function to each input and routes the result
// to its links.
type TransformBlock[I, O any] struct {
	*core[I]
	out *outputs[O]
	fn  TransformFunc[I, O]
}

// NewTransformBlock creates and starts a transform block.
// It panics if opts are invalid.
func NewTransformBlock[I, O any](fn TransformFunc[I, O], opts BlockOptions) *TransformBlock[I, O] {
	b, err := NewTransformBlockSafe(fn, opts)
	if err != nil {
		panic(err)
	}
	return b
}

// NewTransformBlockSafe creates and starts a transform block, returning an
// error if fn is nil or opts are invalid.
func NewTransformBlockSafe[I, O any](fn TransformFunc[I, O], opts BlockOptions) (*TransformBlock[I, O], error) {
	if fn == nil {
		return nil, validation.ValidateNotNil("dataflow", "transform function", nil)
	}
	c, err := newCore[I]("transform", opts)
	if err != nil {
		return nil, err
	}

	b := &TransformBlock[I, O]{core: c, fn: fn}
	b.out = newOutputs[O](b, &c.log, c.m, c.onDropped)
	c.onTerminal = b.out.complete
	c.start(b.process)
	return b, nil
}

// LinkTo connects the block's output to target.
func (b *TransformBlock[I, O]) LinkTo(target Target[O], opts LinkOptions[O]) Link {
	return b.out.linkTo(target, opts)
}

func (b *TransformBlock[I, O]) process(ctx context.Context, item I) error {
	out, err := b.fn(ctx, item)
	if err != nil {
		if errors.Is(err, ErrSkip) {
			return nil
		}
		return err
	}
	b.out.route(ctx, out)
	return nil
}
