package dataflow

import "context"

// BufferBlock passes items through unchanged. It is useful as a fan-out
// point or as a bounded staging area in front of slower blocks.
type BufferBlock[T any] struct {
	*core[T]
	out *outputs[T]
}

// NewBufferBlock creates and starts a buffer block. MaxDegreeOfParallelism
// is ignored: a buffer always routes one item at a time so output order
// matches input order. It panics if opts are invalid.
func NewBufferBlock[T any](opts BlockOptions) *BufferBlock[T] {
	b, err := NewBufferBlockSafe[T](opts)
	if err != nil {
		panic(err)
	}
	return b
}

// NewBufferBlockSafe creates and starts a buffer block, returning an error
// if opts are invalid.
func NewBufferBlockSafe[T any](opts BlockOptions) (*BufferBlock[T], error) {
	opts.MaxDegreeOfParallelism = 1
	c, err := newCore[T]("buffer", opts)
	if err != nil {
		return nil, err
	}

	b := &BufferBlock[T]{core: c}
	b.out = newOutputs[T](b, &c.log, c.m, c.onDropped)
	c.onTerminal = b.out.complete
	c.start(func(ctx context.Context, item T) error {
		b.out.route(ctx, item)
		return nil
	})
	return b, nil
}

// LinkTo connects the block's output to target.
func (b *BufferBlock[T]) LinkTo(target Target[T], opts LinkOptions[T]) Link {
	return b.out.linkTo(target, opts)
}
