/*
Package concurrency provides a slot limiter that caps how many items run
at once across several dataflow blocks.

Each block's MaxDegreeOfParallelism bounds that block alone. Sharing one
Limiter through BlockOptions.Concurrency bounds the blocks together, which
suits stages that contend for the same database or API:

	slots := concurrency.New(8)

	fetch := dataflow.NewTransformBlock(fetchPage, dataflow.BlockOptions{
		MaxDegreeOfParallelism: 8,
		Concurrency:            slots,
	})
	store := dataflow.NewActionBlock(savePage, dataflow.BlockOptions{
		MaxDegreeOfParallelism: 8,
		Concurrency:            slots,
	})

A worker acquires a slot after any Throttle wait and releases it when its
stage function returns.

The Limiter can also be used directly:

	if err := slots.Acquire(ctx); err != nil {
		return err
	}
	defer slots.Release()

TryAcquire takes a slot only if one is free. SetCapacity resizes the
limiter at runtime; a reduction below current usage takes effect as slots
are released.
*/
package concurrency
