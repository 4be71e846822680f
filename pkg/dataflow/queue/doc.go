/*
Package queue provides the work-item queue that sits in front of every
dataflow block.

A Queue is a generic FIFO guarded by a mutex and two condition variables.
It is either bounded, in which case producers suspend (Enqueue) or are
refused (TryEnqueue) once Capacity items are buffered, or Unbounded, in
which case the ring grows on demand and producers never wait.

	q := queue.New[int](2)

	q.TryEnqueue(1)        // true
	q.TryEnqueue(2)        // true
	q.TryEnqueue(3)        // false: full

	go q.Enqueue(ctx, 3)   // suspends until a consumer makes room

	v, err := q.Dequeue(ctx) // 1

Closing a queue stops producers immediately (ErrQueueClosed) but lets
consumers drain what is already buffered; once drained, Dequeue returns
ErrEndOfQueue. Discard drops the buffered items, which is how a faulted
block abandons its pending input.

A queue created with Retain keeps counting each dequeued item against its
capacity until the consumer calls Release, so the bound covers items being
worked on as well as items waiting.

Waiters also wake when their context is done, so callers can bound how
long they are willing to be held by backpressure.
*/
package queue
