/*
Package dataflow builds graphs of typed processing blocks connected by
links, with backpressure, parallelism inside a block, and completion and
fault propagation across the graph.

# Quick Start

	double := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x * 2 }),
		dataflow.BlockOptions{Name: "double"})

	printer := dataflow.NewActionBlock(dataflow.Do(func(x int) { fmt.Println(x) }),
		dataflow.BlockOptions{Name: "print"})

	double.LinkTo(printer, dataflow.LinkOptions[int]{PropagateCompletion: true})

	double.Post(4)
	double.Complete()
	err := printer.Wait(ctx) // prints 8

# Blocks

There are three kinds of block, all sharing the same input side:

  - BufferBlock passes items through unchanged.
  - TransformBlock maps each input to one output, or none with ErrSkip.
  - ActionBlock consumes items and produces nothing.

Each block owns an input queue. BoundedCapacity limits the items the block
holds, whether buffered or still being processed and delivered: Post is
refused and SendAsync suspends while the block is full. MaxDegreeOfParallelism sets
how many items are processed at once; with the default of 1, outputs leave
in input order.

A Throttle in the options paces the workers, and a ConcurrencyLimiter
shared between blocks caps their combined in-flight items. The ratelimit
packages provide both.

# Lifecycle

A block is Accepting until Complete or Fault is called, or until its stage
function fails. It then stops taking input and becomes Completing. Once the
remaining work is done it ends Completed, or Faulted if any error was
recorded. A fault discards buffered input and cancels the context passed to
in-flight stage functions. Wait returns nil or an *AggregateError holding
every recorded error.

# Links

LinkTo connects a source to a target. Each output is routed through the
links in the order they were created: links whose predicate rejects the
item are skipped, broadcast links get a copy, and the first other link
that accepts the item consumes it. When every eligible target is full the
producing worker waits, which is how backpressure travels upstream. Items
no link accepts are dropped.

With PropagateCompletion set, a link forwards the source's completion or
fault to the target once the source is terminal.

# Graphs and Encapsulation

Encapsulate presents a linked chain as a single block. Graph tracks blocks
and the links made through Connect, and can complete the roots, order the
members by level, and wait for all of them.
*/
package dataflow
