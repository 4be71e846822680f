/*
Package dataflow is a library for building bounded, concurrent pipelines
out of linked processing blocks.

Core (pkg/dataflow):
  - queue: bounded FIFO with blocking and non-blocking enqueue
  - BufferBlock, TransformBlock, ActionBlock: the built-in stages
  - LinkTo with predicates, broadcast and completion propagation
  - Graph: membership, topological levels, whole-graph completion
  - Encapsulate: a chain of blocks exposed as one block

Pacing (pkg/ratelimit):
  - bucket: token bucket throttle with bursts
  - leakybucket: evenly spaced throttle
  - distributed: Redis-backed throttle shared by several processes
  - concurrency: slot limiter shared by several blocks

Scheduling (pkg/scheduling):
  - feed: cron-driven source that posts into a block

Observability (pkg/metrics):
  - Prometheus metrics for blocks, links, throttles and feeds

Example usage:

	import "github.com/vnykmshr/dataflow/pkg/dataflow"

	double := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x * 2 }), dataflow.BlockOptions{})
	printer := dataflow.NewActionBlock(dataflow.Do(func(x int) { fmt.Println(x) }), dataflow.BlockOptions{})
	double.LinkTo(printer, dataflow.LinkOptions[int]{PropagateCompletion: true})

	double.Post(21)
	double.Complete()
	_ = printer.Wait(ctx)
*/
package dataflow
