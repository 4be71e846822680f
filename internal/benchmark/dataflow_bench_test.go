package benchmark

import (
	"context"
	"strconv"
	"testing"

	"github.com/vnykmshr/dataflow/pkg/dataflow"
)

// BenchmarkActionBlock measures posting into a single action block.
func BenchmarkActionBlock(b *testing.B) {
	for _, degree := range []int{1, 4, dataflow.Unbounded} {
		name := "degree_" + strconv.Itoa(degree)
		if degree == dataflow.Unbounded {
			name = "degree_unbounded"
		}
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			sink := dataflow.NewActionBlock(dataflow.Do(func(int) {}), dataflow.BlockOptions{
				BoundedCapacity:        256,
				MaxDegreeOfParallelism: degree,
			})

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = sink.SendAsync(ctx, i)
			}
			sink.Complete()
			_ = sink.Wait(ctx)
		})
	}
}

// BenchmarkChain measures an item crossing a three-stage chain.
func BenchmarkChain(b *testing.B) {
	ctx := context.Background()
	prop := dataflow.LinkOptions[int]{PropagateCompletion: true}
	opts := dataflow.BlockOptions{BoundedCapacity: 128}

	first := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x * 2 }), opts)
	second := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x - 2 }), opts)
	sink := dataflow.NewActionBlock(dataflow.Do(func(int) {}), opts)
	first.LinkTo(second, prop)
	second.LinkTo(sink, prop)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = first.SendAsync(ctx, i)
	}
	first.Complete()
	_ = sink.Wait(ctx)
}

// BenchmarkRouting measures predicate routing across several links.
func BenchmarkRouting(b *testing.B) {
	ctx := context.Background()
	source := dataflow.NewBufferBlock[int](dataflow.BlockOptions{BoundedCapacity: 128})

	const targets = 4
	sinks := make([]*dataflow.ActionBlock[int], targets)
	for i := range sinks {
		mod := i
		sinks[i] = dataflow.NewActionBlock(dataflow.Do(func(int) {}), dataflow.BlockOptions{BoundedCapacity: 64})
		source.LinkTo(sinks[i], dataflow.LinkOptions[int]{
			Predicate:           func(x int) bool { return x%targets == mod },
			PropagateCompletion: true,
		})
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = source.SendAsync(ctx, i)
	}
	source.Complete()
	for _, s := range sinks {
		_ = s.Wait(ctx)
	}
}
