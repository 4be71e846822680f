// Package integration exercises several dataflow packages together in
// realistic pipelines.
package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/dataflow/internal/testutil"
	"github.com/vnykmshr/dataflow/pkg/dataflow"
	"github.com/vnykmshr/dataflow/pkg/metrics"
	"github.com/vnykmshr/dataflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/dataflow/pkg/ratelimit/distributed"
	"github.com/vnykmshr/dataflow/pkg/scheduling/feed"
)

var prop = dataflow.LinkOptions[int]{PropagateCompletion: true}

// TestThrottledPipeline checks that a token bucket on the sink paces the
// whole chain once the burst is spent.
func TestThrottledPipeline(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	throttle, err := bucket.NewSafe(100, 5)
	require.NoError(t, err)

	double := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x * 2 }), dataflow.BlockOptions{})
	rec := &testutil.Recorder[int]{}
	sink := dataflow.NewActionBlock(rec.Record, dataflow.BlockOptions{
		MaxDegreeOfParallelism: 4,
		Throttle:               throttle,
	})
	double.LinkTo(sink, prop)

	const n = 25
	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, double.SendAsync(ctx, i))
	}
	double.Complete()
	require.NoError(t, sink.Wait(ctx))
	elapsed := time.Since(start)

	assert.Equal(t, n, rec.Len())
	// 5 from the burst, 20 more at 100/s.
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Equal(t, int64(n), sink.Stats().Processed)
}

// TestGraphFaultIsolation faults one branch of a graph and checks that
// only blocks reached through propagating links fault.
func TestGraphFaultIsolation(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	errOdd := errors.New("odd value")
	g := dataflow.NewGraph(dataflow.GraphConfig{Name: "isolation"})

	source := dataflow.NewBufferBlock[int](dataflow.BlockOptions{Name: "source"})
	strict := dataflow.NewTransformBlock(func(ctx context.Context, x int) (int, error) {
		if x%2 == 1 {
			return 0, errOdd
		}
		return x, nil
	}, dataflow.BlockOptions{Name: "strict"})
	downstream := dataflow.NewActionBlock(dataflow.Do(func(int) {}), dataflow.BlockOptions{Name: "downstream"})
	audit := &testutil.Recorder[int]{}
	auditor := dataflow.NewActionBlock(audit.Record, dataflow.BlockOptions{Name: "audit"})

	g.Add(source, strict, downstream, auditor)
	_, err := dataflow.Connect[int](g, source, auditor, dataflow.LinkOptions[int]{Broadcast: true})
	require.NoError(t, err)
	_, err = dataflow.Connect[int](g, source, strict, prop)
	require.NoError(t, err)
	_, err = dataflow.Connect[int](g, strict, downstream, prop)
	require.NoError(t, err)

	levels, err := g.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []dataflow.Block{source}, g.Roots())

	for _, x := range []int{2, 4, 5} {
		require.NoError(t, source.SendAsync(ctx, x))
	}
	source.Complete()

	require.Error(t, downstream.Wait(ctx))
	assert.Equal(t, dataflow.Faulted, strict.State())
	assert.Equal(t, dataflow.Faulted, downstream.State())
	assert.ErrorIs(t, downstream.Err(), errOdd)

	// The audit link does not propagate, so the auditor is still open.
	assert.Equal(t, dataflow.Accepting, auditor.State())
	auditor.Complete()
	require.NoError(t, auditor.Wait(ctx))
	assert.Equal(t, []int{2, 4, 5}, audit.Values())

	err = g.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errOdd)
	g.Close()
	assert.Empty(t, g.Links())
}

// TestEncapsulatedStageInGraph uses a composite as an ordinary graph member.
func TestEncapsulatedStageInGraph(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	double := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x * 2 }), dataflow.BlockOptions{})
	add2 := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x + 2 }), dataflow.BlockOptions{})
	halve := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x / 2 }), dataflow.BlockOptions{})
	double.LinkTo(add2, prop)
	add2.LinkTo(halve, prop)
	composite := dataflow.Encapsulate[int, int](double, halve)

	rec := &testutil.Recorder[int]{}
	sink := dataflow.NewActionBlock(rec.Record, dataflow.BlockOptions{})

	g := dataflow.NewGraph(dataflow.GraphConfig{}).Add(composite, sink)
	_, err := dataflow.Connect[int](g, composite, sink, prop)
	require.NoError(t, err)

	for _, x := range []int{4, 10} {
		require.True(t, composite.Post(x))
	}
	g.Complete()
	require.NoError(t, g.Wait(ctx))
	assert.Equal(t, []int{5, 11}, rec.Values())
}

// TestFeedDrivenGraph drives a chain from a feed and checks the metrics
// recorded along the way.
func TestFeedDrivenGraph(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	square := dataflow.NewTransformBlock(dataflow.Map(func(x int) int { return x * x }),
		dataflow.BlockOptions{Name: "square", Metrics: reg})
	var sum atomic.Int64
	total := dataflow.NewActionBlock(dataflow.Do(func(x int) { sum.Add(int64(x)) }),
		dataflow.BlockOptions{Name: "total", Metrics: reg})
	square.LinkTo(total, prop)

	var n atomic.Int64
	f, err := feed.Schedule[int](square, func(context.Context, time.Time) (int, error) {
		return int(n.Add(1)), nil
	}, feed.Config{
		Name:           "counter",
		Schedule:       feed.Every(2 * time.Millisecond),
		MaxRuns:        5,
		CompleteOnStop: true,
		Metrics:        reg,
	})
	require.NoError(t, err)

	require.NoError(t, total.Wait(ctx))
	<-f.Done()

	assert.Equal(t, int64(1+4+9+16+25), sum.Load())
	assert.Equal(t, 5.0, promtest.ToFloat64(reg.FeedTicks.WithLabelValues("counter")))
	assert.Equal(t, 5.0, promtest.ToFloat64(reg.ItemsProcessed.WithLabelValues("total")))
}

// TestDistributedThrottleFallback runs a block whose shared throttle
// cannot reach Redis and falls back to a local bucket.
func TestDistributedThrottleFallback(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	throttle, err := distributed.New(distributed.Config{
		Redis:        rdb,
		Key:          "dataflow:integration",
		Rate:         1000,
		Burst:        10,
		RedisTimeout: 50 * time.Millisecond,
		Fallback:     bucket.New(1000, 10),
	})
	require.NoError(t, err)
	defer func() { _ = throttle.Close() }()

	var mu sync.Mutex
	seen := map[int]bool{}
	sink := dataflow.NewActionBlock(dataflow.Do(func(x int) {
		mu.Lock()
		seen[x] = true
		mu.Unlock()
	}), dataflow.BlockOptions{MaxDegreeOfParallelism: 2, Throttle: throttle})

	for i := 0; i < 10; i++ {
		require.NoError(t, sink.SendAsync(ctx, i))
	}
	sink.Complete()
	require.NoError(t, sink.Wait(ctx))
	assert.Len(t, seen, 10)
}
