package distributed_test

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/dataflow/pkg/dataflow"
	"github.com/vnykmshr/dataflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/dataflow/pkg/ratelimit/distributed"
)

// Example_block shares one throughput budget between the workers of a
// block, and between every other process using the same key.
func Example_block() {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Println("redis not available:", err)
		return
	}

	throttle, err := distributed.New(distributed.Config{
		Redis:    rdb,
		Key:      "dataflow:example",
		Rate:     100,
		Burst:    10,
		Fallback: bucket.New(100, 10),
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer func() { _ = throttle.Close() }()

	sink := dataflow.NewActionBlock(dataflow.Do(func(int) {}), dataflow.BlockOptions{
		Name:                   "shared-budget",
		MaxDegreeOfParallelism: 4,
		Throttle:               throttle,
	})

	start := time.Now()
	for i := 0; i < 30; i++ {
		sink.Post(i)
	}
	sink.Complete()
	if err := sink.Wait(ctx); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("30 items in %v\n", time.Since(start).Round(10*time.Millisecond))
}

// Example_stats inspects the shared bucket.
func Example_stats() {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = rdb.Close() }()

	throttle, err := distributed.New(distributed.Config{
		Redis:      rdb,
		Key:        "dataflow:stats-example",
		Rate:       5,
		Burst:      3,
		InstanceID: "example-1",
	})
	if err != nil {
		fmt.Println("redis not available:", err)
		return
	}
	defer func() { _ = throttle.Close() }()

	for i := 0; i < 5; i++ {
		throttle.Allow(ctx)
	}

	stats, err := throttle.Stats(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("allowed %d, denied %d, instances %v\n",
		stats.AllowedRequests, stats.DeniedRequests, stats.ActiveInstances)
}
