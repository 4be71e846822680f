/*
Package ratelimit groups the limiters that pace dataflow blocks.

  - bucket: in-process token bucket, allows bursts
  - leakybucket: in-process leaky bucket, spaces items evenly
  - distributed: token bucket shared through Redis by many processes
  - concurrency: slot limiter shared by several blocks

The three throttles satisfy dataflow.Throttle: assign one to
BlockOptions.Throttle and the block's workers wait before each item.

	local := bucket.New(100, 20) // 100 items/s, bursts of 20

	shared, err := distributed.New(distributed.Config{
		Redis:    rdb,
		Key:      "dataflow:payments",
		Rate:     100,
		Burst:    20,
		Fallback: local,
	})

A concurrency.Limiter satisfies dataflow.ConcurrencyLimiter and caps the
items in flight across every block it is assigned to through
BlockOptions.Concurrency.

Allow style calls never block and suit load shedding; Wait style calls
delay the caller and suit pacing.
*/
package ratelimit
