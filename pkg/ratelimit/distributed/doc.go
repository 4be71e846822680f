// Package distributed provides a Redis-backed token-bucket throttle that
// several processes can share.
//
// Each process creates a Throttle with the same Key. A Lua script refills
// and consumes tokens atomically on the Redis side, so the combined
// throughput of every instance stays within Rate items per second with
// bursts of up to Burst. The throttle satisfies dataflow.Throttle and is
// normally assigned to BlockOptions.Throttle:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	throttle, err := distributed.New(distributed.Config{
//		Redis: rdb,
//		Key:   "dataflow:emails",
//		Rate:  50,
//		Burst: 10,
//	})
//	if err != nil {
//		return err
//	}
//	defer throttle.Close()
//
//	send := dataflow.NewActionBlock(deliver, dataflow.BlockOptions{
//		MaxDegreeOfParallelism: 4,
//		Throttle:               throttle,
//	})
//
// # Fallback
//
// When Fallback is set, a Redis failure switches the throttle to the local
// bucket.Throttle until Redis answers again. Without it, Wait returns a
// *RedisError and the block that called it faults.
//
// # Changing limits
//
// SetRate and SetBurst store the new values in Redis, where the script
// reads them on every call, so a change made by one instance applies to
// all of them.
//
// With Redis Cluster, use a hash tag in Key (for example "{emails}") so
// that all of the throttle's keys map to one slot.
package distributed
