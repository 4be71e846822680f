// Package leakybucket provides a throttle that spaces items evenly.
//
// Where a token bucket lets a saved-up burst through at once, a leaky
// bucket drains at a constant rate: at most Capacity items pass back to
// back, then one every 1/Rate. With Capacity 1 items are evenly spaced,
// which suits downstream services that reject bursts:
//
//	throttle := leakybucket.New(50, 1) // one item every 20ms
//
//	send := dataflow.NewActionBlock(deliver, dataflow.BlockOptions{
//		MaxDegreeOfParallelism: 8,
//		Throttle:               throttle,
//	})
//
// A Wait that would overflow the bucket reserves its place and sleeps
// until the overflow has drained. Cancelling the wait gives the place
// back. Allow never waits and reports false when the bucket is full.
package leakybucket
