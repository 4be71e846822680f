/*
Package bucket implements a token-bucket throttle for dataflow blocks.

A Throttle holds up to Burst tokens and refills them at Rate per second.
Each item takes one token; when the bucket is empty, Wait sleeps until the
next token is earned. Assigning a Throttle to BlockOptions.Throttle makes a
block's workers wait before every item, which caps the block's throughput
regardless of its degree of parallelism:

	throttle := bucket.New(50, 10) // 50 items/s, bursts of 10

	sink := dataflow.NewActionBlock(send, dataflow.BlockOptions{
		MaxDegreeOfParallelism: 8,
		Throttle:               throttle,
	})

Allow and AllowN never block and are useful for shedding work instead of
delaying it. With Config.Metrics set, waits and denials are recorded under
the throttle's Name.
*/
package bucket
