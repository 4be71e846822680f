// Package feed drives dataflow blocks from a schedule.
//
// A Feed calls a Generator on every activation of a cron schedule and
// delivers the result to a dataflow.Target. Specs use the standard
// five-field format, an optional leading seconds field, or a descriptor
// such as "@hourly" or "@every 30s":
//
//	poll := dataflow.NewTransformBlock(fetchPrices, dataflow.BlockOptions{})
//
//	f, err := feed.Schedule[time.Time](poll, func(ctx context.Context, tick time.Time) (time.Time, error) {
//		return tick, nil
//	}, feed.Config{Spec: "*/5 * * * *"})
//	if err != nil {
//		return err
//	}
//	defer f.Stop()
//
// # Delivery
//
// By default an activation waits with SendAsync until the target has room,
// and ticks missed during the wait are skipped. With DropWhenFull the item
// is offered with Post instead and dropped when the target is full.
//
// A feed stops when Stop is called, when MaxRuns activations have run,
// when the target stops accepting items, or on a generator error if
// StopOnError is set. CompleteOnStop completes the target at that point,
// which lets completion flow down the rest of the graph.
package feed
