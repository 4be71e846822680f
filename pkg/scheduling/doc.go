/*
Package scheduling groups the packages that run dataflow graphs on a clock.

  - feed: cron-driven sources that post generated items into a block

Feeds deliver with the same backpressure rules as any other producer: a
feed waits for capacity with SendAsync, or drops an item with Post when
configured to. See the feed package for details.
*/
package scheduling
