// Package metrics provides Prometheus instrumentation for dataflow components.
//
// A Registry groups every collector the engine records into. Blocks,
// throttles and feeds take an optional *Registry; nil disables recording.
//
// # Quick Start
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//
//	double := dataflow.NewTransformBlock(fn, dataflow.BlockOptions{
//		Name:    "double",
//		Metrics: reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
// Block metrics, labelled by block name:
//   - dataflow_block_items_posted_total
//   - dataflow_block_items_declined_total
//   - dataflow_block_items_processed_total
//   - dataflow_block_items_failed_total
//   - dataflow_block_items_dropped_total
//   - dataflow_block_items_discarded_total
//   - dataflow_block_processing_duration_seconds
//   - dataflow_block_queue_depth
//   - dataflow_block_active_workers
//   - dataflow_block_state
//   - dataflow_backpressure_events_total
//
// Link metrics, labelled by source and target:
//   - dataflow_link_deliveries_total
//
// Throttle metrics, labelled by throttle type and name:
//   - dataflow_throttle_wait_duration_seconds
//   - dataflow_throttle_denied_total
//
// Concurrency metrics, labelled by limiter name:
//   - dataflow_concurrency_in_use
//   - dataflow_concurrency_wait_duration_seconds
//
// Feed metrics, labelled by feed name:
//   - dataflow_feed_ticks_total
//   - dataflow_feed_errors_total
//
// # Custom Registry
//
// Each component that should be scraped separately can use its own
// Prometheus registry, which also keeps tests isolated:
//
//	reg := metrics.NewRegistryWithConfig(metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "ingest",
//		Labels:    prometheus.Labels{"service": "importer"},
//	})
package metrics
