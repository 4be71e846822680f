package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates recording into an isolated registry.
func Example_basicUsage() {
	registry := NewRegistry(prometheus.NewRegistry())

	registry.ItemsPosted.WithLabelValues("double").Add(10)
	registry.ItemsProcessed.WithLabelValues("double").Add(9)
	registry.ItemsFailed.WithLabelValues("double").Inc()

	fmt.Printf("posted: %.0f\n", testutil.ToFloat64(registry.ItemsPosted.WithLabelValues("double")))
	fmt.Printf("failed: %.0f\n", testutil.ToFloat64(registry.ItemsFailed.WithLabelValues("double")))

	// Output:
	// posted: 10
	// failed: 1
}

// Example_disabled shows that a disabled config yields a nil registry.
func Example_disabled() {
	registry := FromConfig(Config{Enabled: false})
	fmt.Println(registry == nil)

	// Output:
	// true
}
