package distributed

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// generateInstanceID combines host, pid and a random suffix.
func generateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}

// keys are the Redis keys derived from a prefix.
type keys struct {
	tokens    string
	last      string
	config    string
	stats     string
	instances string
}

func newKeys(prefix string) keys {
	return keys{
		tokens:    prefix + ":tokens",
		last:      prefix + ":last_refill",
		config:    prefix + ":config",
		stats:     prefix + ":stats",
		instances: prefix + ":instances",
	}
}

func (k keys) all() []string {
	return []string{k.tokens, k.last, k.config, k.stats, k.instances}
}

// timeToFloat converts t to seconds for storage in Redis.
func timeToFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// floatToTime converts seconds back to a time.
func floatToTime(f float64) time.Time {
	return time.Unix(0, int64(f*1e9))
}
