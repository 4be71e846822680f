package feed

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
)

// parser accepts five-field expressions, six-field expressions with a
// leading seconds field, and descriptors such as "@hourly".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSpec parses a cron expression.
func ParseSpec(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("feed: invalid cron expression %q: %w", spec, err)
	}
	return schedule, nil
}

// every fires at a fixed interval after the previous activation.
type every time.Duration

// Every returns a schedule that fires every d. Unlike the cron "@every"
// descriptor it keeps sub-second precision. Schedule rejects a
// non-positive d; use EverySafe to check it up front.
func Every(d time.Duration) cron.Schedule {
	return every(d)
}

// EverySafe is Every with the interval validated.
func EverySafe(d time.Duration) (cron.Schedule, error) {
	if err := every(d).validate(); err != nil {
		return nil, err
	}
	return every(d), nil
}

func (e every) validate() error {
	if e <= 0 {
		return dferrors.NewValidationError("feed", "Every", time.Duration(e), "must be positive")
	}
	return nil
}

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// NextRuns returns the next n activation times of schedule after from.
// It returns nil when n is not positive.
func NextRuns(schedule cron.Schedule, from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	runs := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		from = schedule.Next(from)
		if from.IsZero() {
			break
		}
		runs = append(runs, from)
	}
	return runs
}
