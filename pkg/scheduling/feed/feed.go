package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
	"github.com/vnykmshr/dataflow/pkg/common/validation"
	"github.com/vnykmshr/dataflow/pkg/dataflow"
	"github.com/vnykmshr/dataflow/pkg/metrics"
)

// Generator produces the item for one activation. Returning
// dataflow.ErrSkip skips the activation without counting an error.
type Generator[T any] func(ctx context.Context, tick time.Time) (T, error)

// Config holds configuration for a feed.
type Config struct {
	// Name labels the feed's metrics and log lines.
	Name string

	// Spec is a cron expression. Ignored when Schedule is set.
	Spec string

	// Schedule overrides Spec.
	Schedule cron.Schedule

	// Location is the time zone the schedule is evaluated in. Defaults to time.Local.
	Location *time.Location

	// MaxRuns stops the feed after that many activations. Zero means no limit.
	MaxRuns int

	// CompleteOnStop completes the target when the feed stops for any reason.
	CompleteOnStop bool

	// DropWhenFull offers items with Post and drops them when the target is
	// full, instead of waiting for capacity with SendAsync.
	DropWhenFull bool

	// StopOnError stops the feed on the first generator error that is not
	// retryable (a timeout or rate limit).
	StopOnError bool

	// Logger receives activation failures. Nil disables logging.
	Logger *zerolog.Logger

	// Metrics records activations and failures. Nil disables recording.
	Metrics *metrics.Registry
}

// Stats holds feed counters.
type Stats struct {
	Runs      int64
	Delivered int64
	Skipped   int64
	Dropped   int64
	Errors    int64
	NextRun   time.Time
}

// Feed posts generated items into a target on a schedule.
type Feed[T any] struct {
	name     string
	target   dataflow.Target[T]
	gen      Generator[T]
	schedule cron.Schedule
	config   Config
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	next    time.Time
	stopErr error

	runs      atomic.Int64
	delivered atomic.Int64
	skipped   atomic.Int64
	dropped   atomic.Int64
	errs      atomic.Int64
}

// Schedule starts a feed that calls gen on every activation of the
// configured schedule and delivers the result to target.
func Schedule[T any](target dataflow.Target[T], gen Generator[T], config Config) (*Feed[T], error) {
	if target == nil {
		return nil, validation.ValidateNotNil("feed", "target", nil)
	}
	if gen == nil {
		return nil, validation.ValidateNotNil("feed", "generator", nil)
	}
	if config.MaxRuns < 0 {
		return nil, dferrors.NewValidationError("feed", "MaxRuns", config.MaxRuns, "cannot be negative").
			WithHint("use 0 for no limit")
	}

	schedule := config.Schedule
	if schedule == nil {
		if err := validation.ValidateNotEmpty("feed", "Spec", config.Spec); err != nil {
			return nil, err
		}
		parsed, err := ParseSpec(config.Spec)
		if err != nil {
			return nil, dferrors.NewValidationError("feed", "Spec", config.Spec, err.Error())
		}
		schedule = parsed
	}
	if e, ok := schedule.(every); ok {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Name == "" {
		config.Name = "feed->" + target.Name()
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("feed", config.Name).Str("target", target.Name()).Logger()
	}

	f := &Feed[T]{
		name:     config.Name,
		target:   target,
		gen:      gen,
		schedule: schedule,
		config:   config,
		log:      logger,
		done:     make(chan struct{}),
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())

	go f.run()
	return f, nil
}

// Name returns the feed's name.
func (f *Feed[T]) Name() string { return f.name }

// Stop stops the feed and waits for an in-flight activation to finish.
func (f *Feed[T]) Stop() {
	f.cancel()
	<-f.done
}

// Done returns a channel closed once the feed has stopped.
func (f *Feed[T]) Done() <-chan struct{} { return f.done }

// Err returns why the feed stopped on its own: a generator error with
// StopOnError, or dataflow.ErrBlockNotAccepting when the target stopped
// taking items. It is nil while running and after Stop or MaxRuns.
func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopErr
}

// Stats returns a snapshot of the feed's counters.
func (f *Feed[T]) Stats() Stats {
	f.mu.Lock()
	next := f.next
	f.mu.Unlock()

	return Stats{
		Runs:      f.runs.Load(),
		Delivered: f.delivered.Load(),
		Skipped:   f.skipped.Load(),
		Dropped:   f.dropped.Load(),
		Errors:    f.errs.Load(),
		NextRun:   next,
	}
}

func (f *Feed[T]) run() {
	defer close(f.done)
	defer f.finish()

	now := time.Now()
	for {
		next := f.schedule.Next(now.In(f.config.Location))
		if next.IsZero() {
			return
		}
		f.setNext(next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-f.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !f.activate(next) {
			return
		}
		if f.config.MaxRuns > 0 && f.runs.Load() >= int64(f.config.MaxRuns) {
			f.log.Debug().Int64("runs", f.runs.Load()).Msg("feed reached MaxRuns")
			return
		}

		// Ticks missed while delivery waited on backpressure are skipped.
		now = time.Now()
	}
}

// activate runs one activation and reports whether the feed should continue.
func (f *Feed[T]) activate(tick time.Time) bool {
	f.runs.Add(1)
	if f.config.Metrics != nil {
		f.config.Metrics.FeedTicks.WithLabelValues(f.name).Inc()
	}

	item, err := f.gen(f.ctx, tick)
	if err != nil {
		if errors.Is(err, dataflow.ErrSkip) {
			f.skipped.Add(1)
			return true
		}
		if f.ctx.Err() != nil {
			return false
		}

		f.errs.Add(1)
		if f.config.Metrics != nil {
			f.config.Metrics.FeedErrors.WithLabelValues(f.name).Inc()
		}
		f.log.Error().Err(err).Time("tick", tick).Msg("feed generator failed")
		if f.config.StopOnError && !dferrors.IsRetryable(err) {
			f.setErr(err)
			return false
		}
		return true
	}

	if f.config.DropWhenFull {
		if f.target.Post(item) {
			f.delivered.Add(1)
			return true
		}
		if f.target.State() != dataflow.Accepting {
			f.setErr(dataflow.ErrBlockNotAccepting)
			return false
		}
		f.dropped.Add(1)
		f.log.Debug().Time("tick", tick).Msg("target full, item dropped")
		return true
	}

	if err := f.target.SendAsync(f.ctx, item); err != nil {
		if errors.Is(err, dataflow.ErrBlockNotAccepting) {
			f.setErr(err)
		}
		return false
	}
	f.delivered.Add(1)
	return true
}

func (f *Feed[T]) finish() {
	f.cancel()
	f.setNext(time.Time{})
	if f.config.CompleteOnStop {
		f.target.Complete()
	}
	f.log.Debug().
		Int64("runs", f.runs.Load()).
		Int64("delivered", f.delivered.Load()).
		Msg("feed stopped")
}

func (f *Feed[T]) setNext(t time.Time) {
	f.mu.Lock()
	f.next = t
	f.mu.Unlock()
}

func (f *Feed[T]) setErr(err error) {
	f.mu.Lock()
	f.stopErr = err
	f.mu.Unlock()
}
