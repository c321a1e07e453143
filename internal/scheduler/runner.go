package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner drives a set of Jobs on independent intervals, one per account
// plus whatever global jobs (health check, backup) are
// registered alongside them. It wraps robfig/cron's "@every" schedule
// syntax rather than the minute-granularity 5-field form, since
// balance_interval (spec.md §6) is specified in milliseconds.
type Runner struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewRunner builds an empty Runner.
func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler_runner").Logger(),
	}
}

// Schedule registers job to run every interval, starting after the first
// interval elapses (cron's "@every" never fires immediately). Errors
// returned by job.Run are logged, not propagated — one bad tick must not
// stop the next one from being scheduled.
func (r *Runner) Schedule(job Job, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0", job.Name())
	}
	spec := fmt.Sprintf("@every %s", interval)
	name := job.Name()
	_, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			r.log.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(start)).Msg("job failed")
			return
		}
		r.log.Debug().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job completed")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start begins running scheduled jobs in a background goroutine managed by
// the underlying cron scheduler.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
