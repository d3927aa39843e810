package automation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Submitter runs one automation pass through the core command loop. The loop
// implements this; the worker stays decoupled from engine internals.
type Submitter interface {
	AutomationTick(ctx context.Context) error
}

// Worker drives periodic automation runs. Rate limiting lives in the core
// policy, so the worker just ticks; a tick inside the cool-down is recorded
// by the core as a rate-limited run.
type Worker struct {
	submitter Submitter
	interval  time.Duration
	logger    zerolog.Logger
}

func NewWorker(submitter Submitter, interval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		submitter: submitter,
		interval:  interval,
		logger:    logger.With().Str("component", "automation_worker").Logger(),
	}
}

// Run ticks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("Automation worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Automation worker stopped")
			return
		case <-ticker.C:
			if err := w.submitter.AutomationTick(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Automation tick failed")
			}
		}
	}
}
