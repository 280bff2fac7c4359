package sweeper

import (
	"context"
	"time"

	"github.com/clinicore/pulsehook/internal/logging"
)

// Runner drives periodic sweeps for deployments without an external
// cron trigger. It runs one pass immediately, then one per interval,
// until the context is cancelled.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	maxAge   time.Duration
	logger   *logging.Logger
}

func NewRunner(s *Sweeper, interval, maxAge time.Duration, logger *logging.Logger) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.New("pulsehook-sweeper")
	}
	return &Runner{sweeper: s, interval: interval, maxAge: maxAge, logger: logger}
}

func (r *Runner) Start(ctx context.Context) {
	r.logger.Plain().WithField("interval", r.interval.String()).Info("sweeper started")

	r.runCycle(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Plain().Info("sweeper stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	startedAt := time.Now().UTC()
	res, err := r.sweeper.Sweep(ctx, startedAt, r.maxAge)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("sweep cycle failed")
		return
	}
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"failed":      res.Failed,
		"rescheduled": res.Rescheduled,
		"latency_ms":  time.Since(startedAt).Milliseconds(),
	}).Info("sweep cycle completed")
}
