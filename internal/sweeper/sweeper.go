package sweeper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicore/pulsehook/internal/backoff"
	"github.com/clinicore/pulsehook/internal/logging"
	"github.com/clinicore/pulsehook/internal/metrics"
	"github.com/clinicore/pulsehook/internal/store"
	"github.com/clinicore/pulsehook/internal/tracing"
)

const (
	// BatchLimit bounds how many rows one sweep pass touches per repair
	// kind. Anything left over is picked up by the next pass.
	BatchLimit = 200

	// DefaultMaxAge is the overdue threshold: a PENDING row whose
	// scheduled retry passed more than this long ago (or was never
	// scheduled) is made immediately eligible again.
	DefaultMaxAge = 24 * time.Hour
)

// Result reports how many rows a sweep pass repaired.
type Result struct {
	Failed      int `json:"failed"`
	Rescheduled int `json:"rescheduled"`
}

// Sweeper repairs delivery scheduling state that drifted: rows that
// exhausted their retry budget without reaching a terminal write, and
// rows the dispatcher failed to pick up. It never calls the network and
// never changes attempt counters.
type Sweeper struct {
	store  store.Store
	logger *logging.Logger
}

func New(st store.Store, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.New("pulsehook-sweeper")
	}
	return &Sweeper{store: st, logger: logger}
}

// Sweep runs one repair pass at the given time. maxAge <= 0 uses
// DefaultMaxAge.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (Result, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	ctx, span := tracing.StartSpan(ctx, "sweeper.sweep",
		attribute.String("max_age", maxAge.String()),
	)
	defer span.End()

	failed, err := s.store.FailExhausted(ctx, backoff.MaxAttempts, BatchLimit)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}

	rescheduled, err := s.store.RescheduleOverdue(ctx, now, maxAge, backoff.MaxAttempts, BatchLimit)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{Failed: failed}, err
	}

	metrics.RecordSweep("failed", failed)
	metrics.RecordSweep("rescheduled", rescheduled)
	span.SetAttributes(
		attribute.Int("failed", failed),
		attribute.Int("rescheduled", rescheduled),
	)
	if failed > 0 || rescheduled > 0 {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"failed":      failed,
			"rescheduled": rescheduled,
		}).Info("sweep repaired stuck deliveries")
	}
	return Result{Failed: failed, Rescheduled: rescheduled}, nil
}
