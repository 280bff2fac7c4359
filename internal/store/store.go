package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a delivery id does not resolve to a row.
var ErrNotFound = errors.New("delivery not found")

// Store is the data access surface the delivery worker and the sweeper
// coordinate through. All coordination between concurrent invocations
// happens via the delivery row; there is no in-memory shared state.
type Store interface {
	// LoadJob resolves a delivery id to its row plus the owning
	// endpoint and event. Returns ErrNotFound for unknown ids.
	LoadJob(ctx context.Context, deliveryID string) (*Job, error)

	// ClaimAttempt increments the attempt counter, conditional on the
	// row still being PENDING with the attempt count the caller
	// observed. A false return means a competing invocation won the
	// claim (or the row went terminal) and the caller must not touch
	// the row or the network.
	ClaimAttempt(ctx context.Context, deliveryID string, observedAttempts int) (bool, error)

	// MarkDelivered transitions a PENDING row to DELIVERED.
	MarkDelivered(ctx context.Context, deliveryID string, statusCode int, deliveredAt time.Time) error

	// MarkFailed transitions a PENDING row to FAILED and clears the
	// retry schedule. statusCode may be nil for non-HTTP failures.
	MarkFailed(ctx context.Context, deliveryID string, statusCode *int, lastError string) error

	// MarkRetry records a failed attempt on a still-PENDING row and
	// schedules the next one.
	MarkRetry(ctx context.Context, deliveryID string, statusCode *int, lastError string, nextAttemptAt time.Time) error

	// GetDelivery reads a single delivery row.
	GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error)

	// FailExhausted marks up to limit PENDING rows whose attempt
	// counter reached maxAttempts as FAILED, returning the count.
	FailExhausted(ctx context.Context, maxAttempts, limit int) (int, error)

	// RescheduleOverdue makes up to limit PENDING rows immediately
	// eligible again when their scheduled retry time is missing or
	// passed more than maxAge ago, returning the count.
	RescheduleOverdue(ctx context.Context, now time.Time, maxAge time.Duration, maxAttempts, limit int) (int, error)
}
