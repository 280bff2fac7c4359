package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the pgx-backed Store. The pool is constructed once at
// process start and injected; Postgres never owns its lifecycle.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) LoadJob(ctx context.Context, deliveryID string) (*Job, error) {
	var j Job
	err := p.pool.QueryRow(ctx, `
		SELECT d.id, d.endpoint_id, d.event_id, d.status, d.attempts,
		       d.last_code, d.last_error, d.next_attempt_at, d.delivered_at,
		       d.created_at, d.updated_at,
		       ep.id, ep.clinic_id, ep.url, ep.secret, ep.enabled,
		       ep.subscribed_event_types, ep.max_concurrent_deliveries,
		       ep.created_at, ep.updated_at,
		       ev.id, ev.clinic_id, ev.event_type, ev.resource, ev.resource_id,
		       ev.payload, ev.created_at
		FROM pulsehook.deliveries d
		JOIN pulsehook.endpoints ep ON ep.id = d.endpoint_id
		JOIN pulsehook.events ev ON ev.id = d.event_id
		WHERE d.id = $1`, deliveryID,
	).Scan(
		&j.Delivery.ID, &j.Delivery.EndpointID, &j.Delivery.EventID, &j.Delivery.Status, &j.Delivery.Attempts,
		&j.Delivery.LastCode, &j.Delivery.LastError, &j.Delivery.NextAttemptAt, &j.Delivery.DeliveredAt,
		&j.Delivery.CreatedAt, &j.Delivery.UpdatedAt,
		&j.Endpoint.ID, &j.Endpoint.ClinicID, &j.Endpoint.URL, &j.Endpoint.Secret, &j.Endpoint.Enabled,
		&j.Endpoint.SubscribedEventTypes, &j.Endpoint.MaxConcurrentDeliveries,
		&j.Endpoint.CreatedAt, &j.Endpoint.UpdatedAt,
		&j.Event.ID, &j.Event.ClinicID, &j.Event.Type, &j.Event.Resource, &j.Event.ResourceID,
		&j.Event.Payload, &j.Event.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load delivery %s: %w", deliveryID, err)
	}
	return &j, nil
}

func (p *Postgres) ClaimAttempt(ctx context.Context, deliveryID string, observedAttempts int) (bool, error) {
	ct, err := p.pool.Exec(ctx, `
		UPDATE pulsehook.deliveries
		SET attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status = 'PENDING' AND attempts = $2`,
		deliveryID, observedAttempts,
	)
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", deliveryID, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (p *Postgres) MarkDelivered(ctx context.Context, deliveryID string, statusCode int, deliveredAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE pulsehook.deliveries
		SET status = 'DELIVERED', delivered_at = $2, last_code = $3,
		    last_error = NULL, next_attempt_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		deliveryID, deliveredAt.UTC(), statusCode,
	)
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", deliveryID, err)
	}
	return nil
}

func (p *Postgres) MarkFailed(ctx context.Context, deliveryID string, statusCode *int, lastError string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE pulsehook.deliveries
		SET status = 'FAILED', last_code = $2, last_error = $3,
		    next_attempt_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		deliveryID, statusCode, lastError,
	)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", deliveryID, err)
	}
	return nil
}

func (p *Postgres) MarkRetry(ctx context.Context, deliveryID string, statusCode *int, lastError string, nextAttemptAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE pulsehook.deliveries
		SET last_code = $2, last_error = $3, next_attempt_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		deliveryID, statusCode, lastError, nextAttemptAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark retry %s: %w", deliveryID, err)
	}
	return nil
}

func (p *Postgres) GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	var d Delivery
	err := p.pool.QueryRow(ctx, `
		SELECT id, endpoint_id, event_id, status, attempts, last_code,
		       last_error, next_attempt_at, delivered_at, created_at, updated_at
		FROM pulsehook.deliveries
		WHERE id = $1`, deliveryID,
	).Scan(
		&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempts, &d.LastCode,
		&d.LastError, &d.NextAttemptAt, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery %s: %w", deliveryID, err)
	}
	return &d, nil
}

func (p *Postgres) FailExhausted(ctx context.Context, maxAttempts, limit int) (int, error) {
	ct, err := p.pool.Exec(ctx, `
		WITH stuck AS (
			SELECT id FROM pulsehook.deliveries
			WHERE status = 'PENDING' AND attempts >= $1
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pulsehook.deliveries d
		SET status = 'FAILED', last_error = 'retry budget exhausted',
		    next_attempt_at = NULL, updated_at = now()
		FROM stuck
		WHERE d.id = stuck.id`,
		maxAttempts, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("fail exhausted deliveries: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (p *Postgres) RescheduleOverdue(ctx context.Context, now time.Time, maxAge time.Duration, maxAttempts, limit int) (int, error) {
	cutoff := now.Add(-maxAge).UTC()
	ct, err := p.pool.Exec(ctx, `
		WITH overdue AS (
			SELECT id FROM pulsehook.deliveries
			WHERE status = 'PENDING' AND attempts < $1
			  AND (next_attempt_at IS NULL OR next_attempt_at < $2)
			ORDER BY updated_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pulsehook.deliveries d
		SET next_attempt_at = $4, updated_at = now()
		FROM overdue
		WHERE d.id = overdue.id`,
		maxAttempts, cutoff, limit, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("reschedule overdue deliveries: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
