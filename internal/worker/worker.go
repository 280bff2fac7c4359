package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicore/pulsehook/internal/backoff"
	"github.com/clinicore/pulsehook/internal/envelope"
	"github.com/clinicore/pulsehook/internal/logging"
	"github.com/clinicore/pulsehook/internal/metrics"
	"github.com/clinicore/pulsehook/internal/signature"
	"github.com/clinicore/pulsehook/internal/store"
	"github.com/clinicore/pulsehook/internal/tracing"
)

const (
	// PayloadLimitBytes caps the serialized envelope. Larger bodies are
	// rejected terminally before any network call.
	PayloadLimitBytes = 1 << 20

	userAgent         = "Pulsehook-Webhooks/1.0"
	maxErrorBodyBytes = 1024
	maxLastErrorLen   = 1000

	hdrID          = "X-Webhook-Id"
	hdrEvent       = "X-Webhook-Event"
	hdrSignature   = "X-Webhook-Signature"
	hdrTimestamp   = "X-Webhook-Timestamp"
	hdrSpecVersion = "X-Webhook-Spec-Version"
)

// Delivery attempt outcomes as reported to the caller.
const (
	OutcomeDelivered        = "delivered"
	OutcomePending          = "pending"
	OutcomeFailed           = "failed"
	OutcomeAlreadyDelivered = "already_delivered"
)

// Pre-flight rejection reasons.
const (
	RejectInsecureURL     = "https_required"
	RejectPayloadTooLarge = "payload_too_large"
)

// ErrConflict means a competing invocation claimed the attempt first
// (or the row went terminal between load and claim). No attempt was
// performed and no state was written by this invocation.
var ErrConflict = errors.New("delivery already in flight")

// Result describes the outcome of one delivery attempt.
type Result struct {
	DeliveryID string
	Outcome    string
	Attempt    int
	StatusCode int
	LatencyMS  int64
	Reject     string
	Error      string
}

// Worker performs one delivery attempt per invocation. Invocations for
// different deliveries run fully in parallel; coordination for the same
// delivery happens through the conditional attempt claim on the row.
type Worker struct {
	store  store.Store
	client *http.Client
	logger *logging.Logger
	now    func() time.Time
}

// New builds a Worker around an injected store and HTTP client. The
// client's timeout bounds the only blocking operation in an attempt.
func New(st store.Store, client *http.Client, logger *logging.Logger) *Worker {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.New("pulsehook-worker")
	}
	return &Worker{store: st, client: client, logger: logger, now: time.Now}
}

// Deliver runs the delivery state machine for one delivery id.
//
// Terminal rows short-circuit with an already_delivered result. For a
// PENDING row the worker claims the attempt (incrementing the counter,
// conditional on the observed state), applies the HTTPS and payload
// size guards, signs and posts the envelope, and persists the resulting
// transition before returning. Unknown ids return store.ErrNotFound
// with no mutation; a lost claim returns ErrConflict.
func (w *Worker) Deliver(ctx context.Context, deliveryID string) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "worker.deliver",
		attribute.String("delivery_id", deliveryID),
	)
	defer span.End()

	job, err := w.store.LoadJob(ctx, deliveryID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}
	d := job.Delivery
	span.SetAttributes(
		attribute.String("event_id", d.EventID),
		attribute.String("endpoint_id", d.EndpointID),
		attribute.String("event_type", job.Event.Type),
		attribute.Int("attempts", d.Attempts),
	)

	// Idempotent no-op for a row that already reached DELIVERED.
	if d.Status == store.StatusDelivered {
		metrics.RecordDelivery(OutcomeAlreadyDelivered, 0)
		return Result{DeliveryID: d.ID, Outcome: OutcomeAlreadyDelivered, Attempt: d.Attempts}, nil
	}

	tracing.AddSpanEvent(ctx, "db.claim_attempt")
	claimed, err := w.store.ClaimAttempt(ctx, d.ID, d.Attempts)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}
	if !claimed {
		tracing.AddSpanEvent(ctx, "delivery.claim_lost")
		return Result{}, ErrConflict
	}
	attempt := d.Attempts + 1
	span.SetAttributes(attribute.Int("attempt", attempt))

	// Plaintext receivers are never contacted. Terminal, no retry.
	if !strings.HasPrefix(job.Endpoint.URL, "https://") {
		return w.reject(ctx, d, attempt, RejectInsecureURL, "Endpoint URL must use HTTPS for security")
	}

	body, err := envelope.Encode(envelope.Build(job.Event, attempt))
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, fmt.Errorf("encode envelope for delivery %s: %w", d.ID, err)
	}
	if len(body) > PayloadLimitBytes {
		msg := fmt.Sprintf("Payload too large: %d bytes (max: 1MB)", len(body))
		return w.reject(ctx, d, attempt, RejectPayloadTooLarge, msg)
	}

	ts := w.now().Unix()
	sig := signature.Sign(job.Endpoint.Secret, body, ts)

	var (
		status int
		doErr  error
	)
	start := time.Now()
	req, doErr := http.NewRequestWithContext(ctx, http.MethodPost, job.Endpoint.URL, bytes.NewReader(body))
	var errBody string
	if doErr == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(hdrID, job.Event.ID)
		req.Header.Set(hdrEvent, job.Event.Type)
		req.Header.Set(hdrSignature, sig)
		req.Header.Set(hdrTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(hdrSpecVersion, envelope.SpecVersion)
		req.Header.Set("User-Agent", userAgent)
		tracing.InjectHTTPHeaders(ctx, req.Header)

		tracing.AddSpanEvent(ctx, "http.send_webhook")
		var resp *http.Response
		resp, doErr = w.client.Do(req)
		if doErr == nil {
			status = resp.StatusCode
			if status < 200 || status >= 300 {
				raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
				if readErr == nil {
					errBody = strings.TrimSpace(string(raw))
				}
			}
			_ = resp.Body.Close()
		}
	}
	latency := time.Since(start)
	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	if doErr == nil && status >= 200 && status < 300 {
		deliveredAt := w.now()
		if err := w.store.MarkDelivered(ctx, d.ID, status, deliveredAt); err != nil {
			tracing.SetSpanError(ctx, err)
			return Result{}, err
		}
		metrics.RecordDelivery(OutcomeDelivered, latency)
		w.logger.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithFields(map[string]any{
			"attempt":    attempt,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
		}).Info("delivery succeeded")
		return Result{
			DeliveryID: d.ID,
			Outcome:    OutcomeDelivered,
			Attempt:    attempt,
			StatusCode: status,
			LatencyMS:  latency.Milliseconds(),
		}, nil
	}

	// Transient failure: non-2xx response or network/timeout error.
	msg := failureMessage(doErr, status, errBody)
	lastErr := truncate(msg, maxLastErrorLen)
	var codePtr *int
	if status > 0 {
		codePtr = &status
	}
	reason := classifyReason(doErr, status)
	span.SetAttributes(attribute.String("failure_reason", reason))

	if attempt >= backoff.MaxAttempts {
		if err := w.store.MarkFailed(ctx, d.ID, codePtr, lastErr); err != nil {
			tracing.SetSpanError(ctx, err)
			return Result{}, err
		}
		metrics.RecordDelivery(OutcomeFailed, latency)
		w.logger.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithFields(map[string]any{
			"attempt": attempt,
			"status":  status,
			"reason":  reason,
		}).Error("delivery failed permanently: retry budget exhausted")
		return Result{
			DeliveryID: d.ID,
			Outcome:    OutcomeFailed,
			Attempt:    attempt,
			StatusCode: status,
			LatencyMS:  latency.Milliseconds(),
			Error:      lastErr,
		}, nil
	}

	next := w.now().Add(backoff.Delay(attempt))
	if err := w.store.MarkRetry(ctx, d.ID, codePtr, lastErr, next); err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}
	metrics.RecordRetry(reason)
	metrics.RecordDelivery(OutcomePending, latency)
	w.logger.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithFields(map[string]any{
		"attempt":         attempt,
		"status":          status,
		"reason":          reason,
		"next_attempt_at": next.UTC().Format(time.RFC3339),
	}).Warn("delivery failed, retry scheduled")
	return Result{
		DeliveryID: d.ID,
		Outcome:    OutcomePending,
		Attempt:    attempt,
		StatusCode: status,
		LatencyMS:  latency.Milliseconds(),
		Error:      lastErr,
	}, nil
}

// reject records a terminal pre-flight rejection. The explanatory state
// is written before the result is returned to the caller.
func (w *Worker) reject(ctx context.Context, d store.Delivery, attempt int, reason, msg string) (Result, error) {
	tracing.AddSpanEvent(ctx, "delivery.rejected", attribute.String("reason", reason))
	if err := w.store.MarkFailed(ctx, d.ID, nil, msg); err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}
	metrics.RecordRejection(reason)
	metrics.RecordDelivery(OutcomeFailed, 0)
	w.logger.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithField("reason", reason).Error(msg)
	return Result{
		DeliveryID: d.ID,
		Outcome:    OutcomeFailed,
		Attempt:    attempt,
		Reject:     reason,
		Error:      msg,
	}, nil
}

func failureMessage(doErr error, status int, body string) string {
	if doErr != nil {
		return doErr.Error()
	}
	msg := fmt.Sprintf("endpoint returned status %d", status)
	if body != "" {
		msg += ": " + body
	}
	return msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func classifyReason(doErr error, status int) string {
	if doErr != nil {
		errLower := strings.ToLower(doErr.Error())
		if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
			return "timeout"
		}
		if strings.Contains(errLower, "connection refused") {
			return "connection_refused"
		}
		if strings.Contains(errLower, "no such host") || strings.Contains(errLower, "dns") {
			return "dns_error"
		}
		return "network"
	}
	if status >= 500 {
		return "http_5xx"
	}
	if status == 429 {
		return "http_429"
	}
	if status >= 400 {
		return "http_4xx"
	}
	return "other"
}
