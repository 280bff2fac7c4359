package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinicore/pulsehook/internal/auth"
	"github.com/clinicore/pulsehook/internal/store"
	"github.com/clinicore/pulsehook/internal/sweeper"
	"github.com/clinicore/pulsehook/internal/worker"
)

type stubDeliverer struct {
	res worker.Result
	err error
}

func (s *stubDeliverer) Deliver(context.Context, string) (worker.Result, error) {
	return s.res, s.err
}

type stubRepairer struct {
	res        sweeper.Result
	err        error
	gotMaxAge  time.Duration
	wasInvoked bool
}

func (s *stubRepairer) Sweep(_ context.Context, _ time.Time, maxAge time.Duration) (sweeper.Result, error) {
	s.wasInvoked = true
	s.gotMaxAge = maxAge
	return s.res, s.err
}

type stubReader struct {
	d   *store.Delivery
	err error
}

func (s *stubReader) GetDelivery(context.Context, string) (*store.Delivery, error) {
	return s.d, s.err
}

func newTestServer(d Deliverer, r StuckRepairer, reader DeliveryReader) *Server {
	cron := auth.NewCronAuth("cron-secret", "X-Platform-Cron")
	return New(d, r, reader, cron, nil, nil)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return m
}

func TestDeliverEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		deliverer  *stubDeliverer
		wantStatus int
		wantField  string
		wantValue  any
	}{
		{
			name: "delivered",
			body: `{"deliveryId":"dlv_1"}`,
			deliverer: &stubDeliverer{res: worker.Result{
				DeliveryID: "dlv_1", Outcome: worker.OutcomeDelivered, Attempt: 1, StatusCode: 200, LatencyMS: 42,
			}},
			wantStatus: http.StatusOK,
			wantField:  "status",
			wantValue:  "delivered",
		},
		{
			name: "retry scheduled",
			body: `{"deliveryId":"dlv_1"}`,
			deliverer: &stubDeliverer{res: worker.Result{
				DeliveryID: "dlv_1", Outcome: worker.OutcomePending, Attempt: 3, StatusCode: 503,
			}},
			wantStatus: http.StatusOK,
			wantField:  "status",
			wantValue:  "pending",
		},
		{
			name:       "missing id",
			body:       `{}`,
			deliverer:  &stubDeliverer{},
			wantStatus: http.StatusBadRequest,
			wantField:  "error",
			wantValue:  "deliveryId is required",
		},
		{
			name:       "unknown delivery",
			body:       `{"deliveryId":"dlv_missing"}`,
			deliverer:  &stubDeliverer{err: store.ErrNotFound},
			wantStatus: http.StatusNotFound,
			wantField:  "error",
			wantValue:  "delivery not found",
		},
		{
			name:       "claim conflict",
			body:       `{"deliveryId":"dlv_1"}`,
			deliverer:  &stubDeliverer{err: worker.ErrConflict},
			wantStatus: http.StatusConflict,
			wantField:  "error",
			wantValue:  "delivery already in flight",
		},
		{
			name: "https rejection",
			body: `{"deliveryId":"dlv_1"}`,
			deliverer: &stubDeliverer{res: worker.Result{
				DeliveryID: "dlv_1", Outcome: worker.OutcomeFailed, Reject: worker.RejectInsecureURL,
			}},
			wantStatus: http.StatusBadRequest,
			wantField:  "error",
			wantValue:  "https required",
		},
		{
			name: "payload rejection",
			body: `{"deliveryId":"dlv_1"}`,
			deliverer: &stubDeliverer{res: worker.Result{
				DeliveryID: "dlv_1", Outcome: worker.OutcomeFailed, Reject: worker.RejectPayloadTooLarge,
			}},
			wantStatus: http.StatusBadRequest,
			wantField:  "error",
			wantValue:  "payload too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.deliverer, &stubRepairer{}, &stubReader{})
			req := httptest.NewRequest(http.MethodPost, "/deliver", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeBody(t, rec)[tt.wantField]; got != tt.wantValue {
				t.Errorf("%s = %v, want %v", tt.wantField, got, tt.wantValue)
			}
		})
	}
}

func TestRetryStuckAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantSwept  bool
	}{
		{"no credentials", "", "", http.StatusUnauthorized, false},
		{"wrong secret", auth.CronSecretHeader, "nope", http.StatusUnauthorized, false},
		{"correct secret", auth.CronSecretHeader, "cron-secret", http.StatusOK, true},
		{"platform header", "X-Platform-Cron", "1", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &stubRepairer{res: sweeper.Result{Failed: 3, Rescheduled: 2}}
			srv := newTestServer(&stubDeliverer{}, rep, &stubReader{})

			req := httptest.NewRequest(http.MethodPost, "/retry-stuck", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rep.wasInvoked != tt.wantSwept {
				t.Errorf("sweep invoked = %v, want %v", rep.wasInvoked, tt.wantSwept)
			}
			if tt.wantStatus == http.StatusOK {
				body := decodeBody(t, rec)
				if body["failed"] != float64(3) || body["rescheduled"] != float64(2) {
					t.Errorf("body = %v, want failed=3 rescheduled=2", body)
				}
			}
		})
	}
}

func TestRetryStuckMaxAgeOverride(t *testing.T) {
	rep := &stubRepairer{}
	srv := newTestServer(&stubDeliverer{}, rep, &stubReader{})

	req := httptest.NewRequest(http.MethodPost, "/retry-stuck", strings.NewReader(`{"maxAgeMs":3600000}`))
	req.Header.Set(auth.CronSecretHeader, "cron-secret")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rep.gotMaxAge != time.Hour {
		t.Errorf("maxAge = %v, want 1h", rep.gotMaxAge)
	}
}

func TestGetDelivery(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	code := 200
	reader := &stubReader{d: &store.Delivery{
		ID:          "dlv_1",
		EndpointID:  "ep_1",
		EventID:     "evt_1",
		Status:      store.StatusDelivered,
		Attempts:    2,
		LastCode:    &code,
		DeliveredAt: &now,
	}}
	srv := newTestServer(&stubDeliverer{}, &stubRepairer{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/deliveries/dlv_1", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["id"] != "dlv_1" || body["status"] != "DELIVERED" {
		t.Errorf("body = %v", body)
	}
}

func TestGetDeliveryNotFound(t *testing.T) {
	srv := newTestServer(&stubDeliverer{}, &stubRepairer{}, &stubReader{err: store.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/deliveries/dlv_missing", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeliverRequiresDispatcherToken(t *testing.T) {
	cron := auth.NewCronAuth("cron-secret", "")
	dispatcher := auth.NewDispatcherValidator("dispatcher-secret", "clinicore-platform")
	srv := New(&stubDeliverer{}, &stubRepairer{}, &stubReader{}, cron, dispatcher, nil)

	req := httptest.NewRequest(http.MethodPost, "/deliver", strings.NewReader(`{"deliveryId":"dlv_1"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a bearer token", rec.Code)
	}
}
