package logging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestFluentBuilders(t *testing.T) {
	l := New("test-service")
	e := l.WithContext(context.Background()).
		WithRequest("req_1").
		WithClinic("cli_1").
		WithEvent("evt_1").
		WithDelivery("dlv_1").
		WithEndpoint("ep_1").
		WithField("attempt", 2).
		WithError(errors.New("boom"))

	if e.Service != "test-service" {
		t.Errorf("Service = %q", e.Service)
	}
	if e.RequestID != "req_1" || e.ClinicID != "cli_1" || e.EventID != "evt_1" {
		t.Errorf("id fields not set: %+v", e)
	}
	if e.DeliveryID != "dlv_1" || e.EndpointID != "ep_1" {
		t.Errorf("delivery fields not set: %+v", e)
	}
	if e.Fields["attempt"] != 2 {
		t.Errorf("Fields[attempt] = %v", e.Fields["attempt"])
	}
	if e.Fields["error"] != "boom" {
		t.Errorf("Fields[error] = %v", e.Fields["error"])
	}
}

func TestWithErrorNil(t *testing.T) {
	e := New("svc").Plain().WithError(nil)
	if _, ok := e.Fields["error"]; ok {
		t.Error("nil error must not add an error field")
	}
}

func TestWithFieldsMerges(t *testing.T) {
	e := New("svc").Plain().
		WithFields(map[string]any{"a": 1, "b": 2}).
		WithFields(map[string]any{"b": 3, "c": 4})

	if e.Fields["a"] != 1 || e.Fields["b"] != 3 || e.Fields["c"] != 4 {
		t.Errorf("merged fields = %v", e.Fields)
	}
}

func TestEntryMarshalsWithExpectedKeys(t *testing.T) {
	e := New("svc").Plain().WithDelivery("dlv_1")
	e.Level = LevelInfo
	e.Message = "delivery succeeded"

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["level"] != "info" || m["msg"] != "delivery succeeded" || m["delivery_id"] != "dlv_1" {
		t.Errorf("entry JSON = %v", m)
	}
	if _, ok := m["clinic_id"]; ok {
		t.Error("empty fields must be omitted from JSON")
	}
}
