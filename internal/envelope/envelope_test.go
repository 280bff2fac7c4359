package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clinicore/pulsehook/internal/store"
)

func testEvent() store.Event {
	return store.Event{
		ID:        "evt_01",
		ClinicID:  "cli_09",
		Type:      "appointment.created",
		Resource:  "appointment",
		Payload:   json.RawMessage(`{"appointmentId":"apt_7","start":"2026-09-01T10:00:00Z"}`),
		CreatedAt: time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC),
	}
}

func TestBuild(t *testing.T) {
	ev := testEvent()
	e := Build(ev, 3)

	if e.SpecVersion != SpecVersion {
		t.Errorf("SpecVersion = %q, want %q", e.SpecVersion, SpecVersion)
	}
	if e.ID != ev.ID {
		t.Errorf("ID = %q, want %q", e.ID, ev.ID)
	}
	if e.Type != ev.Type {
		t.Errorf("Type = %q, want %q", e.Type, ev.Type)
	}
	if e.CreatedAt != "2026-08-30T14:05:09Z" {
		t.Errorf("CreatedAt = %q, want RFC3339 UTC", e.CreatedAt)
	}
	if e.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3", e.Attempt)
	}
	if e.ClinicID != ev.ClinicID {
		t.Errorf("ClinicID = %q, want %q", e.ClinicID, ev.ClinicID)
	}
	if e.Resource != ev.Resource {
		t.Errorf("Resource = %q, want %q", e.Resource, ev.Resource)
	}
	if string(e.Data) != string(ev.Payload) {
		t.Errorf("Data = %s, want original payload", e.Data)
	}
}

func TestBuildIdempotencyKeyStableAcrossAttempts(t *testing.T) {
	ev := testEvent()
	first := Build(ev, 1)
	fifth := Build(ev, 5)

	if first.IdempotencyKey != ev.ID {
		t.Errorf("IdempotencyKey = %q, want event id %q", first.IdempotencyKey, ev.ID)
	}
	if first.IdempotencyKey != fifth.IdempotencyKey {
		t.Errorf("IdempotencyKey changed across attempts: %q vs %q", first.IdempotencyKey, fifth.IdempotencyKey)
	}
}

func TestBuildNormalizesCreatedAtToUTC(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ev := testEvent()
	ev.CreatedAt = time.Date(2026, 8, 30, 16, 5, 9, 0, loc)

	e := Build(ev, 1)
	if e.CreatedAt != "2026-08-30T14:05:09Z" {
		t.Errorf("CreatedAt = %q, want UTC-normalized timestamp", e.CreatedAt)
	}
}

func TestEncodeWireKeys(t *testing.T) {
	body, err := Encode(Build(testEvent(), 2))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		t.Fatalf("Encode() produced invalid JSON: %v", err)
	}

	for _, key := range []string{"specVersion", "id", "type", "createdAt", "attempt", "idempotencyKey", "clinicId", "resource", "data"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("wire envelope missing key %q", key)
		}
	}
	if len(wire) != 9 {
		t.Errorf("wire envelope has %d keys, want 9", len(wire))
	}
}
