package envelope

import (
	"encoding/json"
	"time"

	"github.com/clinicore/pulsehook/internal/store"
)

// SpecVersion identifies the envelope schema on the wire.
const SpecVersion = "1.0"

// Envelope is the canonical JSON wrapper sent to a receiver for one
// delivery attempt. The idempotency key is always the event id so that
// receivers can dedupe across retries and duplicate dispatch.
type Envelope struct {
	SpecVersion    string          `json:"specVersion"`
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	CreatedAt      string          `json:"createdAt"`
	Attempt        int             `json:"attempt"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ClinicID       string          `json:"clinicId"`
	Resource       string          `json:"resource"`
	Data           json.RawMessage `json:"data"`
}

// Build produces the envelope for the given event and attempt number.
func Build(ev store.Event, attempt int) Envelope {
	return Envelope{
		SpecVersion:    SpecVersion,
		ID:             ev.ID,
		Type:           ev.Type,
		CreatedAt:      ev.CreatedAt.UTC().Format(time.RFC3339),
		Attempt:        attempt,
		IdempotencyKey: ev.ID,
		ClinicID:       ev.ClinicID,
		Resource:       ev.Resource,
		Data:           ev.Payload,
	}
}

// Encode serializes the envelope to its canonical wire form.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}
