package store

import (
	"encoding/json"
	"time"
)

// Delivery status values. Transitions are one-directional:
// PENDING -> DELIVERED or PENDING -> FAILED, both terminal.
const (
	StatusPending   = "PENDING"
	StatusDelivered = "DELIVERED"
	StatusFailed    = "FAILED"
)

// Event is an immutable business fact to be announced to subscribers.
// Rows are written by the event producer; this engine only reads them.
type Event struct {
	ID         string          `json:"id"`
	ClinicID   string          `json:"clinic_id"`
	Type       string          `json:"type"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Endpoint is a merchant-registered HTTPS receiver. The delivery engine
// reads url and secret; the rest belongs to endpoint management.
type Endpoint struct {
	ID                      string    `json:"id"`
	ClinicID                string    `json:"clinic_id"`
	URL                     string    `json:"url"`
	Secret                  string    `json:"-"`
	Enabled                 bool      `json:"enabled"`
	SubscribedEventTypes    []string  `json:"subscribed_event_types"`
	MaxConcurrentDeliveries int       `json:"max_concurrent_deliveries"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Delivery tracks one attempt lineage of sending one Event to one
// Endpoint. It is the only mutable entity in the engine.
type Delivery struct {
	ID            string     `json:"id"`
	EndpointID    string     `json:"endpoint_id"`
	EventID       string     `json:"event_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastCode      *int       `json:"last_code"`
	LastError     *string    `json:"last_error"`
	NextAttemptAt *time.Time `json:"next_attempt_at"`
	DeliveredAt   *time.Time `json:"delivered_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Terminal reports whether the delivery reached a terminal status.
func (d *Delivery) Terminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusFailed
}

// Job is the joined row set a single delivery attempt operates on.
type Job struct {
	Delivery Delivery
	Endpoint Endpoint
	Event    Event
}
