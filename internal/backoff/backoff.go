package backoff

import "time"

// MaxAttempts is the retry budget for a delivery. A delivery whose
// attempt counter reaches this value is terminal and never retried.
const MaxAttempts = 10

// schedule maps attempt number (1-based) to the wait before the next
// retry: 1m, 5m, 15m, 1h, 6h, 24h, 48h, 72h, 96h.
var schedule = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
	3600 * time.Second,
	21600 * time.Second,
	86400 * time.Second,
	172800 * time.Second,
	259200 * time.Second,
	345600 * time.Second,
}

// Delay returns the wait duration before the next retry after the given
// attempt number. Attempts beyond the table clamp to the last entry.
func Delay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
