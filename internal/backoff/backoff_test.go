package backoff

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 60 * time.Second},
		{2, 300 * time.Second},
		{3, 900 * time.Second},
		{4, 3600 * time.Second},
		{5, 21600 * time.Second},
		{6, 86400 * time.Second},
		{7, 172800 * time.Second},
		{8, 259200 * time.Second},
		{9, 345600 * time.Second},
		// attempts past the end of the table clamp to the last entry
		{10, 345600 * time.Second},
		{25, 345600 * time.Second},
		// defensive clamp at the low end
		{0, 60 * time.Second},
		{-3, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayMonotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		d := Delay(attempt)
		if d < prev {
			t.Errorf("Delay(%d) = %v, smaller than Delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		prev = d
	}
}
