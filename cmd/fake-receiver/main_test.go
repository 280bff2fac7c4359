package main

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/clinicore/pulsehook/internal/signature"
)

func TestVerifyRequest(t *testing.T) {
	const secret = "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now().Unix()
	ts := strconv.FormatInt(now, 10)
	sig := signature.Sign(secret, body, now)
	leeway := 5 * time.Minute

	tests := []struct {
		name    string
		ts      string
		sig     string
		body    []byte
		wantOK  bool
		wantMsg string
	}{
		{"valid", ts, sig, body, true, ""},
		{"missing timestamp", "", sig, body, false, "missing headers"},
		{"missing signature", ts, "", body, false, "missing headers"},
		{"bad timestamp", "yesterday", sig, body, false, "invalid timestamp"},
		{
			"stale timestamp",
			strconv.FormatInt(now-int64(time.Hour.Seconds()), 10),
			sig, body, false, "outside leeway",
		},
		{"tampered body", ts, sig, []byte(`{"id":"evt_2"}`), false, "sig mismatch"},
		{"wrong signature", ts, strings.Repeat("0", 64), body, false, "sig mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := verifyRequest(secret, tt.body, tt.ts, tt.sig, leeway)
			if ok != tt.wantOK {
				t.Errorf("verifyRequest() ok = %v, want %v (msg %q)", ok, tt.wantOK, msg)
			}
			if tt.wantMsg != "" && !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("msg = %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short", 10); got != "short" {
		t.Errorf("preview() = %q", got)
	}
	if got := preview("0123456789abcdef", 8); got != "01234567..." {
		t.Errorf("preview() = %q", got)
	}
}
