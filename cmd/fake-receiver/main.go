package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/clinicore/pulsehook/internal/config"
	"github.com/clinicore/pulsehook/internal/signature"
)

const (
	sigHeader = "X-Webhook-Signature"
	tsHeader  = "X-Webhook-Timestamp"
)

// receiver is a stand-in merchant endpoint. It verifies the signature
// contract (hex HMAC-SHA256 over "{timestamp}.{body}") and can be told
// to fail the first N requests to exercise the retry path.
type receiver struct {
	failFirstN int
	secret     string
	maxSkew    time.Duration
	reqCount   int
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	rcv := &receiver{
		failFirstN: cfg.Receiver.FailFirstN,
		secret:     cfg.Receiver.EndpointSecret,
		maxSkew:    time.Duration(cfg.Receiver.LeewaySeconds) * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", rcv.handleHook)

	srv := &http.Server{
		Addr:         cfg.Receiver.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Receiver.ReadTimeout,
		WriteTimeout: cfg.Receiver.WriteTimeout,
	}
	log.Printf("fake-receiver listening on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func (rc *receiver) handleHook(w http.ResponseWriter, r *http.Request) {
	rc.reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rc.secret != "" {
		if ok, msg := verifyRequest(rc.secret, b, r.Header.Get(tsHeader), r.Header.Get(sigHeader), rc.maxSkew); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if rc.reqCount <= rc.failFirstN {
		log.Printf("FAILING (%d/%d) id=%s event=%s", rc.reqCount, rc.failFirstN, r.Header.Get("X-Webhook-Id"), r.Header.Get("X-Webhook-Event"))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK id=%s event=%s body=%q", r.Header.Get("X-Webhook-Id"), r.Header.Get("X-Webhook-Event"), preview(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

func verifyRequest(secret string, body []byte, ts, sig string, leeway time.Duration) (bool, string) {
	if ts == "" || sig == "" {
		return false, "missing headers"
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false, "invalid timestamp"
	}
	// reject if timestamp is too old/new
	now := time.Now().Unix()
	if abs64(now-unix) > int64(leeway.Seconds()) {
		return false, "timestamp too far from now (outside leeway)"
	}
	if !signature.Verify(secret, body, unix, sig) {
		return false, "sig mismatch"
	}
	return true, ""
}

// abs64 returns the absolute value of an int64
func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// preview truncates a string for logging
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
