package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_PORT", "CRON_TRUSTED_HEADER", "DELIVERY_HTTP_TIMEOUT",
		"SWEEP_INTERVAL", "SWEEP_MAX_AGE", "NSQD_TCP_ADDR",
		"NSQ_DELIVERIES_TOPIC", "NSQ_ENGINE_CHANNEL", "SIGNING_LEEWAY_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	if cfg.Server.HTTPPort != ":8080" {
		t.Errorf("HTTPPort = %q, want :8080", cfg.Server.HTTPPort)
	}
	if cfg.Server.CronTrustedHeader != "X-Platform-Cron" {
		t.Errorf("CronTrustedHeader = %q", cfg.Server.CronTrustedHeader)
	}
	if cfg.Worker.HTTPTimeout != 15*time.Second {
		t.Errorf("HTTPTimeout = %v, want 15s", cfg.Worker.HTTPTimeout)
	}
	if cfg.Sweeper.Interval != time.Hour {
		t.Errorf("Sweeper.Interval = %v, want 1h", cfg.Sweeper.Interval)
	}
	if cfg.Sweeper.MaxAge != 24*time.Hour {
		t.Errorf("Sweeper.MaxAge = %v, want 24h", cfg.Sweeper.MaxAge)
	}
	if cfg.NSQ.NsqdTCPAddr != "" {
		t.Errorf("NsqdTCPAddr = %q, want empty (queue trigger disabled)", cfg.NSQ.NsqdTCPAddr)
	}
	if cfg.NSQ.Topic != "deliveries" || cfg.NSQ.Channel != "engine" {
		t.Errorf("NSQ topic/channel = %q/%q", cfg.NSQ.Topic, cfg.NSQ.Channel)
	}
	if cfg.Receiver.LeewaySeconds != 300 {
		t.Errorf("LeewaySeconds = %d, want 300", cfg.Receiver.LeewaySeconds)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("DELIVERY_HTTP_TIMEOUT", "5s")
	t.Setenv("SWEEP_INTERVAL", "30m")
	t.Setenv("CRON_SECRET", "topsecret")
	t.Setenv("NSQD_TCP_ADDR", "nsqd:4150")

	cfg := FromEnv()

	if cfg.Server.HTTPPort != ":9090" {
		t.Errorf("HTTPPort = %q, want :9090", cfg.Server.HTTPPort)
	}
	if cfg.DB.Host != "db.internal" {
		t.Errorf("DB.Host = %q", cfg.DB.Host)
	}
	if cfg.DB.MaxConns != 25 {
		t.Errorf("DB.MaxConns = %d, want 25", cfg.DB.MaxConns)
	}
	if cfg.Worker.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5s", cfg.Worker.HTTPTimeout)
	}
	if cfg.Sweeper.Interval != 30*time.Minute {
		t.Errorf("Sweeper.Interval = %v, want 30m", cfg.Sweeper.Interval)
	}
	if cfg.Server.CronSecret != "topsecret" {
		t.Errorf("CronSecret = %q", cfg.Server.CronSecret)
	}
	if cfg.NSQ.NsqdTCPAddr != "nsqd:4150" {
		t.Errorf("NsqdTCPAddr = %q", cfg.NSQ.NsqdTCPAddr)
	}
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "lots")
	t.Setenv("DELIVERY_HTTP_TIMEOUT", "soon")

	cfg := FromEnv()
	if cfg.DB.MaxConns != 10 {
		t.Errorf("DB.MaxConns = %d, want default 10 on parse failure", cfg.DB.MaxConns)
	}
	if cfg.Worker.HTTPTimeout != 15*time.Second {
		t.Errorf("HTTPTimeout = %v, want default 15s on parse failure", cfg.Worker.HTTPTimeout)
	}
}

func TestDSN(t *testing.T) {
	t.Setenv("DB_USER", "hook")
	t.Setenv("DB_PASS", "pw")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_NAME", "hooks")

	got := FromEnv().DSN()
	want := "postgres://hook:pw@localhost:5433/hooks?sslmode=disable"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
