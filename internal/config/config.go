package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User     string
	Pass     string
	Host     string
	Port     string
	Name     string
	MaxConns int
}

type Server struct {
	HTTPPort          string // e.g. :8080
	CronSecret        string // shared secret for /retry-stuck
	CronTrustedHeader string // header the platform cron sets; stripped by ingress for external callers
	DispatcherSecret  string // HMAC secret for dispatcher bearer tokens; empty disables auth on /deliver
	DispatcherIssuer  string // expected iss claim on dispatcher tokens
}

type Worker struct {
	HTTPTimeout time.Duration // outbound webhook call timeout
}

type Sweeper struct {
	Interval time.Duration // how often sweeperd runs a pass
	MaxAge   time.Duration // overdue threshold for rescheduling
	HTTPPort string        // sweeperd metrics/health port
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150; empty disables the queue trigger
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	Topic          string // topic carrying delivery trigger messages
	Channel        string // channel name for the engine consumers
}

type Receiver struct {
	FailFirstN     int           // number of requests to fail initially
	EndpointSecret string        // secret for webhook signature verification
	LeewaySeconds  int           // allowed timestamp skew in seconds
	Port           string        // server listen port
	ReadTimeout    time.Duration // HTTP read timeout
	WriteTimeout   time.Duration // HTTP write timeout
}

type Config struct {
	AppName  string
	DB       DB
	Server   Server
	Worker   Worker
	Sweeper  Sweeper
	NSQ      NSQ
	Receiver Receiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName: getenv("APP_NAME", "pulsehook"),
		DB: DB{
			User:     getenv("DB_USER", "postgres"),
			Pass:     getenv("DB_PASS", "postgres"),
			Host:     getenv("DB_HOST", "postgres"),
			Port:     getenv("DB_PORT", "5432"),
			Name:     getenv("DB_NAME", "pulsehook"),
			MaxConns: getenvInt("DB_MAX_CONNS", 10),
		},
		Server: Server{
			HTTPPort:          ":" + getenv("HTTP_PORT", "8080"),
			CronSecret:        getenv("CRON_SECRET", ""),
			CronTrustedHeader: getenv("CRON_TRUSTED_HEADER", "X-Platform-Cron"),
			DispatcherSecret:  getenv("DISPATCHER_JWT_SECRET", ""),
			DispatcherIssuer:  getenv("DISPATCHER_JWT_ISSUER", "pulsehook-dispatcher"),
		},
		Worker: Worker{
			HTTPTimeout: getenvDuration("DELIVERY_HTTP_TIMEOUT", 15*time.Second),
		},
		Sweeper: Sweeper{
			Interval: getenvDuration("SWEEP_INTERVAL", time.Hour),
			MaxAge:   getenvDuration("SWEEP_MAX_AGE", 24*time.Hour),
			HTTPPort: ":" + getenv("SWEEPER_HTTP_PORT", "8082"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", ""),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", ""),
			Topic:          getenv("NSQ_DELIVERIES_TOPIC", "deliveries"),
			Channel:        getenv("NSQ_ENGINE_CHANNEL", "engine"),
		},
		Receiver: Receiver{
			FailFirstN:     getenvInt("FAIL_FIRST_N", 0),
			EndpointSecret: getenv("ENDPOINT_SECRET", ""),
			LeewaySeconds:  getenvInt("SIGNING_LEEWAY_SECONDS", 300),
			Port:           ":" + getenv("RECEIVER_PORT", "8081"),
			ReadTimeout:    getenvDuration("RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getenvDuration("RECEIVER_WRITE_TIMEOUT", 10*time.Second),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
