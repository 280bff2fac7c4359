package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicore/pulsehook/internal/config"
	"github.com/clinicore/pulsehook/internal/db"
	"github.com/clinicore/pulsehook/internal/health"
	"github.com/clinicore/pulsehook/internal/logging"
	"github.com/clinicore/pulsehook/internal/metrics"
	"github.com/clinicore/pulsehook/internal/store"
	"github.com/clinicore/pulsehook/internal/sweeper"
	"github.com/clinicore/pulsehook/internal/tracing"
)

const serviceName = "pulsehook-sweeperd"

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New(serviceName)

	shutdown, err := tracing.InitTracing(ctx, serviceName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN(), int32(cfg.DB.MaxConns))
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(serviceName, pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Sweeper.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("sweeper HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("sweeper HTTP server failed")
		}
	}()

	runner := sweeper.NewRunner(
		sweeper.New(store.NewPostgres(pool), logger),
		cfg.Sweeper.Interval,
		cfg.Sweeper.MaxAge,
		logger,
	)
	go runner.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down sweeper")
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("sweeper stopped")
}
