package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicore/pulsehook/internal/auth"
	"github.com/clinicore/pulsehook/internal/config"
	"github.com/clinicore/pulsehook/internal/db"
	"github.com/clinicore/pulsehook/internal/health"
	"github.com/clinicore/pulsehook/internal/logging"
	"github.com/clinicore/pulsehook/internal/metrics"
	"github.com/clinicore/pulsehook/internal/server"
	"github.com/clinicore/pulsehook/internal/store"
	"github.com/clinicore/pulsehook/internal/sweeper"
	"github.com/clinicore/pulsehook/internal/tracing"
	"github.com/clinicore/pulsehook/internal/worker"
)

const serviceName = "pulsehook-deliveryd"

// triggerMessage is the queue-borne form of a deliver invocation. The
// dispatcher may enqueue these instead of calling POST /deliver.
type triggerMessage struct {
	DeliveryID string `json:"delivery_id"`
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	ctx := context.Background()

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

	st := store.NewPostgres(pool)
	httpClient := &http.Client{Timeout: cfg.Worker.HTTPTimeout}
	wrk := worker.New(st, httpClient, logger)
	swp := sweeper.New(st, logger)
	cronAuth := auth.NewCronAuth(cfg.Server.CronSecret, cfg.Server.CronTrustedHeader)
	dispatcherAuth := auth.NewDispatcherValidator(cfg.Server.DispatcherSecret, cfg.Server.DispatcherIssuer)

	api := server.New(wrk, swp, st, cronAuth, dispatcherAuth, logger)

	r := chi.NewRouter()
	r.Get("/healthz", health.HTTPHandler(serviceName, pool))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", api.Routes())

	httpSrv := &http.Server{Addr: cfg.Server.HTTPPort, Handler: r}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("delivery engine HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Optional queue trigger surface. The database stays the source of
	// truth for scheduling, so messages are always finished; redelivery
	// of due rows is the dispatcher's job.
	var consumer *nsq.Consumer
	if cfg.NSQ.NsqdTCPAddr != "" {
		conf := nsq.NewConfig()
		conf.MaxInFlight = 100
		consumer, err = nsq.NewConsumer(cfg.NSQ.Topic, cfg.NSQ.Channel, conf)
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
		}
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			var t triggerMessage
			if err := json.Unmarshal(m.Body, &t); err != nil || t.DeliveryID == "" {
				logger.Plain().WithError(err).Error("bad trigger payload")
				return nil
			}
			res, err := wrk.Deliver(ctx, t.DeliveryID)
			if err != nil {
				logger.Plain().WithDelivery(t.DeliveryID).WithError(err).Warn("queue-triggered delivery not performed")
				return nil
			}
			logger.Plain().WithDelivery(t.DeliveryID).WithField("outcome", res.Outcome).Info("queue-triggered delivery handled")
			return nil
		}))
		if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
			logger.Plain().WithError(err).Fatal("connect to nsqd failed")
		}
		if cfg.NSQ.LookupHTTPAddr != "" {
			if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
				logger.Plain().WithError(err).Fatal("connect to lookupd failed")
			}
		}
	}

	logger.Plain().Info("delivery engine started")

	// Graceful stop: stop accepting work, let in-flight deliveries
	// finish, then release the pool.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down delivery engine")
	if consumer != nil {
		consumer.Stop()
		<-consumer.StopChan
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Plain().Info("delivery engine stopped")
}
