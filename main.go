package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	alertapp "warehouse-sentinel/internal/alerts/application"
	"warehouse-sentinel/internal/alerts/dedup"
	alertrepo "warehouse-sentinel/internal/alerts/infrastructure/postgres"
	alertinterfaces "warehouse-sentinel/internal/alerts/interfaces"
	alerthttp "warehouse-sentinel/internal/alerts/interfaces/http"
	"warehouse-sentinel/internal/auth"
	"warehouse-sentinel/internal/config"
	deliveryapp "warehouse-sentinel/internal/delivery/application"
	deliveryrepo "warehouse-sentinel/internal/delivery/infrastructure/postgres"
	deliveryhttp "warehouse-sentinel/internal/delivery/interfaces/http"
	"warehouse-sentinel/internal/eventing"
	"warehouse-sentinel/internal/logger"
	"warehouse-sentinel/internal/notify"
	"warehouse-sentinel/internal/notify/ws"
	"warehouse-sentinel/internal/observability/metrics"
	sensorapp "warehouse-sentinel/internal/sensors/application"
	"warehouse-sentinel/internal/sensors/application/events"
	sensorrepo "warehouse-sentinel/internal/sensors/infrastructure/postgres"
	sensorhttp "warehouse-sentinel/internal/sensors/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	root := logger.New(cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		root.Fatal().Err(err).Msg("db open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		root.Fatal().Err(err).Msg("db ping failed")
	}

	metrics.Init(db, log.New(os.Stdout, "metrics ", log.LstdFlags))

	sensorChecker := auth.NewSensorChecker(db)
	configRepo := sensorrepo.NewConfigRepository(db)
	alertsRepo := alertrepo.NewAlertRepository(db)
	deliveryRepo := deliveryrepo.NewLogRepository(db)

	configCache := sensorapp.NewConfigCache(configRepo, 30*time.Second)
	configService, err := sensorapp.NewConfigService(configRepo, configCache,
		logger.WithComponent(root, "thresholds"),
		sensorapp.WithConfigFallbackTenant(cfg.TenantID),
	)
	if err != nil {
		root.Fatal().Err(err).Msg("config service init failed")
	}

	evaluator := sensorapp.NewEvaluator(logger.WithComponent(root, "evaluation"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var suppression dedup.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := dedup.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			root.Fatal().Err(err).Msg("redis suppression store init failed")
		}
		suppression = redisStore
	} else {
		memStore := dedup.NewMemoryStore()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case tick := <-ticker.C:
					memStore.Sweep(tick.UTC())
				}
			}
		}()
		suppression = memStore
		root.Info().Msg("using in-process suppression store")
	}

	hub := ws.NewHub(logger.WithComponent(root, "ws"))
	go hub.Run()

	var emailChannel, smsChannel notify.Channel
	if cfg.Email.Endpoint != "" {
		channel, err := notify.NewEmailChannel(cfg.Email.Endpoint, cfg.Email.APIKey, cfg.Email.From)
		if err != nil {
			root.Fatal().Err(err).Msg("email channel init failed")
		}
		emailChannel = channel
	}
	if cfg.SMS.Endpoint != "" {
		channel, err := notify.NewSMSChannel(cfg.SMS.Endpoint, cfg.SMS.APIKey, notify.WithSMSFrom(cfg.SMS.From))
		if err != nil {
			root.Fatal().Err(err).Msg("sms channel init failed")
		}
		smsChannel = channel
	}
	pushChannel, err := notify.NewPushChannel(hub)
	if err != nil {
		root.Fatal().Err(err).Msg("push channel init failed")
	}

	dispatcher := notify.NewDispatcher(emailChannel, smsChannel, pushChannel, deliveryRepo,
		logger.WithComponent(root, "notify"),
		notify.WithChannelTimeout(cfg.ChannelTimeout()),
	)

	broker := alerthttp.NewSSEBroker()
	alertService, err := alertapp.NewService(configCache, alertsRepo, suppression, evaluator, dispatcher,
		logger.WithComponent(root, "alerts"),
		alertapp.WithNotifier(broker),
		alertapp.WithFallbackTenant(cfg.TenantID),
	)
	if err != nil {
		root.Fatal().Err(err).Msg("alert service init failed")
	}

	escalator, err := alertapp.NewEscalator(alertService,
		logger.WithComponent(root, "escalation"),
		alertapp.WithEscalationDelay(cfg.EscalationDelay()),
		alertapp.WithEscalationInterval(cfg.EscalationInterval()),
		alertapp.WithEscalationMaxLevel(cfg.Escalation.MaxLevel),
		alertapp.WithEscalationBatch(cfg.Escalation.BatchSize),
	)
	if err != nil {
		root.Fatal().Err(err).Msg("escalator init failed")
	}
	go escalator.Run(ctx)

	deliveryService, err := deliveryapp.NewService(deliveryRepo,
		logger.WithComponent(root, "delivery"),
		deliveryapp.WithFallbackTenant(cfg.TenantID),
	)
	if err != nil {
		root.Fatal().Err(err).Msg("delivery service init failed")
	}

	bus := eventing.NewInMemoryBus()
	readingConsumer, err := alertinterfaces.NewReadingReceivedConsumer(alertService)
	if err != nil {
		root.Fatal().Err(err).Msg("reading consumer init failed")
	}
	bus.Subscribe(eventing.EventTypeOf[events.ReadingReceived](), func(ctx context.Context, event any) error {
		evt, ok := event.(events.ReadingReceived)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		return readingConsumer.Consume(ctx, evt)
	})

	ingestHandler, err := sensorhttp.NewIngestHandler(bus, sensorChecker, cfg.IngestToken, cfg.TenantID,
		logger.WithComponent(root, "ingest"))
	if err != nil {
		root.Fatal().Err(err).Msg("ingest handler init failed")
	}
	configHandler, err := sensorhttp.NewConfigHandler(configService)
	if err != nil {
		root.Fatal().Err(err).Msg("threshold handler init failed")
	}
	alertHandler, err := alerthttp.NewHandler(alertService)
	if err != nil {
		root.Fatal().Err(err).Msg("alert handler init failed")
	}
	deliveryHandler, err := deliveryhttp.NewHandler(deliveryService)
	if err != nil {
		root.Fatal().Err(err).Msg("delivery handler init failed")
	}
	webhookHandler, err := deliveryhttp.NewWebhookHandler(deliveryService, cfg.WebhookToken,
		logger.WithComponent(root, "webhook"))
	if err != nil {
		root.Fatal().Err(err).Msg("webhook handler init failed")
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/", "/webhooks/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/ingest/readings", ingestHandler)
	mux.Handle("/webhooks/delivery", webhookHandler)
	mux.Handle("/api/v1/thresholds", configHandler)
	mux.Handle("/api/v1/thresholds/", configHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/deliveries", deliveryHandler)
	mux.Handle("/api/v1/deliveries/", deliveryHandler)
	mux.Handle("/ws/alerts", ws.NewHandler(hub, logger.WithComponent(root, "ws")))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), root),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		root.Info().Str("addr", cfg.ListenAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			root.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	root.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		root.Error().Err(err).Msg("shutdown incomplete")
	}
}

func loggingMiddleware(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", resp.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE stream working through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack keeps websocket upgrades working through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
