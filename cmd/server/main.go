package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetsync/orchestrator-go/internal/audit"
	"github.com/fleetsync/orchestrator-go/internal/bridge"
	"github.com/fleetsync/orchestrator-go/internal/config"
	"github.com/fleetsync/orchestrator-go/internal/database"
	"github.com/fleetsync/orchestrator-go/internal/handler"
	"github.com/fleetsync/orchestrator-go/internal/jobs"
	"github.com/fleetsync/orchestrator-go/internal/middleware"
	"github.com/fleetsync/orchestrator-go/internal/mqtt"
	"github.com/fleetsync/orchestrator-go/internal/presence"
	"github.com/fleetsync/orchestrator-go/internal/redis"
	"github.com/fleetsync/orchestrator-go/internal/repository"
	"github.com/fleetsync/orchestrator-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if err := database.Migrate(context.Background(), db.DB); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	broker := bridge.NewBroker(redisClient)
	defer broker.Close()

	gateway := mqtt.NewGateway(mqtt.NewPahoTransport(mqtt.PahoConfig{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
	}))

	ctx, cancel = context.WithTimeout(context.Background(), config.MQTTConnectTimeout)
	if err := gateway.Connect(ctx); err != nil {
		// Paho keeps retrying in the background; commands fail with a transport error until it connects.
		log.Error().Err(err).Str("broker", cfg.MQTTBrokerURL).Msg("mqtt broker not reachable yet")
	} else {
		log.Info().Str("broker", cfg.MQTTBrokerURL).Msg("mqtt connected")
	}
	cancel()
	defer gateway.Close()

	deviceRepo := repository.NewDeviceRepository(db.DB)
	pairRepo := repository.NewPairRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)

	tracker := presence.NewTracker(gateway, deviceRepo, broker, cfg.DeviceTimeout())
	if err := tracker.Start(); err != nil {
		log.Error().Err(err).Msg("presence tracker subscriptions incomplete")
	}
	defer tracker.Stop()

	deviceService := service.NewDeviceService(gateway, tracker, broker)
	pairingService := service.NewPairingService(pairRepo, deviceRepo, tracker, cfg.LastSeenWindow())
	sessionService := service.NewSessionService(sessionRepo, pairRepo, gateway, broker, pairingService, cfg.CommandLead())

	if _, err := deviceService.RequestDeviceScan(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial device scan failed")
	}

	auditLimit := func(r *http.Request) {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventRateLimitExceed,
			Details: map[string]interface{}{"path": r.URL.Path},
		})
	}
	commandLimit := middleware.NewIPRateLimitMiddleware(
		service.NewRateLimiter(redisClient.Client), cfg.CommandRateLimitPerMin, time.Minute, "commands",
	).OnLimit(auditLimit)
	scanLimit := middleware.NewIPRateLimitMiddleware(
		middleware.NewMemoryLimiter(), config.ScanRateLimitPerMin, time.Minute, "scan",
	).OnLimit(auditLimit)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	healthHandler := handler.NewHealthHandler(db, gateway, tracker)
	deviceHandler := handler.NewDeviceHandler(deviceService, scanLimit.Handler)
	pairingHandler := handler.NewPairingHandler(pairingService)
	sessionHandler := handler.NewSessionHandler(sessionService, commandLimit.Handler)
	bridgeHandler := handler.NewBridgeHandler(broker, config.BridgeHeartbeatInterval)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)
		r.Mount("/devices", deviceHandler.Routes())
		r.Mount("/pairs", pairingHandler.Routes())
		r.Mount("/sessions", sessionHandler.Routes())
	})

	// Streams are long-lived and stay outside the request timeout.
	r.Route("/bridge", func(r chi.Router) {
		r.Get("/events", bridgeHandler.ServeSSE)
		r.Get("/ws", bridgeHandler.ServeWS)
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, cfg.SessionRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
