package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/internal/config"
	"github.com/zhouzirui/moment-map/backend/internal/events"
	"github.com/zhouzirui/moment-map/backend/internal/handler"
	"github.com/zhouzirui/moment-map/backend/internal/logging"
	"github.com/zhouzirui/moment-map/backend/internal/service/relay"
	"github.com/zhouzirui/moment-map/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry unavailable, continuing without metrics export", zap.Error(err))
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Warn("failed to create metrics instruments", zap.Error(err))
	}

	var publisher events.Publisher = events.Nop{}
	var natsPublisher *events.NATSPublisher
	if cfg.Events.Enabled() {
		natsPublisher, err = events.Connect(cfg.Events, logger.Named("events"))
		if err != nil {
			logger.Warn("event mirror unavailable, continuing without NATS", zap.Error(err))
		} else {
			publisher = natsPublisher
			logger.Info("event mirror connected", zap.String("url", cfg.Events.NATSURL), zap.String("prefix", cfg.Events.SubjectPrefix))
		}
	}

	hub := relay.NewHub(relay.Options{
		Logger:            logger.Named("hub"),
		Metrics:           metrics,
		Events:            publisher,
		InactivityTimeout: cfg.Relay.InactivityTimeout,
	})
	if err := metrics.ObserveState(hub.Registry().Size, hub.Bubbles().Len); err != nil {
		logger.Warn("failed to register state gauges", zap.Error(err))
	}

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go relay.NewMonitor(hub, cfg.Relay.SweepInterval, logger.Named("monitor")).Run(monitorCtx)

	router := handler.NewRouter(hub, cfg.Relay, logger)

	startServer(ctx, cfg.Server, router, hub, logger)

	stopMonitor()
	if natsPublisher != nil {
		if err := natsPublisher.Close(); err != nil {
			logger.Warn("failed to drain nats connection", zap.Error(err))
		}
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		logger.Warn("failed to flush telemetry", zap.Error(err))
	}
	logger.Info("server stopped")
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, hub *relay.Hub, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("MomentMap relay listening", zap.String("addr", addr))
	if err := runServer(ctx, srv, hub, serverCfg.ShutdownTimeout); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server, hub *relay.Hub, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		// Hijacked websocket connections are not tracked by srv.Shutdown, so
		// the hub says goodbye and closes them first.
		hub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		hub.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
