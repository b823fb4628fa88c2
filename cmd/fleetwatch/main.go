package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/backend"
	"fleetwatch/internal/config"
	"fleetwatch/internal/delivery/http/handler"
	"fleetwatch/internal/delivery/ws"
	"fleetwatch/internal/geofence"
	"fleetwatch/internal/infrastructure/database/postgres"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/mapview"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/middleware"
	"fleetwatch/internal/notification"
	"fleetwatch/internal/routes"
	"fleetwatch/internal/state"
	"fleetwatch/internal/stream"
	"fleetwatch/internal/tracking"
)

const (
	Version = "0.1.0"
	appName = "fleetwatch"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Live fleet tracking and alerting service",
		Long: `Fleetwatch follows a fleet of GPS devices in real time.

It loads the device snapshot from the tracking backend, then merges the
live stream of device, position and event updates, raises alerts for
permitted event types and serves the merged state over HTTP and WebSocket.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func run(envFile string) error {
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Server.LogLevel != "" {
		if err := logger.SetLevel(cfg.Server.LogLevel); err != nil {
			return err
		}
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("environment", cfg.Server.Environment),
		zap.String("transport", cfg.Stream.Transport),
	)

	healthChecks := map[string]handler.HealthCheck{}

	allow := alert.NewAllowList(cfg.Notifications.AllowedTypes...)
	if cfg.Database.HasDatabase() && cfg.Notifications.Username != "" {
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database connection", zap.Error(err))
			}
		}()
		healthChecks["database"] = db.Health

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		allow, err = postgres.NewPreferenceRepository(db).LoadAllowList(ctx, cfg.Notifications.Username)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to load notification preferences: %w", err)
		}
	}
	logger.Info("Alert allow-list loaded", zap.Int("types", len(allow)))

	tracker := metrics.NewTracker()

	// The hub needs the controller's view, so it is assigned below; no alert
	// can open before the service starts.
	var hub *ws.Hub
	blinker := alert.NewBlinker(cfg.Alert.BlinkInterval, func(seq uint64, lit bool) {
		hub.OnBlink(seq, lit)
	})

	dispatcher := alert.NewDispatcher(allow,
		alert.WithTimeout(cfg.Alert.AutoCloseTimeout),
		alert.WithLogger(logger.Named("alert")),
		alert.WithObservers(alert.NewAnnouncer(logger.Named("announcer"))),
	)

	ctrl := tracking.NewController(tracking.Deps{
		Store:      state.NewStore(),
		Dispatcher: dispatcher,
		Feed:       notification.NewFeed(notification.WithCapacity(cfg.Notifications.FeedCapacity)),
		Renderer: mapview.NewRenderer(mapview.Config{
			DefaultCenter: geofence.Point{Lat: cfg.Map.DefaultLatitude, Lng: cfg.Map.DefaultLongitude},
			DefaultZoom:   cfg.Map.DefaultZoom,
			FocusZoom:     cfg.Map.FocusZoom,
			HeadingOffset: cfg.Map.HeadingOffset,
		}),
		Blinker: blinker,
		Metrics: tracker,
		Logger:  logger.Named("tracking"),
	})

	hub = ws.NewHub(func() any { return ctrl.View() }, ws.WithLogger(logger.Named("ws")))
	dispatcher.Subscribe(hub)
	dispatcher.Subscribe(blinker)
	ctrl.OnUpdate(hub.OnUpdate)

	var session stream.SessionStore = stream.FileSession(cfg.Session.File)
	if cfg.Session.Value != "" || cfg.Session.File == "" {
		session = stream.StaticSession(cfg.Session.Value)
	}

	manager := stream.NewManager(session, newDialer(cfg),
		stream.WithLogger(logger.Named("stream")),
		stream.WithBufferSize(cfg.Stream.BufferSize),
		stream.WithMetrics(tracker),
	)

	serviceCfg := tracking.ServiceConfig{
		Controller: ctrl,
		Stream:     manager,
		Logger:     logger.Named("service"),
	}
	client, err := backend.NewClient(backend.Config{
		BaseURL:  cfg.Backend.BaseURL,
		PageSize: cfg.Backend.PageSize,
		Timeout:  cfg.Backend.Timeout,
		Session:  session,
		Logger:   logger.Named("backend"),
	})
	switch {
	case err == nil:
		serviceCfg.Snapshot = client
	case errors.Is(err, backend.ErrNotConfigured):
		logger.Warn("BACKEND_BASE_URL not set, starting without a device snapshot")
	default:
		return err
	}

	service, err := tracking.NewService(serviceCfg)
	if err != nil {
		return err
	}
	if err := service.Start(context.Background()); err != nil {
		return err
	}
	defer service.Stop()
	defer hub.Close()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst)
	defer limiter.Stop()

	router := routes.SetupRoutes(cfg, routes.Dependencies{
		Controller:   ctrl,
		Hub:          hub,
		Tracker:      tracker,
		Registry:     metrics.NewRegistry(tracker),
		Limiter:      limiter,
		HealthChecks: healthChecks,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	logger.Info("Server exited properly")
	return nil
}

func newDialer(cfg *config.Config) stream.Dialer {
	if cfg.Stream.Transport == "mqtt" {
		return stream.MQTTDialer{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Logger:   logger.Named("mqtt"),
		}
	}
	return stream.WebSocketDialer{
		URL:              cfg.Stream.URL,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		ReadLimit:        cfg.Stream.ReadLimit,
	}
}
