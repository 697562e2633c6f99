package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"qrticket/config"
	"qrticket/internal/exporter"
	"qrticket/internal/handlers"
	"qrticket/internal/redeem"
	"qrticket/internal/services"
	"qrticket/internal/store"
	"qrticket/monitoring"
	"qrticket/security"
	"qrticket/utils"

	_ "qrticket/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis. Without it history stays in memory and the rate
	// limiter is off.
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, running without shared history", "error", err)
	} else {
		defer redisClient.Close()
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisCmdable(redisClient))
		go monitor.Run(ctx, 30*time.Second)
		go serveMetrics(ctx, cfg.MetricsPort)
	}

	// Initialize store and services
	ticketStore := store.New(app, store.WithDeleteChunk(cfg.DeleteChunkSize))

	if cfg.PubNubPublishKey != "" {
		publisher := services.NewPubNubPublisher(
			cfg.PubNubPublishKey,
			cfg.PubNubSubscribeKey,
			cfg.PubNubSecretKey,
			cfg.PubNubUserID,
		)
		notifier := services.NewChangeNotifier(publisher, 0)
		detach := notifier.Attach(ticketStore)
		defer detach()
		go notifier.Run(ctx)
	}

	var history redeem.History
	var limiter *security.RateLimiter
	if redisClient != nil {
		history = redeem.NewRedisHistory(redisClient, redeem.HistoryKey("global"), cfg.ScanHistorySize)
		limiter = security.NewRateLimiter(redisClient, cfg.ScanRateLimit, time.Minute)
	}

	generator := services.NewGenerator(ticketStore, exporter.New(),
		services.WithMaxBatch(cfg.MaxBatchSize),
		services.WithUnitDelay(cfg.BatchUnitDelay),
		services.WithMonitor(monitor),
	)
	scanService := services.NewScanService(ticketStore, history, ticketStore, monitor, services.ScanConfig{
		Debounce:      cfg.ScanDebounce,
		Cooldown:      cfg.ScanCooldown,
		FrameInterval: cfg.ScanFrameInterval,
		OpenTimeout:   cfg.CameraOpenTimeout,
		HistorySize:   cfg.ScanHistorySize,
	})

	// Initialize handlers
	routes := &handlers.Routes{
		Events:  handlers.NewEventHandler(ticketStore, services.NewStatsService(ticketStore)),
		Tickets: handlers.NewTicketHandler(generator),
		Scan:    handlers.NewScanHandler(scanService),
		Limiter: limiter,
		Redis:   redisClient,
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})
	app.RootCmd.AddCommand(generateCommand(app, generator, cfg.ExportDir))

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		routes.Register(e)
		slog.Info("Server routes registered")
		return e.Next()
	})

	// A bare invocation serves on PORT.
	if len(os.Args) == 1 {
		app.RootCmd.SetArgs([]string{"serve", "--http", "0.0.0.0:" + cfg.Port})
	}

	// Start server
	return app.Start()
}

// redisCmdable keeps a nil client from becoming a non-nil interface.
func redisCmdable(c *redis.Client) redis.Cmdable {
	if c == nil {
		return nil
	}
	return c
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + strings.TrimPrefix(port, ":"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
