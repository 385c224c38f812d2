package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"vidcall/internal/core/ports"
	"vidcall/internal/core/services"
	httphandlers "vidcall/internal/handlers/http"
	"vidcall/internal/infrastructure/middleware"
	"vidcall/internal/infrastructure/monitoring"
	"vidcall/internal/infrastructure/repositories/memory"
	sigserver "vidcall/internal/infrastructure/signal"
	"vidcall/pkg/config"
	"vidcall/pkg/logger"
	"vidcall/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/vidcall/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			log.Printf("Loaded config from: %s", path)
			break
		}
	}

	if err != nil {
		log.Printf("Could not load config from any path, using defaults")
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "vidcall-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("tracing shutdown failed", "error", err)
		}
	}()

	registry := memory.NewMemoryPresenceRegistry()

	var metrics ports.SignalMetrics
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	relay := services.NewRelayService(registry, metrics, sugar)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	wsServer := sigserver.NewWebSocketServer(registry, relay, metrics, sugar)
	wsServer.SetPingInterval(cfg.Signal.PingInterval)
	wsServer.SetPongTimeout(cfg.Signal.PongTimeout)
	if cfg.RateLimiting.Enabled {
		wsServer.SetMessageRateLimit(cfg.RateLimiting.WebSocket.MessagesPerSecond, cfg.RateLimiting.WebSocket.Burst)
	}

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("presence_registry", func(ctx context.Context) error {
		registry.Snapshot(ctx)
		return nil
	})

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(sugar))
	router.Use(middleware.ErrorHandlerMiddleware(sugar))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	wsHandlers := []gin.HandlerFunc{middleware.NewConnectionRateLimitMiddleware(cfg)}
	if cfg.Auth.Required {
		wsHandlers = append(wsHandlers, middleware.AuthMiddleware(authService))
	} else {
		wsHandlers = append(wsHandlers, middleware.OptionalAuthMiddleware(authService))
	}
	wsHandlers = append(wsHandlers, wsServer.HandleWebSocket)
	router.GET("/ws", wsHandlers...)

	httphandlers.NewTokenHandler(authService, cfg.Auth.TokenTTL).SetupRoutes(router)

	router.GET("/health", healthChecker.Handler())
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		sugar.Infow("signal server listening", "address", cfg.Signal.Address)
		serverErr <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server error", "error", err)
		}
	case sig := <-sigChan:
		sugar.Infow("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("graceful shutdown failed", "error", err)
	}
	sugar.Infow("server stopped")
}
