package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/realtime-bridge/internal/assistant"
	"github.com/lexiqai/realtime-bridge/internal/bridge"
	"github.com/lexiqai/realtime-bridge/internal/config"
	"github.com/lexiqai/realtime-bridge/internal/observability"
	"github.com/lexiqai/realtime-bridge/internal/realtime"
	"github.com/lexiqai/realtime-bridge/internal/telephony"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	profile, err := assistant.Load(cfg.InstructionsFile, cfg.KnowledgeBaseFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load assistant profile")
	}

	client, err := realtime.NewClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid Realtime API configuration")
	}

	logger.Info().
		Str("port", cfg.Port).
		Str("realtime_model", cfg.RealtimeModel).
		Str("voice", cfg.RealtimeVoice).
		Str("assistant", profile.Name).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Realtime bridge starting")

	mux := http.NewServeMux()

	// Twilio webhooks
	webhooks := telephony.NewWebhooks(profile, cfg.PublicHost, logger)
	mux.HandleFunc("GET /{$}", webhooks.Index)
	mux.HandleFunc("/incoming-call", webhooks.IncomingCall)

	// Media stream. Hijacked connections outlive Shutdown, so calls get their own context.
	callCtx, endCalls := context.WithCancel(context.Background())
	defer endCalls()
	session := realtime.NewSessionConfig(cfg, profile)
	mux.Handle(telephony.MediaStreamPath, bridge.NewHandler(callCtx, cfg, client, session))

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"realtime": client.Ready,
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Media streams are hijacked and manage their own deadlines
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	server.RegisterOnShutdown(endCalls)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s%s", cfg.Port, telephony.MediaStreamPath)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
