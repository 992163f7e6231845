package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ceroai/appointment-reminder-calls/internal/api/router"
	"github.com/ceroai/appointment-reminder-calls/internal/app/bootstrap"
	"github.com/ceroai/appointment-reminder-calls/internal/audio"
	"github.com/ceroai/appointment-reminder-calls/internal/calls"
	appconfig "github.com/ceroai/appointment-reminder-calls/internal/config"
	"github.com/ceroai/appointment-reminder-calls/internal/observability/metrics"
	"github.com/ceroai/appointment-reminder-calls/internal/telephony"
	"github.com/ceroai/appointment-reminder-calls/internal/tts"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

func main() {
	// Load .env for local development; production relies on real env vars.
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting appointment reminder call service",
		"env", cfg.Env,
		"port", cfg.Port,
		"server_host", cfg.ServerHost,
	)

	metricsHandler, callMetrics := setupMetrics()

	synthesizer, err := setupSynthesizer(cfg, logger)
	if err != nil {
		logger.Error("failed to configure speech synthesis", "error", err)
		os.Exit(1)
	}

	dialer := telephony.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger)

	// Worker context outlives request contexts; canceled on shutdown.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	redisClient := bootstrap.BuildRedisClient(workerCtx, cfg, logger, true)
	statuses := bootstrap.BuildStatusStore(redisClient, logger)
	sessions := calls.NewSessionStore()

	audioService := audio.NewService(audio.NewCache(), synthesizer, sessions, logger, callMetrics)
	worker := audio.NewWorker(audioService, logger,
		audio.WithWorkerCount(cfg.SynthesisWorkerCount),
		audio.WithQueueSize(cfg.SynthesisQueueSize),
	)
	worker.Start(workerCtx)

	orchestrator := calls.NewOrchestrator(sessions, statuses, dialer, worker,
		cfg.ServerHost, cfg.TwilioFromNumber, logger, callMetrics)
	callsHandler := calls.NewHandler(orchestrator, sessions, statuses, audioService,
		cfg.TwilioWebhookSecret, cfg.ServerHost, logger, callMetrics)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		CallsHandler:       callsHandler,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := buildServer(cfg.Port, r)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight synthesis jobs finish logging before the process exits.
	stopWorkers()
	worker.Wait()
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the call metrics on a dedicated registry and returns
// the scrape handler alongside them.
func setupMetrics() (http.Handler, *metrics.CallMetrics) {
	registry := prometheus.NewRegistry()
	callMetrics := metrics.NewCallMetrics(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, callMetrics
}

// setupSynthesizer builds the ElevenLabs client from config.
func setupSynthesizer(cfg *appconfig.Config, logger *logging.Logger) (audio.Synthesizer, error) {
	return tts.NewElevenLabs(tts.Config{
		APIKey:  cfg.ElevenLabsAPIKey,
		VoiceID: cfg.ElevenLabsVoiceID,
	}, logger)
}

// buildServer creates the HTTP server with the standard timeouts.
func buildServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
