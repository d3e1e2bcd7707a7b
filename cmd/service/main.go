package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/garden-assistant-service/internal/client"
	"github.com/kjstillabower/garden-assistant-service/internal/config"
	httphandler "github.com/kjstillabower/garden-assistant-service/internal/http"
	"github.com/kjstillabower/garden-assistant-service/internal/lifecycle"
	"github.com/kjstillabower/garden-assistant-service/internal/observability"
	"github.com/kjstillabower/garden-assistant-service/internal/service"
	"github.com/kjstillabower/garden-assistant-service/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	for _, key := range cfg.MissingAPIKeys() {
		logger.Warn("API key not configured; calls to this upstream will fail authentication", zap.String("env", key))
	}

	chatClient, err := client.NewOpenAIChatClient(cfg.ChatAPIKey, cfg.ChatAPIURL, cfg.ChatModel, cfg.ChatAPITimeout)
	if err != nil {
		logger.Fatal("chat client", zap.Error(err))
	}
	plantClient, err := client.NewPlantNetClient(cfg.PlantAPIKey, cfg.PlantAPIURL, cfg.PlantProject, cfg.PlantOrgan, cfg.PlantAPITimeout)
	if err != nil {
		logger.Fatal("plant client", zap.Error(err))
	}
	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if cfg.CircuitBreakerEnabled {
		breakers := map[string]*client.Breaker{
			client.UpstreamChat:    newBreaker(logger, cfg, client.UpstreamChat),
			client.UpstreamPlant:   newBreaker(logger, cfg, client.UpstreamPlant),
			client.UpstreamWeather: newBreaker(logger, cfg, client.UpstreamWeather),
		}
		chatClient.SetCircuitBreaker(breakers[client.UpstreamChat])
		plantClient.SetCircuitBreaker(breakers[client.UpstreamPlant])
		weatherClient.SetCircuitBreaker(breakers[client.UpstreamWeather])
		healthConfig.Breakers = breakers
		logger.Info("circuit breakers enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	tracker := traffic.NewTracker()
	state := lifecycle.New()
	assistant := service.NewAssistant(
		chatClient,
		plantClient,
		service.NewWeatherLookup(weatherClient, tracker),
		tracker,
		cfg.MaxQueryLength,
	)
	handler := httphandler.NewHandler(assistant, tracker, state, healthConfig, logger, cfg.MaxUploadBytes)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		InFlight:       inFlight,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("chat_model", cfg.ChatModel),
			zap.Duration("request_timeout", cfg.RequestTimeout))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newBreaker builds a breaker for one upstream whose transitions are logged and exported.
func newBreaker(logger *zap.Logger, cfg *config.Config, upstream string) *client.Breaker {
	observability.CircuitBreakerState.WithLabelValues(upstream).Set(float64(gobreaker.StateClosed))
	return client.NewBreaker(client.BreakerConfig{
		Upstream:         upstream,
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			observability.CircuitBreakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
			observability.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}
