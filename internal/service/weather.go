package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/garden-assistant-service/internal/client"
	"github.com/kjstillabower/garden-assistant-service/internal/models"
	"github.com/kjstillabower/garden-assistant-service/internal/observability"
	"github.com/kjstillabower/garden-assistant-service/internal/traffic"
	"github.com/kjstillabower/garden-assistant-service/internal/validation"
)

// Fixed weather summaries used when live data cannot be included in a prompt.
const (
	WeatherNotProvided = "Weather data not available (location not provided)."
	WeatherUnavailable = "Could not fetch weather data."
)

// WeatherLookup turns optional coordinates into a one-line weather summary for prompts.
// It never fails: every problem degrades to one of the fixed summaries.
type WeatherLookup struct {
	client  client.WeatherClient
	tracker *traffic.Tracker
}

// NewWeatherLookup creates a WeatherLookup. tracker may be nil.
func NewWeatherLookup(c client.WeatherClient, tracker *traffic.Tracker) *WeatherLookup {
	return &WeatherLookup{client: c, tracker: tracker}
}

// Summary returns a live weather summary, or a fallback when coordinates are missing or
// the weather provider fails. No outbound call is made without valid coordinates.
func (w *WeatherLookup) Summary(ctx context.Context, lat, lon *float64) string {
	logger := observability.LoggerFromContext(ctx)

	la, lo, ok := validation.ValidateCoordinates(lat, lon)
	if !ok {
		observability.WeatherFallbacksTotal.WithLabelValues("not_provided").Inc()
		logger.Debug("weather skipped, location not provided")
		return WeatherNotProvided
	}

	data, err := w.client.GetCurrentWeather(ctx, la, lo)
	w.tracker.Record(client.UpstreamWeather, err == nil)
	if err != nil {
		observability.WeatherFallbacksTotal.WithLabelValues("unavailable").Inc()
		logger.Warn("weather lookup failed, continuing without it",
			zap.String("upstream", client.UpstreamWeather),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return WeatherUnavailable
	}
	return formatWeather(data)
}

func formatWeather(d models.WeatherData) string {
	return fmt.Sprintf("Current weather: %.1f°C, %s, humidity %d%%.", d.Temperature, d.Conditions, d.Humidity)
}
