package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/garden-assistant-service/internal/client"
	"github.com/kjstillabower/garden-assistant-service/internal/models"
	"github.com/kjstillabower/garden-assistant-service/internal/observability"
	"github.com/kjstillabower/garden-assistant-service/internal/traffic"
	"github.com/kjstillabower/garden-assistant-service/internal/validation"
)

// Assistant orchestrates the gardening operations: it validates input, enriches prompts
// with weather, and delegates to the chat and plant identification collaborators.
// It holds no per-request state and is safe for concurrent use.
type Assistant struct {
	chat           client.ChatResponder
	plants         client.PlantIdentifier
	weather        *WeatherLookup
	tracker        *traffic.Tracker
	maxQueryLength int
}

// NewAssistant creates an Assistant. maxQueryLength bounds query text in runes (0 disables).
// tracker may be nil.
func NewAssistant(chat client.ChatResponder, plants client.PlantIdentifier, weather *WeatherLookup, tracker *traffic.Tracker, maxQueryLength int) *Assistant {
	return &Assistant{
		chat:           chat,
		plants:         plants,
		weather:        weather,
		tracker:        tracker,
		maxQueryLength: maxQueryLength,
	}
}

// Ask answers a general gardening question. Weather is looked up only when coordinates are provided.
func (a *Assistant) Ask(ctx context.Context, req models.QueryRequest) (string, error) {
	query, err := validation.ValidateQuery(req.Query, a.maxQueryLength)
	if err != nil {
		return "", &ValidationError{Field: "query", Err: err}
	}

	var weather string
	if _, _, ok := validation.ValidateCoordinates(req.Lat, req.Lon); ok {
		weather = a.weather.Summary(ctx, req.Lat, req.Lon)
	}
	return a.complete(ctx, "ask", askSystemPrompt, askUserPrompt(weather, query))
}

// Diagnose produces a structured diagnosis of a described plant problem. The weather
// summary is always part of the prompt, falling back when unavailable.
func (a *Assistant) Diagnose(ctx context.Context, req models.QueryRequest) (string, error) {
	description, err := validation.ValidateQuery(req.Query, a.maxQueryLength)
	if err != nil {
		return "", &ValidationError{Field: "description", Err: err}
	}

	weather := a.weather.Summary(ctx, req.Lat, req.Lon)
	return a.complete(ctx, "diagnose", diagnoseSystemPrompt, diagnoseUserPrompt(weather, description))
}

// Identify names the plant in an uploaded image. found is false when the upstream
// recognised no species; that is not an error.
func (a *Assistant) Identify(ctx context.Context, upload models.Upload) (result models.Identification, found bool, err error) {
	if err := validation.ValidateUpload(upload.Filename, len(upload.Data)); err != nil {
		return models.Identification{}, false, &ValidationError{Field: "image", Err: err}
	}

	logger := observability.LoggerFromContext(ctx)
	start := time.Now()
	result, found, err = a.plants.Identify(ctx, upload.Data, upload.Filename, upload.MimeType)
	a.recordOutcome(client.UpstreamPlant, err)
	switch {
	case err != nil:
		observability.IdentifyOutcomesTotal.WithLabelValues("error").Inc()
		return models.Identification{}, false, err
	case !found:
		observability.IdentifyOutcomesTotal.WithLabelValues("no_match").Inc()
		logger.Info("plant not identified", zap.Duration("duration", time.Since(start)))
		return models.Identification{}, false, nil
	}
	observability.IdentifyOutcomesTotal.WithLabelValues("identified").Inc()
	logger.Info("plant identified",
		zap.String("scientific_name", result.ScientificName),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("duration", time.Since(start)),
	)
	return result, true, nil
}

func (a *Assistant) complete(ctx context.Context, operation, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	answer, err := a.chat.Chat(ctx, systemPrompt, userPrompt)
	a.recordOutcome(client.UpstreamChat, err)
	if err != nil {
		return "", err
	}
	observability.LoggerFromContext(ctx).Debug("answer produced",
		zap.String("operation", operation),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}

// recordOutcome feeds the health tracker. A caller that went away says nothing about
// upstream health, so cancellations are not recorded.
func (a *Assistant) recordOutcome(upstream string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	a.tracker.Record(upstream, err == nil)
}
