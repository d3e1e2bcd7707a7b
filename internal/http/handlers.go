package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/garden-assistant-service/internal/client"
	"github.com/kjstillabower/garden-assistant-service/internal/lifecycle"
	"github.com/kjstillabower/garden-assistant-service/internal/models"
	"github.com/kjstillabower/garden-assistant-service/internal/observability"
	"github.com/kjstillabower/garden-assistant-service/internal/service"
	"github.com/kjstillabower/garden-assistant-service/internal/traffic"
	"github.com/kjstillabower/garden-assistant-service/internal/validation"
)

//go:embed web/index.html
var indexHTML []byte

// maxJSONBodyBytes bounds /ask and /diagnose request bodies.
const maxJSONBodyBytes = 64 << 10

// Assistant is the orchestration the handlers delegate to.
type Assistant interface {
	Ask(ctx context.Context, req models.QueryRequest) (string, error)
	Diagnose(ctx context.Context, req models.QueryRequest) (string, error)
	Identify(ctx context.Context, upload models.Upload) (models.Identification, bool, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Breakers, when set, are reported as checks keyed by upstream name.
	Breakers map[string]*client.Breaker
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	assistant        Assistant
	tracker          *traffic.Tracker
	lifecycle        *lifecycle.State
	healthConfig     *HealthConfig
	logger           *zap.Logger
	maxUploadBytes   int64
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and healthConfig may be nil.
func NewHandler(
	assistant Assistant,
	tracker *traffic.Tracker,
	state *lifecycle.State,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	maxUploadBytes int64,
) *Handler {
	if state == nil {
		state = lifecycle.New()
	}
	return &Handler{
		assistant:      assistant,
		tracker:        tracker,
		lifecycle:      state,
		healthConfig:   healthConfig,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Home handles GET / with the embedded browser page.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

// Ask handles POST /ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, opAsk, h.assistant.Ask)
}

// Diagnose handles POST /diagnose.
func (h *Handler) Diagnose(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, opDiagnose, h.assistant.Diagnose)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request, op operation, fn func(context.Context, models.QueryRequest) (string, error)) {
	var req models.QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		observability.LoggerFromContext(r.Context()).Debug("invalid request body",
			zap.String("operation", op.name), zap.Error(err))
		writeError(w, r, http.StatusBadRequest, codeMissingQuery, op.missingMessage)
		return
	}

	answer, err := fn(r.Context(), req)
	if err != nil {
		h.writeOperationError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AnswerResponse{Answer: answer})
}

// Identify handles POST /identify with a multipart "image" file field.
func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context())
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Debug("upload too large", zap.Int64("limit", tooLarge.Limit))
			writeError(w, r, http.StatusRequestEntityTooLarge, codeImageTooLarge, "Uploaded image is too large.")
			return
		}
		logger.Debug("invalid multipart body", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, codeMissingImage, msgNoImageUploaded)
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) && r.MultipartForm != nil && len(r.MultipartForm.Value["image"]) > 0 {
		// A file input submitted with nothing selected arrives as a plain value with filename="".
		h.writeOperationError(w, r, opIdentify, &service.ValidationError{Field: "image", Err: validation.ErrUploadNoFilename})
		return
	}
	if err != nil {
		logger.Debug("image field missing", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, codeMissingImage, msgNoImageUploaded)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Warn("read uploaded image", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, codeMissingImage, msgNoImageUploaded)
		return
	}

	upload := models.Upload{
		Filename: header.Filename,
		MimeType: uploadContentType(header.Header.Get("Content-Type"), data),
		Data:     data,
	}
	result, found, err := h.assistant.Identify(r.Context(), upload)
	if err != nil {
		h.writeOperationError(w, r, opIdentify, err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, codeNoMatch, "Plant could not be identified. Try a clearer image.")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// uploadContentType prefers a sniffed image type over the declared one, which browsers
// often send as application/octet-stream.
func uploadContentType(declared string, data []byte) string {
	if len(data) == 0 {
		return declared
	}
	detected := mimetype.Detect(data).String()
	if strings.HasPrefix(detected, "image/") || declared == "" {
		return detected
	}
	return declared
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"uptime":    h.lifecycle.Uptime().Round(time.Second).String(),
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order: shutting-down > degraded > healthy.
// Only the chat and plant upstreams can degrade the service; a failing weather provider is
// reported as a check because requests still succeed without it.
func (h *Handler) computeHealthStatus() healthResult {
	checks := map[string]string{}
	for _, name := range []string{client.UpstreamChat, client.UpstreamPlant, client.UpstreamWeather} {
		checks[name] = h.upstreamCheck(name)
	}
	if h.lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	for _, name := range []string{client.UpstreamChat, client.UpstreamPlant} {
		if checks[name] != "healthy" {
			return healthResult{"degraded", http.StatusServiceUnavailable, name + "_" + checks[name], checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// upstreamCheck returns healthy, unhealthy (error rate at or above threshold) or
// circuit-open for one upstream.
func (h *Handler) upstreamCheck(name string) string {
	if h.healthConfig == nil {
		return "healthy"
	}
	if b, ok := h.healthConfig.Breakers[name]; ok && b.State() == gobreaker.StateOpen {
		return "circuit-open"
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := h.tracker.ErrorRate(name, h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return "unhealthy"
			}
		}
	}
	return "healthy"
}

// decodeJSON decodes a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// writeError writes an error response with a user-facing message, a stable code,
// and the correlation ID when available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: observability.CorrelationIDFromContext(r.Context()),
	})
}
