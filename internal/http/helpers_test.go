package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/garden-assistant-service/internal/models"
	"github.com/kjstillabower/garden-assistant-service/internal/service"
	"github.com/kjstillabower/garden-assistant-service/internal/traffic"
)

type mockChat struct {
	mu         sync.Mutex
	answer     string
	err        error
	calls      int
	userPrompt string
}

func (m *mockChat) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.userPrompt = userPrompt
	return m.answer, m.err
}

type mockPlants struct {
	mu     sync.Mutex
	result models.Identification
	found  bool
	err    error
	calls  int
	upload models.Upload
}

func (m *mockPlants) Identify(ctx context.Context, image []byte, filename, mimeType string) (models.Identification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.upload = models.Upload{Filename: filename, MimeType: mimeType, Data: image}
	return m.result, m.found, m.err
}

type mockWeatherClient struct {
	weather models.WeatherData
	err     error
	calls   int
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	m.calls++
	return m.weather, m.err
}

// testEnv is a router over a real Assistant with mocked collaborators and an observed logger.
type testEnv struct {
	chat    *mockChat
	plants  *mockPlants
	weather *mockWeatherClient
	tracker *traffic.Tracker
	handler *Handler
	router  http.Handler
	logs    *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	env := &testEnv{
		chat:    &mockChat{answer: "Likely nitrogen deficiency. Feed with a balanced fertilizer."},
		plants:  &mockPlants{},
		weather: &mockWeatherClient{weather: models.WeatherData{Temperature: 15.5, Conditions: "scattered clouds", Humidity: 65}},
		tracker: traffic.NewTracker(),
		logs:    logs,
	}
	assistant := service.NewAssistant(env.chat, env.plants, service.NewWeatherLookup(env.weather, env.tracker), env.tracker, 200)
	env.handler = NewHandler(assistant, env.tracker, nil, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}, logger, 1<<20)
	env.router = NewRouter(env.handler, RouterConfig{Logger: logger, InFlight: &InFlightTracker{}})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// imageRequest builds a multipart /identify request with one file part.
func imageRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/identify", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func ptr(f float64) *float64 { return &f }
