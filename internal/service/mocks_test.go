package service

import (
	"context"
	"sync"

	"github.com/kjstillabower/garden-assistant-service/internal/models"
)

type mockWeatherClient struct {
	mu      sync.Mutex
	weather models.WeatherData
	err     error
	calls   int
	lastLat float64
	lastLon float64
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastLat, m.lastLon = lat, lon
	return m.weather, m.err
}

type mockChat struct {
	mu           sync.Mutex
	answer       string
	err          error
	calls        int
	systemPrompt string
	userPrompt   string
}

func (m *mockChat) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.systemPrompt, m.userPrompt = systemPrompt, userPrompt
	return m.answer, m.err
}

type mockPlants struct {
	mu       sync.Mutex
	result   models.Identification
	found    bool
	err      error
	calls    int
	filename string
	mimeType string
	size     int
}

func (m *mockPlants) Identify(ctx context.Context, image []byte, filename, mimeType string) (models.Identification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.filename, m.mimeType, m.size = filename, mimeType, len(image)
	return m.result, m.found, m.err
}

func ptr(f float64) *float64 { return &f }

var sampleWeather = models.WeatherData{Temperature: 15.5, Conditions: "scattered clouds", Humidity: 65}
