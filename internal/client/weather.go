package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/garden-assistant-service/internal/models"
)

// UpstreamWeather is the upstream label used in errors, logs and metrics.
const UpstreamWeather = "weather"

// DefaultWeatherAPIURL is the OpenWeatherMap current weather endpoint.
const DefaultWeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"

// WeatherClient looks up current conditions at a coordinate.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, lat, lon float64) (models.WeatherData, error)
}

// OpenWeatherClient calls the OpenWeatherMap current weather API.
type OpenWeatherClient struct {
	apiKey   string
	apiURL   *url.URL
	upstream *upstream
}

// NewOpenWeatherClient returns a client for coordinate lookups. An empty apiKey is accepted;
// the upstream rejects it at call time.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultWeatherAPIURL
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid weather API URL: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("weather API timeout must be positive")
	}
	return &OpenWeatherClient{
		apiKey:   apiKey,
		apiURL:   u,
		upstream: newUpstream(UpstreamWeather, timeout),
	}, nil
}

// SetCircuitBreaker routes calls through b. Pass nil to disable.
func (c *OpenWeatherClient) SetCircuitBreaker(b *Breaker) {
	c.upstream.breaker = b
}

type openWeatherResponse struct {
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity float64  `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

// GetCurrentWeather issues exactly one call for the given coordinates.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	body, err := c.upstream.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.buildRequest(ctx, lat, lon)
	})
	if err != nil {
		return models.WeatherData{}, err
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherData{}, logicError(UpstreamWeather, "parse response: %v", err)
	}
	return mapWeatherResponse(apiResp)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	u := *c.apiURL
	params := u.Query()
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func mapWeatherResponse(apiResp openWeatherResponse) (models.WeatherData, error) {
	if apiResp.Main == nil || apiResp.Main.Temp == nil {
		return models.WeatherData{}, logicError(UpstreamWeather, "missing main.temp")
	}
	if len(apiResp.Weather) == 0 {
		return models.WeatherData{}, logicError(UpstreamWeather, "missing weather conditions")
	}
	conditions := apiResp.Weather[0].Description
	if conditions == "" {
		conditions = apiResp.Weather[0].Main
	}
	if conditions == "" {
		return models.WeatherData{}, logicError(UpstreamWeather, "empty weather description")
	}

	return models.WeatherData{
		Location:    apiResp.Name,
		Temperature: *apiResp.Main.Temp,
		Conditions:  conditions,
		Humidity:    int(math.Round(apiResp.Main.Humidity)),
	}, nil
}
