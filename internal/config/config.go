package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables carrying the upstream API keys.
const (
	EnvChatAPIKey    = "OPENAI_API_KEY"
	EnvPlantAPIKey   = "PLANTNET_API_KEY"
	EnvWeatherAPIKey = "OPENWEATHER_API_KEY"
)

// Config holds service configuration loaded from .env, YAML and env.
// It is built once by Load and not mutated afterwards.
type Config struct {
	ServerPort string

	RequestTimeout time.Duration

	ChatAPIKey     string
	ChatAPIURL     string
	ChatModel      string
	ChatAPITimeout time.Duration

	PlantAPIKey     string
	PlantAPIURL     string
	PlantProject    string
	PlantOrgan      string
	PlantAPITimeout time.Duration

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerTimeout          time.Duration

	MaxUploadBytes int64
	MaxQueryLength int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout        string `yaml:"timeout"`
		MaxQueryLength int    `yaml:"max_query_length"`
	} `yaml:"request"`

	ChatAPI struct {
		URL     string `yaml:"url"`
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"chat_api"`

	PlantAPI struct {
		URL     string `yaml:"url"`
		Project string `yaml:"project"`
		Organ   string `yaml:"organ"`
		Timeout string `yaml:"timeout"`
	} `yaml:"plant_api"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Reliability struct {
		RateLimitRPS                   int    `yaml:"rate_limit_rps"`
		RateLimitBurst                 int    `yaml:"rate_limit_burst"`
		CircuitBreakerEnabled          bool   `yaml:"circuit_breaker_enabled"`
		CircuitBreakerFailureThreshold int    `yaml:"circuit_breaker_failure_threshold"`
		CircuitBreakerTimeout          string `yaml:"circuit_breaker_timeout"`
	} `yaml:"reliability"`

	Upload struct {
		MaxBytes int64 `yaml:"max_bytes"`
	} `yaml:"upload"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	PlantNetAPIKey    string `yaml:"plantnet_api_key"`
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first without overriding variables already set.
// API keys come from env or the secrets file; a missing key is not an error here (see MissingAPIKeys).
// Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env file: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.ChatAPIKey = envOr(EnvChatAPIKey, sec.OpenAIAPIKey)
	cfg.ChatAPIURL = defaultString(fc.ChatAPI.URL, "https://api.openai.com/v1")
	cfg.ChatModel = defaultString(fc.ChatAPI.Model, "gpt-4o-mini")
	cfg.ChatAPITimeout = parseDurationOrZero(fc.ChatAPI.Timeout, 30*time.Second)

	cfg.PlantAPIKey = envOr(EnvPlantAPIKey, sec.PlantNetAPIKey)
	cfg.PlantAPIURL = defaultString(fc.PlantAPI.URL, "https://my-api.plantnet.org/v2/identify")
	cfg.PlantProject = defaultString(fc.PlantAPI.Project, "all")
	cfg.PlantOrgan = strings.TrimSpace(fc.PlantAPI.Organ)
	cfg.PlantAPITimeout = parseDurationOrZero(fc.PlantAPI.Timeout, 30*time.Second)

	cfg.WeatherAPIKey = envOr(EnvWeatherAPIKey, sec.OpenWeatherAPIKey)
	cfg.WeatherAPIURL = defaultString(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 40*time.Second)
	cfg.MaxQueryLength = fc.Request.MaxQueryLength
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 4000
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreakerEnabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreakerFailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreakerTimeout, 30*time.Second)

	cfg.MaxUploadBytes = fc.Upload.MaxBytes
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MissingAPIKeys returns the env variable names of API keys that are not configured.
// Calls to those upstreams will fail with an authentication error.
func (c *Config) MissingAPIKeys() []string {
	var missing []string
	if c.ChatAPIKey == "" {
		missing = append(missing, EnvChatAPIKey)
	}
	if c.PlantAPIKey == "" {
		missing = append(missing, EnvPlantAPIKey)
	}
	if c.WeatherAPIKey == "" {
		missing = append(missing, EnvWeatherAPIKey)
	}
	return missing
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// envOr returns the trimmed env value for key, or fallback when unset or blank.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func defaultString(s, defaultVal string) string {
	if s = strings.TrimSpace(s); s == "" {
		return defaultVal
	}
	return s
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (validate rejects them for upstream timeouts).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Upstream timeouts must be positive. RequestTimeout is raised above the longest
// upstream chain: a diagnosis waits on weather and then chat; identification waits on plant.
func validate(cfg *Config) error {
	if cfg.ChatAPITimeout <= 0 {
		return fmt.Errorf("chat_api.timeout must be positive")
	}
	if cfg.PlantAPITimeout <= 0 {
		return fmt.Errorf("plant_api.timeout must be positive")
	}
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	longest := cfg.WeatherAPITimeout + cfg.ChatAPITimeout
	if cfg.PlantAPITimeout > longest {
		longest = cfg.PlantAPITimeout
	}
	if cfg.RequestTimeout <= longest {
		cfg.RequestTimeout = longest + time.Second
	}
	return nil
}
