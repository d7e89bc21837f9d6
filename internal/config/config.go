package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/farm-advisory-backend-go/internal/geolocation"
)

// Config 应用配置
type Config struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Upstream    UpstreamConfig      `yaml:"upstream"`
	Forms       FormsConfig         `yaml:"forms"`
	Acquisition geolocation.Options `yaml:"acquisition"`
	Kafka       KafkaConfig         `yaml:"kafka"`
}

// UpstreamConfig holds the third-party services the backend calls
type UpstreamConfig struct {
	NominatimURL   string        `yaml:"nominatim_url"`
	UserAgent      string        `yaml:"user_agent"`
	SearchLimit    int           `yaml:"search_limit"`
	OpenMeteoURL   string        `yaml:"open_meteo_url"`
	SoilGridsURL   string        `yaml:"soilgrids_url"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	SearchDebounce time.Duration `yaml:"search_debounce"`
	SearchRate     int           `yaml:"search_rate_per_minute"`

	// EnvironmentEndpoint points at a remote combined soil/weather endpoint.
	// Empty means the in-process aggregator is used.
	EnvironmentEndpoint string `yaml:"environment_endpoint"`
}

// FormsConfig holds form session defaults
type FormsConfig struct {
	ClimateAutoFill    bool          `yaml:"climate_auto_fill"`
	ManualEntryVisible bool          `yaml:"manual_entry_visible"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	SessionTTL         time.Duration `yaml:"session_ttl"`
}

// KafkaConfig enables the submission publisher when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Port:     ":8080",
		DBPath:   "./data/farm.db",
		LogLevel: "info",
		Upstream: UpstreamConfig{
			NominatimURL:   "https://nominatim.openstreetmap.org",
			UserAgent:      "farm-advisory-backend/1.0",
			SearchLimit:    5,
			OpenMeteoURL:   "https://api.open-meteo.com",
			SoilGridsURL:   "https://rest.isric.org",
			HTTPTimeout:    10 * time.Second,
			CacheTTL:       6 * time.Hour,
			SearchDebounce: 300 * time.Millisecond,
			SearchRate:     60,
		},
		Forms: FormsConfig{
			ClimateAutoFill: true,
			FetchTimeout:    15 * time.Second,
			SessionTTL:      30 * time.Minute,
		},
		Acquisition: geolocation.DefaultOptions(),
		Kafka: KafkaConfig{
			Topic: "farm-submissions",
		},
	}
}

// Load 加载配置: defaults, then the YAML file named by CONFIG_FILE, then env vars
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.Acquisition = cfg.Acquisition.WithDefaults()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	if port := os.Getenv("PORT"); port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		c.Port = port
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.DBPath = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if url := os.Getenv("NOMINATIM_URL"); url != "" {
		c.Upstream.NominatimURL = url
	}
	if ua := os.Getenv("NOMINATIM_USER_AGENT"); ua != "" {
		c.Upstream.UserAgent = ua
	}
	if url := os.Getenv("OPEN_METEO_URL"); url != "" {
		c.Upstream.OpenMeteoURL = url
	}
	if url := os.Getenv("SOILGRIDS_URL"); url != "" {
		c.Upstream.SoilGridsURL = url
	}
	if url := os.Getenv("ENVIRONMENT_ENDPOINT"); url != "" {
		c.Upstream.EnvironmentEndpoint = url
	}
	if err := durationEnv("HTTP_TIMEOUT", &c.Upstream.HTTPTimeout); err != nil {
		return err
	}
	if err := durationEnv("CACHE_TTL", &c.Upstream.CacheTTL); err != nil {
		return err
	}
	if err := durationEnv("SESSION_TTL", &c.Forms.SessionTTL); err != nil {
		return err
	}

	if raw := os.Getenv("CLIMATE_AUTOFILL"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid CLIMATE_AUTOFILL %q: %w", raw, err)
		}
		c.Forms.ClimateAutoFill = v
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		c.Kafka.Topic = topic
	}
	return nil
}

func durationEnv(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}
