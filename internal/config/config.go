package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverPebble   = "pebble"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	PebblePath  string `env:"PEBBLE_PATH" envDefault:"./data/genui"`

	C1APIKey        string `env:"C1_API_KEY,required"`
	C1BaseURL       string `env:"C1_BASE_URL" envDefault:"https://api.thesys.dev/v1/embed"`
	C1Model         string `env:"C1_MODEL" envDefault:"c1/anthropic/claude-sonnet-4/v-20250617"`
	EmbeddingsModel string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	ChatRateWindowSeconds int `env:"CHAT_RATE_WINDOW_SECONDS" envDefault:"60"`
	ChatRateMax           int `env:"CHAT_RATE_MAX" envDefault:"20"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	UpstreamFirstByteTimeoutSeconds int `env:"UPSTREAM_FIRST_BYTE_TIMEOUT_SECONDS" envDefault:"30"`
	UpstreamIdleTimeoutSeconds      int `env:"UPSTREAM_IDLE_TIMEOUT_SECONDS" envDefault:"90"`
	ResponseCacheTTLMinutes         int `env:"RESPONSE_CACHE_TTL_MINUTES" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("config: DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverPebble:
		if strings.TrimSpace(cfg.PebblePath) == "" {
			return nil, fmt.Errorf("config: PEBBLE_PATH is required when STORE_DRIVER=%s", StoreDriverPebble)
		}
	default:
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return &cfg, nil
}
