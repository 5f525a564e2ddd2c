package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// GeocodeConfig holds Google Geocoding settings. An empty key disables the
// geocode strategy.
type GeocodeConfig struct {
	GoogleAPIKey string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// FirecrawlConfig holds Firecrawl search and extract settings. An empty key
// disables the web-search strategy.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OverpassConfig holds the OpenStreetMap Overpass endpoint. An empty URL
// disables the osm-lookup strategy.
type OverpassConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RedisConfig configures the optional lookup cache.
type RedisConfig struct {
	URL      string        `yaml:"url" mapstructure:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// EnrichConfig configures the orchestrator and strategy runners.
type EnrichConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	StaleAfter      time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
	Cooldown        time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
	StrategyTimeout time.Duration `yaml:"strategy_timeout" mapstructure:"strategy_timeout"`
	SearchResults   int           `yaml:"search_results" mapstructure:"search_results"`
	SearchHint      string        `yaml:"search_hint" mapstructure:"search_hint"`
	OSMRadiusMeters int           `yaml:"osm_radius_meters" mapstructure:"osm_radius_meters"`
}

// ResilienceConfig configures retries and circuit breakers on outbound calls.
type ResilienceConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key has one so AutomaticEnv can see it on Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.rate_limit", 1.0)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", 24*time.Hour)
	v.SetDefault("enrich.max_concurrent", 3)
	v.SetDefault("enrich.stale_after", 10*time.Minute)
	v.SetDefault("enrich.cooldown", 7*24*time.Hour)
	v.SetDefault("enrich.strategy_timeout", 15*time.Second)
	v.SetDefault("enrich.search_results", 3)
	v.SetDefault("enrich.search_hint", "hospital")
	v.SetDefault("enrich.osm_radius_meters", 2000)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff", 250*time.Millisecond)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.breaker_cooldown", 30*time.Second)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is the command name:
// "serve", "enrich", "validate" or "migrate".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required (path to the sqlite file)")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	if mode == "serve" || mode == "enrich" {
		if c.Enrich.MaxConcurrent <= 0 {
			problems = append(problems, "enrich.max_concurrent must be positive")
		}
		if c.Enrich.StrategyTimeout <= 0 {
			problems = append(problems, "enrich.strategy_timeout must be positive")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
