// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Workers WorkersConfig `mapstructure:"workers"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// CrawlerConfig governs frontier and worker pool behavior.
type CrawlerConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	UserAgent       string  `mapstructure:"user_agent"`
	MaxPages        int     `mapstructure:"max_pages"`
	DomainPageCap   int     `mapstructure:"domain_page_cap"`
	FolderPageCap   int     `mapstructure:"folder_page_cap"`
	QueueHighWater  int     `mapstructure:"queue_high_water"`
	PerDomainRPS    float64 `mapstructure:"per_domain_rps"`
	FetchTimeoutSec int     `mapstructure:"fetch_timeout_seconds"`
}

// WorkersConfig locates the external extraction and embedding workers.
type WorkersConfig struct {
	ExtractorURL string `mapstructure:"extractor_url"`
	EmbedderURL  string `mapstructure:"embedder_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDIESEAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	// Empty defaults register the keys so env-only overrides bind.
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("crawler.concurrency", 10)
	v.SetDefault("crawler.user_agent", "indieseas")
	v.SetDefault("crawler.max_pages", 10000)
	v.SetDefault("crawler.domain_page_cap", 75)
	v.SetDefault("crawler.folder_page_cap", 10)
	v.SetDefault("crawler.queue_high_water", 50000)
	v.SetDefault("crawler.per_domain_rps", 1.0)
	v.SetDefault("crawler.fetch_timeout_seconds", 20)
	v.SetDefault("workers.extractor_url", "")
	v.SetDefault("workers.embedder_url", "http://localhost:8888")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.DomainPageCap <= 0 || c.Crawler.FolderPageCap <= 0 {
		return fmt.Errorf("crawler page caps must be > 0")
	}
	if c.Crawler.FetchTimeoutSec <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	if c.Workers.ExtractorURL == "" {
		return fmt.Errorf("workers.extractor_url must be set")
	}
	if c.Workers.EmbedderURL == "" {
		return fmt.Errorf("workers.embedder_url must be set")
	}
	return nil
}

// FetchTimeout converts the fetch timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.FetchTimeoutSec) * time.Second
}
