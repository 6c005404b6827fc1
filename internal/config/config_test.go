package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
db:
  dsn: postgres://indieseas:pw@localhost:5432/indieseas
  max_open_conns: 8
crawler:
  concurrency: 4
  user_agent: indieseas-test
  max_pages: 500
  domain_page_cap: 75
  folder_page_cap: 10
  queue_high_water: 1000
  per_domain_rps: 2.5
  fetch_timeout_seconds: 30
workers:
  extractor_url: http://localhost:9999
  embedder_url: http://localhost:8888
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.DB.DSN != "postgres://indieseas:pw@localhost:5432/indieseas" {
		t.Fatalf("expected dsn override, got %q", cfg.DB.DSN)
	}
	if cfg.Crawler.Concurrency != 4 || cfg.Crawler.PerDomainRPS != 2.5 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Workers.ExtractorURL != "http://localhost:9999" {
		t.Fatalf("expected extractor url override, got %q", cfg.Workers.ExtractorURL)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging off")
	}
	if got := cfg.FetchTimeout(); got != 30*time.Second {
		t.Fatalf("expected fetch timeout 30s, got %v", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
db:
  dsn: postgres://localhost/indieseas
workers:
  extractor_url: http://localhost:9999
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.DomainPageCap != 75 || cfg.Crawler.FolderPageCap != 10 {
		t.Fatalf("expected default page caps, got %+v", cfg.Crawler)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8000},
		DB:     DBConfig{DSN: "postgres://localhost/indieseas"},
		Crawler: CrawlerConfig{
			Concurrency:     10,
			DomainPageCap:   75,
			FolderPageCap:   10,
			FetchTimeoutSec: 20,
		},
		Workers: WorkersConfig{
			ExtractorURL: "http://localhost:9999",
			EmbedderURL:  "http://localhost:8888",
		},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "missing dsn",
			cfg: func() Config {
				c := base
				c.DB.DSN = ""
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Crawler.Concurrency = 0
				return c
			}(),
			want: "crawler.concurrency",
		},
		{
			name: "invalid page caps",
			cfg: func() Config {
				c := base
				c.Crawler.FolderPageCap = 0
				return c
			}(),
			want: "page caps",
		},
		{
			name: "missing extractor url",
			cfg: func() Config {
				c := base
				c.Workers.ExtractorURL = ""
				return c
			}(),
			want: "workers.extractor_url",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
