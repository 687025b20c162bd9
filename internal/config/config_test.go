package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Browser.MaxContexts != 3 || cfg.Browser.AcquireTimeout != 30*time.Second {
		t.Fatalf("unexpected browser defaults: %+v", cfg.Browser)
	}
	if cfg.Cache.MaxSize != 1000 || cfg.Cache.TTL != time.Hour {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if len(cfg.Social.Mirrors) != 3 {
		t.Fatalf("expected 3 default mirrors, got %v", cfg.Social.Mirrors)
	}
	if got := cfg.Social.DirectBaseURL(); got != "https://x.com" {
		t.Fatalf("expected https://x.com, got %q", got)
	}
	if cfg.Telemetry.TraceExporter != "none" {
		t.Fatalf("expected trace exporter none, got %q", cfg.Telemetry.TraceExporter)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_timeout: 5s
auth:
  enabled: true
  api_keys: ["secret"]
ratelimit:
  requests_per_minute: 120
  burst: 4
logging:
  development: false
browser:
  max_contexts: 5
  acquire_timeout: 10s
  poll_interval: 50ms
  user_agent: relay-agent
  exec_path: /usr/bin/chromium
cache:
  max_size: 50
  ttl: 30m
transcript:
  ytdlp_path: /opt/yt-dlp
  default_language: de
  command_timeout: 90s
page:
  max_scrolls: 2
  min_meaningful_words: 20
social:
  mirrors: ["https://mirror.example"]
  mirror_wait_timeout: 3s
  direct_host: twitter.com
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.RateLimit.RequestsPerMinute != 120 || cfg.RateLimit.Burst != 4 {
		t.Fatalf("expected ratelimit overrides, got %+v", cfg.RateLimit)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
	if cfg.Browser.MaxContexts != 5 || cfg.Browser.PollInterval != 50*time.Millisecond || cfg.Browser.ExecPath != "/usr/bin/chromium" {
		t.Fatalf("expected browser overrides, got %+v", cfg.Browser)
	}
	if cfg.Browser.ViewportWidth != 1920 {
		t.Fatalf("expected default viewport to survive partial override, got %d", cfg.Browser.ViewportWidth)
	}
	if cfg.Cache.MaxSize != 50 || cfg.Cache.TTL != 30*time.Minute {
		t.Fatalf("expected cache overrides, got %+v", cfg.Cache)
	}
	if cfg.Transcript.DefaultLanguage != "de" || cfg.Transcript.CommandTimeout != 90*time.Second {
		t.Fatalf("expected transcript overrides, got %+v", cfg.Transcript)
	}
	if cfg.Page.MaxScrolls != 2 || cfg.Page.MinMeaningfulWords != 20 {
		t.Fatalf("expected page overrides, got %+v", cfg.Page)
	}
	if len(cfg.Social.Mirrors) != 1 || cfg.Social.MirrorWaitTimeout != 3*time.Second {
		t.Fatalf("expected social overrides, got %+v", cfg.Social)
	}
	if got := cfg.Social.DirectBaseURL(); got != "https://twitter.com" {
		t.Fatalf("expected https://twitter.com, got %q", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:     ServerConfig{Port: 8080},
		Browser:    BrowserConfig{MaxContexts: 1, AcquireTimeout: time.Second},
		Cache:      CacheConfig{MaxSize: 10, TTL: time.Minute},
		Transcript: TranscriptConfig{YTDLPPath: "yt-dlp"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_keys"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit.RequestsPerMinute = -1 }, want: "ratelimit.requests_per_minute"},
		{name: "no contexts", mutate: func(c *Config) { c.Browser.MaxContexts = 0 }, want: "browser.max_contexts"},
		{name: "no acquire timeout", mutate: func(c *Config) { c.Browser.AcquireTimeout = 0 }, want: "browser.acquire_timeout"},
		{name: "empty cache", mutate: func(c *Config) { c.Cache.MaxSize = 0 }, want: "cache.max_size"},
		{name: "no ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, want: "cache.ttl"},
		{name: "no transcript backend", mutate: func(c *Config) { c.Transcript.YTDLPPath = "" }, want: "transcript.ytdlp_path"},
		{name: "unknown trace exporter", mutate: func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }, want: "telemetry.trace_exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
