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
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Page       PageConfig       `mapstructure:"page"`
	Social     SocialConfig     `mapstructure:"social"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// RateLimitConfig bounds per-client request rates. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures the headless browser and its session pool.
type BrowserConfig struct {
	MaxContexts       int           `mapstructure:"max_contexts"`
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ViewportWidth     int64         `mapstructure:"viewport_width"`
	ViewportHeight    int64         `mapstructure:"viewport_height"`
	UserAgent         string        `mapstructure:"user_agent"`
	Headless          bool          `mapstructure:"headless"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	ExecPath          string        `mapstructure:"exec_path"`
}

// CacheConfig sizes the shared result cache.
type CacheConfig struct {
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// TranscriptConfig configures the transcript backends.
type TranscriptConfig struct {
	YTDLPPath       string        `mapstructure:"ytdlp_path"`
	DefaultLanguage string        `mapstructure:"default_language"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	FallbackEnabled bool          `mapstructure:"fallback_enabled"`
	WatchBaseURL    string        `mapstructure:"watch_base_url"`
}

// PageConfig tunes generic page extraction.
type PageConfig struct {
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	ScrollDelay         time.Duration `mapstructure:"scroll_delay"`
	ScrollStep          int           `mapstructure:"scroll_step"`
	MaxScrolls          int           `mapstructure:"max_scrolls"`
	MinMeaningfulWords  int           `mapstructure:"min_meaningful_words"`
	MinContentChars     int           `mapstructure:"min_content_chars"`
	WaitSelectorTimeout time.Duration `mapstructure:"wait_selector_timeout"`
}

// SocialConfig tunes social-post extraction.
type SocialConfig struct {
	Mirrors           []string      `mapstructure:"mirrors"`
	MirrorWaitTimeout time.Duration `mapstructure:"mirror_wait_timeout"`
	DirectHost        string        `mapstructure:"direct_host"`
}

// TelemetryConfig selects the trace exporter: "none" or "stdout".
type TelemetryConfig struct {
	TraceExporter string `mapstructure:"trace_exporter"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONTENTRELAY")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 60)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("browser.max_contexts", 3)
	v.SetDefault("browser.acquire_timeout", 30*time.Second)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.operation_timeout", 30*time.Second)
	v.SetDefault("browser.poll_interval", 100*time.Millisecond)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("transcript.ytdlp_path", "yt-dlp")
	v.SetDefault("transcript.default_language", "en")
	v.SetDefault("transcript.command_timeout", 60*time.Second)
	v.SetDefault("transcript.fallback_enabled", true)
	v.SetDefault("transcript.watch_base_url", "https://www.youtube.com")
	v.SetDefault("page.settle_delay", time.Second)
	v.SetDefault("page.scroll_delay", 500*time.Millisecond)
	v.SetDefault("page.scroll_step", 800)
	v.SetDefault("page.max_scrolls", 5)
	v.SetDefault("page.min_meaningful_words", 50)
	v.SetDefault("page.min_content_chars", 200)
	v.SetDefault("page.wait_selector_timeout", 5*time.Second)
	v.SetDefault("social.mirrors", []string{"https://nitter.net", "https://xcancel.com", "https://nitter.poast.org"})
	v.SetDefault("social.mirror_wait_timeout", 10*time.Second)
	v.SetDefault("social.direct_host", "x.com")
	v.SetDefault("telemetry.trace_exporter", "none")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must be set when auth is enabled")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("ratelimit.requests_per_minute must be >= 0")
	}
	if c.Browser.MaxContexts <= 0 {
		return fmt.Errorf("browser.max_contexts must be > 0")
	}
	if c.Browser.AcquireTimeout <= 0 {
		return fmt.Errorf("browser.acquire_timeout must be > 0")
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be > 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if c.Transcript.YTDLPPath == "" && !c.Transcript.FallbackEnabled {
		return fmt.Errorf("transcript.ytdlp_path must be set when the fallback is disabled")
	}
	switch c.Telemetry.TraceExporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("telemetry.trace_exporter must be none or stdout, got %q", c.Telemetry.TraceExporter)
	}
	return nil
}

// DirectBaseURL is the origin front-end used when every mirror fails.
func (s SocialConfig) DirectBaseURL() string {
	host := strings.TrimSpace(s.DirectHost)
	if host == "" {
		host = "x.com"
	}
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}
