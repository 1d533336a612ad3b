// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Session() SessionConfig
	Navigation() NavigationConfig
	Scroll() ScrollConfig
	Crawl() CrawlConfig
	Platform() PlatformConfig
	Server() ServerConfig
	Diagnostics() DiagnosticsConfig

	SetBrowserHeadless(bool)
	SetCrawlMaxPages(int)
	SetDiagnosticsEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	SessionCfg     SessionConfig     `mapstructure:"session" yaml:"session"`
	NavigationCfg  NavigationConfig  `mapstructure:"navigation" yaml:"navigation"`
	ScrollCfg      ScrollConfig      `mapstructure:"scroll" yaml:"scroll"`
	CrawlCfg       CrawlConfig       `mapstructure:"crawl" yaml:"crawl"`
	PlatformCfg    PlatformConfig    `mapstructure:"platform" yaml:"platform"`
	ServerCfg      ServerConfig      `mapstructure:"server" yaml:"server"`
	DiagnosticsCfg DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Session() SessionConfig         { return c.SessionCfg }
func (c *Config) Navigation() NavigationConfig   { return c.NavigationCfg }
func (c *Config) Scroll() ScrollConfig           { return c.ScrollCfg }
func (c *Config) Crawl() CrawlConfig             { return c.CrawlCfg }
func (c *Config) Platform() PlatformConfig       { return c.PlatformCfg }
func (c *Config) Server() ServerConfig           { return c.ServerCfg }
func (c *Config) Diagnostics() DiagnosticsConfig { return c.DiagnosticsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetCrawlMaxPages(n int)       { c.CrawlCfg.MaxPages = n }
func (c *Config) SetDiagnosticsEnabled(b bool) { c.DiagnosticsCfg.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how the headless browser is launched.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU     bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath       string        `mapstructure:"exec_path" yaml:"exec_path"`
	ProxyURL       string        `mapstructure:"proxy_url" yaml:"proxy_url"`
	Stealth        bool          `mapstructure:"stealth" yaml:"stealth"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	Debug          bool          `mapstructure:"debug" yaml:"debug"`
	Persona        PersonaConfig `mapstructure:"persona" yaml:"persona"`
}

// PersonaConfig overrides fields of the default browser persona. Empty values keep the default.
type PersonaConfig struct {
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Platform  string   `mapstructure:"platform" yaml:"platform"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
}

// SessionConfig describes how credentials are installed and verified.
type SessionConfig struct {
	TokenCookie   string        `mapstructure:"token_cookie" yaml:"token_cookie"`
	CookieDomain  string        `mapstructure:"cookie_domain" yaml:"cookie_domain"`
	VerifyPath    string        `mapstructure:"verify_path" yaml:"verify_path"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
}

// NavigationConfig holds the per-page load and retry policy.
type NavigationConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ContentTimeout time.Duration `mapstructure:"content_timeout" yaml:"content_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffMin     time.Duration `mapstructure:"backoff_min" yaml:"backoff_min"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	// RatePerMinute bounds how many navigations may start per minute.
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
}

// CrawlConfig holds the page loop policy.
type CrawlConfig struct {
	MaxPages       int           `mapstructure:"max_pages" yaml:"max_pages"`
	ErrorBudget    int           `mapstructure:"error_budget" yaml:"error_budget"`
	DelayBase      time.Duration `mapstructure:"delay_base" yaml:"delay_base"`
	DelayIncrement time.Duration `mapstructure:"delay_increment" yaml:"delay_increment"`
	DelayJitter    time.Duration `mapstructure:"delay_jitter" yaml:"delay_jitter"`
	DelayMax       time.Duration `mapstructure:"delay_max" yaml:"delay_max"`
	EventBuffer    int           `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// PlatformConfig pins the constants of the target service.
type PlatformConfig struct {
	BaseURL         string   `mapstructure:"base_url" yaml:"base_url"`
	SearchPath      string   `mapstructure:"search_path" yaml:"search_path"`
	PageParam       string   `mapstructure:"page_param" yaml:"page_param"`
	ResultsPerPage  int      `mapstructure:"results_per_page" yaml:"results_per_page"`
	Cap             int      `mapstructure:"cap" yaml:"cap"`
	LoginPatterns   []string `mapstructure:"login_patterns" yaml:"login_patterns"`
	BlockSignatures []string `mapstructure:"block_signatures" yaml:"block_signatures"`
	// BlockPhrases are matched case-insensitively against the visible body text.
	BlockPhrases []string `mapstructure:"block_phrases" yaml:"block_phrases"`
}

// ServerConfig holds the settings for the streaming HTTP front end.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DiagnosticsConfig controls screenshot and HTML captures on fatal classifications.
type DiagnosticsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sift")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.startup_timeout", "30s")
	v.SetDefault("browser.action_timeout", "20s")
	v.SetDefault("browser.debug", false)

	// -- Session --
	v.SetDefault("session.token_cookie", "li_at")
	v.SetDefault("session.verify_path", "/feed/")
	v.SetDefault("session.verify_timeout", "30s")

	// -- Navigation --
	v.SetDefault("navigation.timeout", "30s")
	v.SetDefault("navigation.content_timeout", "10s")
	v.SetDefault("navigation.max_attempts", 3)
	v.SetDefault("navigation.backoff_min", "1s")
	v.SetDefault("navigation.backoff_max", "4s")
	v.SetDefault("navigation.rate_per_minute", 20.0)
	v.SetDefault("navigation.burst", 1)

	// Initialize scroll defaults using the function in humanoid_config.go.
	setScrollDefaults(v)

	// -- Crawl --
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.error_budget", 3)
	v.SetDefault("crawl.delay_base", "3s")
	v.SetDefault("crawl.delay_increment", "250ms")
	v.SetDefault("crawl.delay_jitter", "2s")
	v.SetDefault("crawl.delay_max", "20s")
	v.SetDefault("crawl.event_buffer", 64)

	// -- Platform --
	v.SetDefault("platform.base_url", "https://www.linkedin.com")
	v.SetDefault("platform.search_path", "/search/results/")
	v.SetDefault("platform.page_param", "page")
	v.SetDefault("platform.results_per_page", 10)
	v.SetDefault("platform.cap", 1000)
	v.SetDefault("platform.login_patterns", []string{"/login", "/checkpoint/", "/uas/login", "/authwall", "/signup"})
	v.SetDefault("platform.block_signatures", []string{
		"iframe[src*='captcha']",
		"iframe[src*='challenge']",
		"#captcha-internal",
		"form#captcha-challenge",
		"[data-test-id='rate-limit']",
	})
	v.SetDefault("platform.block_phrases", []string{
		"unusual activity",
		"let's do a quick security check",
		"too many requests",
		"verify you're human",
		"atividade incomum",
		"HTTP ERROR 429",
	})

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	// -- Diagnostics --
	v.SetDefault("diagnostics.enabled", false)
	v.SetDefault("diagnostics.dir", "~/.cache/sift/diagnostics")
}

// NewConfigFromViper creates a new Config instance by unmarshaling from a viper
// instance and then validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.DiagnosticsCfg.Dir != "" {
		dir, err := homedir.Expand(cfg.DiagnosticsCfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("could not expand diagnostics.dir: %w", err)
		}
		cfg.DiagnosticsCfg.Dir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.SessionCfg.TokenCookie == "" {
		return fmt.Errorf("session.token_cookie is a required configuration field")
	}
	if c.NavigationCfg.Timeout <= 0 {
		return fmt.Errorf("navigation.timeout must be positive")
	}
	if c.NavigationCfg.MaxAttempts <= 0 {
		return fmt.Errorf("navigation.max_attempts must be a positive integer")
	}
	if c.NavigationCfg.BackoffMax < c.NavigationCfg.BackoffMin {
		return fmt.Errorf("navigation.backoff_max must not be lower than navigation.backoff_min")
	}
	if c.CrawlCfg.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be a positive integer")
	}
	if c.CrawlCfg.ErrorBudget <= 0 {
		return fmt.Errorf("crawl.error_budget must be a positive integer")
	}
	if c.PlatformCfg.ResultsPerPage <= 0 {
		return fmt.Errorf("platform.results_per_page must be a positive integer")
	}
	if c.PlatformCfg.Cap <= 0 {
		return fmt.Errorf("platform.cap must be a positive integer")
	}
	if c.PlatformCfg.BaseURL == "" {
		return fmt.Errorf("platform.base_url is a required configuration field")
	}
	if err := c.ScrollCfg.Validate(); err != nil {
		return fmt.Errorf("scroll configuration invalid: %w", err)
	}
	return nil
}
