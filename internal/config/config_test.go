// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "sift", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, "li_at", cfg.Session().TokenCookie)
	assert.Equal(t, 30*time.Second, cfg.Navigation().Timeout)
	assert.Equal(t, 3, cfg.Navigation().MaxAttempts)
	assert.Equal(t, 100, cfg.Crawl().MaxPages)
	assert.Equal(t, 3, cfg.Crawl().ErrorBudget)
	assert.Equal(t, 10, cfg.Platform().ResultsPerPage)
	assert.Equal(t, 1000, cfg.Platform().Cap)
	assert.Contains(t, cfg.Platform().LoginPatterns, "/checkpoint/")
	assert.NotEmpty(t, cfg.Platform().BlockSignatures)
	assert.Equal(t, 25, cfg.Scroll().MaxSteps)
	assert.Equal(t, 1200*time.Millisecond, cfg.Scroll().PauseMax)
	assert.False(t, cfg.Diagnostics().Enabled)
	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserHeadless(false)
	cfg.SetCrawlMaxPages(5)
	cfg.SetDiagnosticsEnabled(true)

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 5, cfg.Crawl().MaxPages)
	assert.True(t, cfg.Diagnostics().Enabled)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing token cookie", func(c *Config) { c.SessionCfg.TokenCookie = "" }, "session.token_cookie"},
		{"zero timeout", func(c *Config) { c.NavigationCfg.Timeout = 0 }, "navigation.timeout"},
		{"zero attempts", func(c *Config) { c.NavigationCfg.MaxAttempts = 0 }, "navigation.max_attempts"},
		{"inverted backoff", func(c *Config) {
			c.NavigationCfg.BackoffMin = 2 * time.Second
			c.NavigationCfg.BackoffMax = time.Second
		}, "navigation.backoff_max"},
		{"zero pages", func(c *Config) { c.CrawlCfg.MaxPages = 0 }, "crawl.max_pages"},
		{"zero budget", func(c *Config) { c.CrawlCfg.ErrorBudget = 0 }, "crawl.error_budget"},
		{"zero page size", func(c *Config) { c.PlatformCfg.ResultsPerPage = 0 }, "platform.results_per_page"},
		{"zero cap", func(c *Config) { c.PlatformCfg.Cap = -1 }, "platform.cap"},
		{"missing base url", func(c *Config) { c.PlatformCfg.BaseURL = "" }, "platform.base_url"},
		{"bad scroll probability", func(c *Config) { c.ScrollCfg.ReverseProbability = 1.5 }, "reverse_probability"},
		{"inverted scroll steps", func(c *Config) { c.ScrollCfg.StepMax = 1 }, "step range"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestScrollValidationSkippedWhenDisabled(t *testing.T) {
	s := ScrollConfig{Enabled: false, MaxSteps: -1}
	assert.NoError(t, s.Validate())
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("overrides and expansion", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("crawl.max_pages", 7)
		v.Set("navigation.timeout", "45s")
		v.Set("diagnostics.dir", "/tmp/sift-diag")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Crawl().MaxPages)
		assert.Equal(t, 45*time.Second, cfg.Navigation().Timeout)
		assert.Equal(t, "/tmp/sift-diag", cfg.Diagnostics().Dir)
	})

	t.Run("home directory is expanded", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.NotContains(t, cfg.Diagnostics().Dir, "~")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("crawl.error_budget", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}
