// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 90*time.Second, cfg.Engine.NavigationTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.SettleWait)
	assert.Zero(t, cfg.Engine.RateLimit)

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown logger format", func(t *testing.T) {
		t.Parallel()
		cfg := NewDefaultConfig()
		cfg.Logger.Format = "xml"
		assert.ErrorContains(t, cfg.Validate(), "logger.format")
	})

	t.Run("rejects non-positive navigation timeout", func(t *testing.T) {
		t.Parallel()
		cfg := NewDefaultConfig()
		cfg.Engine.NavigationTimeout = 0
		assert.ErrorContains(t, cfg.Validate(), "navigation_timeout")
	})

	t.Run("rejects negative rate limit", func(t *testing.T) {
		t.Parallel()
		cfg := NewDefaultConfig()
		cfg.Engine.RateLimit = -1
		assert.ErrorContains(t, cfg.Validate(), "rate_limit")
	})
}

func TestConfigOverrides(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v)
	v.Set("browser.headless", false)
	v.Set("browser.proxy", "http://127.0.0.1:8080")
	v.Set("engine.rate_limit", 2.5)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Browser.Proxy)
	assert.Equal(t, 2.5, cfg.Engine.RateLimit)
}

func TestBrowserOptions(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	cfg.Browser.Headless = false
	cfg.Browser.IgnoreTLSErrors = true
	cfg.Browser.Proxy = "socks5://localhost:9050"
	cfg.Browser.SlowMoMs = 50
	cfg.Browser.Args = []string{"--lang=en-US"}

	opts := cfg.BrowserOptions()
	assert.False(t, opts.Headless)
	assert.True(t, opts.IgnoreTLSErrors)
	assert.Equal(t, "socks5://localhost:9050", opts.Proxy)
	assert.Equal(t, 50, opts.SlowMotionMs)
	assert.Equal(t, []string{"--lang=en-US"}, opts.Args)

	// The conversion must not alias the config slice.
	opts.Args[0] = "mutated"
	assert.Equal(t, "--lang=en-US", cfg.Browser.Args[0])
}
