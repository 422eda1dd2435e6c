// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lablnet/stepwright/api/schemas"
)

// LoggerConfig controls the zap logger and its optional rotating file sink.
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

// ColorConfig maps log levels to terminal colors for the console format.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the launched Chrome process.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Proxy           string   `mapstructure:"proxy" yaml:"proxy"`
	SlowMoMs        int      `mapstructure:"slow_mo" yaml:"slow_mo"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// EngineConfig controls interpreter-wide timing defaults.
type EngineConfig struct {
	// NavigationTimeout bounds a single navigate/reload driver call.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// SettleWait is the post-navigation/post-advance quiet period used when
	// a step does not configure an explicit wait.
	SettleWait time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	// RateLimit caps navigations and pagination advances per second.
	// Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Config is the whole application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stepwright")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "red")
	v.SetDefault("logger.colors.fatal", "red")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.slow_mo", 0)

	v.SetDefault("engine.navigation_timeout", "90s")
	v.SetDefault("engine.settle_wait", "1500ms")
	v.SetDefault("engine.rate_limit", 0.0)
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; unmarshalling them cannot fail at runtime.
		panic(fmt.Sprintf("config: failed to unmarshal defaults: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.Logger.Format)
	}
	if c.Engine.NavigationTimeout <= 0 {
		return fmt.Errorf("engine.navigation_timeout must be positive")
	}
	if c.Engine.SettleWait < 0 {
		return fmt.Errorf("engine.settle_wait must not be negative")
	}
	if c.Engine.RateLimit < 0 {
		return fmt.Errorf("engine.rate_limit must not be negative")
	}
	return nil
}

// BrowserOptions converts the browser section into the launch options the
// session factory consumes.
func (c *Config) BrowserOptions() schemas.BrowserOptions {
	return schemas.BrowserOptions{
		Headless:        c.Browser.Headless,
		IgnoreTLSErrors: c.Browser.IgnoreTLSErrors,

		Proxy:        c.Browser.Proxy,
		SlowMotionMs: c.Browser.SlowMoMs,
		Args:         append([]string(nil), c.Browser.Args...),
	}
}
