// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogama/urlrequest/browsercontext"
	"github.com/gogama/urlrequest/retry"
	"github.com/gogama/urlrequest/timeout"
	"github.com/gogama/urlrequest/transport"
	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// EnvPrefix prefixes the environment variables overriding file
// settings, e.g. URLREQUEST_TRANSPORT_USER_AGENT.
const EnvPrefix = "URLREQUEST"

// Errors collected by Config.Validate. Test for them with errors.Is.
var (
	// ErrLogLevelInvalid indicates a log level zap cannot parse.
	ErrLogLevelInvalid = errors.New("log.level is not a valid level")
	// ErrHeaderTimeoutInvalid indicates a negative header timeout.
	ErrHeaderTimeoutInvalid = errors.New("transport.header_timeout is negative")
	// ErrProgressIntervalInvalid indicates a zero or negative progress
	// reporting interval.
	ErrProgressIntervalInvalid = errors.New("transport.progress_interval unspecified or negative")
	// ErrMaxIdleConnsPerHostInvalid indicates a negative idle connection
	// limit.
	ErrMaxIdleConnsPerHostInvalid = errors.New("transport.max_idle_conns_per_host is negative")
	// ErrMaxRedirectsInvalid indicates a zero or negative redirect limit.
	ErrMaxRedirectsInvalid = errors.New("transport.max_redirects unspecified or negative")
	// ErrRetryRateInvalid indicates a negative retry rate.
	ErrRetryRateInvalid = errors.New("transport.retry_rate is negative")
	// ErrCacheTTLInvalid indicates a zero or negative cache entry
	// lifetime.
	ErrCacheTTLInvalid = errors.New("cache.default_ttl unspecified or negative")
	// ErrCacheCleanupInvalid indicates a zero or negative cache cleanup
	// interval.
	ErrCacheCleanupInvalid = errors.New("cache.cleanup_interval unspecified or negative")
	// ErrMaxContextsInvalid indicates a zero or negative limit on cached
	// browser contexts.
	ErrMaxContextsInvalid = errors.New("contexts.max_contexts unspecified or negative")
)

// Config holds the settings of a URL request manager and the network
// stack beneath it.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Transport TransportConfig `mapstructure:"transport"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Contexts  ContextsConfig  `mapstructure:"contexts"`
}

// LogConfig selects the zap logger built by NewLogger. Level is one of
// debug, info, warn or error. Development switches to zap's development
// configuration, under which DPanic panics.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TransportConfig configures the default Loader. A zero HeaderTimeout
// means no timeout. RetryRate caps the retries per second across all
// loaders; zero means retries are only spaced by exponential backoff.
type TransportConfig struct {
	HeaderTimeout       time.Duration `mapstructure:"header_timeout"`
	ProgressInterval    time.Duration `mapstructure:"progress_interval"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	UserAgent           string        `mapstructure:"user_agent"`
	MaxRedirects        int           `mapstructure:"max_redirects"`
	RetryRate           float64       `mapstructure:"retry_rate"`
}

// CacheConfig configures the response cache shared by a browser
// context's loaders. Entries live for DefaultTTL unless the response
// says otherwise, and expired entries are purged every CleanupInterval.
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ContextsConfig bounds the number of browser contexts kept alive by
// the provider. The least recently used context is evicted first.
type ContextsConfig struct {
	MaxContexts int `mapstructure:"max_contexts"`
}

var defaults = map[string]interface{}{
	"log.level":                         "info",
	"log.development":                   false,
	"transport.header_timeout":          30 * time.Second,
	"transport.progress_interval":       transport.DefaultProgressInterval,
	"transport.max_idle_conns_per_host": 2,
	"transport.user_agent":              "urlrequest/1.0",
	"transport.max_redirects":           transport.DefaultMaxRedirects,
	"transport.retry_rate":              0.0,
	"cache.enabled":                     false,
	"cache.default_ttl":                 browsercontext.DefaultCacheTTL,
	"cache.cleanup_interval":            browsercontext.DefaultCacheCleanupInterval,
	"contexts.max_contexts":             browsercontext.DefaultMaxContexts,
}

// Default returns the configuration used when no file or environment
// variable overrides a setting.
func Default() *Config {
	c, err := decode(newViper())
	if err != nil {
		panic("urlrequest/config: invalid defaults: " + err.Error())
	}
	return c
}

// Load reads the configuration file at path, which may be YAML, JSON or
// TOML, applies environment overrides and validates the result. An
// empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil)
}

// flagKeys maps the command-line flags added by AddFlags to the
// settings they override.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-development": "log.development",
	"header-timeout":  "transport.header_timeout",
	"user-agent":      "transport.user_agent",
	"max-redirects":   "transport.max_redirects",
	"retry-rate":      "transport.retry_rate",
	"cache":           "cache.enabled",
}

// AddFlags adds flags overriding the most commonly changed settings to
// fs. Pass the same flag set to LoadWithFlags after parsing.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Bool("log-development", false, "use a development logger")
	fs.Duration("header-timeout", 0, "time allowed to receive response headers")
	fs.String("user-agent", "", "User-Agent sent when a request sets none")
	fs.Int("max-redirects", 0, "maximum redirects followed per request")
	fs.Float64("retry-rate", 0, "maximum retries per second across all requests")
	fs.Bool("cache", false, "enable the in-memory response cache")
}

// LoadWithFlags is like Load, except that flags from fs which were set
// on the command line take precedence over the file and the
// environment. Flags not added by AddFlags are ignored, as is a nil fs.
func LoadWithFlags(path string, fs *pflag.FlagSet) (*Config, error) {
	v := newViper()
	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, pkgerrors.Wrapf(err, "binding flag %s", name)
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pkgerrors.Wrapf(err, "reading config file %s", path)
		}
	}
	c, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, "invalid configuration")
	}
	return c, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, pkgerrors.Wrap(err, "decoding configuration")
	}
	return &c, nil
}

// Validate validates the configuration, reporting every invalid
// setting.
func (c *Config) Validate() error {
	var result error

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, ErrLogLevelInvalid)
	}
	if c.Transport.HeaderTimeout < 0 {
		result = multierror.Append(result, ErrHeaderTimeoutInvalid)
	}
	if c.Transport.ProgressInterval <= 0 {
		result = multierror.Append(result, ErrProgressIntervalInvalid)
	}
	if c.Transport.MaxIdleConnsPerHost < 0 {
		result = multierror.Append(result, ErrMaxIdleConnsPerHostInvalid)
	}
	if c.Transport.MaxRedirects <= 0 {
		result = multierror.Append(result, ErrMaxRedirectsInvalid)
	}
	if c.Transport.RetryRate < 0 {
		result = multierror.Append(result, ErrRetryRateInvalid)
	}
	if c.Cache.Enabled {
		if c.Cache.DefaultTTL <= 0 {
			result = multierror.Append(result, ErrCacheTTLInvalid)
		}
		if c.Cache.CleanupInterval <= 0 {
			result = multierror.Append(result, ErrCacheCleanupInvalid)
		}
	}
	if c.Contexts.MaxContexts <= 0 {
		result = multierror.Append(result, ErrMaxContextsInvalid)
	}
	return result
}

// NewLogger builds a zap logger at the configured level: a development
// logger if Development is set, and a production logger otherwise.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parsing log level")
	}
	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// LoaderOptions returns the default Loader options for c. A positive
// retry rate gives every Loader built from the options one shared
// limiter.
func (c *Config) LoaderOptions(logger *zap.Logger) transport.Options {
	var waiter retry.Waiter
	if c.Transport.RetryRate > 0 {
		waiter = retry.NewRateWaiter(rate.NewLimiter(rate.Limit(c.Transport.RetryRate), 1), retry.DefaultWaiter)
	}
	return transport.Options{
		Logger:           logger,
		TimeoutPolicy:    timeout.FromDuration(c.Transport.HeaderTimeout),
		Waiter:           waiter,
		MaxRedirects:     c.Transport.MaxRedirects,
		ProgressInterval: c.Transport.ProgressInterval,
		UserAgent:        c.Transport.UserAgent,
	}
}

// ProviderOptions returns the browser context provider options for c.
func (c *Config) ProviderOptions(logger *zap.Logger) browsercontext.Options {
	return browsercontext.Options{
		Logger:               logger,
		MaxContexts:          c.Contexts.MaxContexts,
		MaxIdleConnsPerHost:  c.Transport.MaxIdleConnsPerHost,
		Cache:                c.Cache.Enabled,
		CacheTTL:             c.Cache.DefaultTTL,
		CacheCleanupInterval: c.Cache.CleanupInterval,
	}
}
