package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stoneagemcc/yf-tools/internal/fetcher"
	"github.com/stoneagemcc/yf-tools/internal/ratelimit"
	"github.com/stoneagemcc/yf-tools/internal/yahoo"
)

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "YF"

// SpacingConfig holds the dispatch spacing of each download kind
type SpacingConfig struct {
	Daily   time.Duration `mapstructure:"daily"`
	Minute  time.Duration `mapstructure:"minute"`
	Quote   time.Duration `mapstructure:"quote"`
	Detail  time.Duration `mapstructure:"detail"`
	Listing time.Duration `mapstructure:"listing"`
}

// Config holds all configuration for the yftools command.
type Config struct {
	// Base URLs for provider endpoints (configurable for testing)
	ChartURL     string `mapstructure:"chart_url"`
	QuoteURL     string `mapstructure:"quote_url"`
	QuotePageURL string `mapstructure:"quote_page_url"`
	ScreenerURL  string `mapstructure:"screener_url"`

	UserAgent string `mapstructure:"user_agent"`

	// Download behaviour
	Spacing         SpacingConfig      `mapstructure:"spacing"`
	Retries         int                `mapstructure:"retries"`
	QuoteRetries    int                `mapstructure:"quote_retries"`
	ConnectTimeout  time.Duration      `mapstructure:"connect_timeout"`
	ResponseTimeout time.Duration      `mapstructure:"response_timeout"`
	MaxInFlight     int                `mapstructure:"max_in_flight"`
	HTTPRetries     int                `mapstructure:"http_retries"`
	MaxURLLength    int                `mapstructure:"max_url_length"`
	PageSize        int                `mapstructure:"page_size"`
	RateLimits      map[string]float64 `mapstructure:"rate_limits"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// New returns a viper instance with defaults, environment binding and the
// optional config file loaded. Callers may bind flags on it before calling
// FromViper.
//
// Environment variables are the upper-cased keys with the YF_ prefix, with
// dots replaced by underscores:
//   - YF_CHART_URL, YF_QUOTE_URL, YF_QUOTE_PAGE_URL, YF_SCREENER_URL
//   - YF_USER_AGENT
//   - YF_SPACING_DAILY, YF_SPACING_MINUTE, YF_SPACING_QUOTE, YF_SPACING_DETAIL, YF_SPACING_LISTING
//   - YF_RETRIES, YF_QUOTE_RETRIES, YF_HTTP_RETRIES
//   - YF_CONNECT_TIMEOUT, YF_RESPONSE_TIMEOUT
//   - YF_MAX_IN_FLIGHT, YF_MAX_URL_LENGTH, YF_PAGE_SIZE
//   - YF_LOG_LEVEL, YF_LOG_PRETTY
//
// rate_limits (requests per second per endpoint) is read from the config
// file only.
func New() (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := yahoo.DefaultEndpoints()
	v.SetDefault("chart_url", defaults.Chart)
	v.SetDefault("quote_url", defaults.Quote)
	v.SetDefault("quote_page_url", defaults.QuotePage)
	v.SetDefault("screener_url", "")
	v.SetDefault("user_agent", fetcher.DefaultUserAgent)

	v.SetDefault("spacing.daily", 0)
	v.SetDefault("spacing.minute", 0)
	v.SetDefault("spacing.quote", 0)
	v.SetDefault("spacing.detail", 250*time.Millisecond)
	v.SetDefault("spacing.listing", 250*time.Millisecond)

	v.SetDefault("retries", 0)
	v.SetDefault("quote_retries", 1)
	v.SetDefault("connect_timeout", fetcher.DefaultConnectTimeout)
	v.SetDefault("response_timeout", fetcher.DefaultResponseTimeout)
	v.SetDefault("max_in_flight", 0)
	v.SetDefault("http_retries", 0)
	v.SetDefault("max_url_length", 8000)
	v.SetDefault("page_size", yahoo.MaxPageSize)
	v.SetDefault("rate_limits", map[string]float64{})

	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.yftools")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// Load reads configuration from environment variables and the optional
// config file. Environment variables take precedence over file values.
// No key is required.
func Load() (*Config, error) {
	v, err := New()
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var invalid []string

	if c.Retries < 0 {
		invalid = append(invalid, "retries must not be negative")
	}
	if c.QuoteRetries < 0 {
		invalid = append(invalid, "quote_retries must not be negative")
	}
	if c.HTTPRetries < 0 {
		invalid = append(invalid, "http_retries must not be negative")
	}
	if c.ConnectTimeout < 0 || c.ResponseTimeout < 0 {
		invalid = append(invalid, "timeouts must not be negative")
	}
	if c.PageSize < 1 || c.PageSize > yahoo.MaxPageSize {
		invalid = append(invalid, fmt.Sprintf("page_size must be within [1, %d]", yahoo.MaxPageSize))
	}
	if c.MaxURLLength < 1 {
		invalid = append(invalid, "max_url_length must be positive")
	}
	for name := range c.RateLimits {
		if !knownAPI(ratelimit.API(name)) {
			invalid = append(invalid, "rate_limits: unknown endpoint "+name)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Endpoints returns the provider URLs
func (c *Config) Endpoints() yahoo.Endpoints {
	return yahoo.Endpoints{
		Chart:     c.ChartURL,
		Quote:     c.QuoteURL,
		QuotePage: c.QuotePageURL,
	}
}

// Limits returns the per-endpoint request ceilings
func (c *Config) Limits() map[ratelimit.API]float64 {
	out := make(map[ratelimit.API]float64, len(c.RateLimits))
	for name, rps := range c.RateLimits {
		out[ratelimit.API(name)] = rps
	}
	return out
}

func knownAPI(api ratelimit.API) bool {
	switch api {
	case ratelimit.APIChart, ratelimit.APIQuote, ratelimit.APIQuotePage, ratelimit.APIScreener:
		return true
	}
	return false
}
