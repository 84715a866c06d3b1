package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// APIKeyPlaceholder is written by WriteDefault and rejected by Validate.
const APIKeyPlaceholder = "YOUR_API_KEY_HERE"

// Config holds all configuration for the quote scanner.
type Config struct {
	// Provider selects the quote source: finnhub or alphavantage
	Provider string `mapstructure:"provider" validate:"oneof=finnhub alphavantage"`

	// API keys, only the selected provider's key is required
	FinnhubAPIKey      string `mapstructure:"finnhub_api_key" validate:"required_if=Provider finnhub"`
	AlphavantageAPIKey string `mapstructure:"alphavantage_api_key" validate:"required_if=Provider alphavantage"`

	// Base URLs for API endpoints (configurable for testing)
	FinnhubBaseURL      string `mapstructure:"finnhub_base_url" validate:"required,url"`
	AlphavantageBaseURL string `mapstructure:"alphavantage_base_url" validate:"required,url"`

	// Items to fetch when none are given on the command line
	Symbols     []string `mapstructure:"symbols"`
	SymbolsFile string   `mapstructure:"symbols_file"`

	// Scheduling
	ConcurrentRequests int           `mapstructure:"concurrent_requests" validate:"gte=1"`
	RateLimitDelay     time.Duration `mapstructure:"rate_limit_delay" validate:"gte=0"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryCount         int           `mapstructure:"retry_count" validate:"gte=0"`
	RequestsPerMinute  int           `mapstructure:"requests_per_minute" validate:"gte=0"`

	// Presentation and watch mode
	DefaultOutput string        `mapstructure:"default_output" validate:"oneof=table json csv compact"`
	WatchInterval time.Duration `mapstructure:"watch_interval" validate:"gt=0"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
}

var validate = validator.New()

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"provider":     "provider",
	"concurrency":  "concurrent_requests",
	"delay":        "rate_limit_delay",
	"timeout":      "timeout",
	"retries":      "retry_count",
	"rpm":          "requests_per_minute",
	"output":       "default_output",
	"interval":     "watch_interval",
	"metrics-addr": "metrics_addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "finnhub")
	v.SetDefault("finnhub_api_key", "")
	v.SetDefault("alphavantage_api_key", "")
	v.SetDefault("finnhub_base_url", "https://finnhub.io/api/v1")
	v.SetDefault("alphavantage_base_url", "https://www.alphavantage.co/query")
	v.SetDefault("symbols", []string{})
	v.SetDefault("symbols_file", "")
	v.SetDefault("concurrent_requests", 5)
	// durations as strings so WriteDefault produces readable files
	v.SetDefault("rate_limit_delay", "200ms")
	v.SetDefault("timeout", "10s")
	v.SetDefault("retry_count", 2)
	v.SetDefault("requests_per_minute", 0)
	v.SetDefault("default_output", "table")
	v.SetDefault("watch_interval", "60s")
	v.SetDefault("metrics_addr", "")
}

// Read resolves configuration without validating it.
//
// Sources, highest precedence first: flags set on the command line, environment
// variables, the config file, defaults. When path is empty a config.{toml,yaml}
// is looked up in the working directory and in $HOME/.quotescanner; a missing
// file is not an error.
//
// Recognised environment variables:
//   - FINNHUB_API_KEY
//   - ALPHAVANTAGE_API_KEY
//   - SYMBOLS_FILE
//   - QUOTESCANNER_<KEY> for every other key, e.g. QUOTESCANNER_CONCURRENT_REQUESTS
func Read(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("quotescanner")
	v.AutomaticEnv()

	// Bind environment variables for API keys and the symbols file
	v.BindEnv("finnhub_api_key", "FINNHUB_API_KEY", "QUOTESCANNER_FINNHUB_API_KEY")
	v.BindEnv("alphavantage_api_key", "ALPHAVANTAGE_API_KEY", "QUOTESCANNER_ALPHAVANTAGE_API_KEY")
	v.BindEnv("symbols_file", "SYMBOLS_FILE", "QUOTESCANNER_SYMBOLS_FILE")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.quotescanner")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// Load is Read followed by Validate.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	config, err := Read(path, flags)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks field constraints and that the selected provider has a real API key.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeField(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.APIKey() == APIKeyPlaceholder {
		return fmt.Errorf("invalid configuration: API key not configured, set %s or update the config file", c.apiKeyEnv())
	}

	return nil
}

// APIKey returns the key of the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == "alphavantage" {
		return c.AlphavantageAPIKey
	}
	return c.FinnhubAPIKey
}

func (c *Config) apiKeyEnv() string {
	if c.Provider == "alphavantage" {
		return "ALPHAVANTAGE_API_KEY"
	}
	return "FINNHUB_API_KEY"
}

// Masked returns a copy safe to print: API keys are reduced to their first four characters.
func (c Config) Masked() Config {
	c.FinnhubAPIKey = mask(c.FinnhubAPIKey)
	c.AlphavantageAPIKey = mask(c.AlphavantageAPIKey)
	return c
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		if strings.HasSuffix(fe.Field(), "APIKey") {
			return fmt.Sprintf("%s is required for the selected provider", fe.Field())
		}
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	default:
		return fmt.Sprintf("%s must satisfy %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}

// WriteDefault writes a default configuration file to path. The format is taken
// from the extension (.toml, .yaml, .json). An existing file is never overwritten.
func WriteDefault(path string) error {
	v := viper.New()
	setDefaults(v)
	v.Set("finnhub_api_key", APIKeyPlaceholder)
	v.Set("symbols_file", "symbols.txt")

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
