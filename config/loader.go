package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rasnes/tiingo-powerbi-push/utils"
	"github.com/spf13/viper"
)

// ErrConfiguration marks a fatal configuration problem detected at startup,
// before any network or file activity.
var ErrConfiguration = errors.New("configuration error")

const (
	ProviderTiingo = "tiingo"
	ProviderYahoo  = "yahoo"

	SinkModeReplace = "replace"
	SinkModeAppend  = "append"

	PayloadArray   = "array"
	PayloadWrapped = "wrapped"
)

type Config struct {
	Symbols   []string `mapstructure:"symbols"`
	Extract   ExtractConfig
	Tiingo    TiingoConfig
	Yahoo     YahooConfig
	Range     RangeConfig
	Transform TransformConfig
	Sink      SinkConfig
	Push      PushConfig
	Log       LogConfig
	Env       string
}

type ExtractConfig struct {
	Provider    string        `mapstructure:"provider"`
	Concurrency int           `mapstructure:"concurrency"`
	RateLimit   int           `mapstructure:"rate_limit"`
	Progress    bool          `mapstructure:"progress"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Backoff     BackoffConfig
}

type BackoffConfig struct {
	RetryWaitMin time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `mapstructure:"retry_wait_max"`
	RetryMax     int           `mapstructure:"retry_max"`
}

type TiingoConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Adjusted bool   `mapstructure:"adjusted"`
}

type YahooConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type RangeConfig struct {
	Mode          string `mapstructure:"mode"`
	InceptionDate string `mapstructure:"inception_date"`
	StartDate     string `mapstructure:"start_date"`
	EndDate       string `mapstructure:"end_date"`
	Timezone      string `mapstructure:"timezone"`
}

type TransformConfig struct {
	IncludeCalendarFields bool     `mapstructure:"include_calendar_fields"`
	CalendarFields        []string `mapstructure:"calendar_fields"`
	QuarterYearFormat     string   `mapstructure:"quarter_year_format"`
}

type SinkConfig struct {
	Path        string `mapstructure:"path"`
	Mode        string `mapstructure:"mode"`
	ParquetPath string `mapstructure:"parquet_path"`
}

type PushConfig struct {
	URL          string        `mapstructure:"url"`
	BatchSize    int           `mapstructure:"batch_size"`
	PayloadShape string        `mapstructure:"payload_shape"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SetDefaults registers the default value of every key. It is safe to call
// more than once.
func SetDefaults() {
	viper.SetDefault("symbols", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA"})

	viper.SetDefault("extract.provider", ProviderTiingo)
	viper.SetDefault("extract.concurrency", 1)
	viper.SetDefault("extract.rate_limit", 0)
	viper.SetDefault("extract.progress", false)
	viper.SetDefault("extract.timeout", 30*time.Second)
	viper.SetDefault("extract.backoff.retry_wait_min", time.Second)
	viper.SetDefault("extract.backoff.retry_wait_max", 30*time.Second)
	viper.SetDefault("extract.backoff.retry_max", 0)

	viper.SetDefault("tiingo.base_url", "https://api.tiingo.com")
	viper.SetDefault("tiingo.adjusted", false)
	viper.SetDefault("yahoo.base_url", "https://query1.finance.yahoo.com")

	viper.SetDefault("range.mode", "history")
	viper.SetDefault("range.inception_date", "2022-07-01")
	viper.SetDefault("range.timezone", "America/New_York")

	viper.SetDefault("transform.include_calendar_fields", false)
	viper.SetDefault("transform.quarter_year_format", "{{.Year}} Q{{.Quarter}}")

	viper.SetDefault("sink.path", "stock_data.csv")
	viper.SetDefault("sink.mode", SinkModeReplace)

	viper.SetDefault("push.batch_size", 1000)
	viper.SetDefault("push.payload_shape", PayloadArray)
	viper.SetDefault("push.timeout", 30*time.Second)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", true)
}

// NewConfig loads the configuration from the provided base config reader
// and merges it with the environment-specific configuration.
// POWERBI_URL in the environment overrides push.url.
func NewConfig(baseConfigReader io.Reader, envConfigReader io.Reader, env string) (*Config, error) {
	if env == "" { // Use the provided 'env' or default to "dev"
		env = "dev"
	}

	SetDefaults()
	viper.SetConfigType("yaml")
	if err := viper.BindEnv("push.url", "POWERBI_URL"); err != nil {
		return nil, fmt.Errorf("error binding POWERBI_URL: %w", err)
	}

	// Read the base configuration
	if baseConfigReader != nil {
		if err := viper.ReadConfig(baseConfigReader); err != nil {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Merge with environment-specific configuration (only if provided)
	if envConfigReader != nil {
		if err := viper.MergeConfig(envConfigReader); err != nil {
			log.Printf("Error merging environment-specific config: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	config.Env = env
	config.normalize()

	return &config, nil
}

func (c *Config) normalize() {
	symbols := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	c.Symbols = symbols
	c.Extract.Provider = strings.ToLower(strings.TrimSpace(c.Extract.Provider))
	c.Range.Mode = strings.ToLower(strings.TrimSpace(c.Range.Mode))
	c.Sink.Mode = strings.ToLower(strings.TrimSpace(c.Sink.Mode))
	c.Push.PayloadShape = strings.ToLower(strings.TrimSpace(c.Push.PayloadShape))
	c.Push.URL = strings.TrimSpace(c.Push.URL)
}

// Validate reports every problem at once. The returned error wraps ErrConfiguration.
func (c *Config) Validate() error {
	var problems []error

	if c.Push.URL == "" {
		problems = append(problems, errors.New("push.url is required (set POWERBI_URL)"))
	}
	if c.Push.BatchSize < 1 {
		problems = append(problems, fmt.Errorf("push.batch_size must be positive, got %d", c.Push.BatchSize))
	}
	switch c.Push.PayloadShape {
	case PayloadArray, PayloadWrapped:
	default:
		problems = append(problems, fmt.Errorf("push.payload_shape must be %q or %q, got %q", PayloadArray, PayloadWrapped, c.Push.PayloadShape))
	}
	switch c.Sink.Mode {
	case SinkModeReplace, SinkModeAppend:
	default:
		problems = append(problems, fmt.Errorf("sink.mode must be %q or %q, got %q", SinkModeReplace, SinkModeAppend, c.Sink.Mode))
	}
	if c.Sink.Path == "" {
		problems = append(problems, errors.New("sink.path is required"))
	}
	switch c.Extract.Provider {
	case ProviderTiingo, ProviderYahoo:
	default:
		problems = append(problems, fmt.Errorf("extract.provider must be %q or %q, got %q", ProviderTiingo, ProviderYahoo, c.Extract.Provider))
	}
	if c.Extract.Concurrency < 1 {
		problems = append(problems, fmt.Errorf("extract.concurrency must be positive, got %d", c.Extract.Concurrency))
	}
	if len(c.Symbols) == 0 {
		problems = append(problems, errors.New("symbols must not be empty"))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err)
	}
	if _, err := utils.ResolveRange(c.Range.Mode, c.Range.InceptionDate, c.Range.StartDate, c.Range.EndDate, time.Now(), nil); err != nil {
		problems = append(problems, fmt.Errorf("range: %w", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(problems...))
	}
	return nil
}

// Location resolves range.timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Range.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Range.Timezone)
	if err != nil {
		return nil, fmt.Errorf("range.timezone %q: %w", c.Range.Timezone, err)
	}
	return loc, nil
}
