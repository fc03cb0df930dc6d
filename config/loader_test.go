package config

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(env string) *Config {
	return &Config{
		Env:     env,
		Symbols: []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA"},
		Extract: ExtractConfig{
			Provider:    ProviderTiingo,
			Concurrency: 1,
			Timeout:     30 * time.Second,
			Backoff: BackoffConfig{
				RetryWaitMin: time.Second,
				RetryWaitMax: 30 * time.Second,
				RetryMax:     0,
			},
		},
		Tiingo: TiingoConfig{BaseURL: "https://api.tiingo.com"},
		Yahoo:  YahooConfig{BaseURL: "https://query1.finance.yahoo.com"},
		Range: RangeConfig{
			Mode:          "history",
			InceptionDate: "2022-07-01",
			Timezone:      "America/New_York",
		},
		Transform: TransformConfig{
			QuarterYearFormat: "{{.Year}} Q{{.Quarter}}",
		},
		Sink: SinkConfig{
			Path: "stock_data.csv",
			Mode: SinkModeReplace,
		},
		Push: PushConfig{
			BatchSize:    1000,
			PayloadShape: PayloadArray,
			Timeout:      30 * time.Second,
		},
		Log: LogConfig{Level: "info", JSON: true},
	}
}

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name     string
		baseYAML string          // Base YAML config
		envYAML  string          // Environment-specific YAML (optional)
		env      string          // Environment variable value
		want     func(c *Config) // Mutates the defaults into the expected Config
	}{
		{
			name: "Defaults with empty base config",
			env:  "",
			want: func(c *Config) { c.Env = "dev" },
		},
		{
			name: "Base config overrides defaults",
			baseYAML: `
symbols: [aapl, " msft ", ""]
extract:
  provider: Yahoo
  concurrency: 4
  backoff:
    retry_max: 3
range:
  mode: today
transform:
  include_calendar_fields: true
  calendar_fields: [year, quarter]
sink:
  path: out/prices.csv
  mode: Append
push:
  url: https://api.powerbi.com/push
  batch_size: 50
  payload_shape: wrapped
`,
			env: "bar",
			want: func(c *Config) {
				c.Symbols = []string{"AAPL", "MSFT"}
				c.Extract.Provider = ProviderYahoo
				c.Extract.Concurrency = 4
				c.Extract.Backoff.RetryMax = 3
				c.Range.Mode = "today"
				c.Transform.IncludeCalendarFields = true
				c.Transform.CalendarFields = []string{"year", "quarter"}
				c.Sink.Path = "out/prices.csv"
				c.Sink.Mode = SinkModeAppend
				c.Push.URL = "https://api.powerbi.com/push"
				c.Push.BatchSize = 50
				c.Push.PayloadShape = PayloadWrapped
			},
		},
		{
			name: "Environment file overrides base",
			baseYAML: `
push:
  batch_size: 50
sink:
  mode: append
`,
			envYAML: `
push:
  batch_size: 1000
`,
			env: "prod",
			want: func(c *Config) {
				c.Push.BatchSize = 1000
				c.Sink.Mode = SinkModeAppend
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset Viper for each test
			viper.Reset()
			t.Setenv("POWERBI_URL", "")

			baseConfigReader := strings.NewReader(tt.baseYAML)
			var envConfigReader io.Reader
			if tt.envYAML != "" {
				envConfigReader = strings.NewReader(tt.envYAML)
			}

			got, err := NewConfig(baseConfigReader, envConfigReader, tt.env)
			require.NoError(t, err)

			want := defaultConfig(tt.env)
			tt.want(want)
			assert.Equal(t, want, got, "Config structs don't match")
		})
	}
}

func TestNewConfig_PushURLFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Setenv("POWERBI_URL", "https://api.powerbi.com/beta/push?key=secret")

	got, err := NewConfig(strings.NewReader("push:\n  url: https://from-file\n"), nil, "dev")
	require.NoError(t, err)
	assert.Equal(t, "https://api.powerbi.com/beta/push?key=secret", got.Push.URL)
}

func TestNewConfig_InvalidYAML(t *testing.T) {
	viper.Reset()
	_, err := NewConfig(strings.NewReader("push: [unclosed"), nil, "dev")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error reading base config")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		c := defaultConfig("dev")
		c.Push.URL = "https://api.powerbi.com/push"
		return c
	}

	tests := []struct {
		name        string
		mutate      func(c *Config)
		errContains string
	}{
		{
			name:   "valid defaults with push url",
			mutate: func(c *Config) {},
		},
		{
			name:        "missing push url",
			mutate:      func(c *Config) { c.Push.URL = "" },
			errContains: "push.url is required",
		},
		{
			name:        "zero batch size",
			mutate:      func(c *Config) { c.Push.BatchSize = 0 },
			errContains: "push.batch_size must be positive",
		},
		{
			name:        "unknown payload shape",
			mutate:      func(c *Config) { c.Push.PayloadShape = "ndjson" },
			errContains: "push.payload_shape",
		},
		{
			name:        "unknown sink mode",
			mutate:      func(c *Config) { c.Sink.Mode = "upsert" },
			errContains: "sink.mode",
		},
		{
			name:        "unknown provider",
			mutate:      func(c *Config) { c.Extract.Provider = "bloomberg" },
			errContains: "extract.provider",
		},
		{
			name:        "no symbols",
			mutate:      func(c *Config) { c.Symbols = nil },
			errContains: "symbols must not be empty",
		},
		{
			name:        "bad timezone",
			mutate:      func(c *Config) { c.Range.Timezone = "Mars/Olympus" },
			errContains: "range.timezone",
		},
		{
			name: "range mode without dates",
			mutate: func(c *Config) {
				c.Range.Mode = "range"
			},
			errContains: "range: start date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)

			err := c.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	c := defaultConfig("dev")
	c.Push.BatchSize = -1

	err := c.Validate()
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "push.url is required")
	assert.Contains(t, err.Error(), "push.batch_size must be positive")
}
