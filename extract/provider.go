package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/ratelimit"
)

// Series is one symbol's raw daily bars, still carrying the provider's own
// field names in Header. Records may be empty when the market was closed or
// the symbol had no trades in range.
type Series struct {
	Symbol  string
	Header  []string
	Records [][]string
}

func (s Series) Empty() bool {
	return len(s.Records) == 0
}

// Provider fetches daily bars for one symbol over an inclusive date range.
type Provider interface {
	Name() string
	FetchSeries(ctx context.Context, symbol string, r utils.DateRange) (Series, error)
}

// FetchError is fatal for the run: the provider call failed outright.
type FetchError struct {
	Provider string
	Symbol   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed for symbol %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewProvider builds the provider selected by extract.provider.
func NewProvider(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	switch cfg.Extract.Provider {
	case config.ProviderTiingo:
		return NewTiingoClient(cfg, logger)
	case config.ProviderYahoo:
		return NewYahooClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", config.ErrConfiguration, cfg.Extract.Provider)
	}
}

// newHTTPClient configures a retryablehttp client the same way for every provider.
// Exhausted retries hand the last response back instead of a generic error, so
// callers can report the provider's status and body.
func newHTTPClient(cfg *config.Config, logger *slog.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryWaitMin = cfg.Extract.Backoff.RetryWaitMin
	client.RetryWaitMax = cfg.Extract.Backoff.RetryWaitMax
	client.RetryMax = cfg.Extract.Backoff.RetryMax
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Timeout = cfg.Extract.Timeout
	client.Logger = logger
	return client
}

// get fetches the URL and returns the body and response
func get(ctx context.Context, client *retryablehttp.Client, url string, headers map[string]string) (body []byte, resp *http.Response, err error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err = client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	return body, resp, nil
}

type FetchOptions struct {
	// Concurrency bounds parallel provider calls. 1 keeps the run fully sequential.
	Concurrency int
	// RateLimit caps provider calls per second; 0 disables pacing.
	RateLimit int
	// ProgressWriter receives a progress bar; nil disables it.
	ProgressWriter io.Writer
}

// FetchAll fetches every symbol and returns the series in symbol order.
// Symbols without data come back as empty series. Any provider error cancels
// the remaining calls and is returned as a *FetchError.
func FetchAll(ctx context.Context, p Provider, symbols []string, r utils.DateRange, opts FetchOptions, logger *slog.Logger) ([]Series, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := ratelimit.NewUnlimited()
	if opts.RateLimit > 0 {
		limiter = ratelimit.New(opts.RateLimit)
	}

	progress := opts.ProgressWriter
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(symbols),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(fmt.Sprintf("fetching %s", p.Name())),
		progressbar.OptionShowCount(),
	)

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	mapper := iter.Mapper[string, Series]{
		MaxGoroutines: concurrency,
	}

	logger.Info("Fetching daily bars", "provider", p.Name(), "symbols", len(symbols), "range", r.String())

	series, err := mapper.MapErr(symbols, func(symbol *string) (Series, error) {
		if err := ctx.Err(); err != nil {
			return Series{}, &FetchError{Provider: p.Name(), Symbol: *symbol, Err: err}
		}
		limiter.Take()

		s, err := p.FetchSeries(ctx, *symbol, r)
		_ = bar.Add(1)
		if err != nil {
			cancel()
			return Series{}, &FetchError{Provider: p.Name(), Symbol: *symbol, Err: err}
		}
		s.Symbol = *symbol

		if s.Empty() {
			logger.Warn("No rows returned for symbol", "symbol", *symbol, "range", r.String())
		} else {
			logger.Debug("Fetched symbol", "symbol", *symbol, "rows", len(s.Records))
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return series, nil
}
