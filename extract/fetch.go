package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/utils"
)

const (
	tiingoColumns         = "date,open,high,low,close,volume"
	tiingoAdjustedColumns = "date,adjOpen,adjHigh,adjLow,adjClose,adjVolume"
)

type TiingoClient struct {
	HTTPClient   *retryablehttp.Client
	Logger       *slog.Logger
	TiingoConfig *config.TiingoConfig
	BaseURL      string
	tiingoToken  string
}

func NewTiingoClient(cfg *config.Config, logger *slog.Logger) (*TiingoClient, error) {
	tiingoToken := os.Getenv("TIINGO_TOKEN")
	if tiingoToken == "" {
		return nil, fmt.Errorf("%w: TIINGO_TOKEN env variable is not set", config.ErrConfiguration)
	}

	return &TiingoClient{
		HTTPClient:   newHTTPClient(cfg, logger),
		Logger:       logger,
		TiingoConfig: &cfg.Tiingo,
		BaseURL:      strings.TrimRight(cfg.Tiingo.BaseURL, "/"),
		tiingoToken:  tiingoToken,
	}, nil
}

func (c *TiingoClient) Name() string { return config.ProviderTiingo }

// FetchSeries fetches the end-of-day prices for a ticker within r, both ends inclusive.
// An empty body, a "None" body and 404 Not Found all mean the symbol has no rows.
func (c *TiingoClient) FetchSeries(ctx context.Context, symbol string, r utils.DateRange) (Series, error) {
	rawURL, err := c.historyURL(symbol, r)
	if err != nil {
		return Series{}, err
	}

	body, resp, err := get(ctx, c.HTTPClient, rawURL, nil)
	if err != nil {
		return Series{}, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.Logger.Warn("Ticker not found at Tiingo", "symbol", symbol, "body", string(body))
		return Series{Symbol: symbol}, nil
	case resp.StatusCode != http.StatusOK:
		return Series{}, fmt.Errorf("failed to fetch prices for ticker %s, status: %s, body: %s", symbol, resp.Status, string(body))
	}

	return parseCSVSeries(symbol, body)
}

// historyURL adds the Tiingo token, format, date range and columns to the URL
func (c *TiingoClient) historyURL(symbol string, r utils.DateRange) (string, error) {
	parsedURL, err := url.Parse(fmt.Sprintf("%s/tiingo/daily/%s/prices", c.BaseURL, url.PathEscape(symbol)))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	columns := tiingoColumns
	if c.TiingoConfig.Adjusted {
		columns = tiingoAdjustedColumns
	}

	query := parsedURL.Query()
	query.Set("token", c.tiingoToken)
	query.Set("format", "csv")
	query.Set("columns", columns)
	query.Set("startDate", r.Start.Format(utils.DateLayout))
	query.Set("endDate", r.End.Format(utils.DateLayout))
	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// parseCSVSeries reads a provider CSV body with a header row.
func parseCSVSeries(symbol string, body []byte) (Series, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "None" {
		return Series{Symbol: symbol}, nil
	}

	reader := csv.NewReader(bytes.NewReader(trimmed))
	records, err := reader.ReadAll()
	if err != nil {
		return Series{}, fmt.Errorf("failed to read CSV data for ticker %s: %w", symbol, err)
	}
	if len(records) == 0 {
		return Series{Symbol: symbol}, nil
	}

	return Series{
		Symbol:  symbol,
		Header:  records[0],
		Records: records[1:],
	}, nil
}
