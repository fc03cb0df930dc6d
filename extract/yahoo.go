package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/utils"
)

// yahooHeader mirrors the column names of a yfinance download.
var yahooHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// YahooClient fetches daily bars from the public Yahoo Finance chart API.
type YahooClient struct {
	HTTPClient *retryablehttp.Client
	Logger     *slog.Logger
	BaseURL    string
}

func NewYahooClient(cfg *config.Config, logger *slog.Logger) *YahooClient {
	return &YahooClient{
		HTTPClient: newHTTPClient(cfg, logger),
		Logger:     logger,
		BaseURL:    strings.TrimRight(cfg.Yahoo.BaseURL, "/"),
	}
}

func (c *YahooClient) Name() string { return config.ProviderYahoo }

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset            int    `json:"gmtoffset"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *YahooClient) FetchSeries(ctx context.Context, symbol string, r utils.DateRange) (Series, error) {
	// period2 is exclusive, so ask for the day after r.End.
	u := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history",
		c.BaseURL, url.PathEscape(symbol), r.Start.Unix(), r.End.AddDate(0, 0, 1).Unix())

	body, resp, err := get(ctx, c.HTTPClient, u, map[string]string{"User-Agent": "Mozilla/5.0"})
	if err != nil {
		return Series{}, err
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(body, &chart)

	if resp.StatusCode == http.StatusNotFound {
		c.Logger.Warn("Ticker not found at Yahoo", "symbol", symbol)
		return Series{Symbol: symbol}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Series{}, fmt.Errorf("failed to fetch chart for ticker %s, status: %s, body: %s", symbol, resp.Status, string(body))
	}
	if decodeErr != nil {
		return Series{}, fmt.Errorf("failed to decode chart for ticker %s: %w", symbol, decodeErr)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return Series{Symbol: symbol}, nil
		}
		return Series{}, fmt.Errorf("yahoo api error for ticker %s: %s", symbol, chart.Chart.Error.Description)
	}

	series := Series{Symbol: symbol, Header: yahooHeader}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return series, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	loc := exchangeLocation(result.Meta.ExchangeTimezoneName, result.Meta.GMTOffset)

	for i, ts := range result.Timestamp {
		o, h, l, cl := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || cl == nil {
			continue // null bars (holidays, halted sessions)
		}
		day := time.Unix(ts, 0).In(loc)
		if !r.Contains(day) {
			continue
		}

		volume := "0"
		if v := at(quote.Volume, i); v != nil {
			volume = strconv.FormatFloat(*v, 'f', 0, 64)
		}

		series.Records = append(series.Records, []string{
			day.Format(utils.DateLayout),
			formatFloat(*o),
			formatFloat(*h),
			formatFloat(*l),
			formatFloat(*cl),
			volume,
		})
	}

	return series, nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func exchangeLocation(name string, gmtOffset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("exchange", gmtOffset)
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
