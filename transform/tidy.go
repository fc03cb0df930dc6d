package transform

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/extract"
	"github.com/rasnes/tiingo-powerbi-push/template"
	"github.com/rasnes/tiingo-powerbi-push/utils"
)

// Table is a run's ephemeral output: rows sorted by (date, symbol), unique per
// (symbol, date), projected onto Columns.
type Table struct {
	Columns []Column
	Rows    []PriceBar
}

func (t Table) Len() int { return len(t.Rows) }

func (t Table) Header() []string {
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Header
	}
	return header
}

// Record renders one row for delimited text output, in column order.
func (t Table) Record(b PriceBar) []string {
	record := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		record[i] = c.Format(b)
	}
	return record
}

// Object renders one row keyed by canonical field names. Numbers stay numbers.
func (t Table) Object(b PriceBar) map[string]any {
	obj := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		obj[c.Key] = c.Value(b)
	}
	return obj
}

// Options drive Tidy.
type Options struct {
	Columns []Column
	// Adjusted maps the provider's adjusted price fields onto open..volume.
	Adjusted    bool
	QuarterYear *template.Label
	Logger      *slog.Logger
}

// NewOptions builds Options from the transform configuration.
func NewOptions(cfg config.TransformConfig, adjusted bool, logger *slog.Logger) (Options, error) {
	columns, err := SelectColumns(cfg.IncludeCalendarFields, cfg.CalendarFields)
	if err != nil {
		return Options{}, fmt.Errorf("%w: transform.calendar_fields: %w", config.ErrConfiguration, err)
	}

	format := cfg.QuarterYearFormat
	if format == "" {
		format = DefaultQuarterYearFormat
	}
	label, err := template.NewLabel("quarter_year", format)
	if err != nil {
		return Options{}, fmt.Errorf("%w: transform.quarter_year_format: %w", config.ErrConfiguration, err)
	}

	return Options{
		Columns:     columns,
		Adjusted:    adjusted,
		QuarterYear: label,
		Logger:      logger,
	}, nil
}

var requiredFields = []string{"date", "open", "high", "low", "close", "volume"}

// canonicalField maps a provider field name onto the canonical schema.
// Matching ignores case and spaces, so "Date", "Adj Close" and "adjClose" all work.
func canonicalField(name string, adjusted bool) (string, bool) {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	if strings.HasPrefix(n, "adj") {
		if !adjusted {
			return "", false
		}
		n = strings.TrimPrefix(n, "adj")
	} else if adjusted && n != "date" {
		return "", false
	}

	switch n {
	case "date", "open", "high", "low", "close", "volume":
		return n, true
	}
	return "", false
}

// Tidy flattens per-symbol provider series into one table. Symbols with no
// rows contribute nothing. Rows with missing or NaN prices are dropped, and a
// repeated (symbol, date) keeps its first occurrence.
func Tidy(series []extract.Series, opts Options) (Table, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	columns := opts.Columns
	if columns == nil {
		columns = append([]Column(nil), baseColumns...)
	}

	var rows []PriceBar
	seen := make(map[string]bool)

	for _, s := range series {
		if s.Empty() {
			continue
		}

		index, err := fieldIndex(s.Header, opts.Adjusted)
		if err != nil {
			return Table{}, fmt.Errorf("symbol %s: %w", s.Symbol, err)
		}

		dropped := 0
		for i, record := range s.Records {
			bar, ok, err := parseBar(s.Symbol, record, index)
			if err != nil {
				return Table{}, fmt.Errorf("symbol %s row %d: %w", s.Symbol, i+1, err)
			}
			if !ok {
				dropped++
				continue
			}

			key := bar.Symbol + "|" + bar.Date.Format(utils.DateLayout)
			if seen[key] {
				logger.Warn("Duplicate bar from provider, keeping first", "symbol", bar.Symbol, "date", bar.Date.Format(utils.DateLayout))
				continue
			}
			seen[key] = true

			bar.Calendar, err = DeriveCalendar(bar.Date, opts.QuarterYear)
			if err != nil {
				return Table{}, err
			}
			rows = append(rows, bar)
		}

		if dropped > 0 {
			logger.Debug("Dropped bars with missing prices", "symbol", s.Symbol, "dropped", dropped)
		}
	}

	slices.SortStableFunc(rows, func(a, b PriceBar) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})

	return Table{Columns: columns, Rows: rows}, nil
}

func fieldIndex(header []string, adjusted bool) (map[string]int, error) {
	index := make(map[string]int, len(requiredFields))
	for i, name := range header {
		if field, ok := canonicalField(name, adjusted); ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}

	var missing []string
	for _, f := range requiredFields {
		if _, ok := index[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("provider header %v is missing fields %v", header, missing)
	}
	return index, nil
}

// parseBar returns ok=false for rows the provider left blank or NaN.
func parseBar(symbol string, record []string, index map[string]int) (PriceBar, bool, error) {
	field := func(name string) string {
		i := index[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, err := utils.ParseDate(field("date"))
	if err != nil {
		return PriceBar{}, false, err
	}

	var prices [4]float64
	for i, name := range []string{"open", "high", "low", "close"} {
		v, ok := parseFloat(field(name))
		if !ok {
			return PriceBar{}, false, nil
		}
		prices[i] = v
	}

	var volume int64
	if v, ok := parseFloat(field("volume")); ok {
		volume = int64(math.Round(v))
	}

	return PriceBar{
		Symbol: symbol,
		Date:   date,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume,
	}, true, nil
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
