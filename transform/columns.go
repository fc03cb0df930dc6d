package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rasnes/tiingo-powerbi-push/utils"
)

// PriceBar is one symbol's trading data for one calendar day.
type PriceBar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Calendar
}

// Column is one output column. Header names the CSV column, Key the JSON field.
type Column struct {
	Header string
	Key    string
	value  func(b PriceBar) any
}

func (c Column) Value(b PriceBar) any {
	return c.value(b)
}

// Format renders the value for delimited text output.
func (c Column) Format(b PriceBar) string {
	switch v := c.value(b).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

// Calendar field names accepted in transform.calendar_fields.
const (
	FieldYear            = "year"
	FieldMonth           = "month"
	FieldMonthName       = "month_name"
	FieldQuarter         = "quarter"
	FieldQuarterYear     = "quarter_year"
	FieldQuarterYearSort = "quarter_year_sort"
)

var baseColumns = []Column{
	{Header: "Symbol", Key: "symbol", value: func(b PriceBar) any { return b.Symbol }},
	{Header: "date", Key: "date", value: func(b PriceBar) any { return b.Date.Format(utils.DateLayout) }},
	{Header: "open", Key: "open", value: func(b PriceBar) any { return b.Open }},
	{Header: "high", Key: "high", value: func(b PriceBar) any { return b.High }},
	{Header: "low", Key: "low", value: func(b PriceBar) any { return b.Low }},
	{Header: "close", Key: "close", value: func(b PriceBar) any { return b.Close }},
	{Header: "volume", Key: "volume", value: func(b PriceBar) any { return b.Volume }},
}

var calendarColumns = []Column{
	{Header: "Year", Key: FieldYear, value: func(b PriceBar) any { return b.Year }},
	{Header: "Month", Key: FieldMonth, value: func(b PriceBar) any { return b.Month }},
	{Header: "Month_Name", Key: FieldMonthName, value: func(b PriceBar) any { return b.MonthName }},
	{Header: "Quarter", Key: FieldQuarter, value: func(b PriceBar) any { return b.Quarter }},
	{Header: "Quarter_Year", Key: FieldQuarterYear, value: func(b PriceBar) any { return b.QuarterYear }},
	{Header: "Quarter_Year_Sort", Key: FieldQuarterYearSort, value: func(b PriceBar) any { return b.QuarterYearSort }},
}

// SelectColumns returns the output column set: the base OHLCV columns, then the
// requested calendar columns in canonical order. include with no fields means
// every calendar column.
func SelectColumns(include bool, fields []string) ([]Column, error) {
	columns := append([]Column(nil), baseColumns...)
	if !include {
		return columns, nil
	}
	if len(fields) == 0 {
		return append(columns, calendarColumns...), nil
	}

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		key := strings.ToLower(strings.TrimSpace(f))
		if !isCalendarField(key) {
			return nil, fmt.Errorf("unknown calendar field %q", f)
		}
		wanted[key] = true
	}

	for _, c := range calendarColumns {
		if wanted[c.Key] {
			columns = append(columns, c)
		}
	}
	return columns, nil
}

func isCalendarField(key string) bool {
	for _, c := range calendarColumns {
		if c.Key == key {
			return true
		}
	}
	return false
}
