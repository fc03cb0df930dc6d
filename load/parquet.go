package load

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/rasnes/tiingo-powerbi-push/transform"
	"github.com/rasnes/tiingo-powerbi-push/utils"
)

// ParquetBar is the Parquet row layout. Calendar fields are null when the
// run does not include them.
type ParquetBar struct {
	Symbol          string  `parquet:"symbol"`
	Date            string  `parquet:"date"`
	Open            float64 `parquet:"open"`
	High            float64 `parquet:"high"`
	Low             float64 `parquet:"low"`
	Close           float64 `parquet:"close"`
	Volume          int64   `parquet:"volume"`
	Year            *int32  `parquet:"year,optional"`
	Month           *int32  `parquet:"month,optional"`
	MonthName       *string `parquet:"month_name,optional"`
	Quarter         *int32  `parquet:"quarter,optional"`
	QuarterYear     *string `parquet:"quarter_year,optional"`
	QuarterYearSort *int32  `parquet:"quarter_year_sort,optional"`
}

// WriteParquet writes a snapshot of the table to path, replacing any existing file.
func WriteParquet(path string, table transform.Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	included := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		included[c.Key] = true
	}

	rows := make([]ParquetBar, len(table.Rows))
	for i, b := range table.Rows {
		rows[i] = toParquetBar(b, included)
	}

	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write parquet %s: %w", path, err)
	}
	return nil
}

func toParquetBar(b transform.PriceBar, included map[string]bool) ParquetBar {
	row := ParquetBar{
		Symbol: b.Symbol,
		Date:   b.Date.Format(utils.DateLayout),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
	if included[transform.FieldYear] {
		row.Year = ptr(int32(b.Year))
	}
	if included[transform.FieldMonth] {
		row.Month = ptr(int32(b.Month))
	}
	if included[transform.FieldMonthName] {
		row.MonthName = ptr(b.MonthName)
	}
	if included[transform.FieldQuarter] {
		row.Quarter = ptr(int32(b.Quarter))
	}
	if included[transform.FieldQuarterYear] {
		row.QuarterYear = ptr(b.QuarterYear)
	}
	if included[transform.FieldQuarterYearSort] {
		row.QuarterYearSort = ptr(int32(b.QuarterYearSort))
	}
	return row
}

func ptr[T any](v T) *T { return &v }
