package load

import (
	"fmt"
	"testing"
	"time"

	"github.com/rasnes/tiingo-powerbi-push/transform"
	"github.com/stretchr/testify/require"
)

// testTable builds n bars for one symbol on consecutive days from start.
func testTable(t *testing.T, symbol, start string, n int, calendar bool) transform.Table {
	t.Helper()

	columns, err := transform.SelectColumns(calendar, nil)
	require.NoError(t, err)

	day, err := time.Parse("2006-01-02", start)
	require.NoError(t, err)

	rows := make([]transform.PriceBar, n)
	for i := range rows {
		d := day.AddDate(0, 0, i)
		cal, err := transform.DeriveCalendar(d, nil)
		require.NoError(t, err)
		rows[i] = transform.PriceBar{
			Symbol:   symbol,
			Date:     d,
			Open:     100 + float64(i),
			High:     101.5 + float64(i),
			Low:      99.25 + float64(i),
			Close:    100.75 + float64(i),
			Volume:   int64(1000 * (i + 1)),
			Calendar: cal,
		}
	}
	return transform.Table{Columns: columns, Rows: rows}
}

func symbolsAndDates(table transform.Table) []string {
	out := make([]string, len(table.Rows))
	for i, r := range table.Rows {
		out[i] = fmt.Sprintf("%s %s", r.Symbol, r.Date.Format("2006-01-02"))
	}
	return out
}
