package transform

import (
	"testing"
	"time"

	"github.com/rasnes/tiingo-powerbi-push/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarter(t *testing.T) {
	expected := map[time.Month]int{
		time.January: 1, time.February: 1, time.March: 1,
		time.April: 2, time.May: 2, time.June: 2,
		time.July: 3, time.August: 3, time.September: 3,
		time.October: 4, time.November: 4, time.December: 4,
	}
	for month, quarter := range expected {
		assert.Equal(t, quarter, Quarter(month), month.String())
	}
}

func TestDeriveCalendar(t *testing.T) {
	d := time.Date(2022, time.July, 1, 0, 0, 0, 0, time.UTC)

	cal, err := DeriveCalendar(d, nil)
	require.NoError(t, err)
	assert.Equal(t, Calendar{
		Year:            2022,
		Month:           7,
		MonthName:       "July",
		Quarter:         3,
		QuarterYear:     "2022 Q3",
		QuarterYearSort: 20223,
	}, cal)

	label, err := template.NewLabel("quarter_year", "Q{{.Quarter}} {{.Year}}")
	require.NoError(t, err)
	cal, err = DeriveCalendar(d, label)
	require.NoError(t, err)
	assert.Equal(t, "Q3 2022", cal.QuarterYear)
}

func TestQuarterYearSort_Monotonic(t *testing.T) {
	// Walk every month over a year boundary; the key must never decrease and
	// must strictly increase whenever the quarter changes.
	prev := 0
	prevQuarter := 0
	for d := time.Date(2021, time.January, 15, 0, 0, 0, 0, time.UTC); d.Year() < 2024; d = d.AddDate(0, 1, 0) {
		q := Quarter(d.Month())
		key := QuarterYearSort(d.Year(), q)
		if q != prevQuarter {
			assert.Greater(t, key, prev, d.Format("2006-01"))
		} else {
			assert.Equal(t, prev, key, d.Format("2006-01"))
		}
		prev, prevQuarter = key, q
	}

	assert.Less(t, QuarterYearSort(2022, 4), QuarterYearSort(2023, 1))
	assert.Equal(t, 20223, QuarterYearSort(2022, 3))
}
