package transform

import (
	"fmt"
	"time"

	"github.com/rasnes/tiingo-powerbi-push/template"
)

// DefaultQuarterYearFormat renders "2022 Q3".
const DefaultQuarterYearFormat = "{{.Year}} Q{{.Quarter}}"

// Calendar holds the date attributes derived for each bar.
type Calendar struct {
	Year            int
	Month           int
	MonthName       string
	Quarter         int
	QuarterYear     string
	QuarterYearSort int
}

// Quarter returns ceil(month/3).
func Quarter(month time.Month) int {
	return (int(month) + 2) / 3
}

// QuarterYearSort encodes (year, quarter) as the integer YYYYQ so that integer
// order equals chronological order.
func QuarterYearSort(year, quarter int) int {
	return year*10 + quarter
}

// quarterParams is the data the quarter_year template sees.
type quarterParams struct {
	Year    int
	Quarter int
}

// DeriveCalendar computes the calendar attributes of d. A nil label uses
// DefaultQuarterYearFormat.
func DeriveCalendar(d time.Time, label *template.Label) (Calendar, error) {
	year, month := d.Year(), d.Month()
	quarter := Quarter(month)

	quarterYear := fmt.Sprintf("%d Q%d", year, quarter)
	if label != nil {
		var err error
		quarterYear, err = label.Render(quarterParams{Year: year, Quarter: quarter})
		if err != nil {
			return Calendar{}, err
		}
	}

	return Calendar{
		Year:            year,
		Month:           int(month),
		MonthName:       month.String(),
		Quarter:         quarter,
		QuarterYear:     quarterYear,
		QuarterYearSort: QuarterYearSort(year, quarter),
	}, nil
}
