package vat

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type PeriodType string

const (
	PeriodQuarterly PeriodType = "quarterly"
	PeriodMonthly   PeriodType = "monthly"
)

// dueDay is the day of the month declarations fall due, clamped to the
// last day of shorter months.
const dueDay = 30

// Period is one declaration window. Start and End are calendar days in UTC;
// End is the last day of the window.
type Period struct {
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	Type     PeriodType `json:"type"`
	Year     int        `json:"year"`
	Months   []int      `json:"months"`
	DueMonth int        `json:"due_month"`
	DueDay   int        `json:"due_day"`
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	Due      time.Time  `json:"due"`
}

// Contains reports whether the calendar day of t lies within the period.
func (p Period) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(p.Start) && !day.After(p.End)
}

// Label is the "<year> <code>" form used as the declaration title.
func (p Period) Label() string {
	return fmt.Sprintf("%d %s", p.Year, p.Code)
}

var quarterNames = [4]string{"T1 (Jan-Mars)", "T2 (Avr-Juin)", "T3 (Juil-Sept)", "T4 (Oct-Déc)"}

var monthNames = [12]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Quarterly returns Q1-Q4 of year.
func Quarterly(year int) []Period {
	periods := make([]Period, 0, 4)
	for q := 0; q < 4; q++ {
		first := q*3 + 1
		periods = append(periods, newPeriod(
			fmt.Sprintf("Q%d", q+1), quarterNames[q], PeriodQuarterly, year,
			[]int{first, first + 1, first + 2},
		))
	}
	return periods
}

// Monthly returns M1-M12 of year.
func Monthly(year int) []Period {
	periods := make([]Period, 0, 12)
	for m := 1; m <= 12; m++ {
		periods = append(periods, newPeriod(
			fmt.Sprintf("M%d", m), monthNames[m-1], PeriodMonthly, year, []int{m},
		))
	}
	return periods
}

// PeriodsOf returns the calendar of the given type.
func PeriodsOf(year int, periodType PeriodType) ([]Period, error) {
	switch periodType {
	case PeriodQuarterly, "":
		return Quarterly(year), nil
	case PeriodMonthly:
		return Monthly(year), nil
	default:
		return nil, fmt.Errorf("%w: period type %q", ErrUnknownPeriod, periodType)
	}
}

// LookupPeriod resolves a Q1-Q4 or M1-M12 code, case-insensitively.
func LookupPeriod(year int, code string) (Period, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 2 {
		return Period{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, code)
	}

	n, err := strconv.Atoi(code[1:])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, code)
	}

	switch {
	case code[0] == 'Q' && n >= 1 && n <= 4:
		return Quarterly(year)[n-1], nil
	case code[0] == 'M' && n >= 1 && n <= 12:
		return Monthly(year)[n-1], nil
	}
	return Period{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, code)
}

// CurrentQuarter returns the quarter containing now.
func CurrentQuarter(now time.Time) Period {
	return Quarterly(now.Year())[(int(now.Month())-1)/3]
}

func newPeriod(code, name string, periodType PeriodType, year int, months []int) Period {
	last := months[len(months)-1]

	dueYear, dueMonth := year, last+1
	if dueMonth > 12 {
		dueYear, dueMonth = year+1, 1
	}

	return Period{
		Code:     code,
		Name:     name,
		Type:     periodType,
		Year:     year,
		Months:   months,
		DueMonth: dueMonth,
		DueDay:   dueDay,
		Start:    time.Date(year, time.Month(months[0]), 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(year, time.Month(last)+1, 0, 0, 0, 0, 0, time.UTC),
		Due:      clampedDate(dueYear, dueMonth, dueDay),
	}
}

func clampedDate(year, month, day int) time.Time {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
