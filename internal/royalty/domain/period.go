package domain

import (
	"strings"
	"time"
)

const periodLayout = "2006-01"

// Period is a half-open [Start, End) billing window in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the calendar month containing t.
func MonthPeriod(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// PreviousMonth returns the calendar month before the one containing t.
func PreviousMonth(t time.Time) Period {
	current := MonthPeriod(t)
	return Period{Start: current.Start.AddDate(0, -1, 0), End: current.Start}
}

// ParsePeriod accepts "YYYY-MM".
func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse(periodLayout, strings.TrimSpace(raw))
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	return MonthPeriod(t), nil
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || !p.Start.Before(p.End) {
		return ErrInvalidPeriod
	}
	return nil
}

// Label is "YYYY-MM" for calendar months and "start/end" otherwise.
func (p Period) Label() string {
	if p == MonthPeriod(p.Start) {
		return p.Start.Format(periodLayout)
	}
	return p.Start.UTC().Format(time.RFC3339) + "/" + p.End.UTC().Format(time.RFC3339)
}
