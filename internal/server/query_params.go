package server

import (
	"strconv"
	"strings"
	"time"

	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

// parseOptionalTime accepts RFC3339 or a bare date at UTC midnight.
func parseOptionalTime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		return &parsed, nil
	}
	return nil, invalidRequest("invalid_time")
}

// parseWindow reads ?from&to as a half-open window. Missing bounds default
// to the current calendar month.
func parseWindow(from, to string, now time.Time) (time.Time, time.Time, error) {
	month := royaltydomain.MonthPeriod(now)
	start, end := month.Start, month.End

	parsedFrom, err := parseOptionalTime(from)
	if err != nil {
		return time.Time{}, time.Time{}, invalidRequest("from")
	}
	parsedTo, err := parseOptionalTime(to)
	if err != nil {
		return time.Time{}, time.Time{}, invalidRequest("to")
	}
	if parsedFrom != nil {
		start = *parsedFrom
	}
	if parsedTo != nil {
		end = *parsedTo
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, invalidRequest("window")
	}
	return start, end, nil
}

// parsePeriod reads ?period=YYYY-MM, defaulting to the previous month.
func parsePeriod(raw string, now time.Time) (royaltydomain.Period, error) {
	if strings.TrimSpace(raw) == "" {
		return royaltydomain.PreviousMonth(now), nil
	}
	period, err := royaltydomain.ParsePeriod(raw)
	if err != nil {
		return royaltydomain.Period{}, invalidRequest("period")
	}
	return period, nil
}
