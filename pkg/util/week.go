package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISOWeekLabel formats t as "YYYY-Www", e.g. "2026-W07".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ParseISOWeek parses a "YYYY-Www" label and returns the half-open range
// [Monday 00:00 UTC, next Monday 00:00 UTC) covering that week.
func ParseISOWeek(label string) (time.Time, time.Time, error) {
	yearPart, weekPart, ok := strings.Cut(strings.ToUpper(label), "-W")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid ISO week %q", label)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid ISO week year %q", yearPart)
	}
	week, err := strconv.Atoi(weekPart)
	if err != nil || week < 1 || week > 53 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid ISO week number %q", weekPart)
	}

	// January 4th is always in week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	start := jan4.AddDate(0, 0, -offset+(week-1)*7)

	if y, w := start.ISOWeek(); y != year || w != week {
		return time.Time{}, time.Time{}, fmt.Errorf("year %d has no week %d", year, week)
	}

	return start, start.AddDate(0, 0, 7), nil
}
