// Package batch expands run date ranges and dispatches product jobs,
// collecting every job outcome into a Report.
package batch

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Intervals.
const (
	Day       = "day"
	Week      = "week"
	Biweekly  = "biweekly"
	SemiMonth = "semi-month"
	Month     = "month"
	Year      = "year"

	customPrefix = "custom:"
)

// DateLayout is the CLI date format.
const DateLayout = "20060102"

// ParseDate parses a YYYYMMDD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYYMMDD", s)
	}
	return t, nil
}

// Expand lists the run dates from start to end inclusive at interval. Start
// is always included, no date exceeds end and the list is sorted without
// duplicates.
func Expand(start, end time.Time, interval string) ([]time.Time, error) {
	start, end = midnight(start), midnight(end)
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			end.Format(DateLayout), start.Format(DateLayout))
	}

	var dates []time.Time
	switch interval = strings.ToLower(strings.TrimSpace(interval)); {
	case interval == Day:
		dates = every(start, end, 1)
	case interval == Week:
		dates = every(start, end, 7)
	case interval == Biweekly:
		dates = every(start, end, 14)
	case interval == SemiMonth:
		dates = semiMonthly(start, end)
	case interval == Month:
		dates = monthly(start, end, 1)
	case interval == Year:
		dates = monthly(start, end, 12)
	case strings.HasPrefix(interval, customPrefix):
		n, err := parseCustom(interval)
		if err != nil {
			return nil, err
		}
		dates = every(start, end, n)
	default:
		return nil, fmt.Errorf("unknown interval %q, must be one of day, week, biweekly, semi-month, month, year or custom:<N>d", interval)
	}
	return dedupe(dates), nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseCustom(interval string) (int, error) {
	rest := strings.TrimPrefix(interval, customPrefix)
	if !strings.HasSuffix(rest, "d") {
		return 0, fmt.Errorf("invalid custom interval %q, expected custom:<N>d", interval)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(rest, "d"))
	if err != nil {
		return 0, fmt.Errorf("invalid custom interval %q: %w", interval, err)
	}
	if n < 1 {
		return 0, errors.New("custom interval must be at least one day")
	}
	return n, nil
}

func every(start, end time.Time, days int) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, days) {
		out = append(out, d)
	}
	return out
}

// monthly steps by months from start, keeping its day of month and clamping
// it to shorter months.
func monthly(start, end time.Time, months int) []time.Time {
	var out []time.Time
	for i := 0; ; i++ {
		d := addMonthsClamped(start, i*months)
		if d.After(end) {
			return out
		}
		out = append(out, d)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// semiMonthly returns start plus every 1st and 16th up to end.
func semiMonthly(start, end time.Time) []time.Time {
	out := []time.Time{start}
	for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(end); m = m.AddDate(0, 1, 0) {
		for _, d := range []time.Time{m, m.AddDate(0, 0, 15)} {
			if d.After(start) && !d.After(end) {
				out = append(out, d)
			}
		}
	}
	return out
}

func dedupe(dates []time.Time) []time.Time {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	out := dates[:0]
	for i, d := range dates {
		if i == 0 || !d.Equal(out[len(out)-1]) {
			out = append(out, d)
		}
	}
	return out
}
