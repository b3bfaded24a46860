package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxTrolleyIDLen = 64

var (
	amountRe     = regexp.MustCompile(`^\d+(\.\d+)?$`)
	whitespaceRe = regexp.MustCompile(`\s`)
)

// Date layouts accepted from operators: ISO first, then the DD/MM/YYYY form
// printed on the shop floor.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	time.RFC3339,
}

// Supported calendar range for any event date.
var (
	MinDate = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// Day truncates t to its calendar date (in t's own location) at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the calendar date n days after day.
func AddDays(day time.Time, n int) time.Time {
	return Day(day).AddDate(0, 0, n)
}

// DaysBetween returns the whole number of days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// InRange reports whether day falls inside the supported calendar range.
func InRange(day time.Time) bool {
	d := Day(day)
	return !d.Before(MinDate) && !d.After(MaxDate)
}

// TrolleyID normalizes a trolley identifier: surrounding space is dropped,
// inner whitespace is rejected.
func TrolleyID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("trolley id is required")
	}
	if whitespaceRe.MatchString(s) {
		return "", fmt.Errorf("trolley id %q must not contain whitespace", s)
	}
	if len(s) > maxTrolleyIDLen {
		return "", fmt.Errorf("trolley id %q is longer than %d characters", s, maxTrolleyIDLen)
	}
	return s, nil
}

// Amount parses a money amount as typed by an operator. Empty input and "NA"
// mean no amount and return nil. Thousands separators and the rupee sign are
// ignored; negative or malformed amounts are an error.
func Amount(raw string) (*decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "NA") {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if !amountRe.MatchString(s) {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return &d, nil
}

// Date parses a calendar date in any accepted layout.
func Date(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			day := Day(t)
			if !InRange(day) {
				return time.Time{}, fmt.Errorf("date %q is outside the supported range", raw)
			}
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q", raw)
}
