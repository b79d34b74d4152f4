package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on every boundary
const DateLayout = "2006-01-02"

// Frequency is the time resolution of a series
type Frequency string

const (
	Daily      Frequency = "D"
	Weekly     Frequency = "W"
	Monthly    Frequency = "M"
	Annual     Frequency = "A"
	AnnualJune Frequency = "A-JUN"
)

// ParseFrequency accepts the frequency codes and a few long-form aliases
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D", "DAILY":
		return Daily, nil
	case "W", "W-SUN", "WEEKLY":
		return Weekly, nil
	case "M", "MS", "MONTHLY":
		return Monthly, nil
	case "A", "Y", "A-DEC", "ANNUAL", "ANNUAL-CALENDAR":
		return Annual, nil
	case "A-JUN", "Y-JUN", "ANNUAL-FISCAL", "FISCAL":
		return AnnualJune, nil
	}
	return "", fmt.Errorf("unknown frequency %q (want D, W, M, A or A-JUN)", s)
}

// IsAnnual reports whether the frequency is one of the annual variants
func (f Frequency) IsAnnual() bool {
	return f == Annual || f == AnnualJune
}

// Internal returns the frequency series are computed at; annual requests are
// computed monthly and aggregated at the end.
func (f Frequency) Internal() Frequency {
	if f.IsAnnual() {
		return Monthly
	}
	return f
}

// Period is an inclusive range of calendar days
type Period struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days in the period
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Contains reports whether day d falls inside the period
func (p Period) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Overlap returns the number of days shared with [from, to]
func (p Period) Overlap(from, to time.Time) int {
	s, e := p.Start, p.End
	if from = Day(from); from.After(s) {
		s = from
	}
	if to = Day(to); to.Before(e) {
		e = to
	}
	if e.Before(s) {
		return 0
	}
	return DaysBetween(s, e) + 1
}

// PeriodOf returns the period containing t. Periods are labelled by their end
// date: weeks end on Sunday, annual periods end in December or June.
func (f Frequency) PeriodOf(t time.Time) Period {
	d := Day(t)
	switch f {
	case Weekly:
		end := d.AddDate(0, 0, (7-int(d.Weekday()))%7)
		return Period{Start: end.AddDate(0, 0, -6), End: end}
	case Monthly:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, -1)}
	case Annual:
		return Period{
			Start: time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(d.Year(), time.December, 31, 0, 0, 0, 0, time.UTC),
		}
	case AnnualJune:
		y := d.Year()
		if d.Month() <= time.June {
			y--
		}
		return Period{
			Start: time.Date(y, time.July, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(y+1, time.June, 30, 0, 0, 0, 0, time.UTC),
		}
	default:
		return Period{Start: d, End: d}
	}
}

// Label returns the period end date for t
func (f Frequency) Label(t time.Time) time.Time {
	return f.PeriodOf(t).End
}

// Periods lists the periods overlapping the inclusive range [from, to]
func (f Frequency) Periods(from, to time.Time) []Period {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil
	}
	var out []Period
	for p := f.PeriodOf(from); !p.Start.After(to); p = f.PeriodOf(p.End.AddDate(0, 0, 1)) {
		out = append(out, p)
	}
	return out
}

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DaysInMonth returns the length of the month containing t
func DaysInMonth(t time.Time) int {
	return Monthly.PeriodOf(t).Days()
}

// ParseDate parses a calendar date, accepting a trailing time component
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
