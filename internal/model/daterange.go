package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the calendar-day format used on the wire and in the CLI.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive range of calendar days. The zero value means
// "all time".
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AllTime is the unbounded range.
var AllTime = DateRange{}

// NewDateRange builds a range from two days, normalizing both to UTC midnight.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, eris.Errorf("model: range end %s before start %s",
			r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD strings into a range.
func ParseDateRange(since, until string) (DateRange, error) {
	start, err := time.Parse(DateLayout, since)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "model: parse since %q", since)
	}
	end, err := time.Parse(DateLayout, until)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "model: parse until %q", until)
	}
	return NewDateRange(start, end)
}

// TrailingDays returns the n-day range ending on the day of now.
func TrailingDays(now time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	end := Day(now)
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// IsZero reports whether r is the unbounded range.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t's calendar day falls inside r, inclusive.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	d := Day(t)
	if !r.Start.IsZero() && d.Before(Day(r.Start)) {
		return false
	}
	if !r.End.IsZero() && d.After(Day(r.End)) {
		return false
	}
	return true
}

// Days returns the number of calendar days in r, or 0 for the unbounded range.
func (r DateRange) Days() int {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return int(Day(r.End).Sub(Day(r.Start)).Hours()/24) + 1
}

// Previous returns the range of equal length immediately preceding r.
func (r DateRange) Previous() DateRange {
	n := r.Days()
	if n == 0 {
		return DateRange{}
	}
	end := Day(r.Start).AddDate(0, 0, -1)
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// Since returns the start as YYYY-MM-DD.
func (r DateRange) Since() string { return r.Start.Format(DateLayout) }

// Until returns the end as YYYY-MM-DD.
func (r DateRange) Until() string { return r.End.Format(DateLayout) }
