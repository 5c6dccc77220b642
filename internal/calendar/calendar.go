package calendar

import (
	"fmt"
	"time"

	"github.com/bullion/compliance-service/internal/pkg/clock"
)

// MonthDay is a holiday that falls on the same date every year
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses an "MM-DD" holiday entry
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid holiday %q: %w", s, err)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

// ParseMonthDays parses a list of "MM-DD" holiday entries
func ParseMonthDays(values []string) ([]MonthDay, error) {
	days := make([]MonthDay, 0, len(values))
	for _, v := range values {
		md, err := ParseMonthDay(v)
		if err != nil {
			return nil, err
		}
		days = append(days, md)
	}
	return days, nil
}

// DefaultHolidays are the national fixed-date public holidays
var DefaultHolidays = []MonthDay{
	{time.January, 1},   // New Year's Day
	{time.January, 26},  // Australia Day
	{time.December, 25}, // Christmas Day
	{time.December, 26}, // Boxing Day
}

// Calendar answers business-day questions in a single reference time zone.
// Every date is normalised to midnight in that zone before it is compared,
// so the host zone never leaks into a deadline.
type Calendar struct {
	loc   *time.Location
	fixed map[MonthDay]struct{}
	clock clock.Clock
}

// New creates a calendar for the given zone and fixed-date holidays
func New(loc *time.Location, fixed []MonthDay, clk clock.Clock) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	set := make(map[MonthDay]struct{}, len(fixed))
	for _, md := range fixed {
		set[md] = struct{}{}
	}
	return &Calendar{loc: loc, fixed: set, clock: clk}
}

// Location returns the reference zone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Normalize returns midnight of t's calendar day in the reference zone
func (c *Calendar) Normalize(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// Today returns the current date in the reference zone
func (c *Calendar) Today() time.Time {
	return c.Normalize(c.clock.Now())
}

// IsHoliday reports whether t falls on a fixed or Easter-derived holiday
func (c *Calendar) IsHoliday(t time.Time) bool {
	d := c.Normalize(t)
	if _, ok := c.fixed[MonthDay{d.Month(), d.Day()}]; ok {
		return true
	}

	easter := EasterSunday(d.Year(), c.loc)
	goodFriday := easter.AddDate(0, 0, -2)
	easterMonday := easter.AddDate(0, 0, 1)
	return d.Equal(goodFriday) || d.Equal(easterMonday)
}

// IsBusinessDay returns false on weekends and holidays
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	d := c.Normalize(t)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(d)
}

// AddBusinessDays walks forward one calendar day at a time until n business
// days have been counted. n == 0 returns the normalised date unchanged.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	d := c.Normalize(t)
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if c.IsBusinessDay(d) {
			added++
		}
	}
	return d
}

// BusinessDaysBetween counts business days in the half-open range (from, to].
// It returns 0 when to is not after from.
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	start := c.Normalize(from)
	end := c.Normalize(to)

	count := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			count++
		}
	}
	return count
}

// BusinessDaysRemaining counts business days after today up to and including
// the deadline; 0 once the deadline is today or in the past.
func (c *Calendar) BusinessDaysRemaining(deadline time.Time) int {
	return c.BusinessDaysBetween(c.Today(), deadline)
}

// EasterSunday computes Easter Sunday for a year with the anonymous
// Gregorian algorithm, returned as midnight in loc.
func EasterSunday(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	cc := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := cc / 4
	k := cc % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
