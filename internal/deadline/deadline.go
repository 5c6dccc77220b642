package deadline

import "time"

const (
	// ThresholdReportDays is the lodgement window for threshold transaction reports
	ThresholdReportDays = 10
	// SuspicionReportDays is the lodgement window for suspicious matter reports
	SuspicionReportDays = 3
)

// BusinessCalendar is the calendar the deadlines are computed against
type BusinessCalendar interface {
	AddBusinessDays(t time.Time, n int) time.Time
	BusinessDaysRemaining(deadline time.Time) int
	Normalize(t time.Time) time.Time
	Today() time.Time
}

// Calculator derives statutory reporting deadlines
type Calculator struct {
	cal BusinessCalendar
}

// NewCalculator creates a deadline calculator
func NewCalculator(cal BusinessCalendar) *Calculator {
	return &Calculator{cal: cal}
}

// ThresholdReportDeadline returns the Type A (TTR) deadline for a transaction date
func (c *Calculator) ThresholdReportDeadline(origin time.Time) time.Time {
	return c.cal.AddBusinessDays(origin, ThresholdReportDays)
}

// SuspicionReportDeadline returns the Type B (SMR) deadline for the date suspicion formed
func (c *Calculator) SuspicionReportDeadline(origin time.Time) time.Time {
	return c.cal.AddBusinessDays(origin, SuspicionReportDays)
}

// Remaining returns the business days left before the deadline
func (c *Calculator) Remaining(deadline time.Time) int {
	return c.cal.BusinessDaysRemaining(deadline)
}

// IsPassed returns true once the deadline date is strictly before today
func (c *Calculator) IsPassed(deadline time.Time) bool {
	return c.cal.Normalize(deadline).Before(c.cal.Today())
}

// IsApproaching returns true when the deadline has not passed and at most
// thresholdDays business days remain.
func (c *Calculator) IsApproaching(deadline time.Time, thresholdDays int) bool {
	if c.IsPassed(deadline) {
		return false
	}
	return c.Remaining(deadline) <= thresholdDays
}
