package engine

import (
	"context"
	"time"
)

// =============================================================================
// DATE - Calendar day (payroll has no sub-day granularity)
// =============================================================================

const DateLayout = "2006-01-02"

// Date is a UTC calendar day. Always build it through NewDate, DateOf or
// ParseDate so that equal days compare equal and work as map keys.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.Time.AddDate(0, 0, n)) }

// Properties
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsSunday() bool        { return d.Weekday() == time.Sunday }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) String() string        { return d.Time.Format(DateLayout) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// HOLIDAY CALENDAR - Subsidiary-specific holidays
// =============================================================================

// Holiday is a non-working public or company holiday.
type Holiday struct {
	ID           string
	SubsidiaryID SubsidiaryID // Empty = applies to every subsidiary
	Date         Date
	Name         string
	Recurring    bool // true = same month/day every year
}

// Matches reports whether the holiday falls on date for the given subsidiary.
func (h Holiday) Matches(subsidiary SubsidiaryID, date Date) bool {
	if h.SubsidiaryID != "" && h.SubsidiaryID != subsidiary {
		return false
	}
	if h.Recurring {
		return h.Date.Time.Month() == date.Time.Month() && h.Date.Time.Day() == date.Time.Day()
	}
	return h.Date.Equal(date)
}

// HolidayCalendar answers holiday lookups. Subsidiary-specific holidays and
// global holidays (empty SubsidiaryID) both count.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, subsidiary SubsidiaryID, date Date) (bool, error)
}

// NoHolidays is a calendar without holidays.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(context.Context, SubsidiaryID, Date) (bool, error) { return false, nil }

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return DateOf(time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1))
}
