/*
attendance.go - Folding raw activity into a per-day work timeline

PURPOSE:
  Turns an employee's activity records and the calendar classification of each
  day in the period into a Timeline: working days, worked days, per-day
  productivity and piecework, and normal/overtime hour totals.

WORKED VS WORKING:
  "Working" comes from the calendar: the company expects attendance that day.
  "Worked" comes from activity: at least one qualifying record exists.
  They are independent, so a calculator can pay premiums for a worked
  holiday or prorate salary for an unworked working day.

HOUR BUCKETS:
  On a working day:        first NormalDailyHours      -> Normal
                           next  OvertimeTier1Hours    -> Overtime25
                           remainder                   -> Overtime100
  On a non-working day or holiday, every hour          -> Overtime100

SEE ALSO:
  - calendar.go: Day classification
  - context.go: Builds the EmployeePayrollContext around a Timeline
*/
package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ActivityRecord is one raw attendance or task entry.
type ActivityRecord struct {
	ID           string
	EmployeeID   EmployeeID
	Date         Date
	Hours        decimal.Decimal
	Productivity decimal.Decimal // Generic score, or units for piecework
	Qualifying   bool            // false for entries that do not count as work (e.g. leave)
	Piecework    *PieceworkCount
}

// HourBreakdown is the normal / overtime split of worked hours.
type HourBreakdown struct {
	Normal      decimal.Decimal `json:"normal"`
	Overtime25  decimal.Decimal `json:"overtime_25"`
	Overtime100 decimal.Decimal `json:"overtime_100"`
}

func (h HourBreakdown) Add(other HourBreakdown) HourBreakdown {
	return HourBreakdown{
		Normal:      h.Normal.Add(other.Normal),
		Overtime25:  h.Overtime25.Add(other.Overtime25),
		Overtime100: h.Overtime100.Add(other.Overtime100),
	}
}

func (h HourBreakdown) Total() decimal.Decimal {
	return h.Normal.Add(h.Overtime25).Add(h.Overtime100)
}

// SplitHours assigns one day's hours to buckets.
func SplitHours(hours decimal.Decimal, working bool, normalDaily, tier1 decimal.Decimal) HourBreakdown {
	if !working {
		return HourBreakdown{Overtime100: hours}
	}
	normal := decimal.Min(hours, normalDaily)
	rest := hours.Sub(normal)
	ot25 := decimal.Min(rest, tier1)
	return HourBreakdown{
		Normal:      normal,
		Overtime25:  ot25,
		Overtime100: rest.Sub(ot25),
	}
}

// DayEntry is the timeline view of one calendar day.
type DayEntry struct {
	Date         Date
	Calendar     WorkCalendarDayInfo
	Worked       bool
	Hours        HourBreakdown
	Productivity decimal.Decimal
	Piecework    *PieceworkDayInfo
}

// Timeline is the attendance picture of one employee over one period.
type Timeline struct {
	Period            Period
	Days              []DayEntry
	WorkingDays       int // Calendar working days in the period
	DaysWorked        int // Days with qualifying activity, any classification
	WorkingDaysWorked int // Worked days that are also working days
	Hours             HourBreakdown
}

// Complete reports whether every working day was worked.
func (t Timeline) Complete() bool {
	return t.WorkingDaysWorked >= t.WorkingDays
}

// PieceworkDays returns the piecework info of every day that has some.
func (t Timeline) PieceworkDays() []PieceworkDayInfo {
	var out []PieceworkDayInfo
	for _, d := range t.Days {
		if d.Piecework != nil {
			out = append(out, *d.Piecework)
		}
	}
	return out
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type AttendanceAggregator struct {
	Activity ActivitySource
	Calendar CalendarSource
}

// Aggregate builds the timeline of one employee. Collaborator failures come
// back as TransientIOError; invalid records as CalculationError.
func (a *AttendanceAggregator) Aggregate(ctx context.Context, subsidiary SubsidiaryID, employee EmployeeID, period Period, settings CompanySettings) (Timeline, error) {
	if err := period.Validate(); err != nil {
		return Timeline{}, err
	}
	records, err := a.load(ctx, employee, period)
	if err != nil {
		return Timeline{}, err
	}

	byDate := make(map[Date][]ActivityRecord)
	for _, r := range records {
		if !period.Contains(r.Date) {
			continue
		}
		if r.Hours.IsNegative() || r.Productivity.IsNegative() ||
			(r.Piecework != nil && (r.Piecework.Produced.IsNegative() || r.Piecework.MinimumUnits.IsNegative())) {
			return Timeline{}, &CalculationError{
				EmployeeID: employee,
				Err:        fmt.Errorf("record %s on %s: %w", r.ID, r.Date, ErrNegativeInput),
			}
		}
		byDate[r.Date] = append(byDate[r.Date], r)
	}

	settings = settings.WithDefaults()
	tl := Timeline{Period: period}
	for _, date := range period.Days() {
		info, err := a.Calendar.ClassifyDate(ctx, subsidiary, date)
		if err != nil {
			return Timeline{}, asTransient("classify date", err)
		}
		entry := foldDay(date, info, byDate[date], settings)

		if info.Working {
			tl.WorkingDays++
		}
		if entry.Worked {
			tl.DaysWorked++
			if info.Working {
				tl.WorkingDaysWorked++
			}
		}
		tl.Hours = tl.Hours.Add(entry.Hours)
		tl.Days = append(tl.Days, entry)
	}
	return tl, nil
}

func foldDay(date Date, info WorkCalendarDayInfo, records []ActivityRecord, settings CompanySettings) DayEntry {
	entry := DayEntry{Date: date, Calendar: info}
	hours := decimal.Zero
	for _, r := range records {
		if !r.Qualifying {
			continue
		}
		entry.Worked = true
		hours = hours.Add(r.Hours)
		entry.Productivity = entry.Productivity.Add(r.Productivity)
		if r.Piecework != nil {
			if entry.Piecework == nil {
				entry.Piecework = &PieceworkDayInfo{
					Date:         date,
					MinimumUnits: r.Piecework.MinimumUnits,
					UnitPrice:    r.Piecework.UnitPrice,
				}
			}
			entry.Piecework.Produced = entry.Piecework.Produced.Add(r.Piecework.Produced)
		}
	}
	if entry.Worked {
		entry.Hours = SplitHours(hours, info.Working, settings.NormalDailyHours, settings.OvertimeTier1Hours)
	}
	return entry
}

func (a *AttendanceAggregator) load(ctx context.Context, employee EmployeeID, period Period) ([]ActivityRecord, error) {
	if ranged, ok := a.Activity.(ActivityRangeSource); ok {
		records, err := ranged.LoadActivityRange(ctx, employee, period)
		if err != nil {
			return nil, asTransient("load activity range", err)
		}
		return records, nil
	}

	var records []ActivityRecord
	for _, date := range period.Days() {
		day, err := a.Activity.LoadDailyActivity(ctx, employee, date)
		if err != nil {
			return nil, asTransient("load daily activity", err)
		}
		records = append(records, day...)
	}
	return records, nil
}
