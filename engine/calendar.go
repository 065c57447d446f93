package engine

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// WORK CALENDAR - Working / holiday / non-working classification
// =============================================================================

// WorkCalendarDayInfo is the immutable classification of one date for one
// subsidiary.
type WorkCalendarDayInfo struct {
	Date    Date
	Working bool
	Holiday bool
	Sunday  bool
	Weekday time.Weekday
}

// DefaultNonWorkingDays applies when a subsidiary configures no work week.
var DefaultNonWorkingDays = []time.Weekday{time.Saturday, time.Sunday}

// WorkCalendar implements CalendarSource from a holiday calendar and each
// subsidiary's non-working weekdays. Classifications are computed once per
// (subsidiary, date) and cached.
type WorkCalendar struct {
	Holidays  HolidayCalendar
	Companies CompanySource

	mu       sync.RWMutex
	days     map[calendarKey]WorkCalendarDayInfo
	weekends map[SubsidiaryID]map[time.Weekday]bool
}

type calendarKey struct {
	Subsidiary SubsidiaryID
	Date       Date
}

func NewWorkCalendar(holidays HolidayCalendar, companies CompanySource) *WorkCalendar {
	if holidays == nil {
		holidays = NoHolidays{}
	}
	return &WorkCalendar{
		Holidays:  holidays,
		Companies: companies,
		days:      make(map[calendarKey]WorkCalendarDayInfo),
		weekends:  make(map[SubsidiaryID]map[time.Weekday]bool),
	}
}

// ClassifyDate returns the cached classification, computing it on first use.
func (wc *WorkCalendar) ClassifyDate(ctx context.Context, subsidiary SubsidiaryID, date Date) (WorkCalendarDayInfo, error) {
	key := calendarKey{Subsidiary: subsidiary, Date: date}

	wc.mu.RLock()
	info, ok := wc.days[key]
	wc.mu.RUnlock()
	if ok {
		return info, nil
	}

	nonWorking, err := wc.nonWorkingDays(ctx, subsidiary)
	if err != nil {
		return WorkCalendarDayInfo{}, err
	}
	holiday, err := wc.Holidays.IsHoliday(ctx, subsidiary, date)
	if err != nil {
		return WorkCalendarDayInfo{}, Transient("holiday lookup", err)
	}

	info = Classify(date, holiday, nonWorking)

	wc.mu.Lock()
	wc.days[key] = info
	wc.mu.Unlock()
	return info, nil
}

// Classify builds the day info for a date. A holiday is never a working day;
// otherwise the weekday decides.
func Classify(date Date, holiday bool, nonWorking map[time.Weekday]bool) WorkCalendarDayInfo {
	wd := date.Weekday()
	return WorkCalendarDayInfo{
		Date:    date,
		Working: !holiday && !nonWorking[wd],
		Holiday: holiday,
		Sunday:  wd == time.Sunday,
		Weekday: wd,
	}
}

func (wc *WorkCalendar) nonWorkingDays(ctx context.Context, subsidiary SubsidiaryID) (map[time.Weekday]bool, error) {
	wc.mu.RLock()
	set, ok := wc.weekends[subsidiary]
	wc.mu.RUnlock()
	if ok {
		return set, nil
	}

	days := DefaultNonWorkingDays
	if wc.Companies != nil {
		settings, err := wc.Companies.LoadCompanySettings(ctx, subsidiary)
		if err != nil {
			return nil, err
		}
		if settings.NonWorkingDays != nil {
			days = settings.NonWorkingDays
		}
	}

	set = make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}

	wc.mu.Lock()
	wc.weekends[subsidiary] = set
	wc.mu.Unlock()
	return set, nil
}

// Invalidate drops cached classifications for a subsidiary, e.g. after its
// holidays or work week change.
func (wc *WorkCalendar) Invalidate(subsidiary SubsidiaryID) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	delete(wc.weekends, subsidiary)
	for k := range wc.days {
		if k.Subsidiary == subsidiary {
			delete(wc.days, k)
		}
	}
}

// InvalidateAll drops every cached classification. Global holidays affect
// all subsidiaries.
func (wc *WorkCalendar) InvalidateAll() {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.days = make(map[calendarKey]WorkCalendarDayInfo)
	wc.weekends = make(map[SubsidiaryID]map[time.Weekday]bool)
}
