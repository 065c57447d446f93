package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/engine/store"
)

func TestPieceworkExcess(t *testing.T) {
	tests := []struct {
		name     string
		minimum  string
		price    string
		produced string
		excess   string
		payment  string
	}{
		{name: "above quota", minimum: "25", price: "1.50", produced: "30", excess: "5", payment: "7.50"},
		{name: "below quota", minimum: "25", price: "1.50", produced: "20", excess: "0", payment: "0"},
		{name: "exactly quota", minimum: "25", price: "1.50", produced: "25", excess: "0", payment: "0"},
		{name: "negative price pays nothing", minimum: "10", price: "-2", produced: "12", excess: "2", payment: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := engine.PieceworkDayInfo{
				MinimumUnits: dec(tt.minimum),
				UnitPrice:    dec(tt.price),
				Produced:     dec(tt.produced),
			}
			assertDecimal(t, tt.excess, info.Excess())
			assertDecimal(t, tt.payment, info.ExcessPayment())
		})
	}
}

func TestSplitHours(t *testing.T) {
	normal := decimal.NewFromInt(8)
	tier1 := decimal.NewFromInt(2)

	tests := []struct {
		name    string
		hours   string
		working bool
		want    [3]string // normal, 25%, 100%
	}{
		{name: "short day", hours: "6", working: true, want: [3]string{"6", "0", "0"}},
		{name: "normal day", hours: "8", working: true, want: [3]string{"8", "0", "0"}},
		{name: "inside tier one", hours: "9.5", working: true, want: [3]string{"8", "1.5", "0"}},
		{name: "beyond tier one", hours: "12", working: true, want: [3]string{"8", "2", "2"}},
		{name: "non working day", hours: "5", working: false, want: [3]string{"0", "0", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.SplitHours(dec(tt.hours), tt.working, normal, tier1)
			assertDecimal(t, tt.want[0], got.Normal)
			assertDecimal(t, tt.want[1], got.Overtime25)
			assertDecimal(t, tt.want[2], got.Overtime100)
			assertDecimal(t, tt.hours, got.Total())
		})
	}
}

func newAggregator(mem *store.Memory) *engine.AttendanceAggregator {
	return &engine.AttendanceAggregator{Activity: mem, Calendar: engine.NewWorkCalendar(mem, mem)}
}

func TestAggregate_CountsWorkingDaysAndHolidays(t *testing.T) {
	// GIVEN a Monday-Friday company with a holiday on Thursday March 19
	mem := store.NewMemory()
	settings := seedCompany(mem)
	mem.AddHoliday(engine.Holiday{ID: "h1", SubsidiaryID: testSubsidiary, Date: engine.NewDate(2026, time.March, 19), Name: "Founders"})

	// AND an employee who works 8h on Monday and Tuesday, 11h on the holiday
	// and 4h on Saturday
	mem.AddActivity(
		engine.ActivityRecord{ID: "a1", EmployeeID: "emp-01", Date: engine.NewDate(2026, time.March, 2), Hours: dec("8"), Qualifying: true},
		engine.ActivityRecord{ID: "a2", EmployeeID: "emp-01", Date: engine.NewDate(2026, time.March, 3), Hours: dec("10"), Qualifying: true},
		engine.ActivityRecord{ID: "a3", EmployeeID: "emp-01", Date: engine.NewDate(2026, time.March, 19), Hours: dec("11"), Qualifying: true},
		engine.ActivityRecord{ID: "a4", EmployeeID: "emp-01", Date: engine.NewDate(2026, time.March, 7), Hours: dec("4"), Qualifying: true},
	)

	// WHEN the timeline is aggregated
	tl, err := newAggregator(mem).Aggregate(context.Background(), testSubsidiary, "emp-01", march2026, settings)
	require.NoError(t, err)

	// THEN the holiday is not a working day
	assert.Equal(t, 21, tl.WorkingDays)
	assert.Equal(t, 4, tl.DaysWorked)
	assert.Equal(t, 2, tl.WorkingDaysWorked)
	assert.False(t, tl.Complete())
	assert.Len(t, tl.Days, 31)

	// AND holiday and weekend hours all count at 100%
	assertDecimal(t, "16", tl.Hours.Normal)
	assertDecimal(t, "2", tl.Hours.Overtime25)
	assertDecimal(t, "15", tl.Hours.Overtime100)

	holiday := tl.Days[18]
	assert.True(t, holiday.Calendar.Holiday)
	assert.False(t, holiday.Calendar.Working)
	assert.True(t, tl.Days[0].Calendar.Sunday)
}

func TestAggregate_IgnoresNonQualifyingRecords(t *testing.T) {
	// GIVEN a leave record and a worked record on the same day
	mem := store.NewMemory()
	settings := seedCompany(mem)
	day := engine.NewDate(2026, time.March, 4)
	mem.AddActivity(
		engine.ActivityRecord{ID: "leave", EmployeeID: "emp-01", Date: day, Hours: dec("8"), Qualifying: false},
		engine.ActivityRecord{ID: "sick", EmployeeID: "emp-01", Date: day.AddDays(1), Hours: dec("8"), Qualifying: false},
		engine.ActivityRecord{ID: "work", EmployeeID: "emp-01", Date: day, Hours: dec("3"), Productivity: dec("40"), Qualifying: true},
	)

	// WHEN the timeline is aggregated
	tl, err := newAggregator(mem).Aggregate(context.Background(), testSubsidiary, "emp-01", march2026, settings)
	require.NoError(t, err)

	// THEN only the qualifying record counts
	assert.Equal(t, 1, tl.DaysWorked)
	assertDecimal(t, "3", tl.Hours.Total())
	assertDecimal(t, "40", tl.Days[3].Productivity)
	assert.False(t, tl.Days[4].Worked)
}

func TestAggregate_FoldsPieceworkPerDay(t *testing.T) {
	// GIVEN two piecework records on the same day
	mem := store.NewMemory()
	settings := seedCompany(mem)
	day := engine.NewDate(2026, time.March, 10)
	count := func(produced string) *engine.PieceworkCount {
		return &engine.PieceworkCount{MinimumUnits: dec("25"), UnitPrice: dec("1.50"), Produced: dec(produced)}
	}
	mem.AddActivity(
		engine.ActivityRecord{ID: "p1", EmployeeID: "emp-01", Date: day, Hours: dec("4"), Qualifying: true, Piecework: count("18")},
		engine.ActivityRecord{ID: "p2", EmployeeID: "emp-01", Date: day, Hours: dec("4"), Qualifying: true, Piecework: count("12")},
	)

	// WHEN the timeline is aggregated
	tl, err := newAggregator(mem).Aggregate(context.Background(), testSubsidiary, "emp-01", march2026, settings)
	require.NoError(t, err)

	// THEN production is summed against a single daily quota
	days := tl.PieceworkDays()
	require.Len(t, days, 1)
	assertDecimal(t, "30", days[0].Produced)
	assertDecimal(t, "7.50", days[0].ExcessPayment())
}

func TestAggregate_NegativeInputFailsEmployee(t *testing.T) {
	// GIVEN a record with negative hours
	mem := store.NewMemory()
	settings := seedCompany(mem)
	mem.AddActivity(engine.ActivityRecord{ID: "bad", EmployeeID: "emp-01", Date: engine.NewDate(2026, time.March, 2), Hours: dec("-1"), Qualifying: true})

	// WHEN the timeline is aggregated
	_, err := newAggregator(mem).Aggregate(context.Background(), testSubsidiary, "emp-01", march2026, settings)

	// THEN the employee fails with a calculation error
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrCalculation)
	assert.ErrorIs(t, err, engine.ErrNegativeInput)
	assert.True(t, engine.IsEmployeeScoped(err))
}

func TestAggregate_IgnoresRecordsOutsidePeriod(t *testing.T) {
	// GIVEN a negative record in February only
	mem := store.NewMemory()
	settings := seedCompany(mem)
	mem.AddActivity(engine.ActivityRecord{ID: "feb", EmployeeID: "emp-01", Date: engine.NewDate(2026, time.February, 27), Hours: dec("-4"), Qualifying: true})

	// WHEN March is aggregated
	tl, err := newAggregator(mem).Aggregate(context.Background(), testSubsidiary, "emp-01", march2026, settings)

	// THEN the record does not matter
	require.NoError(t, err)
	assert.Equal(t, 0, tl.DaysWorked)
	assert.Equal(t, 22, tl.WorkingDays)
}

func TestAggregate_InvalidPeriod(t *testing.T) {
	mem := store.NewMemory()
	settings := seedCompany(mem)
	period := engine.Period{Start: engine.NewDate(2026, time.March, 10), End: engine.NewDate(2026, time.March, 1)}

	_, err := newAggregator(mem).Aggregate(context.Background(), testSubsidiary, "emp-01", period, settings)

	assert.ErrorIs(t, err, engine.ErrInvalidPeriod)
}
