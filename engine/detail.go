package engine

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAY DETAIL - One per (pay run, employee)
// =============================================================================

// PayDetail is produced only by the orchestrator and never edited. It holds
// no timestamps, so the same inputs always serialise to the same bytes.
type PayDetail struct {
	RunID             RunID         `json:"run_id"`
	EmployeeID        EmployeeID    `json:"employee_id"`
	DaysWorked        int           `json:"days_worked"`
	WorkingDaysWorked int           `json:"working_days_worked"`
	TotalWorkingDays  int           `json:"total_working_days"`
	Hours             HourBreakdown `json:"hours"`

	TotalIncome                decimal.Decimal `json:"total_income"`
	TotalDeductions            decimal.Decimal `json:"total_deductions"`
	TotalEmployerContributions decimal.Decimal `json:"total_employer_contributions"`
	NetToPay                   decimal.Decimal `json:"net_to_pay"`

	// Concepts maps code to its rounded amount. Applied lists the codes in
	// evaluation order.
	Concepts map[ConceptCode]decimal.Decimal `json:"concepts"`
	Applied  []ConceptCode                   `json:"applied"`

	Days []DayBreakdown `json:"days"`
}

// DayBreakdown is the per-day part of a pay detail.
type DayBreakdown struct {
	Date         Date            `json:"date"`
	Hours        HourBreakdown   `json:"hours"`
	Productivity decimal.Decimal `json:"productivity"`
	Working      bool            `json:"working"`
	Holiday      bool            `json:"holiday"`
	Sunday       bool            `json:"sunday"`
	Worked       bool            `json:"worked"`

	PieceworkExcess  *decimal.Decimal `json:"piecework_excess,omitempty"`
	PieceworkPayment *decimal.Decimal `json:"piecework_payment,omitempty"`
}

func dayBreakdowns(tl Timeline) []DayBreakdown {
	days := make([]DayBreakdown, 0, len(tl.Days))
	for _, d := range tl.Days {
		b := DayBreakdown{
			Date:         d.Date,
			Hours:        d.Hours,
			Productivity: d.Productivity,
			Working:      d.Calendar.Working,
			Holiday:      d.Calendar.Holiday,
			Sunday:       d.Calendar.Sunday,
			Worked:       d.Worked,
		}
		if d.Piecework != nil {
			excess := d.Piecework.Excess()
			payment := d.Piecework.ExcessPayment()
			b.PieceworkExcess = &excess
			b.PieceworkPayment = &payment
		}
		days = append(days, b)
	}
	return days
}

// NetMatches reports whether NetToPay equals TotalIncome - TotalDeductions.
func (d PayDetail) NetMatches() bool {
	return d.NetToPay.Equal(d.TotalIncome.Sub(d.TotalDeductions))
}

// Marshal returns the canonical JSON encoding of the detail.
func (d PayDetail) Marshal() ([]byte, error) {
	return json.Marshal(d)
}
