package concepts

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

var (
	defaultTier1Premium = decimal.RequireFromString("0.25")
	defaultTier2Premium = decimal.NewFromInt(1)
)

// Overtime pays overtime-25% and overtime-100% hours at the hourly rate plus
// their premium. The hourly rate is the company overtime rate when set,
// otherwise salary / (working days × normal daily hours).
type Overtime struct{}

func (Overtime) Code() engine.ConceptCode { return CodeOvertime }

func (Overtime) Calculate(pctx engine.EmployeePayrollContext, concept engine.ConceptDefinition) (decimal.Decimal, error) {
	rate := HourlyRate(pctx)
	if rate.IsZero() {
		return decimal.Zero, nil
	}
	tier1 := decimal.NewFromInt(1).Add(engine.NonNegative(concept.ConfigDecimal(ConfigTier1Premium, defaultTier1Premium)))
	tier2 := decimal.NewFromInt(1).Add(engine.NonNegative(concept.ConfigDecimal(ConfigTier2Premium, defaultTier2Premium)))

	hours := pctx.Timeline.Hours
	weighted := engine.NonNegative(hours.Overtime25).Mul(tier1).
		Add(engine.NonNegative(hours.Overtime100).Mul(tier2))
	return engine.NonNegative(rate.Mul(weighted)), nil
}

// HourlyRate is the base hourly rate used for overtime.
func HourlyRate(pctx engine.EmployeePayrollContext) decimal.Decimal {
	if pctx.Company.OvertimeRate.IsPositive() {
		return pctx.Company.OvertimeRate
	}
	company := pctx.Company.WithDefaults()
	monthlyHours := decimal.NewFromInt(int64(pctx.Timeline.WorkingDays)).Mul(company.NormalDailyHours)
	if !monthlyHours.IsPositive() {
		return decimal.Zero
	}
	return engine.NonNegative(pctx.Profile.Salary).Div(monthlyHours)
}
