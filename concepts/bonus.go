package concepts

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/engine"
)

// ProductivityBonus pays the concept value for each worked day whose
// productivity reaches the threshold. The threshold comes from the concept
// config, falling back to the company threshold. Evaluated day by day so a
// partial period earns a partial bonus.
type ProductivityBonus struct{}

func (ProductivityBonus) Code() engine.ConceptCode { return CodeProductivityBonus }

func (ProductivityBonus) Calculate(pctx engine.EmployeePayrollContext, concept engine.ConceptDefinition) (decimal.Decimal, error) {
	threshold := concept.ConfigDecimal(ConfigThreshold, pctx.Company.ProductivityThreshold)
	perDay := engine.NonNegative(concept.Value)

	qualifying := 0
	for _, day := range pctx.Timeline.Days {
		if day.Worked && day.Productivity.GreaterThanOrEqual(threshold) {
			qualifying++
		}
	}
	return perDay.Mul(decimal.NewFromInt(int64(qualifying))), nil
}
