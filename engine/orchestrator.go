/*
orchestrator.go - Priority-ordered concept evaluation

PURPOSE:
  Runs the calculators of a context's concepts in order and folds their
  amounts into the three accumulators, producing one PayDetail.

ALGORITHM:
  1. Concepts sorted by (priority asc, code asc)
  2. For each concept: resolve calculator, invoke, round to MoneyPlaces
  3. Add the amount to the bucket of the concept's category
  4. Net = income - deductions

  Amounts are never subtracted and never negative: the category, not the
  sign, decides the bucket. A negative amount, an error or a panic fails the
  employee with a CalculationError naming the concept. There is no fallback
  value.

SEE ALSO:
  - calculator.go: Registry
  - job.go: Runs the orchestrator per employee inside a batch
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Orchestrator struct {
	Registry *Registry
}

// Compute evaluates every concept of pctx and returns the resulting detail.
func (o *Orchestrator) Compute(pctx EmployeePayrollContext) (PayDetail, error) {
	employee := pctx.Profile.EmployeeID
	concepts := SortConcepts(pctx.Concepts)
	pctx.Concepts = concepts
	pctx.Totals = Totals{}

	amounts := make(map[ConceptCode]decimal.Decimal, len(concepts))
	applied := make([]ConceptCode, 0, len(concepts))

	for _, concept := range concepts {
		calc, err := o.Registry.Resolve(concept.Code)
		if err != nil {
			return PayDetail{}, err
		}
		bucket, ok := concept.Category.Bucket()
		if !ok {
			return PayDetail{}, &ConfigurationError{ConceptCode: concept.Code, Reason: fmt.Sprintf("unknown category %q", concept.Category)}
		}

		amount, err := invoke(calc, pctx, concept)
		if err != nil {
			return PayDetail{}, &CalculationError{EmployeeID: employee, ConceptCode: concept.Code, Err: err}
		}
		amount = RoundMoney(amount)
		if amount.IsNegative() {
			return PayDetail{}, &CalculationError{
				EmployeeID:  employee,
				ConceptCode: concept.Code,
				Err:         fmt.Errorf("%w: %s", ErrNegativeAmount, amount),
			}
		}

		amounts[concept.Code] = amount
		applied = append(applied, concept.Code)
		pctx.Totals = pctx.Totals.add(bucket, amount)
	}

	tl := pctx.Timeline
	return PayDetail{
		RunID:                      pctx.RunID,
		EmployeeID:                 employee,
		DaysWorked:                 tl.DaysWorked,
		WorkingDaysWorked:          tl.WorkingDaysWorked,
		TotalWorkingDays:           tl.WorkingDays,
		Hours:                      tl.Hours,
		TotalIncome:                pctx.Totals.Income,
		TotalDeductions:            pctx.Totals.Deductions,
		TotalEmployerContributions: pctx.Totals.EmployerContributions,
		NetToPay:                   pctx.Totals.Net(),
		Concepts:                   amounts,
		Applied:                    applied,
		Days:                       dayBreakdowns(tl),
	}, nil
}

// invoke turns a calculator panic into an error.
func invoke(calc ConceptCalculator, pctx EmployeePayrollContext, concept ConceptDefinition) (amount decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calculator panicked: %v", r)
		}
	}()
	return calc.Calculate(pctx, concept)
}
