package concepts

import "github.com/warp/payroll-engine/engine"

// All lists every calculator this package provides. Adding a calculator
// means adding it here.
func All() []engine.ConceptCalculator {
	return []engine.ConceptCalculator{
		BaseSalary{},
		Overtime{},
		PieceworkExcess{},
		ProductivityBonus{},
		Retirement(),
		Health(),
		Insurance(),
		EmployerHealth(),
		FamilyAllowance{},
	}
}

// NewRegistry builds the engine registry from All plus any extra
// calculators.
func NewRegistry(extra ...engine.ConceptCalculator) (*engine.Registry, error) {
	return engine.NewRegistry(append(All(), extra...)...)
}
