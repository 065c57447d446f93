/*
presets.go - Pre-built concept configurations

PURPOSE:
  JSON concept sets for common payroll setups, ready for
  factory.ParseConcepts. They are built as JSON directly so this package
  does not import the factory package.

AVAILABLE PRESETS:
  StandardConceptsJSON:  Every concept family, for salaried office staff
  PieceworkConceptsJSON: Salary plus piecework excess and statutory items

PRIORITIES:
  Income concepts run first (10-50) so that percentage-of-income concepts
  (100+) see the full income.
*/
package concepts

import "encoding/json"

type presetConcept struct {
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Category  string            `json:"category"`
	ValueKind string            `json:"value_kind"`
	Value     string            `json:"value"`
	Priority  int               `json:"priority"`
	Config    map[string]string `json:"config,omitempty"`
}

func presetJSON(concepts ...presetConcept) string {
	b, _ := json.MarshalIndent(map[string]interface{}{"concepts": concepts}, "", "  ")
	return string(b)
}

// StandardConceptsJSON returns one concept per registered calculator.
func StandardConceptsJSON() string {
	return presetJSON(
		presetConcept{Code: string(CodeBaseSalary), Name: "Base salary", Category: "income", ValueKind: "fixed", Value: "0", Priority: 10},
		presetConcept{Code: string(CodeOvertime), Name: "Overtime", Category: "income", ValueKind: "percentage", Value: "0", Priority: 20,
			Config: map[string]string{ConfigTier1Premium: "0.25", ConfigTier2Premium: "1.00"}},
		presetConcept{Code: string(CodePieceworkExcess), Name: "Piecework excess", Category: "income", ValueKind: "fixed", Value: "0", Priority: 30},
		presetConcept{Code: string(CodeProductivityBonus), Name: "Productivity bonus", Category: "income", ValueKind: "fixed", Value: "15", Priority: 40,
			Config: map[string]string{ConfigThreshold: "100"}},
		presetConcept{Code: string(CodeFamilyAllowance), Name: "Family allowance", Category: "income", ValueKind: "fixed", Value: "50", Priority: 50},
		presetConcept{Code: string(CodeRetirement), Name: "Retirement fund", Category: "retirement", ValueKind: "percentage", Value: "10", Priority: 100},
		presetConcept{Code: string(CodeHealth), Name: "Health plan", Category: "deduction", ValueKind: "percentage", Value: "7", Priority: 110},
		presetConcept{Code: string(CodeInsurance), Name: "Unemployment insurance", Category: "employee_contribution", ValueKind: "percentage", Value: "0.6", Priority: 120},
		presetConcept{Code: string(CodeEmployerHealth), Name: "Employer health share", Category: "employer_contribution", ValueKind: "percentage", Value: "2.4", Priority: 130},
	)
}

// PieceworkConceptsJSON returns the concept set for crews paid by output.
func PieceworkConceptsJSON() string {
	return presetJSON(
		presetConcept{Code: string(CodeBaseSalary), Name: "Base salary", Category: "income", ValueKind: "fixed", Value: "0", Priority: 10},
		presetConcept{Code: string(CodePieceworkExcess), Name: "Piecework excess", Category: "income", ValueKind: "fixed", Value: "0", Priority: 30},
		presetConcept{Code: string(CodeRetirement), Name: "Retirement fund", Category: "retirement", ValueKind: "percentage", Value: "10", Priority: 100},
		presetConcept{Code: string(CodeHealth), Name: "Health plan", Category: "deduction", ValueKind: "percentage", Value: "7", Priority: 110},
	)
}
