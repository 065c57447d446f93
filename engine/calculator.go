package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONCEPT CALCULATOR - Strategy for one concept code
// =============================================================================

// ConceptCalculator computes the amount of exactly one concept code.
// Calculate must be pure: no side effects, no I/O, and no data beyond the
// context and the concept definition.
type ConceptCalculator interface {
	Code() ConceptCode
	Calculate(pctx EmployeePayrollContext, concept ConceptDefinition) (decimal.Decimal, error)
}

// CalculatorFunc adapts a function into a ConceptCalculator.
type CalculatorFunc struct {
	ConceptCode ConceptCode
	Fn          func(EmployeePayrollContext, ConceptDefinition) (decimal.Decimal, error)
}

func (f CalculatorFunc) Code() ConceptCode { return f.ConceptCode }

func (f CalculatorFunc) Calculate(pctx EmployeePayrollContext, concept ConceptDefinition) (decimal.Decimal, error) {
	return f.Fn(pctx, concept)
}

// =============================================================================
// REGISTRY - Static map from concept code to calculator
// =============================================================================

// Registry is built once from an explicit list of calculators and is
// read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	calculators map[ConceptCode]ConceptCalculator
}

// NewRegistry rejects two calculators claiming the same code.
func NewRegistry(calculators ...ConceptCalculator) (*Registry, error) {
	r := &Registry{calculators: make(map[ConceptCode]ConceptCalculator, len(calculators))}
	for _, c := range calculators {
		code := c.Code()
		if code == "" {
			return nil, &ConfigurationError{Reason: "calculator declares an empty concept code"}
		}
		if _, dup := r.calculators[code]; dup {
			return nil, &ConfigurationError{ConceptCode: code, Reason: "two calculators registered for the same code"}
		}
		r.calculators[code] = c
	}
	return r, nil
}

// Resolve returns the calculator for code, or a ConfigurationError.
func (r *Registry) Resolve(code ConceptCode) (ConceptCalculator, error) {
	c, ok := r.calculators[code]
	if !ok {
		return nil, &ConfigurationError{ConceptCode: code, Reason: "no calculator registered"}
	}
	return c, nil
}

// Validate checks that every configured concept has a calculator.
func (r *Registry) Validate(concepts []ConceptDefinition) error {
	for _, c := range concepts {
		if _, err := r.Resolve(c.Code); err != nil {
			return err
		}
	}
	return nil
}

// Codes returns the registered codes in ascending order.
func (r *Registry) Codes() []ConceptCode {
	codes := make([]ConceptCode, 0, len(r.calculators))
	for code := range r.calculators {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func (r *Registry) Len() int { return len(r.calculators) }

func (r *Registry) String() string {
	return fmt.Sprintf("Registry%v", r.Codes())
}
