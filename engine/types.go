/*
Package engine provides the payroll calculation engine.

PURPOSE:
  This package contains the types and algorithms that turn per-day attendance
  records, a configured set of pay concepts and calendar metadata into one
  pay detail per employee per pay run. Concrete concept calculators live in
  the concepts package; persistence lives behind the interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: Type-safe IDs for employees, subsidiaries, runs and concepts
  - Category: Which accumulator a concept feeds (income, deductions, employer)
  - ConceptDefinition: A configured pay component with value and priority
  - Money helpers: decimal rounding and clamping used by every calculator

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money and hours, never float64
  2. Purity: Calculators read a context and return an amount, nothing else
  3. Determinism: Same inputs produce byte-identical pay details
  4. Category, not sign: Buckets are chosen by category, amounts never negative

USAGE:
  registry, err := engine.NewRegistry(concepts.All()...)
  orch := &engine.Orchestrator{Registry: registry}
  detail, err := orch.Compute(pctx)

SEE ALSO:
  - calculator.go: ConceptCalculator interface and registry
  - orchestrator.go: Priority-ordered evaluation
  - job.go: Chunked pipeline driving a whole pay run
*/
package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type SubsidiaryID string
type RunID string
type ConceptCode string

// =============================================================================
// CONCEPT CATEGORY - Decides the accumulator a concept feeds
// =============================================================================

type Category string

const (
	CategoryIncome               Category = "income"
	CategoryDeduction            Category = "deduction"
	CategoryRetirement           Category = "retirement"
	CategoryEmployeeContribution Category = "employee_contribution"
	CategoryEmployerContribution Category = "employer_contribution"
)

// Bucket is the accumulator a category belongs to.
type Bucket int

const (
	BucketIncome Bucket = iota
	BucketDeductions
	BucketEmployerContributions
)

// Bucket maps a category to its accumulator. Retirement and employee
// contributions are withheld from the employee, so they count as deductions.
func (c Category) Bucket() (Bucket, bool) {
	switch c {
	case CategoryIncome:
		return BucketIncome, true
	case CategoryDeduction, CategoryRetirement, CategoryEmployeeContribution:
		return BucketDeductions, true
	case CategoryEmployerContribution:
		return BucketEmployerContributions, true
	default:
		return 0, false
	}
}

func (c Category) Valid() bool {
	_, ok := c.Bucket()
	return ok
}

// ValueKind describes how a concept's Value is interpreted by its calculator.
type ValueKind string

const (
	ValueFixed      ValueKind = "fixed"
	ValuePercentage ValueKind = "percentage"
)

// =============================================================================
// CONCEPT DEFINITION - Configured pay component (read-only to the engine)
// =============================================================================

// ConceptDefinition is owned by configuration management. The engine only
// reads it: calculators get it alongside the context.
type ConceptDefinition struct {
	Code      ConceptCode
	Name      string
	Category  Category
	ValueKind ValueKind
	Value     decimal.Decimal
	Priority  int               // Lower runs first
	Config    map[string]string // Category-specific options (e.g. "threshold")
}

// ConfigDecimal reads a decimal option from Config, returning fallback when
// the key is absent or malformed.
func (c ConceptDefinition) ConfigDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := c.Config[key]
	if !ok {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fallback
	}
	return d
}

// SortConcepts returns concepts ordered by ascending priority, ties broken by
// code. The input slice is not modified.
func SortConcepts(concepts []ConceptDefinition) []ConceptDefinition {
	sorted := make([]ConceptDefinition, len(concepts))
	copy(sorted, concepts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Code < sorted[j].Code
	})
	return sorted
}

// ValidateConcepts checks the structural rules every run configuration must
// satisfy: known category, non-negative priority and unique codes. Concepts
// outside the income category read the accumulated income, so each must have
// a priority above every income concept.
func ValidateConcepts(concepts []ConceptDefinition) error {
	seen := make(map[ConceptCode]bool, len(concepts))
	lastIncome := -1
	for _, c := range concepts {
		if c.Code == "" {
			return &ConfigurationError{Reason: "concept code is empty"}
		}
		if seen[c.Code] {
			return &ConfigurationError{ConceptCode: c.Code, Reason: "concept configured twice"}
		}
		seen[c.Code] = true
		if !c.Category.Valid() {
			return &ConfigurationError{ConceptCode: c.Code, Reason: fmt.Sprintf("unknown category %q", c.Category)}
		}
		if c.Priority < 0 {
			return &ConfigurationError{ConceptCode: c.Code, Reason: fmt.Sprintf("malformed priority %d", c.Priority)}
		}
		if c.Category == CategoryIncome && c.Priority > lastIncome {
			lastIncome = c.Priority
		}
	}
	for _, c := range concepts {
		if c.Category != CategoryIncome && c.Priority <= lastIncome {
			return &ConfigurationError{ConceptCode: c.Code, Reason: fmt.Sprintf(
				"%s concept has priority %d but income is still accumulated at priority %d", c.Category, c.Priority, lastIncome)}
		}
	}
	return nil
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// MoneyPlaces is the currency precision applied to every concept amount.
const MoneyPlaces = 2

func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// NonNegative clamps d to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
