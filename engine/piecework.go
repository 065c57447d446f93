package engine

import "github.com/shopspring/decimal"

// =============================================================================
// PIECEWORK - Production beyond a daily quota
// =============================================================================

// PieceworkCount is the piecework part of one activity record.
type PieceworkCount struct {
	MinimumUnits decimal.Decimal `json:"minimum_units"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Produced     decimal.Decimal `json:"produced"`
}

// PieceworkDayInfo is the folded piecework figure for one employee on one day.
type PieceworkDayInfo struct {
	Date         Date            `json:"date"`
	MinimumUnits decimal.Decimal `json:"minimum_units"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Produced     decimal.Decimal `json:"produced"`
}

// Excess is max(0, Produced - MinimumUnits).
func (p PieceworkDayInfo) Excess() decimal.Decimal {
	return NonNegative(p.Produced.Sub(p.MinimumUnits))
}

// ExcessPayment is Excess multiplied by the unit price. A negative unit price
// pays nothing.
func (p PieceworkDayInfo) ExcessPayment() decimal.Decimal {
	return p.Excess().Mul(NonNegative(p.UnitPrice))
}
