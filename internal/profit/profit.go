// Package profit recomputes line profit from revenue and cost.
//
// The ERP's stored profit column holds -unitCost rather than
// revenue - cost, so it is never read for financial figures.
package profit

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
)

// Cost returns unitCost * quantity.
func Cost(r erp.Record) float64 {
	return CostDecimal(r).InexactFloat64()
}

// CostDecimal is Cost without the float conversion.
func CostDecimal(r erp.Record) decimal.Decimal {
	return decimal.NewFromFloat(r.UnitCost).Mul(decimal.NewFromFloat(r.Quantity))
}

// Corrected returns revenue - unitCost * quantity.
func Corrected(r erp.Record) float64 {
	return CorrectedDecimal(r).InexactFloat64()
}

// CorrectedDecimal is Corrected without the float conversion.
func CorrectedDecimal(r erp.Record) decimal.Decimal {
	return decimal.NewFromFloat(r.Revenue).Sub(CostDecimal(r))
}

// MarginPct returns profit / revenue * 100, or 0 when revenue is zero.
func MarginPct(profit, revenue float64) float64 {
	if revenue == 0 {
		return 0
	}
	pct := profit / revenue * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}

// MarginPctDecimal is MarginPct over decimals.
func MarginPctDecimal(profit, revenue decimal.Decimal) float64 {
	if revenue.IsZero() {
		return 0
	}
	return profit.Div(revenue).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// StoredIsCorrupt reports whether the stored profit column carries the known
// -unitCost pattern instead of a real profit.
func StoredIsCorrupt(r erp.Record) bool {
	if r.UnitCost == 0 && r.StoredProfit == 0 {
		return false
	}
	return math.Abs(r.StoredProfit+r.UnitCost) < 0.005 &&
		math.Abs(r.StoredProfit-Corrected(r)) >= 0.005
}

// Attach returns copies of records with CorrectedProfit populated.
func Attach(records []erp.Record) []erp.Record {
	out := make([]erp.Record, len(records))
	for i, r := range records {
		r.CorrectedProfit = Corrected(r)
		out[i] = r
	}
	return out
}
