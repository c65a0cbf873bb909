package dedup

import (
	"fmt"
	"math"
)

// DefaultTolerance is the largest revenue drift accepted between raw and
// consolidated totals.
const DefaultTolerance = 0.01

// Totals is the pair of figures consolidation must preserve.
type Totals struct {
	Revenue float64 `json:"revenue"`
	Count   int     `json:"count"`
}

// IntegrityError reports consolidated totals that diverge from the raw ones.
type IntegrityError struct {
	Before    Totals
	After     Totals
	Tolerance float64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("dedup: consolidation integrity failure: revenue %.2f -> %.2f, count %d -> %d",
		e.Before.Revenue, e.After.Revenue, e.Before.Count, e.After.Count)
}

// VerifyTotals returns an *IntegrityError when the counts differ or the
// revenue drifts by more than tolerance. A non-positive tolerance uses
// DefaultTolerance.
func VerifyTotals(before, after Totals, tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if before.Count != after.Count || math.Abs(before.Revenue-after.Revenue) > tolerance {
		return &IntegrityError{Before: before, After: after, Tolerance: tolerance}
	}
	return nil
}
