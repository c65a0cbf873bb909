// Package rollup groups filtered records along one dimension and derives
// the reporting metrics of each group.
package rollup

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
	"github.com/odyssey-erp/odyssey-rollup/internal/profit"
)

// SortOrder selects how rollups are ordered.
type SortOrder int

const (
	// ByRevenueDesc orders by revenue, largest first; ties by ascending key.
	ByRevenueDesc SortOrder = iota
	// ByKeyAsc orders by key ascending, which is chronological for YYYY-MM keys.
	ByKeyAsc
)

// KeyFunc extracts the grouping key of a record. ok=false drops the record
// from this rollup only.
type KeyFunc func(r erp.Record) (key string, ok bool)

// Options tune GroupBy.
type Options struct {
	// Label resolves a display label for a key. Defaults to the key.
	Label func(key string) string
	Sort  SortOrder
	// ShareBase overrides the denominator of SharePct. Zero uses the sum of
	// all group revenues.
	ShareBase float64
}

// Rollup is the aggregated summary of one group.
type Rollup struct {
	Key       string  `json:"key"`
	Label     string  `json:"label"`
	Revenue   float64 `json:"revenue"`
	Cost      float64 `json:"cost"`
	Profit    float64 `json:"profit"`
	Quantity  float64 `json:"quantity"`
	Count     int     `json:"count"`
	Invoices  int     `json:"invoices"`
	Products  int     `json:"products"`
	AvgTicket float64 `json:"avg_ticket"`
	MarginPct float64 `json:"margin_pct"`
	SharePct  float64 `json:"share_pct"`
}

type accumulator struct {
	key      string
	revenue  decimal.Decimal
	cost     decimal.Decimal
	profit   decimal.Decimal
	quantity decimal.Decimal
	count    int
	invoices map[int64]struct{}
	products map[int64]struct{}
}

func newAccumulator(key string) *accumulator {
	return &accumulator{
		key:      key,
		invoices: make(map[int64]struct{}),
		products: make(map[int64]struct{}),
	}
}

func (a *accumulator) add(r erp.Record) {
	a.revenue = a.revenue.Add(decimal.NewFromFloat(r.Revenue))
	a.cost = a.cost.Add(profit.CostDecimal(r))
	a.profit = a.profit.Add(profit.CorrectedDecimal(r))
	a.quantity = a.quantity.Add(decimal.NewFromFloat(r.Quantity))
	a.count++
	if inv := r.InvoiceRef(); inv != 0 {
		a.invoices[inv] = struct{}{}
	}
	if r.ArticleID != 0 {
		a.products[r.ArticleID] = struct{}{}
	}
}

// GroupBy accumulates records per key and returns the sorted rollups. An
// empty input yields an empty, non-nil slice.
func GroupBy(records []erp.Record, key KeyFunc, opts Options) []Rollup {
	rollups, _ := groupBy(records, key, opts)
	return rollups
}

func groupBy(records []erp.Record, key KeyFunc, opts Options) ([]Rollup, int) {
	groups := make(map[string]*accumulator)
	var order []string
	dropped := 0
	for _, r := range records {
		k, ok := key(r)
		if !ok {
			dropped++
			continue
		}
		acc, exists := groups[k]
		if !exists {
			acc = newAccumulator(k)
			groups[k] = acc
			order = append(order, k)
		}
		acc.add(r)
	}

	total := decimal.Zero
	for _, k := range order {
		total = total.Add(groups[k].revenue)
	}
	if opts.ShareBase != 0 {
		total = decimal.NewFromFloat(opts.ShareBase)
	}

	out := make([]Rollup, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k].finish(total, opts.Label))
	}
	Sort(out, opts.Sort)
	return out, dropped
}

var hundred = decimal.NewFromInt(100)

func (a *accumulator) finish(total decimal.Decimal, label func(string) string) Rollup {
	r := Rollup{
		Key:       a.key,
		Label:     a.key,
		Revenue:   a.revenue.InexactFloat64(),
		Cost:      a.cost.InexactFloat64(),
		Profit:    a.profit.InexactFloat64(),
		Quantity:  a.quantity.InexactFloat64(),
		Count:     a.count,
		Invoices:  len(a.invoices),
		Products:  len(a.products),
		MarginPct: profit.MarginPctDecimal(a.profit, a.revenue),
	}
	if label != nil {
		r.Label = label(a.key)
	}
	switch {
	case r.Invoices > 0:
		r.AvgTicket = a.revenue.Div(decimal.NewFromInt(int64(r.Invoices))).InexactFloat64()
	case r.Count > 0:
		r.AvgTicket = a.revenue.Div(decimal.NewFromInt(int64(r.Count))).InexactFloat64()
	}
	if !total.IsZero() {
		r.SharePct = a.revenue.Div(total).Mul(hundred).InexactFloat64()
	}
	return r
}

// Sort orders rollups in place.
func Sort(rollups []Rollup, order SortOrder) {
	sort.SliceStable(rollups, func(i, j int) bool {
		a, b := rollups[i], rollups[j]
		if order == ByRevenueDesc && a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return keyLess(a.Key, b.Key)
	})
}

// keyLess compares numerically when both keys are integers so vendor "9"
// sorts before "10".
func keyLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// Totals are grand totals over a record set.
type Totals struct {
	Revenue  float64 `json:"revenue"`
	Cost     float64 `json:"cost"`
	Profit   float64 `json:"profit"`
	Quantity float64 `json:"quantity"`
	Count    int     `json:"count"`
	Invoices int     `json:"invoices"`
	Margin   float64 `json:"margin_pct"`
}

// ComputeTotals sums every record, independent of any dimension.
func ComputeTotals(records []erp.Record) Totals {
	acc := newAccumulator("")
	for _, r := range records {
		acc.add(r)
	}
	return Totals{
		Revenue:  acc.revenue.InexactFloat64(),
		Cost:     acc.cost.InexactFloat64(),
		Profit:   acc.profit.InexactFloat64(),
		Quantity: acc.quantity.InexactFloat64(),
		Count:    acc.count,
		Invoices: len(acc.invoices),
		Margin:   profit.MarginPctDecimal(acc.profit, acc.revenue),
	}
}

// SumRollups adds up the revenue and count of a rollup list.
func SumRollups(rollups []Rollup) (revenue float64, count int) {
	sum := decimal.Zero
	for _, r := range rollups {
		sum = sum.Add(decimal.NewFromFloat(r.Revenue))
		count += r.Count
	}
	return sum.InexactFloat64(), count
}
