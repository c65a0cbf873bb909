package rollup

import (
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
	"github.com/odyssey-erp/odyssey-rollup/internal/shared"
)

// Supported dimension names.
const (
	DimMonth         = "month"
	DimYear          = "year"
	DimVendor        = "vendor"
	DimClient        = "client"
	DimPaymentMethod = "payment_method"
	DimProvider      = "provider"
	DimBrand         = "brand"
	DimSeason        = "season"
	DimStore         = "store"
)

// DimensionNames lists every supported dimension in display order.
var DimensionNames = []string{DimMonth, DimYear, DimVendor, DimClient, DimPaymentMethod, DimProvider, DimBrand, DimSeason, DimStore}

// Dimension bundles the key extraction, labelling and default order of an
// aggregation axis.
type Dimension struct {
	Name  string
	Key   KeyFunc
	Label func(key string) string
	Sort  SortOrder
}

// Table is the result of grouping a record set along one dimension.
type Table struct {
	Dimension string   `json:"dimension"`
	Rollups   []Rollup `json:"rollups"`
	// Dropped counts records whose key could not be resolved.
	Dropped int `json:"dropped"`
	// Totals cover every input record, dropped ones included.
	Totals Totals `json:"totals"`
}

// Build groups records along dim.
func Build(records []erp.Record, dim Dimension) Table {
	rollups, dropped := groupBy(records, dim.Key, Options{Label: dim.Label, Sort: dim.Sort})
	return Table{
		Dimension: dim.Name,
		Rollups:   rollups,
		Dropped:   dropped,
		Totals:    ComputeTotals(records),
	}
}

// Labeler resolves dimension presets against one snapshot's masters.
type Labeler struct {
	Catalog *erp.Catalog
	Vendors dedup.ConsolidationMap
}

// Dimension returns the preset called name. With consolidate set the vendor
// axis groups by representative id and labels with the representative's name.
func (l Labeler) Dimension(name string, consolidate bool) (Dimension, error) {
	switch name {
	case DimMonth:
		return Dimension{Name: name, Key: monthKey, Sort: ByKeyAsc}, nil
	case DimYear:
		return Dimension{Name: name, Key: yearKey, Sort: ByKeyAsc}, nil
	case DimVendor:
		if consolidate {
			return Dimension{
				Name: name,
				Key: func(r erp.Record) (string, bool) {
					return idKey(l.Vendors.Resolve(r.VendorID))
				},
				Label: func(key string) string {
					id, _ := strconv.ParseInt(key, 10, 64)
					if n, ok := l.Vendors.Name(id); ok && n != "" {
						return n
					}
					return l.Catalog.Name(erp.EntityVendor, id)
				},
			}, nil
		}
		return l.entity(name, erp.EntityVendor, func(r erp.Record) int64 { return r.VendorID }), nil
	case DimClient:
		return l.entity(name, erp.EntityClient, func(r erp.Record) int64 { return r.ClientID }), nil
	case DimPaymentMethod:
		return l.entity(name, erp.EntityPaymentMethod, func(r erp.Record) int64 { return r.PaymentMethodID }), nil
	case DimProvider:
		return l.entity(name, erp.EntityProvider, func(r erp.Record) int64 { return r.ProviderID }), nil
	case DimBrand:
		return l.entity(name, erp.EntityBrand, func(r erp.Record) int64 { return r.BrandID }), nil
	case DimSeason:
		return l.entity(name, erp.EntitySeason, func(r erp.Record) int64 { return r.SeasonID }), nil
	case DimStore:
		return l.entity(name, erp.EntityStore, func(r erp.Record) int64 { return r.StoreID }), nil
	}
	return Dimension{}, fmt.Errorf("%w: %q", shared.ErrUnknownDimension, name)
}

func (l Labeler) entity(name string, kind erp.EntityKind, field func(erp.Record) int64) Dimension {
	return Dimension{
		Name: name,
		Key: func(r erp.Record) (string, bool) {
			return idKey(field(r))
		},
		Label: func(key string) string {
			id, _ := strconv.ParseInt(key, 10, 64)
			return l.Catalog.Name(kind, id)
		},
	}
}

func idKey(id int64) (string, bool) {
	if id <= 0 {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

func monthKey(r erp.Record) (string, bool) {
	return r.Period()
}

func yearKey(r erp.Record) (string, bool) {
	y, ok := r.FiscalYear()
	if !ok {
		return "", false
	}
	return strconv.Itoa(y), true
}

// FillMonths inserts zero rollups for months missing between from and to
// (YYYY-MM, either may be blank) and returns the series in chronological
// order. Existing rollups outside the range are kept.
func FillMonths(rollups []Rollup, from, to string) []Rollup {
	byKey := make(map[string]Rollup, len(rollups))
	var first, last time.Time
	track := func(key string) {
		t, err := time.Parse("2006-01", key)
		if err != nil {
			return
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	for _, r := range rollups {
		byKey[r.Key] = r
		track(r.Key)
	}
	track(from)
	track(to)

	out := make([]Rollup, 0, len(rollups))
	if !first.IsZero() {
		for cur := first; !cur.After(last); cur = cur.AddDate(0, 1, 0) {
			key := cur.Format("2006-01")
			if r, ok := byKey[key]; ok {
				out = append(out, r)
				delete(byKey, key)
				continue
			}
			out = append(out, Rollup{Key: key, Label: key})
		}
	}
	for _, r := range byKey {
		out = append(out, r)
	}
	Sort(out, ByKeyAsc)
	return out
}
