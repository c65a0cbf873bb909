// Package filter evaluates a Config of ANDed predicates against a record
// stream.
package filter

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-rollup/internal/coerce"
	"github.com/odyssey-erp/odyssey-rollup/internal/dates"
	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
)

// Predicate names used as Diagnostics.Rejected keys.
const (
	PredYear          = "year"
	PredMonth         = "month"
	PredDateRange     = "date_range"
	PredStore         = "store"
	PredClient        = "client"
	PredVendor        = "vendor"
	PredPaymentMethod = "payment_method"
	PredMinAmount     = "min_amount"
	PredText          = "text"
)

// Diagnostics describes what a filter pass kept and dropped.
type Diagnostics struct {
	Input            int            `json:"input"`
	Kept             int            `json:"kept"`
	UnparseableDates int            `json:"unparseable_dates"`
	Rejected         map[string]int `json:"rejected,omitempty"`
}

type predicate struct {
	name string
	fn   func(r *erp.Record) bool
}

// Filter is a compiled Config.
type Filter struct {
	preds     []predicate
	dateRange bool
}

// Compile validates cfg and prepares its predicates.
func Compile(cfg Config) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{}

	if !IsAll(cfg.Year) {
		want, _ := coerce.Int(cfg.Year)
		f.add(PredYear, func(r *erp.Record) bool {
			y, ok := r.FiscalYear()
			return ok && y == want
		})
	}
	if !IsAll(cfg.Month) {
		want, _ := coerce.Int(cfg.Month)
		f.add(PredMonth, func(r *erp.Record) bool {
			m, ok := r.FiscalMonth()
			return ok && m == want
		})
	}
	if !IsAll(cfg.DateFrom) || !IsAll(cfg.DateTo) {
		f.dateRange = true
		var from, to time.Time
		if !IsAll(cfg.DateFrom) {
			from = dates.Parse(cfg.DateFrom).Day()
		}
		if !IsAll(cfg.DateTo) {
			to = dates.Parse(cfg.DateTo).Day()
		}
		f.add(PredDateRange, func(r *erp.Record) bool {
			if !r.Date.Valid {
				return false
			}
			day := r.Date.Day()
			if !from.IsZero() && day.Before(from) {
				return false
			}
			if !to.IsZero() && day.After(to) {
				return false
			}
			return true
		})
	}
	if !IsAll(cfg.Store) {
		f.addID(PredStore, cfg.Store, func(r *erp.Record) int64 { return r.StoreID })
	}
	if !IsAll(cfg.Client) {
		f.addID(PredClient, cfg.Client, func(r *erp.Record) int64 { return r.ClientID })
	}
	if !IsAll(cfg.Vendor) {
		if cmap := cfg.Consolidation; cmap != nil {
			want, _ := coerce.Int64(cfg.Vendor)
			rep := cmap.Resolve(want)
			f.add(PredVendor, func(r *erp.Record) bool {
				return r.VendorID != 0 && cmap.Resolve(r.VendorID) == rep
			})
		} else {
			f.addID(PredVendor, cfg.Vendor, func(r *erp.Record) int64 { return r.VendorID })
		}
	}
	if !IsAll(cfg.PaymentMethod) {
		f.addID(PredPaymentMethod, cfg.PaymentMethod, func(r *erp.Record) int64 { return r.PaymentMethodID })
	}
	if cfg.MinAmount != nil {
		floor := *cfg.MinAmount
		f.add(PredMinAmount, func(r *erp.Record) bool { return r.Revenue >= floor })
	}
	if text := strings.TrimSpace(cfg.Text); text != "" {
		caser := cases.Fold()
		needle := caser.String(text)
		f.add(PredText, func(r *erp.Record) bool {
			for _, field := range []string{r.Number, r.VendorName, r.ClientName, r.ArticleName, r.ProviderName} {
				if field != "" && strings.Contains(caser.String(field), needle) {
					return true
				}
			}
			return false
		})
	}
	return f, nil
}

func (f *Filter) add(name string, fn func(r *erp.Record) bool) {
	f.preds = append(f.preds, predicate{name: name, fn: fn})
}

func (f *Filter) addID(name, raw string, field func(r *erp.Record) int64) {
	f.add(name, func(r *erp.Record) bool {
		return coerce.Equal(field(r), raw)
	})
}

// Empty reports whether the filter keeps everything.
func (f *Filter) Empty() bool {
	return f == nil || len(f.preds) == 0
}

// Apply returns the records satisfying every predicate. The input is not
// modified. A record with an unparseable date fails a date-range predicate
// and is counted in Diagnostics.UnparseableDates.
func (f *Filter) Apply(records []erp.Record) ([]erp.Record, Diagnostics) {
	diag := Diagnostics{Input: len(records), Rejected: map[string]int{}}
	out := make([]erp.Record, 0, len(records))
	dateRange := f != nil && f.dateRange
	for i := range records {
		r := &records[i]
		if dateRange && !r.Date.Valid {
			diag.UnparseableDates++
		}
		if name, ok := f.match(r); !ok {
			diag.Rejected[name]++
			continue
		}
		out = append(out, *r)
	}
	diag.Kept = len(out)
	return out, diag
}

func (f *Filter) match(r *erp.Record) (string, bool) {
	if f == nil {
		return "", true
	}
	for _, p := range f.preds {
		if !p.fn(r) {
			return p.name, false
		}
	}
	return "", true
}

// Apply compiles cfg and applies it in one step.
func Apply(records []erp.Record, cfg Config) ([]erp.Record, Diagnostics, error) {
	f, err := Compile(cfg)
	if err != nil {
		return nil, Diagnostics{}, err
	}
	out, diag := f.Apply(records)
	return out, diag, nil
}
