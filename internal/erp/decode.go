package erp

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/odyssey-erp/odyssey-rollup/internal/coerce"
	"github.com/odyssey-erp/odyssey-rollup/internal/dates"
)

// FieldMap lists, per logical field, the payload keys to try in order. ERP
// tables are not consistent about naming so several candidates are allowed.
type FieldMap struct {
	ID            []string `yaml:"id"`
	Parent        []string `yaml:"parent"`
	Number        []string `yaml:"number"`
	Date          []string `yaml:"date"`
	Year          []string `yaml:"year"`
	Month         []string `yaml:"month"`
	Revenue       []string `yaml:"revenue"`
	Quantity      []string `yaml:"quantity"`
	UnitCost      []string `yaml:"unit_cost"`
	StoredProfit  []string `yaml:"stored_profit"`
	Vendor        []string `yaml:"vendor"`
	Client        []string `yaml:"client"`
	PaymentMethod []string `yaml:"payment_method"`
	Store         []string `yaml:"store"`
	Article       []string `yaml:"article"`
	Brand         []string `yaml:"brand"`
	Season        []string `yaml:"season"`
	Provider      []string `yaml:"provider"`
	Name          []string `yaml:"name"`
	IsProvider    []string `yaml:"is_provider"`
}

// DefaultFieldMap matches the short column codes used by the ERP tables.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		ID:            []string{"id"},
		Parent:        []string{"fac", "invoice_id", "parent_id"},
		Number:        []string{"num", "number"},
		Date:          []string{"fch", "fecha", "date"},
		Year:          []string{"eje", "year"},
		Month:         []string{"mes", "month"},
		Revenue:       []string{"imp", "tot", "amount", "revenue"},
		Quantity:      []string{"can", "qty", "quantity"},
		UnitCost:      []string{"cos", "unit_cost"},
		StoredProfit:  []string{"ben", "profit"},
		Vendor:        []string{"vnd", "usr", "vendor_id"},
		Client:        []string{"clt", "client_id"},
		PaymentMethod: []string{"fpg", "payment_method_id"},
		Store:         []string{"emp", "store_id"},
		Article:       []string{"art", "article_id"},
		Brand:         []string{"mar", "brand_id"},
		Season:        []string{"tmp", "season_id"},
		Provider:      []string{"prv", "provider_id"},
		Name:          []string{"name", "nom", "name_str"},
		IsProvider:    []string{"es_prv", "is_provider"},
	}
}

// DecodeStats counts payload rows that could not be used at all.
type DecodeStats struct {
	Rows      int `json:"rows"`
	Malformed int `json:"malformed"`
}

type row map[string]any

// DecodeRecords converts raw JSON objects into records of the given kind.
// Rows that are not JSON objects are skipped and counted.
func (f FieldMap) DecodeRecords(kind RecordKind, raw []json.RawMessage) ([]Record, DecodeStats) {
	stats := DecodeStats{Rows: len(raw)}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		r, ok := decodeRow(item)
		if !ok {
			stats.Malformed++
			continue
		}
		out = append(out, f.record(kind, r))
	}
	return out, stats
}

// DecodeEntities converts raw JSON objects into master entities.
func (f FieldMap) DecodeEntities(kind EntityKind, raw []json.RawMessage) ([]Entity, DecodeStats) {
	stats := DecodeStats{Rows: len(raw)}
	out := make([]Entity, 0, len(raw))
	for _, item := range raw {
		r, ok := decodeRow(item)
		if !ok {
			stats.Malformed++
			continue
		}
		// Non-positive ids cannot be referenced by records.
		id, ok := coerce.Int64(r.first(f.ID))
		if !ok || id <= 0 {
			stats.Malformed++
			continue
		}
		out = append(out, Entity{
			Kind:       kind,
			ID:         id,
			Name:       coerce.String(r.first(f.Name)),
			IsProvider: truthy(r.first(f.IsProvider)),
			BrandID:    r.id(f.Brand),
			SeasonID:   r.id(f.Season),
			ProviderID: r.id(f.Provider),
		})
	}
	return out, stats
}

func (f FieldMap) record(kind RecordKind, r row) Record {
	raw := r.first(f.Date)
	rec := Record{
		Kind:            kind,
		ID:              r.id(f.ID),
		Number:          coerce.String(r.first(f.Number)),
		RawDate:         raw,
		Date:            dates.Parse(raw),
		Revenue:         coerce.FloatOr(r.first(f.Revenue)),
		Quantity:        coerce.FloatOr(r.first(f.Quantity)),
		UnitCost:        coerce.FloatOr(r.first(f.UnitCost)),
		StoredProfit:    coerce.FloatOr(r.first(f.StoredProfit)),
		VendorID:        r.id(f.Vendor),
		ClientID:        r.id(f.Client),
		PaymentMethodID: r.id(f.PaymentMethod),
		StoreID:         r.id(f.Store),
		ArticleID:       r.id(f.Article),
		BrandID:         r.id(f.Brand),
		SeasonID:        r.id(f.Season),
		ProviderID:      r.id(f.Provider),
	}
	if kind != KindInvoice {
		rec.InvoiceID = r.id(f.Parent)
	}
	if y, ok := coerce.Int(r.first(f.Year)); ok {
		rec.Year = y
	}
	if m, ok := coerce.Int(r.first(f.Month)); ok && m >= 1 && m <= 12 {
		rec.Month = m
	}
	return rec
}

func decodeRow(raw json.RawMessage) (row, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var r row
	if err := dec.Decode(&r); err != nil {
		return nil, false
	}
	return r, true
}

func (r row) first(keys []string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// id resolves a reference column. References sometimes arrive expanded as
// {"id": 3, "name": "..."}.
func (r row) id(keys []string) int64 {
	v := r.first(keys)
	if nested, ok := v.(map[string]any); ok {
		v = nested["id"]
	}
	n, ok := coerce.Int64(v)
	if !ok || n < 0 {
		return 0
	}
	return n
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case nil:
		return false
	}
	if n, ok := coerce.Int64(v); ok {
		return n != 0
	}
	s := strings.ToLower(coerce.String(v))
	return s == "true" || s == "s" || s == "si" || s == "sí" || s == "yes" || s == "y"
}
