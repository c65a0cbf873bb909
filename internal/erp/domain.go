package erp

import (
	"strconv"

	"github.com/odyssey-erp/odyssey-rollup/internal/dates"
)

// RecordKind distinguishes invoice headers from the two line sources.
type RecordKind string

const (
	KindInvoice      RecordKind = "invoice"
	KindSaleLine     RecordKind = "sale_line"
	KindPurchaseLine RecordKind = "purchase_line"
)

// EntityKind names a reference master.
type EntityKind string

const (
	EntityVendor        EntityKind = "vendor"
	EntityClient        EntityKind = "client"
	EntityProvider      EntityKind = "provider"
	EntityStore         EntityKind = "store"
	EntityPaymentMethod EntityKind = "payment_method"
	EntityBrand         EntityKind = "brand"
	EntitySeason        EntityKind = "season"
	EntityArticle       EntityKind = "article"
)

// Record is one transactional row: an invoice header or an invoice/purchase
// line. Records are immutable once decoded; CorrectedProfit is attached by
// the profit package on a copy.
type Record struct {
	Kind      RecordKind `json:"kind"`
	ID        int64      `json:"id"`
	InvoiceID int64      `json:"invoice_id,omitempty"`
	Number    string     `json:"number,omitempty"`

	RawDate any          `json:"raw_date,omitempty"`
	Date    dates.Result `json:"date"`
	Year    int          `json:"year,omitempty"`
	Month   int          `json:"month,omitempty"`

	Revenue      float64 `json:"revenue"`
	Quantity     float64 `json:"quantity"`
	UnitCost     float64 `json:"unit_cost"`
	StoredProfit float64 `json:"stored_profit"`

	VendorID        int64 `json:"vendor_id,omitempty"`
	ClientID        int64 `json:"client_id,omitempty"`
	PaymentMethodID int64 `json:"payment_method_id,omitempty"`
	StoreID         int64 `json:"store_id,omitempty"`
	ArticleID       int64 `json:"article_id,omitempty"`
	BrandID         int64 `json:"brand_id,omitempty"`
	SeasonID        int64 `json:"season_id,omitempty"`
	ProviderID      int64 `json:"provider_id,omitempty"`

	VendorName   string `json:"vendor_name,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
	ArticleName  string `json:"article_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`

	CorrectedProfit float64 `json:"corrected_profit"`
}

// InvoiceRef returns the invoice the record belongs to: its own id for
// headers, the parent id for lines.
func (r Record) InvoiceRef() int64 {
	if r.Kind == KindInvoice {
		return r.ID
	}
	return r.InvoiceID
}

// Period returns the YYYY-MM bucket of the record. Stored year/month win over
// the parsed date because that is what the ERP reports against.
func (r Record) Period() (string, bool) {
	if r.Year > 0 && r.Month >= 1 && r.Month <= 12 {
		return formatPeriod(r.Year, r.Month), true
	}
	if r.Date.Valid {
		return r.Date.YearMonth(), true
	}
	return "", false
}

// FiscalYear returns the stored year, falling back to the parsed date.
func (r Record) FiscalYear() (int, bool) {
	if r.Year > 0 {
		return r.Year, true
	}
	if r.Date.Valid {
		return r.Date.Time.Year(), true
	}
	return 0, false
}

// FiscalMonth returns the stored month, falling back to the parsed date.
func (r Record) FiscalMonth() (int, bool) {
	if r.Month >= 1 && r.Month <= 12 {
		return r.Month, true
	}
	if r.Date.Valid {
		return int(r.Date.Time.Month()), true
	}
	return 0, false
}

// Entity is a row from one of the reference masters.
type Entity struct {
	Kind       EntityKind `json:"kind"`
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	IsProvider bool       `json:"is_provider,omitempty"`
	BrandID    int64      `json:"brand_id,omitempty"`
	SeasonID   int64      `json:"season_id,omitempty"`
	ProviderID int64      `json:"provider_id,omitempty"`
}

func formatPeriod(year, month int) string {
	m := strconv.Itoa(month)
	if month < 10 {
		m = "0" + m
	}
	return strconv.Itoa(year) + "-" + m
}
