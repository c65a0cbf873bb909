package erp

import (
	"fmt"
	"sort"
)

// Catalog indexes the reference masters of one snapshot by kind and id.
type Catalog struct {
	byKind map[EntityKind]map[int64]Entity
}

// NewCatalog builds a catalog. Later duplicates of the same kind/id are
// ignored so the first row the ERP returned wins.
func NewCatalog(entities ...[]Entity) *Catalog {
	c := &Catalog{byKind: make(map[EntityKind]map[int64]Entity)}
	for _, list := range entities {
		for _, e := range list {
			c.add(e)
			if e.Kind == EntityClient && e.IsProvider {
				p := e
				p.Kind = EntityProvider
				c.add(p)
			}
		}
	}
	return c
}

func (c *Catalog) add(e Entity) {
	bucket, ok := c.byKind[e.Kind]
	if !ok {
		bucket = make(map[int64]Entity)
		c.byKind[e.Kind] = bucket
	}
	if _, exists := bucket[e.ID]; exists {
		return
	}
	bucket[e.ID] = e
}

// Lookup returns the entity of the given kind.
func (c *Catalog) Lookup(kind EntityKind, id int64) (Entity, bool) {
	if c == nil {
		return Entity{}, false
	}
	e, ok := c.byKind[kind][id]
	return e, ok
}

// Name returns the display name or a "<kind> <id>" placeholder.
func (c *Catalog) Name(kind EntityKind, id int64) string {
	if e, ok := c.Lookup(kind, id); ok && e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("%s %d", kind, id)
}

// Entities lists a kind sorted by id.
func (c *Catalog) Entities(kind EntityKind) []Entity {
	if c == nil {
		return nil
	}
	bucket := c.byKind[kind]
	out := make([]Entity, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many entities of the kind are loaded.
func (c *Catalog) Len(kind EntityKind) int {
	if c == nil {
		return 0
	}
	return len(c.byKind[kind])
}

// Join returns copies of lines completed with the attributes they inherit:
// header fields from their invoice when the line leaves them blank, article
// attributes (brand, season, provider) and display names for free-text
// search. The input slice is not modified.
func Join(lines []Record, invoices []Record, catalog *Catalog) []Record {
	headers := make(map[int64]Record, len(invoices))
	for _, inv := range invoices {
		if _, ok := headers[inv.ID]; !ok {
			headers[inv.ID] = inv
		}
	}
	out := make([]Record, len(lines))
	for i, line := range lines {
		if h, ok := headers[line.InvoiceID]; ok {
			inherit(&line, h)
		}
		enrich(&line, catalog)
		out[i] = line
	}
	return out
}

// Enrich attaches display names without any header join.
func Enrich(records []Record, catalog *Catalog) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		enrich(&r, catalog)
		out[i] = r
	}
	return out
}

func inherit(line *Record, h Record) {
	if !line.Date.Valid && h.Date.Valid {
		line.RawDate = h.RawDate
		line.Date = h.Date
	}
	if line.Year == 0 {
		line.Year = h.Year
	}
	if line.Month == 0 {
		line.Month = h.Month
	}
	if line.Number == "" {
		line.Number = h.Number
	}
	if line.VendorID == 0 {
		line.VendorID = h.VendorID
	}
	if line.ClientID == 0 {
		line.ClientID = h.ClientID
	}
	if line.PaymentMethodID == 0 {
		line.PaymentMethodID = h.PaymentMethodID
	}
	if line.StoreID == 0 {
		line.StoreID = h.StoreID
	}
	if line.ProviderID == 0 {
		line.ProviderID = h.ProviderID
	}
}

func enrich(r *Record, catalog *Catalog) {
	if catalog == nil {
		return
	}
	if art, ok := catalog.Lookup(EntityArticle, r.ArticleID); ok {
		if r.BrandID == 0 {
			r.BrandID = art.BrandID
		}
		if r.SeasonID == 0 {
			r.SeasonID = art.SeasonID
		}
		if r.ProviderID == 0 {
			r.ProviderID = art.ProviderID
		}
		r.ArticleName = art.Name
	}
	if e, ok := catalog.Lookup(EntityVendor, r.VendorID); ok {
		r.VendorName = e.Name
	}
	if e, ok := catalog.Lookup(EntityClient, r.ClientID); ok {
		r.ClientName = e.Name
	}
	if e, ok := catalog.Lookup(EntityClient, r.ProviderID); ok {
		r.ProviderName = e.Name
	}
}
