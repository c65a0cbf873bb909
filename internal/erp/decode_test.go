package erp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRows(t *testing.T, rows ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, json.RawMessage(r))
	}
	return out
}

func TestDecodeRecordsCoercesMixedTypes(t *testing.T) {
	fm := DefaultFieldMap()
	records, stats := fm.DecodeRecords(KindSaleLine, rawRows(t,
		`{"id": 1, "fac": "10", "fch": "15/03/2024", "eje": "2024", "mes": "03", "imp": "120,50", "can": 2, "cos": 40, "ben": -40, "vnd": 7, "art": {"id": 5, "name": "Boots"}}`,
		`{"id": "2", "fac": 10, "fch": 20240316, "eje": 2024, "mes": 3, "imp": 80}`,
		`[1,2,3]`,
		`not json`,
	))
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 2, stats.Malformed)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(10), first.InvoiceID)
	assert.Equal(t, 2024, first.Year)
	assert.Equal(t, 3, first.Month)
	assert.InDelta(t, 120.5, first.Revenue, 1e-9)
	assert.Equal(t, int64(5), first.ArticleID)
	assert.Equal(t, int64(7), first.VendorID)
	assert.True(t, first.Date.Valid)

	second := records[1]
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, 2024, second.Year)
	assert.Equal(t, "2024-03", second.Date.YearMonth())
}

func TestDecodeEntitiesSkipsRowsWithoutID(t *testing.T) {
	fm := DefaultFieldMap()
	entities, stats := fm.DecodeEntities(EntityClient, rawRows(t,
		`{"id": 1, "name": "Acme", "es_prv": true}`,
		`{"id": "2", "nom": "Beta", "es_prv": "0"}`,
		`{"name": "no id"}`,
		`{"id": 0, "name": "Zero"}`,
		`{"id": "-4", "name": "Negative"}`,
	))
	assert.Equal(t, 3, stats.Malformed)
	require.Len(t, entities, 2)
	assert.True(t, entities[0].IsProvider)
	assert.Equal(t, "Beta", entities[1].Name)
	assert.False(t, entities[1].IsProvider)
}

func TestJoinInheritsHeaderAndArticleAttributes(t *testing.T) {
	fm := DefaultFieldMap()
	invoices, _ := fm.DecodeRecords(KindInvoice, rawRows(t,
		`{"id": 10, "num": "F-10", "fch": "2024-02-01", "vnd": 3, "clt": 4, "fpg": 2, "emp": 1}`,
	))
	lines, _ := fm.DecodeRecords(KindSaleLine, rawRows(t,
		`{"id": 1, "fac": 10, "imp": 50, "art": 9}`,
	))
	catalog := NewCatalog(
		[]Entity{{Kind: EntityArticle, ID: 9, Name: "Sandal", BrandID: 20, SeasonID: 30, ProviderID: 4}},
		[]Entity{{Kind: EntityVendor, ID: 3, Name: "Ana"}},
		[]Entity{{Kind: EntityClient, ID: 4, Name: "Shoes Inc", IsProvider: true}},
	)

	joined := Join(lines, invoices, catalog)
	require.Len(t, joined, 1)
	line := joined[0]
	assert.Equal(t, "2024-02", line.Date.YearMonth())
	assert.Equal(t, "F-10", line.Number)
	assert.Equal(t, int64(3), line.VendorID)
	assert.Equal(t, int64(2), line.PaymentMethodID)
	assert.Equal(t, int64(20), line.BrandID)
	assert.Equal(t, int64(30), line.SeasonID)
	assert.Equal(t, int64(4), line.ProviderID)
	assert.Equal(t, "Ana", line.VendorName)
	assert.Equal(t, "Shoes Inc", line.ProviderName)
	assert.Equal(t, "Sandal", line.ArticleName)

	// Original slice untouched.
	assert.Equal(t, int64(0), lines[0].VendorID)

	assert.Equal(t, "Shoes Inc", catalog.Name(EntityProvider, 4))
	assert.Equal(t, "brand 20", catalog.Name(EntityBrand, 20))
}

func TestRecordPeriodPrefersStoredFields(t *testing.T) {
	r := Record{Year: 2023, Month: 12}
	p, ok := r.Period()
	assert.True(t, ok)
	assert.Equal(t, "2023-12", p)

	_, ok = Record{}.Period()
	assert.False(t, ok)
}
