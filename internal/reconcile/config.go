package reconcile

import (
	"time"

	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
)

// Tables maps each source to its ERP endpoint code.
type Tables struct {
	Invoices       string `yaml:"invoices"`
	SaleLines      string `yaml:"sale_lines"`
	PurchaseLines  string `yaml:"purchase_lines"`
	Articles       string `yaml:"articles"`
	Entities       string `yaml:"entities"`
	Users          string `yaml:"users"`
	Stores         string `yaml:"stores"`
	PaymentMethods string `yaml:"payment_methods"`
	Brands         string `yaml:"brands"`
	Seasons        string `yaml:"seasons"`
}

// DefaultTables returns the stock ERP table codes.
func DefaultTables() Tables {
	return Tables{
		Invoices:       "fac",
		SaleLines:      "fac_lin",
		PurchaseLines:  "com_lin",
		Articles:       "art",
		Entities:       "ent",
		Users:          "usr",
		Stores:         "emp",
		PaymentMethods: "fpg",
		Brands:         "mar",
		Seasons:        "tmp",
	}
}

// Config tunes the service.
type Config struct {
	Tables     Tables
	Fields     erp.FieldMap
	PageSize   int
	MaxRecords int
	// CacheTTL bounds both snapshot and report reuse.
	CacheTTL time.Duration
	// Tolerance is the allowed revenue drift between raw and consolidated
	// vendor rollups.
	Tolerance float64
}

// DefaultConfig returns a Config with stock tables and field names.
func DefaultConfig() Config {
	return Config{
		Tables:    DefaultTables(),
		Fields:    erp.DefaultFieldMap(),
		CacheTTL:  5 * time.Minute,
		Tolerance: dedup.DefaultTolerance,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Tables == (Tables{}) {
		c.Tables = def.Tables
	}
	if c.Fields.ID == nil {
		c.Fields = def.Fields
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.Tolerance <= 0 {
		c.Tolerance = def.Tolerance
	}
	return c
}
