package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
	"github.com/odyssey-erp/odyssey-rollup/internal/erpclient"
	"github.com/odyssey-erp/odyssey-rollup/internal/profit"
)

// PartialLoad flags a table that finished without every declared record.
// Counts derived from it under-represent reality.
type PartialLoad struct {
	Source     string `json:"source"`
	Table      string `json:"table"`
	Records    int    `json:"records"`
	TotalCount int    `json:"total_count"`
	Truncated  bool   `json:"truncated"`
}

// Snapshot is one consistent load of every source and master.
type Snapshot struct {
	ID        uuid.UUID
	LoadedAt  time.Time
	Invoices  []erp.Record
	Sales     []erp.Record
	Purchases []erp.Record
	Catalog   *erp.Catalog
	Vendors   dedup.Analysis
	Warnings  []PartialLoad
	Decode    map[string]erp.DecodeStats
}

// Records returns the record set of source.
func (s *Snapshot) Records(source string) ([]erp.Record, error) {
	switch source {
	case SourceInvoices:
		return s.Invoices, nil
	case SourceSales, "":
		return s.Sales, nil
	case SourcePurchases:
		return s.Purchases, nil
	}
	return nil, unknownSource(source)
}

type load struct {
	source string
	table  string
	result erpclient.FetchResult
}

// fetch pulls every table concurrently. Each branch owns its slot so no
// locking is needed; the first failure cancels the rest.
func (s *Service) fetch(ctx context.Context) ([]*load, error) {
	t := s.cfg.Tables
	loads := []*load{
		{source: SourceInvoices, table: t.Invoices},
		{source: SourceSales, table: t.SaleLines},
		{source: SourcePurchases, table: t.PurchaseLines},
		{source: "articles", table: t.Articles},
		{source: "entities", table: t.Entities},
		{source: "users", table: t.Users},
		{source: "stores", table: t.Stores},
		{source: "payment_methods", table: t.PaymentMethods},
		{source: "brands", table: t.Brands},
		{source: "seasons", table: t.Seasons},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range loads {
		if l.table == "" {
			continue
		}
		l := l
		g.Go(func() error {
			res, err := s.fetcher.FetchAll(gctx, erpclient.Request{
				Table:      l.table,
				PageSize:   s.cfg.PageSize,
				MaxRecords: s.cfg.MaxRecords,
			})
			if err != nil {
				return fmt.Errorf("reconcile: load %s: %w", l.source, err)
			}
			l.result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loads, nil
}

func (s *Service) buildSnapshot(ctx context.Context) (*Snapshot, error) {
	loads, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{ID: uuid.New(), Decode: make(map[string]erp.DecodeStats)}
	raw := make(map[string][]json.RawMessage, len(loads))
	for _, l := range loads {
		raw[l.source] = l.result.Records
		if l.table != "" && !l.result.Complete {
			snap.Warnings = append(snap.Warnings, PartialLoad{
				Source:     l.source,
				Table:      l.table,
				Records:    len(l.result.Records),
				TotalCount: l.result.TotalCount,
				Truncated:  l.result.Truncated,
			})
			s.observer.PartialLoad(l.table)
			s.logger().Warn("partial load",
				slog.String("source", l.source),
				slog.String("table", l.table),
				slog.Int("records", len(l.result.Records)),
				slog.Int("total_count", l.result.TotalCount),
			)
		}
	}

	fields := s.cfg.Fields
	entities := func(source string, kind erp.EntityKind) []erp.Entity {
		out, stats := fields.DecodeEntities(kind, raw[source])
		snap.Decode[source] = stats
		return out
	}
	records := func(source string, kind erp.RecordKind) []erp.Record {
		out, stats := fields.DecodeRecords(kind, raw[source])
		snap.Decode[source] = stats
		return out
	}

	vendors := entities("users", erp.EntityVendor)
	snap.Catalog = erp.NewCatalog(
		vendors,
		entities("entities", erp.EntityClient),
		entities("stores", erp.EntityStore),
		entities("payment_methods", erp.EntityPaymentMethod),
		entities("brands", erp.EntityBrand),
		entities("seasons", erp.EntitySeason),
		entities("articles", erp.EntityArticle),
	)
	snap.Vendors = dedup.Analyze(vendors)

	invoices := records(SourceInvoices, erp.KindInvoice)
	snap.Invoices = profit.Attach(erp.Enrich(invoices, snap.Catalog))
	snap.Sales = profit.Attach(erp.Join(records(SourceSales, erp.KindSaleLine), invoices, snap.Catalog))
	snap.Purchases = profit.Attach(erp.Join(records(SourcePurchases, erp.KindPurchaseLine), nil, snap.Catalog))

	for source, stats := range snap.Decode {
		s.observer.Unparseable(source, "malformed_row", stats.Malformed)
	}
	snap.LoadedAt = s.now()
	s.logger().Info("snapshot loaded",
		slog.String("snapshot", snap.ID.String()),
		slog.Int("invoices", len(snap.Invoices)),
		slog.Int("sales", len(snap.Sales)),
		slog.Int("purchases", len(snap.Purchases)),
		slog.Int("vendor_groups", len(snap.Vendors.Groups)),
		slog.Int("warnings", len(snap.Warnings)),
	)
	return snap, nil
}
