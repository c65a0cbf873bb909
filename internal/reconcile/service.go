// Package reconcile loads ERP snapshots and serves rollup reports over them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rollup/internal/cache"
	"github.com/odyssey-erp/odyssey-rollup/internal/dates"
	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	"github.com/odyssey-erp/odyssey-rollup/internal/erp"
	"github.com/odyssey-erp/odyssey-rollup/internal/erpclient"
	"github.com/odyssey-erp/odyssey-rollup/internal/filter"
	"github.com/odyssey-erp/odyssey-rollup/internal/profit"
	"github.com/odyssey-erp/odyssey-rollup/internal/rollup"
	"github.com/odyssey-erp/odyssey-rollup/internal/shared"
)

// Record sources a report can aggregate.
const (
	SourceInvoices  = "invoices"
	SourceSales     = "sales"
	SourcePurchases = "purchases"
)

const snapshotKey = "snapshot"

// Fetcher retrieves one complete ERP table.
type Fetcher interface {
	FetchAll(ctx context.Context, req erpclient.Request) (erpclient.FetchResult, error)
}

// Observer receives pipeline events worth counting.
type Observer interface {
	PartialLoad(table string)
	Unparseable(source, reason string, count int)
	IntegrityFailure()
}

type noopObserver struct{}

func (noopObserver) PartialLoad(string)              {}
func (noopObserver) Unparseable(string, string, int) {}
func (noopObserver) IntegrityFailure()               {}

// Service coordinates ERP loading, reconciliation and report caching.
type Service struct {
	fetcher   Fetcher
	cfg       Config
	snapshots *cache.Layer
	reports   *cache.Layer
	log       *slog.Logger
	observer  Observer
	now       func() time.Time
}

// Options carry the optional collaborators of a Service.
type Options struct {
	// Reports stores memoized reports. Nil keeps them in process memory.
	Reports       cache.Store
	CacheObserver cache.Observer
	Observer      Observer
	Logger        *slog.Logger
}

// NewService wires a Fetcher with the caches.
func NewService(fetcher Fetcher, cfg Config, opts Options) *Service {
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	s := &Service{
		fetcher:  fetcher,
		cfg:      cfg.withDefaults(),
		log:      opts.Logger,
		observer: observer,
		now:      time.Now,
	}
	clock := func() time.Time { return s.now() }
	var reports cache.Store = cache.NewMemory().WithClock(clock)
	if opts.Reports != nil {
		reports = opts.Reports
	}
	s.snapshots = cache.NewLayer("snapshot", cache.NewMemory().WithClock(clock), opts.CacheObserver)
	s.reports = cache.NewLayer("report", reports, opts.CacheObserver)
	return s
}

func (s *Service) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return slog.Default()
}

// keepOnStoreFailure downgrades cache store failures to a warning; the
// computed value is still served.
func (s *Service) keepOnStoreFailure(err error) error {
	if errors.Is(err, cache.ErrStore) {
		s.logger().Warn("report cache unavailable", slog.Any("error", err))
		return nil
	}
	return err
}

// LoadSnapshot returns the current snapshot, loading it when the cached one
// has expired or was invalidated.
func (s *Service) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := cache.Memoize(ctx, s.snapshots, snapshotKey, s.cfg.CacheTTL, s.buildSnapshot)
	if err = s.keepOnStoreFailure(err); err != nil {
		return nil, err
	}
	return snap, nil
}

// Invalidate drops every cached snapshot and report.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.snapshots.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("reconcile: invalidate snapshots: %w", err)
	}
	if err := s.reports.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("reconcile: invalidate reports: %w", err)
	}
	s.logger().Info("rollup caches invalidated")
	return nil
}

// DropSnapshot discards only the in-process snapshot. Instances sharing a
// report store call it when another instance bumped the shared version.
func (s *Service) DropSnapshot(ctx context.Context) error {
	return s.snapshots.InvalidateAll(ctx)
}

// Query selects one rollup report.
type Query struct {
	Dimension string `json:"dimension" validate:"required"`
	Source    string `json:"source" validate:"omitempty,oneof=invoices sales purchases"`
	// Consolidate groups duplicate-named vendors under their representative
	// and applies the same mapping to the vendor filter.
	Consolidate bool          `json:"consolidate"`
	FillGaps    bool          `json:"fill_gaps"`
	Filter      filter.Config `json:"filter" validate:"-"`
}

var validate = validator.New()

func (q Query) validate() error {
	return validateQuery(q, q.Source, q.Filter)
}

func validateQuery(q any, source string, cfg filter.Config) error {
	if err := validate.Struct(q); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Field() == "Source" {
				return unknownSource(source)
			}
			return fmt.Errorf("%w: %s fails %q", shared.ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return cfg.Validate()
}

func (q Query) source() string {
	if q.Source == "" {
		return SourceSales
	}
	return q.Source
}

func unknownSource(source string) error {
	return fmt.Errorf("%w: %q", shared.ErrUnknownSource, source)
}

// Integrity compares consolidated vendor totals with the raw ones.
type Integrity struct {
	Raw          dedup.Totals `json:"raw"`
	Consolidated dedup.Totals `json:"consolidated"`
	OK           bool         `json:"ok"`
}

// Report is a rollup table with the context needed to trust it.
type Report struct {
	SnapshotID   string             `json:"snapshot_id"`
	Source       string             `json:"source"`
	Consolidated bool               `json:"consolidated"`
	Filter       filter.Config      `json:"filter"`
	Table        rollup.Table       `json:"table"`
	Diagnostics  filter.Diagnostics `json:"diagnostics"`
	Warnings     []PartialLoad      `json:"warnings,omitempty"`
	Integrity    *Integrity         `json:"integrity,omitempty"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// Rollup aggregates the filtered source along q.Dimension. When a vendor
// consolidation changes the totals, the report is returned together with a
// *dedup.IntegrityError.
func (s *Service) Rollup(ctx context.Context, q Query) (Report, error) {
	if err := q.validate(); err != nil {
		return Report{}, err
	}
	if _, err := (rollup.Labeler{}).Dimension(q.Dimension, false); err != nil {
		return Report{}, err
	}
	q.Source = q.source()
	key, err := cache.Key("rollup", q)
	if err != nil {
		return Report{}, err
	}
	report, err := cache.MemoizeFor(ctx, s.reports, key, s.buildRollup(q))
	if err = s.keepOnStoreFailure(err); err != nil {
		return Report{}, err
	}
	if report.Integrity != nil && !report.Integrity.OK {
		return report, &dedup.IntegrityError{
			Before:    report.Integrity.Raw,
			After:     report.Integrity.Consolidated,
			Tolerance: s.cfg.Tolerance,
		}
	}
	return report, nil
}

// reportTTL ends a report's life with the snapshot it was computed from.
func (s *Service) reportTTL(snap *Snapshot) time.Duration {
	if s.cfg.CacheTTL <= 0 {
		return s.cfg.CacheTTL
	}
	remaining := snap.LoadedAt.Add(s.cfg.CacheTTL).Sub(s.now())
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return remaining
}

func (s *Service) buildRollup(q Query) func(context.Context) (Report, time.Duration, error) {
	return func(ctx context.Context) (Report, time.Duration, error) {
		snap, err := s.LoadSnapshot(ctx)
		if err != nil {
			return Report{}, 0, err
		}
		report, err := s.rollupFrom(snap, q)
		return report, s.reportTTL(snap), err
	}
}

func (s *Service) rollupFrom(snap *Snapshot, q Query) (Report, error) {
	records, err := snap.Records(q.Source)
	if err != nil {
		return Report{}, err
	}

	cfg := q.Filter
	if q.Consolidate {
		cfg.Consolidation = &snap.Vendors.Map
	}
	filtered, diag, err := filter.Apply(records, cfg)
	if err != nil {
		return Report{}, err
	}
	s.observer.Unparseable(q.Source, dates.ReasonInvalidDate, diag.UnparseableDates)

	labeler := rollup.Labeler{Catalog: snap.Catalog, Vendors: snap.Vendors.Map}
	dim, err := labeler.Dimension(q.Dimension, q.Consolidate)
	if err != nil {
		return Report{}, err
	}
	table := rollup.Build(filtered, dim)
	if q.FillGaps && q.Dimension == rollup.DimMonth {
		from, to := monthBounds(q.Filter)
		table.Rollups = rollup.FillMonths(table.Rollups, from, to)
	}

	report := Report{
		SnapshotID:   snap.ID.String(),
		Source:       q.Source,
		Consolidated: q.Consolidate,
		Filter:       q.Filter,
		Table:        table,
		Diagnostics:  diag,
		Warnings:     snap.Warnings,
		GeneratedAt:  s.now().UTC(),
	}
	if q.Consolidate && q.Dimension == rollup.DimVendor {
		report.Integrity = s.checkIntegrity(filtered, labeler, table)
	}
	return report, nil
}

// checkIntegrity regroups the same records by raw vendor id and compares
// totals. Consolidation may only change the number of groups.
func (s *Service) checkIntegrity(records []erp.Record, labeler rollup.Labeler, consolidated rollup.Table) *Integrity {
	rawDim, _ := labeler.Dimension(rollup.DimVendor, false)
	raw := rollup.Build(records, rawDim)

	var in Integrity
	in.Raw.Revenue, in.Raw.Count = rollup.SumRollups(raw.Rollups)
	in.Consolidated.Revenue, in.Consolidated.Count = rollup.SumRollups(consolidated.Rollups)
	err := dedup.VerifyTotals(in.Raw, in.Consolidated, s.cfg.Tolerance)
	in.OK = err == nil
	if err != nil {
		s.observer.IntegrityFailure()
		s.logger().Error("vendor consolidation changed totals",
			slog.Float64("raw_revenue", in.Raw.Revenue),
			slog.Float64("consolidated_revenue", in.Consolidated.Revenue),
			slog.Int("raw_count", in.Raw.Count),
			slog.Int("consolidated_count", in.Consolidated.Count),
		)
	}
	return &in
}

// monthBounds derives the YYYY-MM range implied by a filter.
func monthBounds(cfg filter.Config) (string, string) {
	var from, to string
	if !filter.IsAll(cfg.DateFrom) {
		from = dates.Parse(cfg.DateFrom).YearMonth()
	}
	if !filter.IsAll(cfg.DateTo) {
		to = dates.Parse(cfg.DateTo).YearMonth()
	}
	if from == "" && to == "" && !filter.IsAll(cfg.Year) && filter.IsAll(cfg.Month) {
		from, to = cfg.Year+"-01", cfg.Year+"-12"
	}
	return from, to
}

// Summary holds grand totals and data-quality counters for one source.
type Summary struct {
	SnapshotID       string                   `json:"snapshot_id"`
	Source           string                   `json:"source"`
	Totals           rollup.Totals            `json:"totals"`
	Records          map[string]int           `json:"records"`
	Diagnostics      filter.Diagnostics       `json:"diagnostics"`
	UnparseableDates int                      `json:"unparseable_dates"`
	CorruptProfit    int                      `json:"corrupt_stored_profit"`
	Malformed        map[string]int           `json:"malformed,omitempty"`
	Warnings         []PartialLoad            `json:"warnings,omitempty"`
	VendorGroups     []dedup.Group            `json:"vendor_groups"`
	Consolidation    dedup.ConsolidationStats `json:"consolidation"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// SummaryQuery selects the source and filter of a Summary.
type SummaryQuery struct {
	Source string        `json:"source" validate:"omitempty,oneof=invoices sales purchases"`
	Filter filter.Config `json:"filter" validate:"-"`
}

// Summary reports grand totals over the filtered source plus the quality
// counters of the whole snapshot.
func (s *Service) Summary(ctx context.Context, q SummaryQuery) (Summary, error) {
	if err := validateQuery(q, q.Source, q.Filter); err != nil {
		return Summary{}, err
	}
	if q.Source == "" {
		q.Source = SourceSales
	}
	key, err := cache.Key("summary", q)
	if err != nil {
		return Summary{}, err
	}
	sum, err := cache.MemoizeFor(ctx, s.reports, key, func(ctx context.Context) (Summary, time.Duration, error) {
		snap, err := s.LoadSnapshot(ctx)
		if err != nil {
			return Summary{}, 0, err
		}
		records, err := snap.Records(q.Source)
		if err != nil {
			return Summary{}, 0, err
		}
		filtered, diag, err := filter.Apply(records, q.Filter)
		if err != nil {
			return Summary{}, 0, err
		}
		sum := Summary{
			SnapshotID: snap.ID.String(),
			Source:     q.Source,
			Totals:     rollup.ComputeTotals(filtered),
			Records: map[string]int{
				SourceInvoices:  len(snap.Invoices),
				SourceSales:     len(snap.Sales),
				SourcePurchases: len(snap.Purchases),
			},
			Diagnostics:   diag,
			Warnings:      snap.Warnings,
			VendorGroups:  snap.Vendors.Groups,
			Consolidation: snap.Vendors.Stats,
			GeneratedAt:   s.now().UTC(),
		}
		for _, r := range records {
			if !r.Date.Valid {
				sum.UnparseableDates++
			}
			if r.Kind != erp.KindInvoice && profit.StoredIsCorrupt(r) {
				sum.CorruptProfit++
			}
		}
		for source, stats := range snap.Decode {
			if stats.Malformed > 0 {
				if sum.Malformed == nil {
					sum.Malformed = make(map[string]int)
				}
				sum.Malformed[source] = stats.Malformed
			}
		}
		return sum, s.reportTTL(snap), nil
	})
	if err = s.keepOnStoreFailure(err); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// VendorDuplicates returns the duplicate-name analysis of the vendor master.
func (s *Service) VendorDuplicates(ctx context.Context) (dedup.Analysis, error) {
	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		return dedup.Analysis{}, err
	}
	return snap.Vendors, nil
}
