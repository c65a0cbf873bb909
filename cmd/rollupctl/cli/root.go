// Package cli implements the rollupctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	"github.com/odyssey-erp/odyssey-rollup/internal/erpclient"
	"github.com/odyssey-erp/odyssey-rollup/internal/filter"
	"github.com/odyssey-erp/odyssey-rollup/internal/reconcile"
	"github.com/odyssey-erp/odyssey-rollup/jobs"
)

// Service is the reporting surface the CLI drives.
type Service interface {
	Rollup(ctx context.Context, q reconcile.Query) (reconcile.Report, error)
	Summary(ctx context.Context, q reconcile.SummaryQuery) (reconcile.Summary, error)
	VendorDuplicates(ctx context.Context) (dedup.Analysis, error)
}

// TableFetcher downloads one ERP table.
type TableFetcher interface {
	FetchAll(ctx context.Context, req erpclient.Request) (erpclient.FetchResult, error)
}

// Enqueuer submits background jobs.
type Enqueuer interface {
	EnqueueWarmup(ctx context.Context, payload jobs.WarmupPayload) (*asynq.TaskInfo, error)
	EnqueueInvalidate(ctx context.Context, reason string) (*asynq.TaskInfo, error)
	Close() error
}

// Deps supplies the collaborators lazily so that help and flag errors never
// touch the network.
type Deps struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Service  func(ctx context.Context) (Service, error)
	Fetcher  func(ctx context.Context) (TableFetcher, error)
	Enqueuer func() (Enqueuer, error)
}

type globalFlags struct {
	jsonOutput bool
	filterFile string
}

// NewRootCommand assembles the command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "rollupctl",
		Short:         "Query and maintain ERP rollup reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "print JSON instead of a table")
	root.PersistentFlags().StringVar(&flags.filterFile, "filter", "", "YAML file with filter constraints")

	root.AddCommand(
		newRollupCommand(deps, flags),
		newSummaryCommand(deps, flags),
		newVendorsCommand(deps, flags),
		newFetchCommand(deps, flags),
		newInvalidateCommand(deps),
		newWarmupCommand(deps),
	)
	return root
}

// loadFilter reads the --filter file. Missing flags yield an empty filter.
func loadFilter(path string) (filter.Config, error) {
	if path == "" {
		return filter.Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return filter.Config{}, fmt.Errorf("read filter: %w", err)
	}
	var cfg filter.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return filter.Config{}, fmt.Errorf("parse filter: %w", err)
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
