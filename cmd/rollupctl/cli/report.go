package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rollup/internal/reconcile"
	"github.com/odyssey-erp/odyssey-rollup/internal/rollup"
)

func newRollupCommand(deps Deps, flags *globalFlags) *cobra.Command {
	var q reconcile.Query
	cmd := &cobra.Command{
		Use:   "rollup <dimension>",
		Short: "Group a source by one dimension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFilter(flags.filterFile)
			if err != nil {
				return err
			}
			q.Dimension = args[0]
			q.Filter = cfg

			svc, err := deps.Service(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.Rollup(cmd.Context(), q)
			if err != nil && report.Integrity == nil {
				return err
			}
			if flags.jsonOutput {
				if jerr := writeJSON(deps.Stdout, report); jerr != nil {
					return jerr
				}
				return err
			}
			printTable(deps.Stdout, report.Table)
			printWarnings(deps.Stderr, report.Warnings)
			if report.Diagnostics.UnparseableDates > 0 {
				fmt.Fprintf(deps.Stderr, "excluded %d records with unparseable dates\n", report.Diagnostics.UnparseableDates)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&q.Source, "source", "", "invoices, sales or purchases (default sales)")
	cmd.Flags().BoolVar(&q.Consolidate, "consolidate", false, "merge duplicate vendor identities")
	cmd.Flags().BoolVar(&q.FillGaps, "fill-gaps", false, "emit zero rows for months without activity")
	return cmd
}

func newSummaryCommand(deps Deps, flags *globalFlags) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print grand totals and data-quality counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFilter(flags.filterFile)
			if err != nil {
				return err
			}
			svc, err := deps.Service(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := svc.Summary(cmd.Context(), reconcile.SummaryQuery{Source: source, Filter: cfg})
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(deps.Stdout, summary)
			}
			tw := tabwriter.NewWriter(deps.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "source\t%s\n", summary.Source)
			fmt.Fprintf(tw, "revenue\t%s\n", money(summary.Totals.Revenue))
			fmt.Fprintf(tw, "cost\t%s\n", money(summary.Totals.Cost))
			fmt.Fprintf(tw, "profit\t%s\n", money(summary.Totals.Profit))
			fmt.Fprintf(tw, "records\t%d\n", summary.Totals.Count)
			fmt.Fprintf(tw, "unparseable dates\t%d\n", summary.UnparseableDates)
			fmt.Fprintf(tw, "corrected profits\t%d\n", summary.CorruptProfit)
			fmt.Fprintf(tw, "vendor groups\t%d\n", len(summary.VendorGroups))
			if err := tw.Flush(); err != nil {
				return err
			}
			printWarnings(deps.Stderr, summary.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "invoices, sales or purchases (default sales)")
	return cmd
}

func printTable(w io.Writer, table rollup.Table) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "key\tlabel\trevenue\tcost\tprofit\tcount\tshare %\t")
	for _, r := range table.Rollups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t\n",
			r.Key, r.Label, money(r.Revenue), money(r.Cost), money(r.Profit), r.Count, money(r.SharePct))
	}
	fmt.Fprintf(tw, "\ttotal\t%s\t%s\t%s\t%d\t\t\n",
		money(table.Totals.Revenue), money(table.Totals.Cost), money(table.Totals.Profit), table.Totals.Count)
	_ = tw.Flush()
	if table.Dropped > 0 {
		fmt.Fprintf(w, "%d records without a %s\n", table.Dropped, table.Dimension)
	}
}

func printWarnings(w io.Writer, warnings []reconcile.PartialLoad) {
	for _, pl := range warnings {
		fmt.Fprintf(w, "warning: %s (%s) loaded %d of %d records\n", pl.Source, pl.Table, pl.Records, pl.TotalCount)
	}
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
