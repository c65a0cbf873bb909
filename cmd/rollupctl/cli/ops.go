package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rollup/internal/erpclient"
	"github.com/odyssey-erp/odyssey-rollup/jobs"
)

func newVendorsCommand(deps Deps, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List vendor identities that share a name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deps.Service(cmd.Context())
			if err != nil {
				return err
			}
			analysis, err := svc.VendorDuplicates(cmd.Context())
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(deps.Stdout, analysis)
			}
			tw := tabwriter.NewWriter(deps.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "name\trepresentative\tmembers")
			for _, g := range analysis.Groups {
				members := make([]string, len(g.Members))
				for i, id := range g.Members {
					members[i] = fmt.Sprint(id)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", g.Name, g.Representative, strings.Join(members, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(deps.Stdout, "%d entities, %d representatives, %d demoted\n",
				analysis.Stats.Entities, analysis.Stats.Representatives, analysis.Stats.Demoted)
			return nil
		},
	}
}

func newFetchCommand(deps Deps, flags *globalFlags) *cobra.Command {
	var req erpclient.Request
	var fields string
	cmd := &cobra.Command{
		Use:   "fetch <table>",
		Short: "Download one ERP table and report completeness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Table = args[0]
			if fields != "" {
				req.Fields = strings.Split(fields, ",")
			}
			fetcher, err := deps.Fetcher(cmd.Context())
			if err != nil {
				return err
			}
			res, err := fetcher.FetchAll(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(deps.Stdout, res)
			}
			fmt.Fprintf(deps.Stdout, "%s: %d of %d records in %d pages (complete=%t truncated=%t)\n",
				res.Table, len(res.Records), res.TotalCount, res.Pages, res.Complete, res.Truncated)
			return nil
		},
	}
	cmd.Flags().IntVar(&req.PageSize, "page-size", erpclient.DefaultPageSize, "records per request")
	cmd.Flags().IntVar(&req.MaxRecords, "max-records", erpclient.DefaultMaxRecords, "safety cap on accumulated records")
	cmd.Flags().StringVar(&req.RecordKey, "record-key", "", "envelope key holding the records (default: table)")
	cmd.Flags().StringVar(&fields, "fields", "", "comma separated projection")
	return cmd
}

func newInvalidateCommand(deps Deps) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Queue a cache invalidation for every rollup instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := deps.Enqueuer()
			if err != nil {
				return err
			}
			defer q.Close()
			info, err := q.EnqueueInvalidate(cmd.Context(), reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(deps.Stdout, "enqueued %s (%s)\n", jobs.TaskRollupInvalidate, info.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "recorded in the worker log")
	return cmd
}

func newWarmupCommand(deps Deps) *cobra.Command {
	var payload jobs.WarmupPayload
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Queue a report warm-up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := deps.Enqueuer()
			if err != nil {
				return err
			}
			defer q.Close()
			info, err := q.EnqueueWarmup(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(deps.Stdout, "enqueued %s (%s)\n", jobs.TaskRollupWarmup, info.ID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&payload.Dimensions, "dimension", nil, "dimensions to warm (repeatable)")
	cmd.Flags().StringSliceVar(&payload.Sources, "source", nil, "sources to warm (repeatable)")
	cmd.Flags().BoolVar(&payload.Consolidate, "consolidate", true, "warm the consolidated vendor report")
	cmd.Flags().BoolVar(&payload.Refresh, "refresh", false, "invalidate before warming")
	return cmd
}
