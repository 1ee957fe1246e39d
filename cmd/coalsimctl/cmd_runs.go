package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"coalsim/pkg/coalsim"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			scenario, _ := cmd.Flags().GetString("scenario")
			limit, _ := cmd.Flags().GetInt("limit")

			client, err := newClient(cmd, clientSettings{})
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Runs(cmd.Context(), coalsim.RunsRequest{Scenario: scenario, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no runs")
				return err
			}

			tbl := table.NewWriter()
			tbl.SetStyle(table.StyleLight)
			tbl.AppendHeader(table.Row{"run", "created", "scenario", "replicate", "seed", "model", "status", "trees", "mean tmrca"})
			for _, item := range items {
				tbl.AppendRow(table.Row{
					item.RunID,
					createdLabel(item.CreatedAtUTC),
					item.Scenario,
					item.Replicate,
					strconv.FormatInt(item.Seed, 10),
					item.Model,
					statusColor(item.Status).Sprint(item.Status),
					humanize.Comma(int64(item.Trees)),
					humanize.FtoaWithDigits(item.MeanTMRCA, 4),
				})
			}
			tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d runs", len(items))})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return err
		},
	}
	cmd.Flags().String("scenario", "", "Only list runs of this scenario")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

func createdLabel(createdAtUTC string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(t)
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the record of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			client, err := newClient(cmd, clientSettings{})
			if err != nil {
				return err
			}
			defer client.Close()

			rec, err := client.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), rec)
			}

			tbl := table.NewWriter()
			tbl.SetStyle(table.StyleLight)
			tbl.SetTitle("Run " + rec.ID)
			tbl.AppendRows([]table.Row{
				{"scenario", rec.Scenario},
				{"replicate", rec.Replicate},
				{"seed", strconv.FormatInt(rec.Seed, 10)},
				{"model", rec.Model},
				{"status", statusColor(rec.Status).Sprint(rec.Status)},
				{"time", humanize.FtoaWithDigits(rec.Time, 6)},
				{"started", humanize.Time(rec.StartedAt)},
				{"elapsed", (time.Duration(rec.Elapsed * float64(time.Second))).Round(time.Microsecond).String()},
				{"events", humanize.Comma(int64(rec.Events))},
				{"common ancestors", humanize.Comma(int64(rec.CommonAncestors))},
				{"rejected common ancestors", humanize.Comma(int64(rec.RejectedCommonAncestor))},
				{"recombinations", humanize.Comma(int64(rec.Recombinations))},
				{"migrations", humanize.Comma(int64(rec.Migrations))},
				{"generations", humanize.Comma(int64(rec.Generations))},
				{"nodes", humanize.Comma(int64(rec.Nodes))},
				{"edges", humanize.Comma(int64(rec.Edges))},
				{"trees", humanize.Comma(int64(rec.Trees))},
			})
			if rec.Error != "" {
				tbl.AppendRow(table.Row{"error", fmt.Sprintf("%s (code %d)", rec.Error, rec.ErrorCode)})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return err
		},
	}
}

func newBatchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List replicate batches, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			scenario, _ := cmd.Flags().GetString("scenario")

			client, err := newClient(cmd, clientSettings{})
			if err != nil {
				return err
			}
			defer client.Close()

			batches, err := client.Batches(cmd.Context(), scenario)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), batches)
			}
			if len(batches) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no batches")
				return err
			}

			tbl := table.NewWriter()
			tbl.SetStyle(table.StyleLight)
			tbl.AppendHeader(table.Row{"batch", "started", "scenario", "runs", "coalesced", "failed", "mean tmrca"})
			for _, b := range batches {
				tbl.AppendRow(table.Row{
					b.ID,
					createdLabel(b.StartedAtUTC),
					b.Scenario,
					b.Summary.Runs,
					b.Summary.Coalesced,
					b.Summary.Failed,
					humanize.FtoaWithDigits(b.Summary.TMRCA.Mean, 4),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return err
		},
	}
	cmd.Flags().String("scenario", "", "Only list batches of this scenario")
	return cmd
}
