package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"coalsim/internal/config"
	"coalsim/internal/metrics"
	"coalsim/pkg/coalsim"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run the replicates of a scenario",
		Long: `Run every replicate of a scenario, store the runs and write their
artifacts (graph tables, marginal tree summaries, scenario) under --runs-dir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			replicates, _ := cmd.Flags().GetInt("replicates")
			workers, _ := cmd.Flags().GetInt("workers")
			noArtifacts, _ := cmd.Flags().GetBool("no-artifacts")
			metricsFile, _ := cmd.Flags().GetString("metrics-file")

			scenario, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				scenario.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if replicates > 0 {
				scenario.Replicates = replicates
			}
			if workers > 0 {
				scenario.Workers = workers
			}

			collector := metrics.NewCollector("coalsim")
			client, err := newClient(cmd, clientSettings{
				storeKind: scenario.Store.Kind,
				logLevel:  scenario.Logging.Level,
				collector: collector,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Replicates(cmd.Context(), coalsim.ReplicatesRequest{
				Scenario:      scenario,
				SkipArtifacts: noArtifacts,
			})
			if err != nil {
				return err
			}
			if metricsFile != "" {
				if err := collector.WriteTextfile(metricsFile); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary.Summary)
			}
			items, err := client.Runs(cmd.Context(), coalsim.RunsRequest{Scenario: scenario.Name, Limit: len(summary.RunIDs)})
			if err != nil {
				return err
			}
			if err := printSimulateSummary(cmd.OutOrStdout(), summary, items, noArtifacts); err != nil {
				return err
			}
			for _, failure := range summary.Failures {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "%v\n", failure)
			}
			return nil
		},
	}

	cmd.Flags().Int64("seed", 0, "Override the scenario seed")
	cmd.Flags().Int("replicates", 0, "Override the number of replicates")
	cmd.Flags().Int("workers", 0, "Override the number of concurrent replicates")
	cmd.Flags().Bool("no-artifacts", false, "Keep runs in the store only")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile")
	return cmd
}

func printSimulateSummary(w io.Writer, summary coalsim.ReplicatesSummary, items []coalsim.RunItem, noArtifacts bool) error {
	s := summary.Summary
	fmt.Fprintf(w, "scenario %s: %s runs, %s coalesced, %s stopped at end time, %s failed\n",
		s.Scenario, humanize.Comma(int64(s.Runs)), humanize.Comma(int64(s.Coalesced)),
		humanize.Comma(int64(s.MaxTime)), humanize.Comma(int64(s.Failed)))
	fmt.Fprintf(w, "mean TMRCA %s (sd %s), mean trees %s, mean events %s\n",
		humanize.FtoaWithDigits(s.TMRCA.Mean, 4), humanize.FtoaWithDigits(s.TMRCA.Std, 4),
		humanize.FtoaWithDigits(s.Trees.Mean, 2), humanize.FtoaWithDigits(s.Events.Mean, 1))
	if noArtifacts || len(items) == 0 {
		return nil
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"run", "replicate", "seed", "model", "status", "trees", "mean tmrca"})
	for _, item := range items {
		tbl.AppendRow(table.Row{
			item.RunID,
			item.Replicate,
			strconv.FormatInt(item.Seed, 10),
			item.Model,
			statusColor(item.Status).Sprint(item.Status),
			humanize.Comma(int64(item.Trees)),
			humanize.FtoaWithDigits(item.MeanTMRCA, 4),
		})
	}
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}
