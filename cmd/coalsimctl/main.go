package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"coalsim/internal/logging"
	"coalsim/internal/metrics"
	"coalsim/pkg/coalsim"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coalsimctl",
		Short: "Coalescent ancestry simulator",
		Long: `coalsimctl simulates the ancestral recombination graph of sampled
genomes backwards in time under demographic scenarios read from YAML.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			noColor, _ := cmd.Flags().GetBool("no-color")
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("store", "", "Run store backend (memory|sqlite); defaults to the scenario's")
	rootCmd.PersistentFlags().String("db", "coalsim.db", "SQLite database path")
	rootCmd.PersistentFlags().String("runs-dir", "runs", "Directory for run artifacts and the run index")
	rootCmd.PersistentFlags().String("exports-dir", "exports", "Directory for exported runs")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace|debug|info|warn|error); defaults to the scenario's")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text|json)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newDemographyCmd(),
		newRunsCmd(),
		newBatchesCmd(),
		newShowCmd(),
		newExportCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "coalsimctl version %s\n", version)
			return err
		},
	}
}

type clientSettings struct {
	storeKind string
	logLevel  string
	collector *metrics.Collector
}

// newClient builds a client from the global flags. Scenario settings fill in
// flags left unset.
func newClient(cmd *cobra.Command, s clientSettings) (*coalsim.Client, error) {
	storeKind, _ := cmd.Flags().GetString("store")
	if storeKind == "" {
		storeKind = s.storeKind
	}
	dbPath, _ := cmd.Flags().GetString("db")
	runsDir, _ := cmd.Flags().GetString("runs-dir")
	exportsDir, _ := cmd.Flags().GetString("exports-dir")
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = s.logLevel
	}
	format, _ := cmd.Flags().GetString("log-format")

	client, err := coalsim.New(coalsim.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		RunsDir:    runsDir,
		ExportsDir: exportsDir,
		Logger:     logging.NewLogger(level, format, cmd.ErrOrStderr()),
		Metrics:    s.collector,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusColor(status string) *color.Color {
	switch status {
	case "coalesced":
		return color.New(color.FgGreen)
	case "max_time":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
