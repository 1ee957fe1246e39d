package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coalsim/pkg/coalsim"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the artifacts of a run to the exports directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			runID, _ := cmd.Flags().GetString("run-id")
			latest, _ := cmd.Flags().GetBool("latest")
			out, _ := cmd.Flags().GetString("out")

			client, err := newClient(cmd, clientSettings{})
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), coalsim.ExportRequest{RunID: runID, Latest: latest, OutDir: out})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), exported)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", exported.RunID, exported.Directory)
			return err
		},
	}
	cmd.Flags().String("run-id", "", "Run to export")
	cmd.Flags().Bool("latest", false, "Export the newest run")
	cmd.Flags().String("out", "", "Destination directory; defaults to --exports-dir")
	return cmd
}
