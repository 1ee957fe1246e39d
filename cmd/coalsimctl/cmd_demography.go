package main

import (
	"github.com/spf13/cobra"

	"coalsim/internal/config"
	"coalsim/pkg/coalsim"
)

func newDemographyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demography <scenario.yaml>",
		Short: "Print the demographic epochs of a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := config.Load(args[0])
			if err != nil {
				return err
			}
			cfg, err := scenario.Build()
			if err != nil {
				return err
			}
			return coalsim.PrintDemography(cmd.OutOrStdout(), cfg.Demography)
		},
	}
}
