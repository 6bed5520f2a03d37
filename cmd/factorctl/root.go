package main

import (
	"github.com/spf13/cobra"

	goFactor "github.com/MrEthical07/goFactor"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        goFactor.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "factorctl",
		Short:         "Operate goFactor: check factor credentials, print codes, load test",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := goFactor.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (defaults and environment apply without it)")

	root.AddCommand(newCheckDuoCmd(a))
	root.AddCommand(newTOTPCmd(a))
	root.AddCommand(newLoadtestCmd(a))
	return root
}
