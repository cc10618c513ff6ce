package root

import (
	"github.com/spf13/cobra"

	"github.com/pwl-solver/reluplex/cmd/relunet"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reluplex",
		Short: "Reluplex is a case-split search core for piecewise-linear constraints",
		Long: `A linear-arithmetic verification core for piecewise-linear functions
such as ReLU activation layers, built around eager phase propagation
and case-split search.`,
	}

	// add sub-commands
	rootCmd.AddCommand(relunet.NewReluNetCommand())

	return rootCmd
}
