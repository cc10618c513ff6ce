package relunet

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewReluNetCommand() *cobra.Command {
	var (
		width   int
		bLower  float64
		bUpper  float64
		trace   bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "relunet",
		Short: "Runs the phase search over a single ReLU layer",
		Long: `Builds one layer of ReLU constraints over a shared tableau, seeds
the pre-activation variables with the given bounds, and searches for
a phase assignment consistent with them. Constraints whose phase is
settled by the bounds alone are resolved eagerly, without search.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if width <= 0 {
				return fmt.Errorf("width must be positive, got %d", width)
			}
			if bLower > bUpper {
				return fmt.Errorf("lower bound %g exceeds upper bound %g", bLower, bUpper)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), width, bLower, bUpper, trace, verbose)
		},
	}

	cmd.Flags().IntVar(&width, "width", 4, "number of ReLU nodes in the layer")
	cmd.Flags().Float64Var(&bLower, "lower", -1, "lower bound seeded on each pre-activation variable")
	cmd.Flags().Float64Var(&bUpper, "upper", 1, "upper bound seeded on each pre-activation variable")
	cmd.Flags().BoolVar(&trace, "trace", false, "print refuted phase assignments during the search")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}
