package cmd

import (
	"fmt"

	"github.com/sarchlab/hydrosim/processes"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [KIND...]",
	Short: "Describe the inputs, outputs and budget of process kinds.",
	Long: "`inspect` describes every process kind. " +
		"`inspect KIND...` describes only the named ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := args
		if len(kinds) == 0 {
			kinds = processes.Kinds()
		}

		for _, kind := range kinds {
			b, err := processes.Lookup(kind)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "== %s ==\n%s\n",
				kind, b.Metadata().Describe())
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
