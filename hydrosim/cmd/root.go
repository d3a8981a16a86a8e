// Package cmd provides the command-line interface for hydrosim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hydrosim",
	Short: "hydrosim runs conservation-checked hydrologic models.",
	Long: `hydrosim runs hydrologic models described by YAML run files. ` +
		`Every process keeps a conservation budget that is checked at ` +
		`each time step.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Registered exit handlers run before the process exits.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
