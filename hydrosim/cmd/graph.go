package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph RUN_FILE",
	Short: "Print the execution order and where every input comes from.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args[0])
		if err != nil {
			return err
		}

		cfg.Output.Path = ""
		cfg.Output.ConnStr = ""
		cfg.Monitor.Enabled = false

		logger := newLogger(cmd, cfg)
		logger.SetLevel(logrus.WarnLevel)

		b, _, err := cfg.Builder(logger)
		if err != nil {
			return err
		}

		s, err := b.Build()
		if err != nil {
			return err
		}

		return s.Describe(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
