package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/sarchlab/hydrosim/config"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sarchlab/hydrosim/simulation"
	"github.com/sarchlab/hydrosim/tracing"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run RUN_FILE",
	Short: "Run a model.",
	Long: "`run RUN_FILE` loads the run file, applies the HYDROSIM_* " +
		"environment variables and runs the model to the end of its clock.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")
		steps, _ := cmd.Flags().GetInt("steps")
		open, _ := cmd.Flags().GetBool("open")
		timing, _ := cmd.Flags().GetBool("timing")

		if err := config.LoadEnv(envFiles...); err != nil {
			return err
		}

		cfg, err := loadConfig(args[0])
		if err != nil {
			return err
		}

		if open {
			cfg.Monitor.Enabled = true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return run(ctx, cmd, cfg, runOptions{
			steps:  steps,
			open:   open,
			timing: timing,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSlice("env-file", nil,
		"Load environment variables from these files (default .env)")
	runCmd.Flags().Int("steps", 0,
		"Run only this number of steps (default all)")
	runCmd.Flags().Bool("open", false,
		"Start the monitor and open it in a browser")
	runCmd.Flags().Bool("timing", false,
		"Report the time every component spent calculating")
}

type runOptions struct {
	steps  int
	open   bool
	timing bool
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(cfg.LogLevelOrDefault())

	return logger
}

func run(
	ctx context.Context,
	cmd *cobra.Command,
	cfg *config.Config,
	opts runOptions,
) error {
	logger := newLogger(cmd, cfg)

	b, monitor, err := cfg.Builder(logger)
	if err != nil {
		return err
	}

	s, err := b.Build()
	if err != nil {
		return err
	}

	if monitor != nil {
		if _, err := monitor.StartServer(); err != nil {
			return errors.Join(err, s.Finalize())
		}
		defer func() { _ = monitor.Shutdown(context.Background()) }()

		fmt.Fprintf(cmd.OutOrStdout(), "Monitoring simulation at %s\n",
			monitor.URL())

		if opts.open {
			if err := monitor.OpenInBrowser(); err != nil {
				logger.WithError(err).Warn("cannot open browser")
			}
		}
	}

	var (
		busy  *tracing.BusyTimeTracer
		count *tracing.StepCountTracer
	)

	if opts.timing {
		busy = tracing.NewBusyTimeTracer(nil, nil)
		count = tracing.NewStepCountTracer(nil)

		for _, c := range s.Components() {
			tracing.CollectTrace(busy, c)
			tracing.CollectTrace(count, c)
		}
	}

	runErr := s.Run(ctx, opts.steps)
	if runErr != nil && !s.Finalized() {
		finErr := s.Finalize()

		// Finalize already reports a failure recorded by the simulation.
		if s.Err() == nil {
			finErr = errors.Join(runErr, finErr)
		}

		runErr = finErr
	}

	violations := s.Violations()
	fmt.Fprintf(cmd.OutOrStdout(),
		"simulation %s: %d steps, %d budget violations\n",
		s.ID(), s.Clock().CurrentIndex()+1, len(violations))

	if r := s.Recorder(); r != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "outputs: %s\n", r.Filename())
	}

	if opts.timing {
		printTiming(cmd, s, busy, count)
	}

	return runErr
}

func printTiming(
	cmd *cobra.Command,
	s *simulation.Simulation,
	busy *tracing.BusyTimeTracer,
	count *tracing.StepCountTracer,
) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "component\tcalculations\tbusy")

	for _, name := range s.ExecutionOrder() {
		fmt.Fprintf(w, "%s\t%d\t%s\n", name,
			count.GetComponentStepCount(name, sim.HookPosAfterCalculate.Name),
			busy.BusyTime(name))
	}

	fmt.Fprintf(w, "total\t\t%s\n", busy.TotalBusyTime())
	_ = w.Flush()
}
