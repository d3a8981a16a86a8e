// Package config reads hydrosim run files.
//
// A run file is YAML. It names the clock, the processes and their
// parameters, where the weather comes from and where the outputs go.
// Relative paths are relative to the run file. Selected fields can be
// overridden by HYDROSIM_* environment variables, see ApplyEnv.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sarchlab/hydrosim/analysis"
	"github.com/sarchlab/hydrosim/datarecording"
	"github.com/sarchlab/hydrosim/monitoring"
	"github.com/sarchlab/hydrosim/processes"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sarchlab/hydrosim/simulation"
	"github.com/sarchlab/hydrosim/timeseries"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultStep is the step size of run files that do not set one.
const DefaultStep = "24h"

// ComponentConfig declares one process.
type ComponentConfig struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Parameters ParamMap `yaml:"parameters,omitempty"`
}

// InputConfig tells where the external inputs are read.
type InputConfig struct {
	// Dir holds one file per variable, .csv or .sqlite3.
	Dir       string `yaml:"dir"`
	BatchSize int    `yaml:"batch_size,omitempty"`
}

// BudgetConfig configures the conservation ledgers.
type BudgetConfig struct {
	Mode      string  `yaml:"mode,omitempty"`
	Tolerance float64 `yaml:"tolerance,omitempty"`
	Basis     string  `yaml:"basis,omitempty"`

	Summary *SummaryConfig `yaml:"summary,omitempty"`
}

// SummaryConfig asks for the ledgers to be summed over calendar periods.
type SummaryConfig struct {
	// Type is csv or sqlite.
	Type   string `yaml:"type,omitempty"`
	Path   string `yaml:"path"`
	Period string `yaml:"period,omitempty"`
}

// OutputConfig configures where outputs are recorded.
type OutputConfig struct {
	Type    string   `yaml:"type,omitempty"`
	Path    string   `yaml:"path,omitempty"`
	ConnStr string   `yaml:"conn,omitempty"`
	Vars    []string `yaml:"vars,omitempty"`
}

// MonitorConfig configures the web monitor.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port,omitempty"`
}

// Config is the content of a run file.
type Config struct {
	Name  string `yaml:"name,omitempty"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Step  string `yaml:"step,omitempty"`

	Components []ComponentConfig `yaml:"components"`
	Order      []string          `yaml:"order,omitempty"`

	// ParameterFile is a YAML file read by LoadParameters.
	ParameterFile  string   `yaml:"parameter_file,omitempty"`
	Parameters     ParamMap `yaml:"parameters,omitempty"`
	Discretization ParamMap `yaml:"discretization"`

	Input   InputConfig   `yaml:"input"`
	Budget  BudgetConfig  `yaml:"budget,omitempty"`
	Output  OutputConfig  `yaml:"output,omitempty"`
	Monitor MonitorConfig `yaml:"monitor,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`

	dir string
}

func joinConstruction(err error) error {
	return errors.Join(err, sim.ErrConstruction)
}

// Load reads and validates a run file. Unknown fields are errors.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening run file: %w", joinConstruction(err))
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing run file %s: %w", path,
			joinConstruction(err))
	}

	cfg.dir = filepath.Dir(path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the fields that can be checked without building the
// model.
func (c *Config) Validate() error {
	if _, err := c.Clock(); err != nil {
		return err
	}

	if len(c.Components) == 0 {
		return fmt.Errorf("no components: %w", sim.ErrConstruction)
	}

	for _, comp := range c.Components {
		if err := sim.ValidateComponentName(comp.Name); err != nil {
			return err
		}

		if _, err := processes.Lookup(comp.Kind); err != nil {
			return fmt.Errorf("component %s: %w", comp.Name, err)
		}
	}

	if _, err := sim.ParseBudgetMode(c.budgetMode()); err != nil {
		return joinConstruction(err)
	}

	if _, err := sim.ParseBasis(c.Budget.Basis); err != nil {
		return joinConstruction(err)
	}

	if c.Budget.Tolerance < 0 {
		return fmt.Errorf("budget tolerance %g is negative: %w",
			c.Budget.Tolerance, sim.ErrConstruction)
	}

	if err := c.validateSummary(); err != nil {
		return err
	}

	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return joinConstruction(err)
		}
	}

	return nil
}

func (c *Config) validateSummary() error {
	sc := c.Budget.Summary
	if sc == nil {
		return nil
	}

	if sc.Path == "" {
		return fmt.Errorf("budget summary has no path: %w", sim.ErrConstruction)
	}

	switch strings.ToLower(sc.Type) {
	case "", "csv", "sqlite":
	default:
		return fmt.Errorf("unknown budget summary type %q: %w",
			sc.Type, sim.ErrConstruction)
	}

	_, err := analysis.ParsePeriod(sc.Period)

	return err
}

func (c *Config) summaryBuilder() (analysis.BudgetAnalyzerBuilder, error) {
	sc := c.Budget.Summary

	period, err := analysis.ParsePeriod(sc.Period)
	if err != nil {
		return analysis.BudgetAnalyzerBuilder{}, err
	}

	ab := analysis.MakeBudgetAnalyzerBuilder().
		WithPeriod(period).
		WithDBFilename(c.Path(sc.Path))

	if strings.ToLower(sc.Type) == "sqlite" {
		ab = ab.WithSQLiteBackend()
	}

	return ab, nil
}

func (c *Config) budgetMode() string {
	if c.Budget.Mode == "" {
		return sim.BudgetError.String()
	}

	return c.Budget.Mode
}

func parseTime(field, s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%s %q is not a date: %w",
		field, s, sim.ErrConstruction)
}

// Clock creates the clock of the run.
func (c *Config) Clock() (*sim.Clock, error) {
	start, err := parseTime("start", c.Start)
	if err != nil {
		return nil, err
	}

	end, err := parseTime("end", c.End)
	if err != nil {
		return nil, err
	}

	stepText := c.Step
	if stepText == "" {
		stepText = DefaultStep
	}

	step, err := time.ParseDuration(stepText)
	if err != nil {
		return nil, fmt.Errorf("step: %w", joinConstruction(err))
	}

	return sim.NewClock(start, end, step)
}

// Path resolves a path of the run file.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}

	return filepath.Join(c.dir, p)
}

// LogLevelOrDefault returns the configured log level, or info.
func (c *Config) LogLevelOrDefault() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}

	return level
}

// SharedParameters returns the parameters shared by the components. Inline
// parameters take precedence over the parameter file.
func (c *Config) SharedParameters() (sim.ParameterSource, error) {
	layers := sim.Layered{c.Parameters.Parameters()}

	if c.ParameterFile != "" {
		fromFile, err := LoadParameters(c.Path(c.ParameterFile))
		if err != nil {
			return nil, err
		}

		layers = append(layers, fromFile)
	}

	return layers, nil
}

// Builder creates a simulation builder for the run. The monitor is nil
// unless enabled.
func (c *Config) Builder(logger logrus.FieldLogger) (
	simulation.Builder,
	*monitoring.Monitor,
	error,
) {
	clock, err := c.Clock()
	if err != nil {
		return simulation.Builder{}, nil, err
	}

	params, err := c.SharedParameters()
	if err != nil {
		return simulation.Builder{}, nil, err
	}

	mode, err := sim.ParseBudgetMode(c.budgetMode())
	if err != nil {
		return simulation.Builder{}, nil, joinConstruction(err)
	}

	b := simulation.MakeBuilder().
		WithClock(clock).
		WithLogger(logger).
		WithParameters(params).
		WithDiscretization(c.Discretization.Parameters()).
		WithBudgetMode(mode).
		WithBatchSize(c.Input.BatchSize)

	if c.Budget.Tolerance > 0 {
		b = b.WithBudgetTolerance(c.Budget.Tolerance)
	}

	if c.Budget.Basis != "" {
		basis, err := sim.ParseBasis(c.Budget.Basis)
		if err != nil {
			return simulation.Builder{}, nil, joinConstruction(err)
		}

		b = b.WithBudgetBasis(basis)
	}

	if c.Budget.Summary != nil {
		ab, err := c.summaryBuilder()
		if err != nil {
			return simulation.Builder{}, nil, err
		}

		b = b.WithBudgetSummary(ab)
	}

	for _, comp := range c.Components {
		builder, err := processes.Lookup(comp.Kind)
		if err != nil {
			return simulation.Builder{}, nil, err
		}

		if len(comp.Parameters) > 0 {
			b = b.WithComponent(comp.Name, builder, comp.Parameters.Parameters())
		} else {
			b = b.WithComponent(comp.Name, builder)
		}
	}

	if len(c.Order) > 0 {
		b = b.WithOrder(c.Order...)
	}

	if c.Input.Dir != "" {
		b = b.WithSeriesSource(
			timeseries.NewDirectory(c.Path(c.Input.Dir)).WithStart(clock.StartTime()))
	}

	if c.Output.Path != "" || c.Output.ConnStr != "" {
		b = b.WithRecorderConfig(datarecording.RecorderConfig{
			Type:    strings.ToLower(c.Output.Type),
			Path:    c.Path(c.Output.Path),
			ConnStr: c.Output.ConnStr,
		})
	}

	if len(c.Output.Vars) > 0 {
		b = b.WithOutputVars(c.Output.Vars...)
	}

	var m *monitoring.Monitor
	if c.Monitor.Enabled {
		m = monitoring.NewMonitor().
			WithPortNumber(c.Monitor.Port).
			WithLogger(logger)
		b = b.WithMonitor(m)
	}

	return b, m, nil
}
