package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded by LoadEnv when no file is named.
const DefaultEnvFile = ".env"

// LoadEnv loads environment variables from .env files. Variables already
// set are kept. Without files, .env is loaded if it exists.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}

		files = []string{DefaultEnvFile}
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files %v: %w", files, err)
	}

	return nil
}

// envOverrides lists the fields that HYDROSIM_* variables can set.
type envOverrides struct {
	Start           string  `env:"HYDROSIM_START"`
	End             string  `env:"HYDROSIM_END"`
	InputDir        string  `env:"HYDROSIM_INPUT_DIR"`
	BatchSize       int     `env:"HYDROSIM_BATCH_SIZE"`
	BudgetMode      string  `env:"HYDROSIM_BUDGET_MODE"`
	BudgetTolerance float64 `env:"HYDROSIM_BUDGET_TOLERANCE"`
	OutputType      string  `env:"HYDROSIM_OUTPUT_TYPE"`
	OutputPath      string  `env:"HYDROSIM_OUTPUT_PATH"`
	OutputConnStr   string  `env:"HYDROSIM_OUTPUT_CONN"`
	MonitorEnabled  bool    `env:"HYDROSIM_MONITOR"`
	MonitorPort     int     `env:"HYDROSIM_MONITOR_PORT"`
	LogLevel        string  `env:"HYDROSIM_LOG_LEVEL"`
}

// ApplyEnv overrides the config with the HYDROSIM_* environment variables
// that are set, and validates the result.
func ApplyEnv(c *Config) error {
	o := envOverrides{
		Start:           c.Start,
		End:             c.End,
		InputDir:        c.Input.Dir,
		BatchSize:       c.Input.BatchSize,
		BudgetMode:      c.Budget.Mode,
		BudgetTolerance: c.Budget.Tolerance,
		OutputType:      c.Output.Type,
		OutputPath:      c.Output.Path,
		OutputConnStr:   c.Output.ConnStr,
		MonitorEnabled:  c.Monitor.Enabled,
		MonitorPort:     c.Monitor.Port,
		LogLevel:        c.LogLevel,
	}

	err := envdecode.Decode(&o)
	if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("reading HYDROSIM_* variables: %w",
			joinConstruction(err))
	}

	c.Start = o.Start
	c.End = o.End
	c.Input.Dir = o.InputDir
	c.Input.BatchSize = o.BatchSize
	c.Budget.Mode = o.BudgetMode
	c.Budget.Tolerance = o.BudgetTolerance
	c.Output.Type = o.OutputType
	c.Output.Path = o.OutputPath
	c.Output.ConnStr = o.OutputConnStr
	c.Monitor.Enabled = o.MonitorEnabled
	c.Monitor.Port = o.MonitorPort
	c.LogLevel = o.LogLevel

	return c.Validate()
}
