// Package analysis summarizes the mass budgets of a simulation over calendar
// periods.
package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/sarchlab/hydrosim/sim"
)

// Period decides how the steps are grouped into summaries.
type Period int

// Summary periods.
const (
	PeriodRun Period = iota
	PeriodMonth
	PeriodWaterYear
)

func (p Period) String() string {
	switch p {
	case PeriodMonth:
		return "month"
	case PeriodWaterYear:
		return "water_year"
	default:
		return "run"
	}
}

// ParsePeriod parses "run", "month" or "water_year".
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "run":
		return PeriodRun, nil
	case "month", "monthly":
		return PeriodMonth, nil
	case "water_year", "wateryear", "wy":
		return PeriodWaterYear, nil
	default:
		return PeriodRun, fmt.Errorf("unknown summary period %q: %w",
			s, sim.ErrConstruction)
	}
}

// BudgetEntry is a single entry of a budget summary.
type BudgetEntry struct {
	Start time.Time
	End   time.Time
	Where string
	What  string
	Basis string
	Value float64
	Unit  string
}

type ledgerOwner interface {
	Name() string
	Ledger() *sim.Ledger
}

type budgetSum struct {
	in, out, dS float64
}

// BudgetAnalyzer sums the budget terms of every tracked component over a
// period and writes one entry per term and period.
type BudgetAnalyzer struct {
	period  Period
	backend Backend

	owners []ledgerOwner
	sums   []budgetSum

	started bool
	key     int
	start   time.Time
	last    time.Time
}

// RegisterComponent adds the ledger of a component to the summary.
// Components without a ledger are ignored.
func (a *BudgetAnalyzer) RegisterComponent(c sim.Named) {
	o, ok := c.(ledgerOwner)
	if !ok || o.Ledger() == nil {
		return
	}

	a.owners = append(a.owners, o)
	a.sums = append(a.sums, budgetSum{})
}

// NumComponents returns how many ledgers are summarized.
func (a *BudgetAnalyzer) NumComponents() int {
	return len(a.owners)
}

// Func adds the totals of the completed step. The step time is the Item of
// the hook context.
func (a *BudgetAnalyzer) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosStepComplete {
		return
	}

	t, ok := ctx.Item.(time.Time)
	if !ok {
		return
	}

	key := a.periodKey(t)
	if a.started && key != a.key {
		a.summarize()
	}

	if !a.started {
		a.started = true
		a.key = key
		a.start = t
	}

	a.last = t

	for i, o := range a.owners {
		in, out, dS := o.Ledger().Totals()
		a.sums[i].in += in
		a.sums[i].out += out
		a.sums[i].dS += dS
	}
}

func (a *BudgetAnalyzer) periodKey(t time.Time) int {
	switch a.period {
	case PeriodMonth:
		return t.Year()*12 + int(t.Month())
	case PeriodWaterYear:
		return sim.WaterYear(t)
	default:
		return 0
	}
}

func (a *BudgetAnalyzer) summarize() {
	for i, o := range a.owners {
		s := a.sums[i]
		l := o.Ledger()
		basis := l.Basis().String()
		unit := l.Terms().Unit

		terms := []struct {
			what  string
			value float64
		}{
			{"inputs", s.in},
			{"outputs", s.out},
			{"storage_change", s.dS},
			{"balance", s.in - s.out - s.dS},
		}

		for _, term := range terms {
			a.backend.AddDataEntry(BudgetEntry{
				Start: a.start,
				End:   a.last,
				Where: o.Name(),
				What:  term.what,
				Basis: basis,
				Value: term.value,
				Unit:  unit,
			})
		}

		a.sums[i] = budgetSum{}
	}

	a.started = false
}

// Flush summarizes the open period and flushes the backend.
func (a *BudgetAnalyzer) Flush() error {
	if a.started {
		a.summarize()
	}

	return a.backend.Flush()
}

// Close flushes the summary and closes the backend.
func (a *BudgetAnalyzer) Close() error {
	if err := a.Flush(); err != nil {
		_ = a.backend.Close()
		return err
	}

	return a.backend.Close()
}

// BudgetAnalyzerBuilder is a builder that can build a BudgetAnalyzer.
type BudgetAnalyzerBuilder struct {
	period      Period
	backendType string
	dbFilename  string
	backend     Backend
}

// MakeBudgetAnalyzerBuilder creates a new BudgetAnalyzerBuilder.
func MakeBudgetAnalyzerBuilder() BudgetAnalyzerBuilder {
	return BudgetAnalyzerBuilder{
		period:      PeriodRun,
		backendType: "csv",
		dbFilename:  "budget",
	}
}

// WithPeriod sets how the steps are grouped.
func (b BudgetAnalyzerBuilder) WithPeriod(p Period) BudgetAnalyzerBuilder {
	b.period = p
	return b
}

// WithCSVBackend writes the summary to a CSV file.
func (b BudgetAnalyzerBuilder) WithCSVBackend() BudgetAnalyzerBuilder {
	b.backendType = "csv"
	return b
}

// WithSQLiteBackend writes the summary to a SQLite database.
func (b BudgetAnalyzerBuilder) WithSQLiteBackend() BudgetAnalyzerBuilder {
	b.backendType = "sqlite"
	return b
}

// WithDBFilename sets the name of the output file, without its extension.
func (b BudgetAnalyzerBuilder) WithDBFilename(
	filename string,
) BudgetAnalyzerBuilder {
	b.dbFilename = filename
	return b
}

// WithBackend sets a backend directly. It takes precedence over the backend
// type and the file name.
func (b BudgetAnalyzerBuilder) WithBackend(be Backend) BudgetAnalyzerBuilder {
	b.backend = be
	return b
}

// Build creates a BudgetAnalyzer.
func (b BudgetAnalyzerBuilder) Build() (*BudgetAnalyzer, error) {
	backend := b.backend

	if backend == nil {
		var err error

		switch b.backendType {
		case "csv":
			backend, err = NewCSVBackend(b.dbFilename)
		case "sqlite":
			backend, err = NewSQLiteBackend(b.dbFilename)
		default:
			err = fmt.Errorf("unknown summary backend %q: %w",
				b.backendType, sim.ErrConstruction)
		}

		if err != nil {
			return nil, err
		}
	}

	return &BudgetAnalyzer{
		period:  b.period,
		backend: backend,
	}, nil
}
