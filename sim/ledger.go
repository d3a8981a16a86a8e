package sim

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

// BudgetMode decides what a ledger does when a step is out of balance.
type BudgetMode int

// Budget modes.
const (
	BudgetDisabled BudgetMode = iota
	BudgetWarn
	BudgetError
)

func (m BudgetMode) String() string {
	switch m {
	case BudgetDisabled:
		return "disabled"
	case BudgetWarn:
		return "warn"
	case BudgetError:
		return "error"
	default:
		return fmt.Sprintf("BudgetMode(%d)", int(m))
	}
}

// ParseBudgetMode parses "error", "warn" or "disabled". An empty string and
// "none" also mean disabled.
func ParseBudgetMode(s string) (BudgetMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return BudgetError, nil
	case "warn", "warning":
		return BudgetWarn, nil
	case "", "none", "disabled", "off":
		return BudgetDisabled, nil
	default:
		return BudgetDisabled, fmt.Errorf("unknown budget mode %q: %w",
			s, ErrConstruction)
	}
}

// Basis decides whether the balance is checked per spatial unit or over the
// whole domain.
type Basis int

// Budget bases.
const (
	BasisUnit Basis = iota
	BasisGlobal
)

func (b Basis) String() string {
	if b == BasisGlobal {
		return "global"
	}

	return "unit"
}

// ParseBasis parses "unit" or "global".
func ParseBasis(s string) (Basis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unit":
		return BasisUnit, nil
	case "global":
		return BasisGlobal, nil
	default:
		return BasisUnit, fmt.Errorf("unknown budget basis %q: %w",
			s, ErrConstruction)
	}
}

// DefaultBudgetTolerance is the absolute tolerance used when none is given.
const DefaultBudgetTolerance = 1e-6

// LedgerConfig configures the ledgers of a simulation.
type LedgerConfig struct {
	Mode      BudgetMode
	Tolerance float64

	// Basis overrides the basis a component asks for when ForceBasis is
	// set.
	Basis      Basis
	ForceBasis bool
}

// TermSource resolves the current values of a budget term.
type TermSource interface {
	Term(name string) (View, error)
}

// Ledger keeps the conservation budget of one component. Terms are
// resolved through the owner every step, so the ledger always reads the same
// memory as the owner and its consumers.
type Ledger struct {
	owner  string
	terms  BudgetTerms
	basis  Basis
	mode   BudgetMode
	tol    float64
	source TermSource
	clock  TimeTeller
	hooks  *HookableBase
	logger logrus.FieldLogger

	n          int
	in         []float64
	out        []float64
	dS         []float64
	totalIn    float64
	totalOut   float64
	totalDS    float64
	calculated bool

	cumIn  float64
	cumOut float64
	cumDS  float64

	violations []*ImbalanceError
}

// NewLedger creates a ledger for the owner's budget terms.
func NewLedger(
	owner string,
	terms BudgetTerms,
	basis Basis,
	cfg LedgerConfig,
	source TermSource,
	clock TimeTeller,
) *Ledger {
	if cfg.ForceBasis {
		basis = cfg.Basis
	}

	tol := cfg.Tolerance
	if tol <= 0 {
		tol = DefaultBudgetTolerance
	}

	return &Ledger{
		owner:  owner,
		terms:  terms,
		basis:  basis,
		mode:   cfg.Mode,
		tol:    tol,
		source: source,
		clock:  clock,
		hooks:  NewHookableBase(),
		logger: logrus.StandardLogger(),
	}
}

// WithLogger sets the logger used in warn mode.
func (l *Ledger) WithLogger(logger logrus.FieldLogger) *Ledger {
	if logger != nil {
		l.logger = logger
	}

	return l
}

// WithHooks makes the ledger invoke the hooks of its owner.
func (l *Ledger) WithHooks(h *HookableBase) *Ledger {
	if h != nil {
		l.hooks = h
	}

	return l
}

// Owner returns the name of the component that owns the ledger.
func (l *Ledger) Owner() string {
	return l.owner
}

// Terms returns the budget terms.
func (l *Ledger) Terms() BudgetTerms {
	return l.terms
}

// Mode returns the budget mode.
func (l *Ledger) Mode() BudgetMode {
	return l.mode
}

// Basis returns the budget basis.
func (l *Ledger) Basis() Basis {
	return l.basis
}

// Tolerance returns the absolute tolerance.
func (l *Ledger) Tolerance() float64 {
	return l.tol
}

// Advance resets the per-step accumulators.
func (l *Ledger) Advance() {
	for i := range l.in {
		l.in[i] = 0
		l.out[i] = 0
		l.dS[i] = 0
	}

	l.totalIn, l.totalOut, l.totalDS = 0, 0, 0
	l.calculated = false
}

// Calculate sums the terms of the current step and checks the balance.
func (l *Ledger) Calculate() error {
	if err := l.accumulate(l.terms.Inputs, &l.in, &l.totalIn); err != nil {
		return err
	}

	if err := l.accumulate(l.terms.Outputs, &l.out, &l.totalOut); err != nil {
		return err
	}

	err := l.accumulate(l.terms.StorageChanges, &l.dS, &l.totalDS)
	if err != nil {
		return err
	}

	l.cumIn += l.totalIn
	l.cumOut += l.totalOut
	l.cumDS += l.totalDS
	l.calculated = true

	if l.mode == BudgetDisabled {
		return nil
	}

	return l.check()
}

func (l *Ledger) accumulate(
	names []string,
	acc *[]float64,
	total *float64,
) error {
	for _, name := range names {
		v, err := l.source.Term(name)
		if err != nil {
			return fmt.Errorf("budget of %q: %w", l.owner, err)
		}

		if l.basis == BasisUnit {
			if err := l.ensureLen(name, v.Len()); err != nil {
				return err
			}

			for i := 0; i < v.Len(); i++ {
				(*acc)[i] += v.At(i)
			}
		}

		*total += v.Sum()
	}

	return nil
}

func (l *Ledger) ensureLen(name string, n int) error {
	if l.in == nil {
		l.n = n
		l.in = make([]float64, n)
		l.out = make([]float64, n)
		l.dS = make([]float64, n)

		return nil
	}

	if n != l.n {
		return &ShapeMismatchError{Variable: name, Want: l.n, Got: n}
	}

	return nil
}

func (l *Ledger) check() error {
	var worst *ImbalanceError

	if l.basis == BasisGlobal {
		m := math.Abs(l.totalIn - l.totalOut - l.totalDS)
		if m > l.tol || math.IsNaN(m) {
			worst = l.imbalance(-1, m)
		}
	} else {
		for i := 0; i < l.n; i++ {
			m := math.Abs(l.in[i] - l.out[i] - l.dS[i])
			if !(m > l.tol || math.IsNaN(m)) {
				continue
			}

			if worst == nil || m > worst.Magnitude {
				worst = l.imbalance(i, m)
			}
		}
	}

	if worst == nil {
		return nil
	}

	l.violations = append(l.violations, worst)
	l.hooks.InvokeHook(HookCtx{
		Domain: l,
		Pos:    HookPosImbalance,
		Step:   worst.Step,
		Item:   worst,
	})

	if l.mode == BudgetError {
		return worst
	}

	l.logger.WithFields(logrus.Fields{
		"component": l.owner,
		"step":      worst.Step,
		"time":      worst.Time.Format("2006-01-02"),
		"location":  worst.Location,
		"magnitude": worst.Magnitude,
	}).Warn("conservation budget out of balance")

	return nil
}

func (l *Ledger) imbalance(location int, magnitude float64) *ImbalanceError {
	return &ImbalanceError{
		Component: l.owner,
		Step:      l.clock.CurrentIndex(),
		Time:      l.clock.CurrentTime(),
		Location:  location,
		Magnitude: magnitude,
		Tolerance: l.tol,
	}
}

// AcceptHook registers a hook on the ledger.
func (l *Ledger) AcceptHook(hook Hook) {
	l.hooks.AcceptHook(hook)
}

// Totals returns the domain sums of the current step.
func (l *Ledger) Totals() (in, out, storageChange float64) {
	return l.totalIn, l.totalOut, l.totalDS
}

// Cumulative returns the sums over all the steps calculated so far.
func (l *Ledger) Cumulative() (in, out, storageChange float64) {
	return l.cumIn, l.cumOut, l.cumDS
}

// Balance returns in - out - dS of the current step, one value per unit for
// a unit basis, a single value for a global basis.
func (l *Ledger) Balance() []float64 {
	if l.basis == BasisGlobal {
		return []float64{l.totalIn - l.totalOut - l.totalDS}
	}

	b := make([]float64, l.n)
	for i := range b {
		b[i] = l.in[i] - l.out[i] - l.dS[i]
	}

	return b
}

// Violations returns every imbalance recorded so far.
func (l *Ledger) Violations() []*ImbalanceError {
	return l.violations
}

// Output writes the per-category breakdown of the current step.
func (l *Ledger) Output(sink Sink) error {
	if sink == nil || !l.calculated {
		return nil
	}

	step := l.clock.CurrentIndex()
	t := l.clock.CurrentTime()

	rows := []struct {
		name   string
		values []float64
	}{
		{"budget_inputs", l.categoryValues(l.in, l.totalIn)},
		{"budget_outputs", l.categoryValues(l.out, l.totalOut)},
		{"budget_storage_changes", l.categoryValues(l.dS, l.totalDS)},
		{"budget_balance", l.Balance()},
	}

	for _, r := range rows {
		if err := sink.Write(l.owner, r.name, step, t, r.values); err != nil {
			return fmt.Errorf("writing %s of %q: %w", r.name, l.owner, err)
		}
	}

	return nil
}

func (l *Ledger) categoryValues(perUnit []float64, total float64) []float64 {
	if l.basis == BasisGlobal {
		return []float64{total}
	}

	return perUnit
}
