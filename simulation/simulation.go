package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/sarchlab/hydrosim/analysis"
	"github.com/sarchlab/hydrosim/datarecording"
	"github.com/sarchlab/hydrosim/monitoring"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sirupsen/logrus"
)

// A Simulation owns the components of a model and drives them through the
// steps of a shared clock.
type Simulation struct {
	*sim.HookableBase

	id     string
	clock  *sim.Clock
	logger logrus.FieldLogger

	order      []string
	components []sim.Component
	compIndex  map[string]int
	producers  ProducerMap
	externals  []string

	source    sim.SeriesSource
	batchSize int
	autoFiles bool
	fileBound map[string]bool

	sink     sim.Sink
	recorder *datarecording.SeriesRecorder
	monitor  *monitoring.Monitor
	analyzer *analysis.BudgetAnalyzer

	finalize         bool
	progressInterval int

	err        error
	finalized  bool
	outputStep int

	// stateLock is held for writing by every lifecycle phase and for
	// reading by Pause.
	stateLock sync.RWMutex
}

// Pause blocks the run before its next lifecycle phase until Continue is
// called. Several readers may pause at the same time.
func (s *Simulation) Pause() {
	s.stateLock.RLock()
}

// Continue releases a Pause.
func (s *Simulation) Continue() {
	s.stateLock.RUnlock()
}

// ID returns the unique id of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Clock returns the clock of the simulation.
func (s *Simulation) Clock() *sim.Clock {
	return s.clock
}

// ExecutionOrder returns the names of the components in execution order.
func (s *Simulation) ExecutionOrder() []string {
	return append([]string(nil), s.order...)
}

// ProducerMap returns where every input of every component comes from.
func (s *Simulation) ProducerMap() ProducerMap {
	return s.producers.clone()
}

// ExternalInputs returns the sorted names of the inputs that no component
// produces.
func (s *Simulation) ExternalInputs() []string {
	return append([]string(nil), s.externals...)
}

// Components returns the components in execution order.
func (s *Simulation) Components() []sim.Component {
	return append([]sim.Component(nil), s.components...)
}

// Component returns the named component.
func (s *Simulation) Component(name string) (sim.Component, bool) {
	i, ok := s.compIndex[name]
	if !ok {
		return nil, false
	}

	return s.components[i], true
}

// Recorder returns the output recorder, or nil if the simulation does not
// record its outputs in a database.
func (s *Simulation) Recorder() *datarecording.SeriesRecorder {
	return s.recorder
}

// Monitor returns the monitor, or nil if the simulation is not monitored.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// BudgetAnalyzer returns the budget summary, or nil if the simulation does
// not summarize its ledgers.
func (s *Simulation) BudgetAnalyzer() *analysis.BudgetAnalyzer {
	return s.analyzer
}

// Err returns the error that failed the simulation, if any.
func (s *Simulation) Err() error {
	return s.err
}

// Describe writes the execution order and the source of every input.
func (s *Simulation) Describe(w io.Writer) error {
	_, err := io.WriteString(w, describeProducers(s.order, s.producers))
	return err
}

func (s *Simulation) bindLiveAdapters() error {
	for _, c := range s.components {
		inputs := s.producers[c.Name()]

		for _, in := range sortedInputs(inputs) {
			src := inputs[in]
			if src.IsExternal() {
				continue
			}

			producer := s.components[s.compIndex[src.Producer]]

			view, err := producer.Variable(in)
			if err != nil {
				return fmt.Errorf("binding %s.%s to %s: %w",
					c.Name(), in, src.Producer, err)
			}

			err = c.Bind(in, sim.NewLiveAdapter(s.clock, in, view))
			if err != nil {
				return fmt.Errorf("binding %s.%s to %s: %w",
					c.Name(), in, src.Producer, err)
			}
		}
	}

	return nil
}

// FindInputFiles binds every external input to a file adapter over the
// series source. Calling it again only binds what is still unbound.
func (s *Simulation) FindInputFiles() error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	return s.findInputFiles()
}

func (s *Simulation) findInputFiles() error {
	if s.err != nil {
		return s.err
	}

	if len(s.externals) == 0 {
		return nil
	}

	if s.source == nil {
		return fmt.Errorf("no series source for external inputs %v: %w",
			s.externals, sim.ErrDataSource)
	}

	for _, c := range s.components {
		inputs := s.producers[c.Name()]

		for _, in := range sortedInputs(inputs) {
			key := c.Name() + "." + in
			if !inputs[in].IsExternal() || s.fileBound[key] {
				continue
			}

			a, err := sim.NewFileAdapter(s.clock, s.source, in, s.batchSize)
			if err != nil {
				return fmt.Errorf("binding %s: %w", key, err)
			}

			if err := c.Bind(in, a); err != nil {
				_ = a.Close()
				return fmt.Errorf("binding %s: %w", key, err)
			}

			s.fileBound[key] = true
		}
	}

	return nil
}

func (s *Simulation) inputFilesFound() bool {
	n := 0

	for _, inputs := range s.producers {
		for _, src := range inputs {
			if src.IsExternal() {
				n++
			}
		}
	}

	return len(s.fileBound) == n
}

func (s *Simulation) checkRunnable(op string) error {
	if s.err != nil {
		return s.err
	}

	if s.finalized {
		return &sim.InvalidStateError{
			Component: "Simulation",
			Op:        op,
			State:     sim.StateFinalized,
		}
	}

	return nil
}

func (s *Simulation) fail(err error) error {
	s.err = err

	s.logger.WithError(err).
		WithField("step", s.clock.CurrentIndex()).
		Error("simulation failed")

	return err
}

// Advance moves the clock to the next step and lets every component pull
// its inputs.
func (s *Simulation) Advance() error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if err := s.checkRunnable("advance"); err != nil {
		return err
	}

	if s.autoFiles && !s.inputFilesFound() {
		if err := s.findInputFiles(); err != nil {
			return err
		}
	}

	if err := s.clock.Advance(); err != nil {
		return err
	}

	for _, c := range s.components {
		if err := c.Advance(); err != nil {
			return s.fail(err)
		}
	}

	return nil
}

// Calculate runs every component for the current step. The first failure
// aborts the step and fails the simulation.
func (s *Simulation) Calculate() error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if err := s.checkRunnable("calculate"); err != nil {
		return err
	}

	for _, c := range s.components {
		if err := c.Calculate(1.0); err != nil {
			return s.fail(err)
		}
	}

	return nil
}

// Output lets every component write the current step. Calling it again in
// the same step does nothing.
func (s *Simulation) Output() error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if err := s.checkRunnable("output"); err != nil {
		return err
	}

	step := s.clock.CurrentIndex()
	if step >= 0 && step == s.outputStep {
		return nil
	}

	for _, c := range s.components {
		if err := c.Output(); err != nil {
			return s.fail(err)
		}
	}

	s.outputStep = step

	if s.NumHooks() > 0 {
		s.InvokeHook(sim.HookCtx{
			Domain: s,
			Pos:    sim.HookPosStepComplete,
			Step:   s.clock.CurrentIndex(),
			Item:   s.clock.CurrentTime(),
		})
	}

	return nil
}

// Finalize finalizes every component and closes the outputs. A failed
// simulation still releases its resources but reports the failure.
func (s *Simulation) Finalize() error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.finalized {
		return &sim.InvalidStateError{
			Component: "Simulation",
			Op:        "finalize",
			State:     sim.StateFinalized,
		}
	}

	s.finalized = true

	var errs []error

	for _, c := range s.components {
		if c.State() == sim.StateFinalized {
			continue
		}

		errs = append(errs, c.Finalize())
	}

	if s.sink != nil {
		errs = append(errs, s.sink.Close())
	}

	if s.analyzer != nil {
		errs = append(errs, s.analyzer.Close())
	}

	err := errors.Join(errs...)

	if s.err != nil {
		return errors.Join(s.err, err)
	}

	return err
}

// Finalized tells whether Finalize has been called.
func (s *Simulation) Finalized() bool {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()

	return s.finalized
}

// Run runs n steps, or all the remaining steps if n is 0, and then
// finalizes the simulation unless built WithoutFinalize. The context is
// checked between steps.
func (s *Simulation) Run(ctx context.Context, n int) error {
	if err := s.checkRunnable("run"); err != nil {
		return err
	}

	remaining := s.clock.Remaining()

	switch {
	case n < 0:
		return fmt.Errorf("cannot run %d steps: %w", n, sim.ErrRunState)
	case n == 0:
		n = remaining
	case n > remaining:
		return fmt.Errorf("cannot run %d steps, %d remaining: %w",
			n, remaining, sim.ErrClockExhausted)
	}

	if s.autoFiles {
		if err := s.FindInputFiles(); err != nil {
			return err
		}
	}

	if err := s.loop(ctx, n); err != nil {
		return err
	}

	if s.finalize {
		s.logger.Info("finalizing")
		return s.Finalize()
	}

	return nil
}

func (s *Simulation) loop(ctx context.Context, n int) error {
	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("Run "+s.id, uint64(n))
		defer s.monitor.CompleteProgressBar(bar)
	}

	s.logger.WithField("steps", n).Info("run: 0% complete")

	lastPct := 0

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run stopped after %d of %d steps: %w", i, n, err)
		}

		if bar != nil {
			bar.IncrementInProgress(1)
		}

		if err := s.step(); err != nil {
			return err
		}

		if bar != nil {
			bar.MoveInProgressToFinished(1)
		}

		lastPct = s.reportProgress(i, n, lastPct)
	}

	return nil
}

func (s *Simulation) step() error {
	if err := s.Advance(); err != nil {
		return err
	}

	if err := s.Calculate(); err != nil {
		return err
	}

	return s.Output()
}

func (s *Simulation) reportProgress(i, n, lastPct int) int {
	pct := int(math.Floor(float64(i+1) / float64(n) * 100))
	if pct%s.progressInterval != 0 || pct == lastPct {
		return lastPct
	}

	s.logger.WithFields(logrus.Fields{
		"step": s.clock.CurrentIndex(),
		"time": s.clock.CurrentTime(),
	}).Infof("run: %d%% complete", pct)

	return pct
}

// Violations returns the budget violations of every ledger, ordered by
// step and then by execution order.
func (s *Simulation) Violations() []*sim.ImbalanceError {
	var all []*sim.ImbalanceError

	for _, c := range s.components {
		l, ok := c.(interface{ Ledger() *sim.Ledger })
		if !ok || l.Ledger() == nil {
			continue
		}

		all = append(all, l.Ledger().Violations()...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Step < all[j].Step
	})

	return all
}
