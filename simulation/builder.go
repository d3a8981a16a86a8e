package simulation

import (
	"fmt"
	"log"

	"github.com/rs/xid"
	"github.com/sarchlab/hydrosim/analysis"
	"github.com/sarchlab/hydrosim/datarecording"
	"github.com/sarchlab/hydrosim/monitoring"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// DefaultProgressInterval is the percentage of the run between two progress
// reports.
const DefaultProgressInterval = 10

type componentDecl struct {
	name    string
	builder sim.ComponentBuilder
	params  sim.ParameterSource
}

// Builder can be used to build a simulation.
type Builder struct {
	clock      *sim.Clock
	components []componentDecl
	order      []string

	params         sim.ParameterSource
	discretization sim.ParameterSource
	source         sim.SeriesSource
	batchSize      int

	ledger sim.LedgerConfig
	logger logrus.FieldLogger

	monitor    *monitoring.Monitor
	sink       sim.Sink
	outputVars []string
	recorder   *datarecording.RecorderConfig
	summary    *analysis.BudgetAnalyzerBuilder

	deferFiles       bool
	finalize         bool
	progressInterval int
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		ledger: sim.LedgerConfig{
			Mode:      sim.BudgetError,
			Tolerance: sim.DefaultBudgetTolerance,
		},
		finalize:         true,
		progressInterval: DefaultProgressInterval,
	}
}

// WithClock sets the time axis of the simulation.
func (b Builder) WithClock(c *sim.Clock) Builder {
	b.clock = c
	return b
}

// WithComponent declares a component. The parameters, if given, are
// searched before the ones set with WithParameters.
func (b Builder) WithComponent(
	name string,
	builder sim.ComponentBuilder,
	params ...sim.ParameterSource,
) Builder {
	if builder == nil {
		log.Panicf("component %s has no builder", name)
	}

	decl := componentDecl{name: name, builder: builder}
	if len(params) > 0 {
		decl.params = sim.Layered(params)
	}

	b.components = append(b.components[:len(b.components):len(b.components)],
		decl)

	return b
}

// WithOrder sets the execution order. Without it, components run in the
// order they are declared.
func (b Builder) WithOrder(names ...string) Builder {
	b.order = append([]string(nil), names...)
	return b
}

// WithParameters sets the parameters shared by all the components.
func (b Builder) WithParameters(p sim.ParameterSource) Builder {
	b.params = p
	return b
}

// WithDiscretization sets the dimension sizes and spatial parameters.
func (b Builder) WithDiscretization(d sim.ParameterSource) Builder {
	b.discretization = d
	return b
}

// WithSeriesSource sets where inputs that no component produces are read.
func (b Builder) WithSeriesSource(s sim.SeriesSource) Builder {
	b.source = s
	return b
}

// WithBatchSize sets how many steps a file adapter loads at once. Zero or
// less loads the whole series.
func (b Builder) WithBatchSize(n int) Builder {
	b.batchSize = n
	return b
}

// WithBudgetMode sets what ledgers do when a step is out of balance.
func (b Builder) WithBudgetMode(m sim.BudgetMode) Builder {
	b.ledger.Mode = m
	return b
}

// WithBudgetTolerance sets the absolute tolerance of the ledgers.
func (b Builder) WithBudgetTolerance(tol float64) Builder {
	if tol < 0 {
		log.Panicf("budget tolerance %g is negative", tol)
	}

	b.ledger.Tolerance = tol

	return b
}

// WithBudgetBasis makes every ledger use the given basis instead of the one
// its component asks for.
func (b Builder) WithBudgetBasis(basis sim.Basis) Builder {
	b.ledger.Basis = basis
	b.ledger.ForceBasis = true

	return b
}

// WithLogger sets the logger of the simulation and its components.
func (b Builder) WithLogger(logger logrus.FieldLogger) Builder {
	b.logger = logger
	return b
}

// WithMonitor makes the monitor observe the simulation.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithSink sets where the components write their outputs.
func (b Builder) WithSink(s sim.Sink) Builder {
	b.sink = s
	return b
}

// WithOutputFileName makes the simulation record the outputs in a SQLite
// database named filename.sqlite3.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.recorder = &datarecording.RecorderConfig{Type: "sqlite", Path: filename}
	return b
}

// WithRecorderConfig makes the simulation record the outputs with the
// configured backend.
func (b Builder) WithRecorderConfig(cfg datarecording.RecorderConfig) Builder {
	b.recorder = &cfg
	return b
}

// WithOutputVars restricts the outputs written to the sink.
func (b Builder) WithOutputVars(vars ...string) Builder {
	b.outputVars = append([]string(nil), vars...)
	return b
}

// WithBudgetSummary makes the simulation summarize the ledgers of the
// tracked components over calendar periods.
func (b Builder) WithBudgetSummary(ab analysis.BudgetAnalyzerBuilder) Builder {
	b.summary = &ab
	return b
}

// WithoutFileDiscovery stops Advance and Run from binding the external
// inputs on their own. FindInputFiles must then be called explicitly.
func (b Builder) WithoutFileDiscovery() Builder {
	b.deferFiles = true
	return b
}

// WithoutFinalize stops Run from finalizing the components at the end.
func (b Builder) WithoutFinalize() Builder {
	b.finalize = false
	return b
}

// WithProgressInterval sets the percentage of the run between two progress
// reports.
func (b Builder) WithProgressInterval(percent int) Builder {
	if percent <= 0 || percent > 100 {
		log.Panicf("progress interval %d is not in (0, 100]", percent)
	}

	b.progressInterval = percent

	return b
}

func (b Builder) parametersMustBeValid() {
	if b.sink != nil && b.recorder != nil {
		log.Panic("a sink and a recorder cannot be set together")
	}
}

// Build resolves the producers, validates the order, creates the
// components and binds their internal inputs. External inputs are bound
// later, so building never touches input files.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	if b.clock == nil {
		return nil, fmt.Errorf("simulation has no clock: %w",
			sim.ErrConstruction)
	}

	decls, err := b.declarations()
	if err != nil {
		return nil, err
	}

	pm, err := resolveProducers(decls)
	if err != nil {
		return nil, err
	}

	order := b.order
	if len(order) == 0 {
		order = make([]string, len(decls))
		for i, d := range decls {
			order[i] = d.name
		}
	}

	if err := validateOrder(order, decls, pm); err != nil {
		return nil, err
	}

	s := b.newSimulation(order, pm)

	if err := b.instantiate(s, decls); err != nil {
		return nil, err
	}

	if err := s.bindLiveAdapters(); err != nil {
		return nil, err
	}

	if err := b.attachOutput(s); err != nil {
		return nil, err
	}

	if err := b.attachSummary(s); err != nil {
		return nil, err
	}

	b.attachMonitor(s)

	return s, nil
}

func (b Builder) declarations() ([]declaration, error) {
	if len(b.components) == 0 {
		return nil, fmt.Errorf("simulation has no component: %w",
			sim.ErrConstruction)
	}

	seen := make(map[string]bool)
	decls := make([]declaration, 0, len(b.components))

	for _, c := range b.components {
		if err := sim.ValidateComponentName(c.name); err != nil {
			return nil, err
		}

		if seen[c.name] {
			return nil, &sim.InvalidMetadataError{
				Component: c.name,
				Reason:    "component declared twice",
			}
		}

		seen[c.name] = true

		meta := c.builder.Metadata()
		if err := meta.Validate(c.name); err != nil {
			return nil, err
		}

		decls = append(decls, declaration{
			name:    c.name,
			builder: c.builder,
			meta:    meta,
		})
	}

	return decls, nil
}

func (b Builder) newSimulation(order []string, pm ProducerMap) *Simulation {
	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Simulation{
		HookableBase:     sim.NewHookableBase(),
		id:               xid.New().String(),
		clock:            b.clock,
		logger:           logger,
		order:            order,
		producers:        pm,
		externals:        externalInputs(pm),
		compIndex:        make(map[string]int),
		fileBound:        make(map[string]bool),
		source:           b.source,
		batchSize:        b.batchSize,
		autoFiles:        !b.deferFiles,
		finalize:         b.finalize,
		progressInterval: b.progressInterval,
		monitor:          b.monitor,
		outputStep:       -1,
	}
}

func (b Builder) paramsOf(name string) sim.ParameterSource {
	for _, c := range b.components {
		if c.name == name && c.params != nil {
			return sim.Layered{c.params, b.params}
		}
	}

	return b.params
}

func (b Builder) instantiate(s *Simulation, decls []declaration) error {
	byName := make(map[string]declaration, len(decls))
	for _, d := range decls {
		byName[d.name] = d
	}

	for _, name := range s.order {
		d := byName[name]

		env := sim.BuildEnv{
			Clock:          b.clock,
			Discretization: b.discretization,
			Parameters:     b.paramsOf(name),
			Ledger:         b.ledger,
			Logger:         s.logger,
		}

		err := sim.RequireParameters(name,
			sim.Layered{env.Parameters, env.Discretization},
			d.meta.Parameters)
		if err != nil {
			return err
		}

		c, err := d.builder.Build(name, env)
		if err != nil {
			return fmt.Errorf("building %q: %w", name, err)
		}

		if c.Name() != name {
			return &sim.InvalidMetadataError{
				Component: name,
				Reason:    fmt.Sprintf("builder named it %q", c.Name()),
			}
		}

		s.compIndex[name] = len(s.components)
		s.components = append(s.components, c)
	}

	return nil
}

type sinkSetter interface {
	SetSink(sink sim.Sink, vars ...string)
}

func (b Builder) attachOutput(s *Simulation) error {
	sink := b.sink

	if b.recorder != nil {
		r, err := datarecording.NewSeriesRecorderWithConfig(*b.recorder)
		if err != nil {
			return fmt.Errorf("creating output recorder: %w", err)
		}

		r.SetRunProperty("Simulation ID", s.id)
		r.SetRunProperty("Order", fmt.Sprint(s.order))
		r.SetRunProperty("Start", b.clock.StartTime())
		r.SetRunProperty("End", b.clock.EndTime())
		r.SetRunProperty("Step Size", b.clock.StepSize())

		atexit.Register(func() { _ = r.Close() })

		s.recorder = r
		sink = r
	}

	if sink == nil {
		return nil
	}

	s.sink = sink

	for _, c := range s.components {
		setter, ok := c.(sinkSetter)
		if !ok {
			s.logger.WithField("component", c.Name()).
				Warn("component cannot write outputs")

			continue
		}

		vars := filterOutputs(c.Metadata(), b.outputVars)
		if len(b.outputVars) > 0 && len(vars) == 0 {
			continue
		}

		setter.SetSink(sink, vars...)
	}

	return nil
}

func filterOutputs(meta sim.Metadata, vars []string) []string {
	var out []string

	for _, v := range vars {
		if meta.HasOutput(v) {
			out = append(out, v)
		}
	}

	return out
}

func (b Builder) attachSummary(s *Simulation) error {
	if b.summary == nil {
		return nil
	}

	a, err := b.summary.Build()
	if err != nil {
		return fmt.Errorf("creating budget summary: %w", err)
	}

	for _, c := range s.components {
		a.RegisterComponent(c)
	}

	s.analyzer = a
	s.AcceptHook(a)

	return nil
}

func (b Builder) attachMonitor(s *Simulation) {
	if b.monitor == nil {
		return
	}

	b.monitor.RegisterClock(b.clock)
	b.monitor.RegisterSimulation(s)

	for _, c := range s.components {
		b.monitor.RegisterComponent(c)
	}

	s.AcceptHook(b.monitor)
}
