package sim

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// State is the lifecycle state of a component.
type State int

// Component lifecycle states.
const (
	StateUninitialized State = iota
	StateBound
	StateAdvanced
	StateCalculated
	StateOutput
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateBound:
		return "Bound"
	case StateAdvanced:
		return "Advanced"
	case StateCalculated:
		return "Calculated"
	case StateOutput:
		return "Output"
	case StateFinalized:
		return "Finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// A Component is a physical process that is being simulated. It pulls its
// inputs through adapters, updates its outputs once per time step and may
// keep a conservation budget.
type Component interface {
	Named
	Hookable

	Metadata() Metadata
	State() State

	Bind(input string, a Adapter) error
	Variable(name string) (View, error)
	Input(name string) (View, error)

	Advance() error
	Calculate(timeLength float64) error
	Output() error
	Finalize() error
}

// A Kernel is the process-specific part of a component. It reads the inputs
// of the current step and updates the output buffers.
type Kernel interface {
	Calculate(timeLength float64) error
}

// KernelFunc adapts an ordinary function to the Kernel interface.
type KernelFunc func(timeLength float64) error

// Calculate calls f(timeLength).
func (f KernelFunc) Calculate(timeLength float64) error {
	return f(timeLength)
}

// A Flusher can write out what it buffers without being closed.
type Flusher interface {
	Flush() error
}

// ComponentBase implements the lifecycle shared by all the components. A
// concrete component embeds it and provides the kernel.
type ComponentBase struct {
	*HookableBase

	name   string
	meta   Metadata
	clock  TimeTeller
	kernel Kernel
	logger logrus.FieldLogger

	state      State
	advancedAt int

	outputs  map[string]*Buffer
	inputLen map[string]int
	adapters map[string]Adapter
	inputs   map[string]View

	ledger     *Ledger
	sink       Sink
	outputVars []string
}

// NewComponentBase creates a new ComponentBase. It panics if the name is not
// valid.
func NewComponentBase(
	name string,
	meta Metadata,
	clock TimeTeller,
	kernel Kernel,
) *ComponentBase {
	ComponentNameMustBeValid(name)

	c := &ComponentBase{
		HookableBase: NewHookableBase(),
		name:         name,
		meta:         meta,
		clock:        clock,
		kernel:       kernel,
		logger:       logrus.StandardLogger(),
		advancedAt:   -1,
		outputs:      make(map[string]*Buffer),
		inputLen:     make(map[string]int),
		adapters:     make(map[string]Adapter),
		inputs:       make(map[string]View),
	}

	if len(meta.Inputs) == 0 {
		c.state = StateBound
	}

	return c
}

// Name returns the name of the component.
func (c *ComponentBase) Name() string {
	return c.name
}

// Metadata returns the declaration of the component.
func (c *ComponentBase) Metadata() Metadata {
	return c.meta
}

// State returns the lifecycle state.
func (c *ComponentBase) State() State {
	return c.state
}

// SetLogger sets the logger of the component.
func (c *ComponentBase) SetLogger(logger logrus.FieldLogger) {
	if logger != nil {
		c.logger = logger
	}
}

// Logger returns a logger that carries the component name.
func (c *ComponentBase) Logger() logrus.FieldLogger {
	return c.logger.WithField("component", c.name)
}

// AddOutput allocates the buffer of a declared output.
func (c *ComponentBase) AddOutput(name string, n int) *Buffer {
	if !c.meta.HasOutput(name) {
		panic(fmt.Sprintf("component %s does not declare output %s",
			c.name, name))
	}

	if _, dup := c.outputs[name]; dup {
		panic(fmt.Sprintf("component %s: output %s allocated twice",
			c.name, name))
	}

	b := NewBuffer(name, n)
	c.outputs[name] = b

	return b
}

// Buffer returns the buffer of an output. It panics if the output has not
// been allocated.
func (c *ComponentBase) Buffer(name string) *Buffer {
	b, ok := c.outputs[name]
	if !ok {
		panic(fmt.Sprintf("component %s has no output buffer %s",
			c.name, name))
	}

	return b
}

// ExpectInputLen makes Bind reject adapters whose length is not n.
func (c *ComponentBase) ExpectInputLen(name string, n int) {
	c.inputLen[name] = n
}

// AttachLedger creates the conservation ledger of the component from the
// budget terms of the metadata. Components without budget terms are left
// untracked.
func (c *ComponentBase) AttachLedger(basis Basis, cfg LedgerConfig) *Ledger {
	if c.meta.Budget == nil {
		return nil
	}

	c.ledger = NewLedger(c.name, *c.meta.Budget, basis, cfg, c, c.clock).
		WithHooks(c.HookableBase).
		WithLogger(c.logger)

	return c.ledger
}

// Ledger returns the conservation ledger, or nil if the component is not
// tracked.
func (c *ComponentBase) Ledger() *Ledger {
	return c.ledger
}

// SetSink sets where Output writes. If vars is not empty, only those outputs
// are written.
func (c *ComponentBase) SetSink(sink Sink, vars ...string) {
	c.sink = sink
	c.outputVars = vars
}

// Bind connects a declared input to an adapter.
func (c *ComponentBase) Bind(input string, a Adapter) error {
	if !c.meta.HasInput(input) {
		return &InvalidStateError{
			Component: c.name,
			Op:        fmt.Sprintf("bind undeclared input %q", input),
			State:     c.state,
		}
	}

	if c.state == StateFinalized {
		return &InvalidStateError{
			Component: c.name,
			Op:        fmt.Sprintf("bind %q", input),
			State:     c.state,
		}
	}

	if _, bound := c.adapters[input]; bound {
		return &InvalidStateError{
			Component: c.name,
			Op:        fmt.Sprintf("rebind %q", input),
			State:     c.state,
		}
	}

	if n, ok := c.inputLen[input]; ok && a.Len() != n {
		return &ShapeMismatchError{Variable: input, Want: n, Got: a.Len()}
	}

	c.adapters[input] = a

	if c.state == StateUninitialized && len(c.unbound()) == 0 {
		c.state = StateBound
	}

	return nil
}

// IsBound returns true if the input has an adapter.
func (c *ComponentBase) IsBound(input string) bool {
	_, ok := c.adapters[input]
	return ok
}

func (c *ComponentBase) unbound() []string {
	var names []string

	for _, in := range c.meta.Inputs {
		if _, ok := c.adapters[in]; !ok {
			names = append(names, in)
		}
	}

	return names
}

// Advance pulls the inputs of the clock's current step. A second call in the
// same step does nothing.
func (c *ComponentBase) Advance() error {
	if c.state == StateFinalized {
		return c.invalidState("advance")
	}

	step := c.clock.CurrentIndex()
	if step < 0 {
		return c.invalidState("advance before the clock starts")
	}

	if step == c.advancedAt {
		return nil
	}

	if missing := c.unbound(); len(missing) > 0 {
		return &StaleInputError{Component: c.name, Inputs: missing}
	}

	c.invokeHook(HookPosBeforeAdvance, step)

	for _, in := range c.meta.Inputs {
		a := c.adapters[in]

		if err := a.Advance(); err != nil {
			return fmt.Errorf("component %q input %q: %w", c.name, in, err)
		}

		v, err := a.Current()
		if err != nil {
			return fmt.Errorf("component %q input %q: %w", c.name, in, err)
		}

		c.inputs[in] = v
	}

	c.advancedAt = step
	c.state = StateAdvanced

	c.invokeHook(HookPosAfterAdvance, step)

	return nil
}

// Calculate runs the kernel for the current step and then checks the
// conservation budget.
func (c *ComponentBase) Calculate(timeLength float64) error {
	step := c.clock.CurrentIndex()

	if c.state != StateAdvanced || c.advancedAt != step {
		return c.invalidState("calculate")
	}

	c.invokeHook(HookPosBeforeCalculate, step)

	if err := c.kernel.Calculate(timeLength); err != nil {
		return fmt.Errorf("component %q step %d: %w", c.name, step, err)
	}

	if c.ledger != nil {
		c.ledger.Advance()

		if err := c.ledger.Calculate(); err != nil {
			return err
		}
	}

	c.state = StateCalculated

	c.invokeHook(HookPosAfterCalculate, step)

	return nil
}

// Output writes the outputs of the current step to the sink. A step is
// written once; repeating Output in the same step does nothing.
func (c *ComponentBase) Output() error {
	if c.state == StateOutput {
		return nil
	}

	if c.state != StateCalculated {
		return c.invalidState("output")
	}

	step := c.clock.CurrentIndex()

	if c.sink != nil {
		if err := c.writeOutputs(step); err != nil {
			return err
		}

		if c.ledger != nil {
			if err := c.ledger.Output(c.sink); err != nil {
				return err
			}
		}
	}

	c.state = StateOutput

	c.invokeHook(HookPosAfterOutput, step)

	return nil
}

func (c *ComponentBase) writeOutputs(step int) error {
	vars := c.outputVars
	if len(vars) == 0 {
		vars = c.meta.Outputs
	}

	t := c.clock.CurrentTime()

	for _, name := range vars {
		b, ok := c.outputs[name]
		if !ok {
			continue
		}

		err := c.sink.Write(c.name, name, step, t, b.View().Values())
		if err != nil {
			return fmt.Errorf("component %q writing %q: %w", c.name, name, err)
		}
	}

	return nil
}

// Finalize closes the adapters and flushes the sink. No lifecycle method
// can be called afterwards.
func (c *ComponentBase) Finalize() error {
	if c.state == StateFinalized {
		return c.invalidState("finalize")
	}

	var errs []error

	for _, in := range c.meta.Inputs {
		if a, ok := c.adapters[in]; ok {
			errs = append(errs, a.Close())
		}
	}

	if f, ok := c.sink.(Flusher); ok {
		errs = append(errs, f.Flush())
	}

	c.state = StateFinalized

	c.invokeHook(HookPosFinalize, c.clock.CurrentIndex())

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("finalizing %q: %w", c.name, err)
	}

	return nil
}

// Variable returns a read-only view of an output buffer.
func (c *ComponentBase) Variable(name string) (View, error) {
	b, ok := c.outputs[name]
	if !ok {
		return View{}, &MissingVariableError{Variable: name, Source: c.name}
	}

	return b.View(), nil
}

// Input returns the pulled value of an input for the current step.
func (c *ComponentBase) Input(name string) (View, error) {
	if !c.meta.HasInput(name) {
		return View{}, &MissingVariableError{Variable: name, Source: c.name}
	}

	v, ok := c.inputs[name]
	if !ok {
		return View{}, &UnboundAdapterError{Variable: name}
	}

	return v, nil
}

// MustInput is like Input but panics on error. Kernels use it after a
// successful advance, when every input is known to be present.
func (c *ComponentBase) MustInput(name string) View {
	v, err := c.Input(name)
	if err != nil {
		panic(err)
	}

	return v
}

// Term resolves a budget term to an output or an input of the current step.
func (c *ComponentBase) Term(name string) (View, error) {
	if b, ok := c.outputs[name]; ok {
		return b.View(), nil
	}

	return c.Input(name)
}

// Description writes a human-readable dump of the metadata.
func (c *ComponentBase) Description(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s [%s]\n%s", c.name, c.state, c.meta.Describe())
	return err
}

func (c *ComponentBase) invalidState(op string) error {
	return &InvalidStateError{Component: c.name, Op: op, State: c.state}
}

func (c *ComponentBase) invokeHook(pos *HookPos, step int) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(HookCtx{
		Domain: c,
		Pos:    pos,
		Step:   step,
		Item:   c.name,
	})
}
