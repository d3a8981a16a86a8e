package sim

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Error categories. Every error returned by the engine matches exactly one of
// them with errors.Is.
var (
	// ErrConstruction marks a structurally invalid model definition.
	ErrConstruction = errors.New("construction error")

	// ErrRunState marks lifecycle methods called out of sequence.
	ErrRunState = errors.New("run state error")

	// ErrDataSource marks problems with external time series.
	ErrDataSource = errors.New("data source error")

	// ErrImbalance marks a conservation budget violation.
	ErrImbalance = errors.New("conservation imbalance")

	// ErrClockExhausted marks an advance beyond the last time step.
	ErrClockExhausted = errors.New("clock exhausted")
)

// ExhaustedClockError is returned when the clock is advanced past its last
// step.
type ExhaustedClockError struct {
	NSteps int
	End    time.Time
}

func (e *ExhaustedClockError) Error() string {
	return fmt.Sprintf("clock exhausted after %d steps (end %s)",
		e.NSteps, e.End.Format(time.DateOnly))
}

// Is reports the category of the error.
func (e *ExhaustedClockError) Is(target error) bool {
	return target == ErrClockExhausted
}

// InvalidClockError is returned when a clock cannot be created from the given
// time range.
type InvalidClockError struct {
	Reason string
}

func (e *InvalidClockError) Error() string {
	return "invalid clock: " + e.Reason
}

// Is reports the category of the error.
func (e *InvalidClockError) Is(target error) bool {
	return target == ErrConstruction
}

// AmbiguousProducerError is returned when more than one component declares
// the same output. Consumer is empty when no component consumes it.
type AmbiguousProducerError struct {
	Consumer  string
	Input     string
	Producers []string
}

func (e *AmbiguousProducerError) Error() string {
	if e.Consumer == "" {
		return fmt.Sprintf("output %q is declared by more than one component: %s",
			e.Input, strings.Join(e.Producers, ", "))
	}

	return fmt.Sprintf(
		"input %q of component %q is produced by more than one component: %s",
		e.Input, e.Consumer, strings.Join(e.Producers, ", "))
}

// Is reports the category of the error.
func (e *AmbiguousProducerError) Is(target error) bool {
	return target == ErrConstruction
}

// OrderViolationError is returned when the declared execution order is not a
// permutation of the components, or a consumer precedes its producer.
type OrderViolationError struct {
	Component string
	Producer  string
	Input     string
	Reason    string
}

func (e *OrderViolationError) Error() string {
	if e.Producer != "" {
		return fmt.Sprintf(
			"component %q consumes %q from %q, which comes later in the order",
			e.Component, e.Input, e.Producer)
	}

	return fmt.Sprintf("invalid execution order at %q: %s",
		e.Component, e.Reason)
}

// Is reports the category of the error.
func (e *OrderViolationError) Is(target error) bool {
	return target == ErrConstruction
}

// MissingParameterError is returned when a component requires a parameter
// that the parameter source does not have.
type MissingParameterError struct {
	Component string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("component %q requires parameter %q",
		e.Component, e.Parameter)
}

// Is reports the category of the error.
func (e *MissingParameterError) Is(target error) bool {
	return target == ErrConstruction
}

// InvalidParameterError is returned when a parameter value is outside the
// range a component accepts.
type InvalidParameterError struct {
	Component string
	Parameter string
	Index     int
	Value     float64
	Reason    string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("component %q parameter %q[%d] = %g: %s",
		e.Component, e.Parameter, e.Index, e.Value, e.Reason)
}

// Is reports the category of the error.
func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrConstruction
}

// InvalidMetadataError is returned when a component declares inconsistent
// metadata.
type InvalidMetadataError struct {
	Component string
	Reason    string
}

func (e *InvalidMetadataError) Error() string {
	return fmt.Sprintf("component %q has invalid metadata: %s",
		e.Component, e.Reason)
}

// Is reports the category of the error.
func (e *InvalidMetadataError) Is(target error) bool {
	return target == ErrConstruction
}

// InvalidStateError is returned when a lifecycle method is called out of
// sequence.
type InvalidStateError struct {
	Component string
	Op        string
	State     State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("component %q cannot %s in state %s",
		e.Component, e.Op, e.State)
}

// Is reports the category of the error.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrRunState
}

// StaleInputError is returned when a component advances while some of its
// inputs are not bound to an adapter.
type StaleInputError struct {
	Component string
	Inputs    []string
}

func (e *StaleInputError) Error() string {
	return fmt.Sprintf("component %q has unbound inputs: %s",
		e.Component, strings.Join(e.Inputs, ", "))
}

// Is reports the category of the error.
func (e *StaleInputError) Is(target error) bool {
	return target == ErrRunState
}

// UnboundAdapterError is returned when an adapter is read before its first
// advance.
type UnboundAdapterError struct {
	Variable string
}

func (e *UnboundAdapterError) Error() string {
	return fmt.Sprintf("adapter for %q read before its first advance",
		e.Variable)
}

// Is reports the category of the error.
func (e *UnboundAdapterError) Is(target error) bool {
	return target == ErrRunState
}

// MissingVariableError is returned when a series source does not have the
// requested variable.
type MissingVariableError struct {
	Variable string
	Source   string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("variable %q not found in %s", e.Variable, e.Source)
}

// Is reports the category of the error.
func (e *MissingVariableError) Is(target error) bool {
	return target == ErrDataSource
}

// EndOfSeriesError is returned when a file adapter is advanced past the last
// available record.
type EndOfSeriesError struct {
	Variable string
	Step     int
	Len      int
}

func (e *EndOfSeriesError) Error() string {
	return fmt.Sprintf("series %q has %d records, step %d requested",
		e.Variable, e.Len, e.Step)
}

// Is reports the category of the error.
func (e *EndOfSeriesError) Is(target error) bool {
	return target == ErrDataSource
}

// ShapeMismatchError is returned when a record does not have the expected
// number of values.
type ShapeMismatchError struct {
	Variable string
	Want     int
	Got      int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("variable %q: expected %d values, got %d",
		e.Variable, e.Want, e.Got)
}

// Is reports the category of the error.
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrDataSource
}

// ImbalanceError is returned by a ledger in error mode when the conservation
// invariant does not hold.
type ImbalanceError struct {
	Component string
	Step      int
	Time      time.Time

	// Location is the spatial unit index, or -1 for a global basis.
	Location  int
	Magnitude float64
	Tolerance float64
}

func (e *ImbalanceError) Error() string {
	where := "globally"
	if e.Location >= 0 {
		where = fmt.Sprintf("at unit %d", e.Location)
	}

	return fmt.Sprintf(
		"component %q is out of balance %s at step %d (%s): "+
			"|in - out - dS| = %g > %g",
		e.Component, where, e.Step, e.Time.Format(time.DateOnly),
		e.Magnitude, e.Tolerance)
}

// Is reports the category of the error.
func (e *ImbalanceError) Is(target error) bool {
	return target == ErrImbalance
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
