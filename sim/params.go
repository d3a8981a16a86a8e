package sim

import (
	"fmt"
	"sort"
)

// A Param is a static physical parameter: either a scalar or an array with
// one value per spatial unit.
type Param struct {
	values []float64
	scalar bool
}

// Scalar creates a scalar parameter.
func Scalar(v float64) Param {
	return Param{values: []float64{v}, scalar: true}
}

// Array creates an array parameter. The values are copied.
func Array(values ...float64) Param {
	v := make([]float64, len(values))
	copy(v, values)

	return Param{values: v}
}

// IsScalar returns true if the parameter holds a single scalar.
func (p Param) IsScalar() bool {
	return p.scalar
}

// Len returns the number of values.
func (p Param) Len() int {
	return len(p.values)
}

// Scalar returns the first value.
func (p Param) Scalar() float64 {
	if len(p.values) == 0 {
		return 0
	}

	return p.values[0]
}

// Array returns a copy of the values.
func (p Param) Array() []float64 {
	out := make([]float64, len(p.values))
	copy(out, p.values)

	return out
}

// Broadcast returns n values. A scalar is repeated n times; an array must
// have exactly n values.
func (p Param) Broadcast(n int) ([]float64, error) {
	out := make([]float64, n)

	if p.scalar {
		for i := range out {
			out[i] = p.values[0]
		}

		return out, nil
	}

	if len(p.values) != n {
		return nil, fmt.Errorf("parameter has %d values, %d required: %w",
			len(p.values), n, ErrConstruction)
	}

	copy(out, p.values)

	return out, nil
}

// A ParameterSource looks up static parameters by name.
type ParameterSource interface {
	Get(name string) (Param, bool)
}

// Parameters is a map-backed ParameterSource.
type Parameters map[string]Param

// Get returns the named parameter.
func (p Parameters) Get(name string) (Param, bool) {
	v, ok := p[name]
	return v, ok
}

// Names returns the sorted parameter names.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Layered is a ParameterSource that searches its layers in order.
type Layered []ParameterSource

// Get returns the parameter from the first layer that has it.
func (l Layered) Get(name string) (Param, bool) {
	for _, src := range l {
		if src == nil {
			continue
		}

		if p, ok := src.Get(name); ok {
			return p, true
		}
	}

	return Param{}, false
}

// RequireParameters checks that the source has all the names.
func RequireParameters(
	component string,
	src ParameterSource,
	names []string,
) error {
	for _, n := range names {
		if src == nil {
			return &MissingParameterError{Component: component, Parameter: n}
		}

		if _, ok := src.Get(n); !ok {
			return &MissingParameterError{Component: component, Parameter: n}
		}
	}

	return nil
}

// CheckRange checks that every value of a parameter is in [lo, hi].
func CheckRange(component, name string, values []float64, lo, hi float64) error {
	for i, v := range values {
		if v >= lo && v <= hi {
			continue
		}

		return &InvalidParameterError{
			Component: component,
			Parameter: name,
			Index:     i,
			Value:     v,
			Reason:    fmt.Sprintf("not in [%g, %g]", lo, hi),
		}
	}

	return nil
}
