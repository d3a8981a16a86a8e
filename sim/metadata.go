package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DimHRU is the dimension of variables with one value per hydrologic
// response unit. Variables without an explicit dimension use it.
const DimHRU = "nhru"

// DimSegment is the dimension of variables with one value per channel
// segment.
const DimSegment = "nsegment"

// BudgetTerms partitions some of a component's variables into the three
// categories of a conservation budget. All the terms share one unit.
type BudgetTerms struct {
	Inputs         []string
	Outputs        []string
	StorageChanges []string
	Unit           string
}

// All returns every term name.
func (b BudgetTerms) All() []string {
	all := make([]string, 0,
		len(b.Inputs)+len(b.Outputs)+len(b.StorageChanges))
	all = append(all, b.Inputs...)
	all = append(all, b.Outputs...)
	all = append(all, b.StorageChanges...)

	return all
}

// Metadata is the static declaration of a component type. It is available
// from the component builder without creating a component.
type Metadata struct {
	Inputs     []string
	Outputs    []string
	Parameters []string

	// Dims maps a variable to the discretization dimension that sizes it.
	// Variables absent from the map use DimHRU.
	Dims map[string]string

	// Descriptions maps a variable or parameter to a human-readable text.
	Descriptions map[string]string

	// Budget is nil for components that are not conservation tracked.
	Budget *BudgetTerms
}

// HasInput returns true if the name is a declared input.
func (m Metadata) HasInput(name string) bool {
	return contains(m.Inputs, name)
}

// HasOutput returns true if the name is a declared output.
func (m Metadata) HasOutput(name string) bool {
	return contains(m.Outputs, name)
}

// DimOf returns the dimension of a variable.
func (m Metadata) DimOf(name string) string {
	if d, ok := m.Dims[name]; ok {
		return d
	}

	return DimHRU
}

// Tracked returns true if the component keeps a conservation budget.
func (m Metadata) Tracked() bool {
	return m.Budget != nil
}

// Validate checks that the declaration is consistent.
func (m Metadata) Validate(component string) error {
	seen := make(map[string]string)

	check := func(kind string, names []string) error {
		for _, n := range names {
			if err := checkVariableName(n); err != nil {
				return &InvalidMetadataError{
					Component: component,
					Reason:    fmt.Sprintf("%s %q: %s", kind, n, err),
				}
			}

			if prev, dup := seen[n]; dup {
				return &InvalidMetadataError{
					Component: component,
					Reason: fmt.Sprintf("%q declared as both %s and %s",
						n, prev, kind),
				}
			}

			seen[n] = kind
		}

		return nil
	}

	if err := check("input", m.Inputs); err != nil {
		return err
	}

	if err := check("output", m.Outputs); err != nil {
		return err
	}

	if err := check("parameter", m.Parameters); err != nil {
		return err
	}

	if m.Budget == nil {
		return nil
	}

	for _, t := range m.Budget.All() {
		if !m.HasInput(t) && !m.HasOutput(t) {
			return &InvalidMetadataError{
				Component: component,
				Reason: fmt.Sprintf(
					"budget term %q is neither an input nor an output", t),
			}
		}
	}

	return nil
}

// Describe returns a multi-line, human-readable dump of the declaration.
func (m Metadata) Describe() string {
	sb := new(strings.Builder)

	write := func(title string, names []string) {
		fmt.Fprintf(sb, "%s:\n", title)

		sorted := append([]string(nil), names...)
		sort.Strings(sorted)

		for _, n := range sorted {
			fmt.Fprintf(sb, "  %-24s %-10s %s\n", n, m.DimOf(n),
				m.Descriptions[n])
		}
	}

	write("inputs", m.Inputs)
	write("outputs", m.Outputs)
	write("parameters", m.Parameters)

	if m.Budget != nil {
		fmt.Fprintf(sb, "budget (%s):\n", m.Budget.Unit)
		fmt.Fprintf(sb, "  inputs:          %s\n",
			strings.Join(m.Budget.Inputs, ", "))
		fmt.Fprintf(sb, "  outputs:         %s\n",
			strings.Join(m.Budget.Outputs, ", "))
		fmt.Fprintf(sb, "  storage changes: %s\n",
			strings.Join(m.Budget.StorageChanges, ", "))
	}

	return sb.String()
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}

	return false
}

// BuildEnv carries what a component builder needs to create a component.
type BuildEnv struct {
	Clock *Clock

	// Discretization holds the dimension sizes (e.g. nhru) and spatial
	// parameters shared by several components.
	Discretization ParameterSource

	// Parameters holds the physical parameters of the component.
	Parameters ParameterSource

	Ledger LedgerConfig
	Logger logrus.FieldLogger
}

// Dim returns the size of a discretization dimension.
func (e BuildEnv) Dim(component, dim string) (int, error) {
	p, ok := Layered{e.Discretization, e.Parameters}.Get(dim)
	if !ok {
		return 0, &MissingParameterError{Component: component, Parameter: dim}
	}

	v := p.Scalar()
	if math.IsNaN(v) || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, &InvalidParameterError{
			Component: component,
			Parameter: dim,
			Value:     v,
			Reason:    "not a dimension size",
		}
	}

	return int(v), nil
}

// Param returns a parameter broadcast to n values. The discretization is
// searched after the component parameters.
func (e BuildEnv) Param(component, name string, n int) ([]float64, error) {
	p, ok := Layered{e.Parameters, e.Discretization}.Get(name)
	if !ok {
		return nil, &MissingParameterError{Component: component, Parameter: name}
	}

	values, err := p.Broadcast(n)
	if err != nil {
		return nil, fmt.Errorf("component %q parameter %q: %w",
			component, name, err)
	}

	return values, nil
}

// A ComponentBuilder creates components of one type. Its metadata can be
// queried without building anything.
type ComponentBuilder interface {
	Metadata() Metadata
	Build(name string, env BuildEnv) (Component, error)
}
