package config

import (
	"fmt"
	"os"

	"github.com/sarchlab/hydrosim/sim"
	"gopkg.in/yaml.v3"
)

// A ParamValue is a parameter written in YAML, either a number or a list of
// numbers.
type ParamValue struct {
	sim.Param
}

// UnmarshalYAML decodes a scalar or a sequence node.
func (v *ParamValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}

		v.Param = sim.Scalar(f)
	case yaml.SequenceNode:
		var values []float64
		if err := node.Decode(&values); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}

		v.Param = sim.Array(values...)
	default:
		return fmt.Errorf("line %d: a parameter must be a number or a list",
			node.Line)
	}

	return nil
}

// MarshalYAML writes scalars as numbers and arrays as lists.
func (v ParamValue) MarshalYAML() (any, error) {
	if v.IsScalar() {
		return v.Scalar(), nil
	}

	return v.Array(), nil
}

// ParamMap is a set of parameters as written in YAML.
type ParamMap map[string]ParamValue

// Parameters converts the map to a parameter source.
func (m ParamMap) Parameters() sim.Parameters {
	p := make(sim.Parameters, len(m))
	for name, v := range m {
		p[name] = v.Param
	}

	return p
}

// LoadParameters reads a YAML file mapping parameter names to numbers or
// lists of numbers.
func LoadParameters(path string) (sim.Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w",
			joinConstruction(err))
	}

	var m ParamMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing parameters %s: %w", path,
			joinConstruction(err))
	}

	return m.Parameters(), nil
}
