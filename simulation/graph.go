package simulation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sarchlab/hydrosim/sim"
)

// A Source tells where an input of a component comes from.
type Source struct {
	// Producer is the name of the component that declares the input as an
	// output. It is empty for inputs read from the series source.
	Producer string
}

// External is the Source of inputs that no component produces.
var External = Source{}

// IsExternal returns true if the input is read from the series source.
func (s Source) IsExternal() bool {
	return s.Producer == ""
}

func (s Source) String() string {
	if s.IsExternal() {
		return "<external>"
	}

	return s.Producer
}

// ProducerMap maps a component name to the sources of its inputs.
type ProducerMap map[string]map[string]Source

func (p ProducerMap) clone() ProducerMap {
	out := make(ProducerMap, len(p))

	for comp, inputs := range p {
		m := make(map[string]Source, len(inputs))
		for in, src := range inputs {
			m[in] = src
		}

		out[comp] = m
	}

	return out
}

type declaration struct {
	name    string
	builder sim.ComponentBuilder
	meta    sim.Metadata
}

// resolveProducers finds the producer of every input. An output declared by
// more than one component is an error even if nobody consumes it.
func resolveProducers(decls []declaration) (ProducerMap, error) {
	producersOf := make(map[string][]string)

	for _, d := range decls {
		for _, out := range d.meta.Outputs {
			producersOf[out] = append(producersOf[out], d.name)
		}
	}

	if err := checkUniqueProducers(decls, producersOf); err != nil {
		return nil, err
	}

	pm := make(ProducerMap, len(decls))

	for _, d := range decls {
		inputs := make(map[string]Source, len(d.meta.Inputs))

		for _, in := range d.meta.Inputs {
			src := External

			for _, p := range producersOf[in] {
				if p != d.name {
					src = Source{Producer: p}
				}
			}

			inputs[in] = src
		}

		pm[d.name] = inputs
	}

	return pm, nil
}

func checkUniqueProducers(
	decls []declaration,
	producersOf map[string][]string,
) error {
	outputs := make([]string, 0, len(producersOf))
	for out := range producersOf {
		outputs = append(outputs, out)
	}

	sort.Strings(outputs)

	for _, out := range outputs {
		producers := producersOf[out]
		if len(producers) < 2 {
			continue
		}

		sorted := append([]string(nil), producers...)
		sort.Strings(sorted)

		return &sim.AmbiguousProducerError{
			Consumer:  firstConsumer(decls, out),
			Input:     out,
			Producers: sorted,
		}
	}

	return nil
}

func firstConsumer(decls []declaration, variable string) string {
	for _, d := range decls {
		if d.meta.HasInput(variable) {
			return d.name
		}
	}

	return ""
}

// validateOrder checks that the order is a permutation of the declared
// components and that every producer comes before its consumers.
func validateOrder(
	order []string,
	decls []declaration,
	pm ProducerMap,
) error {
	position := make(map[string]int, len(order))

	for i, name := range order {
		if _, ok := pm[name]; !ok {
			return &sim.OrderViolationError{
				Component: name,
				Reason:    "not a declared component",
			}
		}

		if _, dup := position[name]; dup {
			return &sim.OrderViolationError{
				Component: name,
				Reason:    "appears more than once",
			}
		}

		position[name] = i
	}

	for _, d := range decls {
		if _, ok := position[d.name]; !ok {
			return &sim.OrderViolationError{
				Component: d.name,
				Reason:    "missing from the order",
			}
		}
	}

	for _, consumer := range order {
		inputs := sortedInputs(pm[consumer])

		for _, in := range inputs {
			src := pm[consumer][in]
			if src.IsExternal() {
				continue
			}

			if position[src.Producer] > position[consumer] {
				return &sim.OrderViolationError{
					Component: consumer,
					Producer:  src.Producer,
					Input:     in,
				}
			}
		}
	}

	return nil
}

func sortedInputs(inputs map[string]Source) []string {
	names := make([]string, 0, len(inputs))
	for n := range inputs {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func externalInputs(pm ProducerMap) []string {
	seen := make(map[string]bool)

	for _, inputs := range pm {
		for in, src := range inputs {
			if src.IsExternal() {
				seen[in] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func describeProducers(order []string, pm ProducerMap) string {
	sb := new(strings.Builder)

	fmt.Fprintf(sb, "order: %s\n", strings.Join(order, " -> "))

	for _, comp := range order {
		fmt.Fprintf(sb, "%s\n", comp)

		for _, in := range sortedInputs(pm[comp]) {
			fmt.Fprintf(sb, "  %-24s <- %s\n", in, pm[comp][in])
		}
	}

	return sb.String()
}
