// Package processes collects the reference hydrologic processes and knows
// how to chain them into a model.
package processes

import (
	"fmt"
	"sort"

	"github.com/sarchlab/hydrosim/processes/canopy"
	"github.com/sarchlab/hydrosim/processes/channel"
	"github.com/sarchlab/hydrosim/processes/groundwater"
	"github.com/sarchlab/hydrosim/processes/runoff"
	"github.com/sarchlab/hydrosim/processes/snow"
	"github.com/sarchlab/hydrosim/processes/soilzone"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sarchlab/hydrosim/simulation"
)

// A Process names a component and the builder that creates it.
type Process struct {
	Kind    string
	Name    string
	Builder sim.ComponentBuilder
}

var registry = map[string]func() sim.ComponentBuilder{
	"canopy":      func() sim.ComponentBuilder { return canopy.MakeBuilder() },
	"snow":        func() sim.ComponentBuilder { return snow.MakeBuilder() },
	"runoff":      func() sim.ComponentBuilder { return runoff.MakeBuilder() },
	"soilzone":    func() sim.ComponentBuilder { return soilzone.MakeBuilder() },
	"groundwater": func() sim.ComponentBuilder { return groundwater.MakeBuilder() },
	"channel":     func() sim.ComponentBuilder { return channel.MakeBuilder() },
}

// Kinds returns the sorted kinds of the reference processes.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}

// Lookup returns a builder for the kind of process.
func Lookup(kind string) (sim.ComponentBuilder, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown process kind %q, want one of %v: %w",
			kind, Kinds(), sim.ErrConstruction)
	}

	return f(), nil
}

// Chain returns the reference processes in the order they must run.
func Chain() []Process {
	return []Process{
		{Kind: "canopy", Name: "Canopy", Builder: canopy.MakeBuilder()},
		{Kind: "snow", Name: "Snow", Builder: snow.MakeBuilder()},
		{Kind: "runoff", Name: "Runoff", Builder: runoff.MakeBuilder()},
		{Kind: "soilzone", Name: "SoilZone", Builder: soilzone.MakeBuilder()},
		{Kind: "groundwater", Name: "Groundwater",
			Builder: groundwater.MakeBuilder()},
		{Kind: "channel", Name: "Channel", Builder: channel.MakeBuilder()},
	}
}

// CanonicalOrder returns the component names of Chain.
func CanonicalOrder() []string {
	chain := Chain()

	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.Name
	}

	return names
}

// WithChain declares all the reference processes on the builder in the
// canonical order.
func WithChain(b simulation.Builder) simulation.Builder {
	for _, p := range Chain() {
		b = b.WithComponent(p.Name, p.Builder)
	}

	return b.WithOrder(CanonicalOrder()...)
}
