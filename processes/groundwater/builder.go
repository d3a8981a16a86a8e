package groundwater

import (
	"math"

	"github.com/sarchlab/hydrosim/sim"
)

// Builder can build groundwater reservoir components.
type Builder struct {
	basis sim.Basis
}

// MakeBuilder returns a new Builder
func MakeBuilder() Builder {
	return Builder{basis: sim.BasisUnit}
}

// WithBasis sets whether the budget is checked per HRU or over the domain.
func (b Builder) WithBasis(basis sim.Basis) Builder {
	b.basis = basis
	return b
}

// Metadata returns the declaration of groundwater components.
func (b Builder) Metadata() sim.Metadata {
	return sim.Metadata{
		Inputs:     []string{"soil_to_gw"},
		Outputs:    []string{"gwres_flow", "gwres_stor", "gwres_stor_change"},
		Parameters: []string{sim.DimHRU, "gwflow_coef", "gwres_init"},
		Descriptions: map[string]string{
			"gwres_flow":        "baseflow to the channel (in)",
			"gwres_stor":        "water in the groundwater reservoir (in)",
			"gwres_stor_change": "change of groundwater storage (in)",
			"gwflow_coef":       "fraction of storage released per day",
			"gwres_init":        "initial groundwater storage (in)",
		},
		Budget: &sim.BudgetTerms{
			Inputs:         []string{"soil_to_gw"},
			Outputs:        []string{"gwres_flow"},
			StorageChanges: []string{"gwres_stor_change"},
			Unit:           "inches",
		},
	}
}

// Build creates a groundwater component.
func (b Builder) Build(name string, env sim.BuildEnv) (sim.Component, error) {
	nhru, err := env.Dim(name, sim.DimHRU)
	if err != nil {
		return nil, err
	}

	coef, err := env.Param(name, "gwflow_coef", nhru)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "gwflow_coef", coef, 0, 1); err != nil {
		return nil, err
	}

	initial, err := env.Param(name, "gwres_init", nhru)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "gwres_init", initial, 0, math.Inf(1)); err != nil {
		return nil, err
	}

	c := &Comp{coef: coef}

	meta := b.Metadata()
	c.ComponentBase = sim.NewComponentBase(name, meta, env.Clock,
		sim.KernelFunc(c.calculate))
	c.SetLogger(env.Logger)

	c.ExpectInputLen("soil_to_gw", nhru)

	c.flow = c.AddOutput("gwres_flow", nhru)
	c.stor = c.AddOutput("gwres_stor", nhru)
	c.stor.CopyFrom(initial)
	c.change = c.AddOutput("gwres_stor_change", nhru)

	c.AttachLedger(b.basis, env.Ledger)

	return c, nil
}
