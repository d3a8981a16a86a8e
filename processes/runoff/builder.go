package runoff

import (
	"github.com/sarchlab/hydrosim/sim"
)

// Builder can build runoff components.
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

// Metadata returns the declaration of runoff components.
func (b Builder) Metadata() sim.Metadata {
	return sim.Metadata{
		Inputs:     []string{"net_rain", "snowmelt"},
		Outputs:    []string{"infil", "sroff"},
		Parameters: []string{sim.DimHRU, "carea_frac"},
		Descriptions: map[string]string{
			"infil":      "water infiltrating into the soil (in)",
			"sroff":      "surface runoff (in)",
			"carea_frac": "fraction of the HRU contributing to runoff",
		},
		Budget: &sim.BudgetTerms{
			Inputs:  []string{"net_rain", "snowmelt"},
			Outputs: []string{"infil", "sroff"},
			Unit:    "inches",
		},
	}
}

// Build creates a runoff component.
func (b Builder) Build(name string, env sim.BuildEnv) (sim.Component, error) {
	nhru, err := env.Dim(name, sim.DimHRU)
	if err != nil {
		return nil, err
	}

	frac, err := env.Param(name, "carea_frac", nhru)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "carea_frac", frac, 0, 1); err != nil {
		return nil, err
	}

	c := &Comp{careaFrac: frac}

	meta := b.Metadata()
	c.ComponentBase = sim.NewComponentBase(name, meta, env.Clock,
		sim.KernelFunc(c.calculate))
	c.SetLogger(env.Logger)

	c.ExpectInputLen("net_rain", nhru)
	c.ExpectInputLen("snowmelt", nhru)

	c.infil = c.AddOutput("infil", nhru)
	c.sroff = c.AddOutput("sroff", nhru)

	c.AttachLedger(b.basis, env.Ledger)

	return c, nil
}
