package snow

import (
	"github.com/sarchlab/hydrosim/sim"
)

// Builder can build snowpack components.
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

// Metadata returns the declaration of snowpack components.
func (b Builder) Metadata() sim.Metadata {
	return sim.Metadata{
		Inputs:     []string{"net_snow", "tavgc"},
		Outputs:    []string{"snowmelt", "pkwater_equiv", "pkwater_change"},
		Parameters: []string{sim.DimHRU, "ddf", "tmelt"},
		Descriptions: map[string]string{
			"tavgc":          "mean air temperature (degC)",
			"snowmelt":       "melt leaving the snowpack (in)",
			"pkwater_equiv":  "water equivalent of the snowpack (in)",
			"pkwater_change": "change of snowpack water equivalent (in)",
			"ddf":            "degree-day factor (in/degC/day)",
			"tmelt":          "temperature above which snow melts (degC)",
		},
		Budget: &sim.BudgetTerms{
			Inputs:         []string{"net_snow"},
			Outputs:        []string{"snowmelt"},
			StorageChanges: []string{"pkwater_change"},
			Unit:           "inches",
		},
	}
}

// Build creates a snowpack component.
func (b Builder) Build(name string, env sim.BuildEnv) (sim.Component, error) {
	nhru, err := env.Dim(name, sim.DimHRU)
	if err != nil {
		return nil, err
	}

	ddf, err := env.Param(name, "ddf", nhru)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "ddf", ddf, 0, 1); err != nil {
		return nil, err
	}

	tmelt, err := env.Param(name, "tmelt", nhru)
	if err != nil {
		return nil, err
	}

	c := &Comp{ddf: ddf, tmelt: tmelt}

	meta := b.Metadata()
	c.ComponentBase = sim.NewComponentBase(name, meta, env.Clock,
		sim.KernelFunc(c.calculate))
	c.SetLogger(env.Logger)

	c.ExpectInputLen("net_snow", nhru)
	c.ExpectInputLen("tavgc", nhru)

	c.melt = c.AddOutput("snowmelt", nhru)
	c.pack = c.AddOutput("pkwater_equiv", nhru)
	c.change = c.AddOutput("pkwater_change", nhru)

	c.AttachLedger(b.basis, env.Ledger)

	return c, nil
}
