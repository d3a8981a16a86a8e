package canopy

import (
	"github.com/sarchlab/hydrosim/sim"
)

// Builder can build canopy components.
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

// Metadata returns the declaration of canopy components.
func (b Builder) Metadata() sim.Metadata {
	return sim.Metadata{
		Inputs: []string{"hru_rain", "hru_snow", "potet"},
		Outputs: []string{
			"net_rain", "net_snow", "intcp_evap",
			"intcp_stor", "intcp_stor_change",
		},
		Parameters: []string{sim.DimHRU, "covden", "intcp_cap"},
		Descriptions: map[string]string{
			"hru_rain":          "rain on the HRU (in)",
			"hru_snow":          "snow on the HRU (in)",
			"potet":             "potential evapotranspiration (in)",
			"net_rain":          "rain reaching the ground (in)",
			"net_snow":          "snow reaching the ground (in)",
			"intcp_evap":        "evaporation from the canopy (in)",
			"intcp_stor":        "water held by the canopy (in)",
			"intcp_stor_change": "change of canopy storage (in)",
			"covden":            "canopy cover density (fraction)",
			"intcp_cap":         "interception capacity of full cover (in)",
		},
		Budget: &sim.BudgetTerms{
			Inputs:         []string{"hru_rain", "hru_snow"},
			Outputs:        []string{"net_rain", "net_snow", "intcp_evap"},
			StorageChanges: []string{"intcp_stor_change"},
			Unit:           "inches",
		},
	}
}

// Build creates a canopy component.
func (b Builder) Build(name string, env sim.BuildEnv) (sim.Component, error) {
	nhru, err := env.Dim(name, sim.DimHRU)
	if err != nil {
		return nil, err
	}

	covden, err := env.Param(name, "covden", nhru)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "covden", covden, 0, 1); err != nil {
		return nil, err
	}

	intcpCap, err := env.Param(name, "intcp_cap", nhru)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "intcp_cap", intcpCap, 0, maxDepth); err != nil {
		return nil, err
	}

	c := &Comp{
		covden:   covden,
		intcpCap: intcpCap,
		prevStor: make([]float64, nhru),
	}

	meta := b.Metadata()
	c.ComponentBase = sim.NewComponentBase(name, meta, env.Clock,
		sim.KernelFunc(c.calculate))
	c.SetLogger(env.Logger)

	for _, in := range meta.Inputs {
		c.ExpectInputLen(in, nhru)
	}

	c.netRain = c.AddOutput("net_rain", nhru)
	c.netSnow = c.AddOutput("net_snow", nhru)
	c.evap = c.AddOutput("intcp_evap", nhru)
	c.stor = c.AddOutput("intcp_stor", nhru)
	c.storChange = c.AddOutput("intcp_stor_change", nhru)

	c.AttachLedger(b.basis, env.Ledger)

	return c, nil
}
