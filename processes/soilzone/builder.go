package soilzone

import (
	"github.com/sarchlab/hydrosim/sim"
)

// Builder can build soil zone components.
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

// Metadata returns the declaration of soil zone components.
func (b Builder) Metadata() sim.Metadata {
	return sim.Metadata{
		Inputs: []string{"infil", "potet"},
		Outputs: []string{
			"soil_moist", "soil_moist_change",
			"soil_to_gw", "ssres_flow", "hru_actet",
		},
		Parameters: []string{
			sim.DimHRU, "soil_moist_max", "soil2gw_max", "soil_moist_init",
		},
		Descriptions: map[string]string{
			"soil_moist":        "water held in the soil (in)",
			"soil_moist_change": "change of soil moisture (in)",
			"soil_to_gw":        "drainage to the groundwater reservoir (in)",
			"ssres_flow":        "interflow to the channel (in)",
			"hru_actet":         "actual evapotranspiration (in)",
			"soil_moist_max":    "soil water holding capacity (in)",
			"soil2gw_max":       "maximum drainage to groundwater per day (in)",
			"soil_moist_init":   "initial soil moisture (in)",
		},
		Budget: &sim.BudgetTerms{
			Inputs:         []string{"infil"},
			Outputs:        []string{"soil_to_gw", "ssres_flow", "hru_actet"},
			StorageChanges: []string{"soil_moist_change"},
			Unit:           "inches",
		},
	}
}

// Build creates a soil zone component.
func (b Builder) Build(name string, env sim.BuildEnv) (sim.Component, error) {
	nhru, err := env.Dim(name, sim.DimHRU)
	if err != nil {
		return nil, err
	}

	params := make(map[string][]float64, 3)

	for _, p := range []string{"soil_moist_max", "soil2gw_max", "soil_moist_init"} {
		v, err := env.Param(name, p, nhru)
		if err != nil {
			return nil, err
		}

		if err := sim.CheckRange(name, p, v, 0, maxDepth); err != nil {
			return nil, err
		}

		params[p] = v
	}

	for i, initial := range params["soil_moist_init"] {
		if initial > params["soil_moist_max"][i] {
			return nil, &sim.InvalidParameterError{
				Component: name,
				Parameter: "soil_moist_init",
				Index:     i,
				Value:     initial,
				Reason:    "exceeds soil_moist_max",
			}
		}
	}

	c := &Comp{
		moistMax: params["soil_moist_max"],
		toGWMax:  params["soil2gw_max"],
	}

	meta := b.Metadata()
	c.ComponentBase = sim.NewComponentBase(name, meta, env.Clock,
		sim.KernelFunc(c.calculate))
	c.SetLogger(env.Logger)

	c.ExpectInputLen("infil", nhru)
	c.ExpectInputLen("potet", nhru)

	c.moist = c.AddOutput("soil_moist", nhru)
	c.moist.CopyFrom(params["soil_moist_init"])
	c.moistChange = c.AddOutput("soil_moist_change", nhru)
	c.toGW = c.AddOutput("soil_to_gw", nhru)
	c.ssres = c.AddOutput("ssres_flow", nhru)
	c.actet = c.AddOutput("hru_actet", nhru)

	c.AttachLedger(b.basis, env.Ledger)

	return c, nil
}
