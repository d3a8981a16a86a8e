package channel

import (
	"math"

	"github.com/sarchlab/hydrosim/sim"
)

// Builder can build channel routing components.
type Builder struct{}

// MakeBuilder returns a new Builder
func MakeBuilder() Builder {
	return Builder{}
}

// Metadata returns the declaration of channel components.
func (b Builder) Metadata() sim.Metadata {
	return sim.Metadata{
		Inputs: []string{"sroff", "ssres_flow", "gwres_flow"},
		Outputs: []string{
			"seg_lateral_inflow", "seg_outflow",
			"seg_outlet_flow", "seg_stor_change",
		},
		Parameters: []string{
			sim.DimHRU, sim.DimSegment,
			"hru_segment", "tosegment", "hru_area", "seg_k",
		},
		Dims: map[string]string{
			"seg_lateral_inflow": sim.DimSegment,
			"seg_outflow":        sim.DimSegment,
			"seg_outlet_flow":    sim.DimSegment,
			"seg_stor_change":    sim.DimSegment,
			"tosegment":          sim.DimSegment,
			"seg_k":              sim.DimSegment,
		},
		Descriptions: map[string]string{
			"seg_lateral_inflow": "inflow from the HRUs (acre-in)",
			"seg_outflow":        "flow leaving the segment (acre-in)",
			"seg_outlet_flow":    "flow leaving the network (acre-in)",
			"seg_stor_change":    "change of segment storage (acre-in)",
			"hru_segment":        "segment an HRU drains to, 1-based, 0 for none",
			"tosegment":          "downstream segment, 1-based, 0 for an outlet",
			"hru_area":           "HRU area (acres)",
			"seg_k":              "fraction of segment storage released per day",
		},
		Budget: &sim.BudgetTerms{
			Inputs:         []string{"seg_lateral_inflow"},
			Outputs:        []string{"seg_outlet_flow"},
			StorageChanges: []string{"seg_stor_change"},
			Unit:           "acre-inches",
		},
	}
}

// Build creates a channel component.
func (b Builder) Build(name string, env sim.BuildEnv) (sim.Component, error) {
	nhru, err := env.Dim(name, sim.DimHRU)
	if err != nil {
		return nil, err
	}

	nseg, err := env.Dim(name, sim.DimSegment)
	if err != nil {
		return nil, err
	}

	hruSegment, err := indexParam(env, name, "hru_segment", nhru, nseg)
	if err != nil {
		return nil, err
	}

	toSegment, err := indexParam(env, name, "tosegment", nseg, nseg)
	if err != nil {
		return nil, err
	}

	area, err := env.Param(name, "hru_area", nhru)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "hru_area", area, 0, math.Inf(1)); err != nil {
		return nil, err
	}

	k, err := env.Param(name, "seg_k", nseg)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(name, "seg_k", k, 0, 1); err != nil {
		return nil, err
	}

	order, err := routingOrder(name, toSegment)
	if err != nil {
		return nil, err
	}

	c := &Comp{
		hruSegment: hruSegment,
		toSegment:  toSegment,
		area:       area,
		k:          k,
		order:      order,
		stor:       make([]float64, nseg),
		upstream:   make([]float64, nseg),
	}

	meta := b.Metadata()
	c.ComponentBase = sim.NewComponentBase(name, meta, env.Clock,
		sim.KernelFunc(c.calculate))
	c.SetLogger(env.Logger)

	for _, in := range meta.Inputs {
		c.ExpectInputLen(in, nhru)
	}

	c.lateral = c.AddOutput("seg_lateral_inflow", nseg)
	c.outflow = c.AddOutput("seg_outflow", nseg)
	c.outlet = c.AddOutput("seg_outlet_flow", nseg)
	c.change = c.AddOutput("seg_stor_change", nseg)

	c.AttachLedger(sim.BasisGlobal, env.Ledger)

	return c, nil
}

// indexParam reads 1-based segment indices and converts them to 0-based
// ones, with -1 for 0.
func indexParam(
	env sim.BuildEnv,
	component, name string,
	n, nseg int,
) ([]int, error) {
	values, err := env.Param(component, name, n)
	if err != nil {
		return nil, err
	}

	if err := sim.CheckRange(component, name, values, 0, float64(nseg)); err != nil {
		return nil, err
	}

	idx := make([]int, n)

	for i, v := range values {
		if v != math.Trunc(v) {
			return nil, &sim.InvalidParameterError{
				Component: component,
				Parameter: name,
				Index:     i,
				Value:     v,
				Reason:    "not a segment number",
			}
		}

		idx[i] = int(v) - 1
	}

	return idx, nil
}

// routingOrder sorts the segments so that every segment comes after all the
// segments that flow into it.
func routingOrder(component string, toSegment []int) ([]int, error) {
	nIn := make([]int, len(toSegment))

	for _, to := range toSegment {
		if to >= 0 {
			nIn[to]++
		}
	}

	var ready, order []int

	for s, n := range nIn {
		if n == 0 {
			ready = append(ready, s)
		}
	}

	for len(ready) > 0 {
		s := ready[0]
		ready = ready[1:]
		order = append(order, s)

		to := toSegment[s]
		if to < 0 {
			continue
		}

		nIn[to]--
		if nIn[to] == 0 {
			ready = append(ready, to)
		}
	}

	if len(order) < len(toSegment) {
		for s, n := range nIn {
			if n > 0 {
				return nil, &sim.InvalidParameterError{
					Component: component,
					Parameter: "tosegment",
					Index:     s,
					Value:     float64(toSegment[s] + 1),
					Reason:    "segment is part of a loop",
				}
			}
		}
	}

	return order, nil
}
