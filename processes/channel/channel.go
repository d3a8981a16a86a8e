// Package channel routes the lateral flows of the HRUs through a network of
// stream segments.
//
// Each segment is a linear reservoir releasing seg_k of its storage per
// step. Segments are visited from upstream to downstream, so the outflow of
// a segment reaches its downstream segment in the same step. The budget is
// kept over the whole network in acre-inches.
package channel

import (
	"math"

	"github.com/sarchlab/hydrosim/sim"
)

// Comp is a channel routing component.
type Comp struct {
	*sim.ComponentBase

	hruSegment []int
	toSegment  []int
	area       []float64
	k          []float64
	order      []int

	stor     []float64
	upstream []float64

	lateral *sim.Buffer
	outflow *sim.Buffer
	outlet  *sim.Buffer
	change  *sim.Buffer
}

func (c *Comp) calculate(timeLength float64) error {
	sroff := c.MustInput("sroff")
	ssres := c.MustInput("ssres_flow")
	gwres := c.MustInput("gwres_flow")

	c.lateral.Fill(0)
	c.outlet.Fill(0)

	for i := range c.upstream {
		c.upstream[i] = 0
	}

	for h, seg := range c.hruSegment {
		if seg < 0 {
			continue
		}

		depth := sroff.At(h) + ssres.At(h) + gwres.At(h)
		c.lateral.Add(seg, depth*c.area[h])
	}

	for _, s := range c.order {
		prev := c.stor[s]
		stor := prev + c.lateral.At(s) + c.upstream[s]

		out := stor * math.Min(c.k[s]*timeLength, 1)
		stor -= out

		c.stor[s] = stor
		c.outflow.Set(s, out)
		c.change.Set(s, stor-prev)

		if to := c.toSegment[s]; to >= 0 {
			c.upstream[to] += out
		} else {
			c.outlet.Set(s, out)
		}
	}

	return nil
}

// Storage returns the water held in each segment, in acre-inches.
func (c *Comp) Storage() []float64 {
	return append([]float64(nil), c.stor...)
}
