// Package snow accumulates snow in a snowpack and melts it with a
// degree-day model.
package snow

import (
	"math"

	"github.com/sarchlab/hydrosim/sim"
)

// Comp is a degree-day snowpack component.
type Comp struct {
	*sim.ComponentBase

	ddf   []float64
	tmelt []float64

	melt   *sim.Buffer
	pack   *sim.Buffer
	change *sim.Buffer
}

func (c *Comp) calculate(timeLength float64) error {
	newSnow := c.MustInput("net_snow")
	temp := c.MustInput("tavgc")

	for i := 0; i < c.pack.Len(); i++ {
		prev := c.pack.At(i)
		pack := prev + newSnow.At(i)

		potential := c.ddf[i] * (temp.At(i) - c.tmelt[i]) * timeLength
		melt := math.Min(pack, math.Max(potential, 0))
		pack -= melt

		c.melt.Set(i, melt)
		c.pack.Set(i, pack)
		c.change.Set(i, pack-prev)
	}

	return nil
}

// SnowCovered returns the number of HRUs with snow on the ground.
func (c *Comp) SnowCovered() int {
	n := 0

	for i := 0; i < c.pack.Len(); i++ {
		if c.pack.At(i) > 0 {
			n++
		}
	}

	return n
}
