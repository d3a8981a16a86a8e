// Package runoff splits the water reaching the ground into surface runoff
// and infiltration with a contributing-area fraction.
package runoff

import (
	"github.com/sarchlab/hydrosim/sim"
)

// Comp is a contributing-area runoff component. It holds no storage.
type Comp struct {
	*sim.ComponentBase

	careaFrac []float64

	infil *sim.Buffer
	sroff *sim.Buffer
}

func (c *Comp) calculate(float64) error {
	rain := c.MustInput("net_rain")
	melt := c.MustInput("snowmelt")

	for i := 0; i < c.sroff.Len(); i++ {
		water := rain.At(i) + melt.At(i)
		sroff := c.careaFrac[i] * water

		c.sroff.Set(i, sroff)
		c.infil.Set(i, water-sroff)
	}

	return nil
}
