// Package groundwater routes soil drainage through a linear groundwater
// reservoir.
package groundwater

import (
	"math"

	"github.com/sarchlab/hydrosim/sim"
)

// Comp is a linear reservoir. Each step releases gwflow_coef of the storage
// after recharge.
type Comp struct {
	*sim.ComponentBase

	coef []float64

	flow   *sim.Buffer
	stor   *sim.Buffer
	change *sim.Buffer
}

func (c *Comp) calculate(timeLength float64) error {
	recharge := c.MustInput("soil_to_gw")

	for i := 0; i < c.stor.Len(); i++ {
		prev := c.stor.At(i)
		s := prev + recharge.At(i)

		q := s * math.Min(c.coef[i]*timeLength, 1)
		s -= q

		c.flow.Set(i, q)
		c.stor.Set(i, s)
		c.change.Set(i, s-prev)
	}

	return nil
}
