// Package soilzone keeps the water balance of the soil column.
//
// Infiltration fills the soil up to its capacity. Evapotranspiration takes
// the potential rate scaled by the relative soil moisture. Water above the
// capacity drains to groundwater up to soil2gw_max and leaves the rest as
// interflow.
package soilzone

import (
	"math"

	"github.com/sarchlab/hydrosim/sim"
)

const maxDepth = 1000

// Comp is a soil zone component.
type Comp struct {
	*sim.ComponentBase

	moistMax []float64
	toGWMax  []float64

	moist       *sim.Buffer
	moistChange *sim.Buffer
	toGW        *sim.Buffer
	ssres       *sim.Buffer
	actet       *sim.Buffer
}

func (c *Comp) calculate(timeLength float64) error {
	infil := c.MustInput("infil")
	potet := c.MustInput("potet")

	for i := 0; i < c.moist.Len(); i++ {
		prev := c.moist.At(i)
		sm := prev + infil.At(i)

		excess := math.Max(sm-c.moistMax[i], 0)
		sm -= excess

		et := 0.0
		if c.moistMax[i] > 0 {
			et = math.Min(sm, potet.At(i)*timeLength*sm/c.moistMax[i])
		}

		sm -= et

		toGW := math.Min(excess, c.toGWMax[i]*timeLength)

		c.toGW.Set(i, toGW)
		c.ssres.Set(i, excess-toGW)
		c.actet.Set(i, et)
		c.moist.Set(i, sm)
		c.moistChange.Set(i, sm-prev)
	}

	return nil
}
