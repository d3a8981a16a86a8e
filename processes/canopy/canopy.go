// Package canopy intercepts precipitation in the vegetation canopy.
//
// A fraction covden of each HRU is covered. The covered part holds up to
// intcp_cap inches, fills from rain first and then from snow, and loses
// water to evaporation at the potential rate.
package canopy

import (
	"math"

	"github.com/sarchlab/hydrosim/sim"
)

// maxDepth bounds depth parameters, in inches.
const maxDepth = 100

// Comp is a canopy interception component.
type Comp struct {
	*sim.ComponentBase

	covden   []float64
	intcpCap []float64
	prevStor []float64

	netRain    *sim.Buffer
	netSnow    *sim.Buffer
	evap       *sim.Buffer
	stor       *sim.Buffer
	storChange *sim.Buffer
}

func (c *Comp) calculate(timeLength float64) error {
	rain := c.MustInput("hru_rain")
	snow := c.MustInput("hru_snow")
	potet := c.MustInput("potet")

	for i := 0; i < c.stor.Len(); i++ {
		s := c.stor.At(i)
		c.prevStor[i] = s

		room := math.Max(c.covden[i]*c.intcpCap[i]-s, 0)

		caughtRain := math.Min(c.covden[i]*rain.At(i), room)
		room -= caughtRain
		caughtSnow := math.Min(c.covden[i]*snow.At(i), room)

		s += caughtRain + caughtSnow

		evap := math.Min(s, c.covden[i]*potet.At(i)*timeLength)
		s -= evap

		c.netRain.Set(i, rain.At(i)-caughtRain)
		c.netSnow.Set(i, snow.At(i)-caughtSnow)
		c.evap.Set(i, evap)
		c.stor.Set(i, s)
		c.storChange.Set(i, s-c.prevStor[i])
	}

	return nil
}
