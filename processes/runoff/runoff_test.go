package runoff_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hydrosim/processes/runoff"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sarchlab/hydrosim/simulation"
	"github.com/sarchlab/hydrosim/timeseries"
)

var _ = Describe("Runoff", func() {
	var (
		frac sim.Param
		sink *timeseries.MemorySink
	)

	build := func() (*simulation.Simulation, error) {
		start := time.Date(1980, 6, 1, 0, 0, 0, 0, time.UTC)

		return simulation.MakeBuilder().
			WithClock(sim.MustNewClock(start, start, 24*time.Hour)).
			WithDiscretization(sim.Parameters{sim.DimHRU: sim.Scalar(2)}).
			WithComponent("Runoff", runoff.MakeBuilder(),
				sim.Parameters{"carea_frac": frac}).
			WithSeriesSource(timeseries.NewMemory().
				MustSet("net_rain", [][]float64{{1, 2}}).
				MustSet("snowmelt", [][]float64{{1, 0}})).
			WithSink(sink).
			Build()
	}

	BeforeEach(func() {
		frac = sim.Array(0.25, 1)
		sink = timeseries.NewMemorySink()
	})

	It("should split water by the contributing area", func() {
		s, err := build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background(), 0)).To(Succeed())

		Expect(sink.Records("Runoff", "sroff")).To(Equal([][]float64{{0.5, 2}}))
		Expect(sink.Records("Runoff", "infil")).To(Equal([][]float64{{1.5, 0}}))
		Expect(sink.Records("Runoff", "budget_balance")).
			To(Equal([][]float64{{0, 0}}))
	})

	It("should reject a negative fraction", func() {
		frac = sim.Scalar(-0.1)

		_, err := build()

		Expect(errors.Is(err, sim.ErrConstruction)).To(BeTrue())
	})
})
