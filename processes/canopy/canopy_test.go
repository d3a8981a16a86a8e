package canopy_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hydrosim/processes/canopy"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sarchlab/hydrosim/simulation"
	"github.com/sarchlab/hydrosim/timeseries"
)

func approx(want ...float64) OmegaMatcher {
	matchers := make([]any, len(want))
	for i, w := range want {
		matchers[i] = BeNumerically("~", w, 1e-12)
	}

	return HaveExactElements(matchers...)
}

var _ = Describe("Canopy", func() {
	var (
		params  sim.Parameters
		forcing *timeseries.Memory
		sink    *timeseries.MemorySink
	)

	build := func() (*simulation.Simulation, error) {
		start := time.Date(1979, 10, 1, 0, 0, 0, 0, time.UTC)

		return simulation.MakeBuilder().
			WithClock(sim.MustNewClock(start, start.AddDate(0, 0, 1), 24*time.Hour)).
			WithDiscretization(sim.Parameters{sim.DimHRU: sim.Scalar(2)}).
			WithComponent("Canopy", canopy.MakeBuilder(), params).
			WithSeriesSource(forcing).
			WithSink(sink).
			Build()
	}

	BeforeEach(func() {
		params = sim.Parameters{
			"covden":    sim.Array(1, 0.5),
			"intcp_cap": sim.Scalar(0.1),
		}
		forcing = timeseries.NewMemory().
			MustSet("hru_rain", [][]float64{{0.05, 0.2}, {0.1, 0}}).
			MustSet("hru_snow", [][]float64{{0, 0}, {0.1, 0}}).
			MustSet("potet", [][]float64{{0, 0}, {0.02, 0.04}})
		sink = timeseries.NewMemorySink()
	})

	It("should declare a tracked budget", func() {
		meta := canopy.MakeBuilder().Metadata()

		Expect(meta.Validate("Canopy")).To(Succeed())
		Expect(meta.Tracked()).To(BeTrue())
		Expect(meta.Budget.StorageChanges).To(Equal([]string{"intcp_stor_change"}))
	})

	It("should intercept rain and snow up to the capacity", func() {
		s, err := build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Run(context.Background(), 0)).To(Succeed())

		netRain := sink.Records("Canopy", "net_rain")
		Expect(netRain[0]).To(approx(0, 0.15))
		Expect(netRain[1]).To(approx(0.05, 0))

		Expect(sink.Records("Canopy", "net_snow")[1]).To(approx(0.1, 0))
		Expect(sink.Records("Canopy", "intcp_evap")[1]).To(approx(0.02, 0.02))

		stor := sink.Records("Canopy", "intcp_stor")
		Expect(stor[0]).To(approx(0.05, 0.05))
		Expect(stor[1]).To(approx(0.08, 0.03))

		Expect(sink.Records("Canopy", "intcp_stor_change")[1]).
			To(approx(0.03, -0.02))
		Expect(s.Violations()).To(BeEmpty())
	})

	It("should pass everything through without cover", func() {
		params["covden"] = sim.Scalar(0)

		s, err := build()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Run(context.Background(), 0)).To(Succeed())

		Expect(sink.Records("Canopy", "net_rain")).
			To(Equal([][]float64{{0.05, 0.2}, {0.1, 0}}))
		Expect(sink.Records("Canopy", "intcp_stor")).
			To(Equal([][]float64{{0, 0}, {0, 0}}))
	})

	It("should reject a cover density above one", func() {
		params["covden"] = sim.Array(1, 1.5)

		_, err := build()

		var ipe *sim.InvalidParameterError
		Expect(errors.As(err, &ipe)).To(BeTrue())
		Expect(ipe.Parameter).To(Equal("covden"))
		Expect(ipe.Index).To(Equal(1))
	})

	It("should require the interception capacity", func() {
		delete(params, "intcp_cap")

		_, err := build()

		var mp *sim.MissingParameterError
		Expect(errors.As(err, &mp)).To(BeTrue())
		Expect(mp.Parameter).To(Equal("intcp_cap"))
	})

	It("should reject parameters of the wrong length", func() {
		params["covden"] = sim.Array(1, 1, 1)

		_, err := build()

		Expect(errors.Is(err, sim.ErrConstruction)).To(BeTrue())
	})
})
