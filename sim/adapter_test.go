package sim

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type sliceCursor struct {
	records [][]float64
	shape   int
	reads   int
	closed  bool
}

func (c *sliceCursor) Len() int   { return len(c.records) }
func (c *sliceCursor) Shape() int { return c.shape }

func (c *sliceCursor) ReadStep(i int) ([]float64, error) {
	c.reads++
	return c.records[i], nil
}

func (c *sliceCursor) ReadSteps(start, count int) ([][]float64, error) {
	c.reads++
	return c.records[start : start+count], nil
}

func (c *sliceCursor) Close() error {
	c.closed = true
	return nil
}

type sliceSource map[string]*sliceCursor

func (s sliceSource) Open(name string) (Cursor, error) {
	c, ok := s[name]
	if !ok {
		return nil, &MissingVariableError{Variable: name, Source: "slices"}
	}

	return c, nil
}

func rampRecords(nSteps, shape int) [][]float64 {
	records := make([][]float64, nSteps)
	for i := range records {
		records[i] = make([]float64, shape)
		for j := range records[i] {
			records[i][j] = float64(i*10 + j)
		}
	}

	return records
}

var _ = Describe("LiveAdapter", func() {
	var (
		clock   *Clock
		buf     *Buffer
		adapter *LiveAdapter
	)

	BeforeEach(func() {
		clock = MustNewClock(day(1979, 1, 1), day(1979, 1, 3), 24*time.Hour)
		buf = NewBuffer("net_rain", 2)
		adapter = NewLiveAdapter(clock, "net_rain", buf.View())
	})

	It("should fail to read before the first advance", func() {
		_, err := adapter.Current()

		var unbound *UnboundAdapterError
		Expect(errors.As(err, &unbound)).To(BeTrue())
		Expect(errors.Is(err, ErrRunState)).To(BeTrue())
	})

	It("should fail to advance before the clock starts", func() {
		Expect(errors.Is(adapter.Advance(), ErrRunState)).To(BeTrue())
	})

	It("should read the producer's memory", func() {
		Expect(clock.Advance()).To(Succeed())
		Expect(adapter.Advance()).To(Succeed())

		buf.Set(0, 4)
		v, err := adapter.Current()

		Expect(err).NotTo(HaveOccurred())
		Expect(v.At(0)).To(Equal(4.0))
		Expect(v.SameAs(buf.View())).To(BeTrue())
		Expect(adapter.Index()).To(Equal(0))
		Expect(adapter.Len()).To(Equal(2))
	})
})

var _ = Describe("FileAdapter", func() {
	var (
		mockCtrl *gomock.Controller
		clock    *Clock
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = MustNewClock(day(1979, 1, 1), day(1979, 1, 10), 24*time.Hour)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report a missing variable when opened", func() {
		source := NewMockSeriesSource(mockCtrl)
		source.EXPECT().Open("tavgc").
			Return(nil, &MissingVariableError{Variable: "tavgc"})

		_, err := NewFileAdapter(clock, source, "tavgc", 0)

		Expect(errors.Is(err, ErrDataSource)).To(BeTrue())
	})

	It("should read one step at a time without a batch reader", func() {
		cursor := NewMockCursor(mockCtrl)
		source := NewMockSeriesSource(mockCtrl)
		source.EXPECT().Open("tavgc").Return(cursor, nil)
		cursor.EXPECT().Len().Return(10).AnyTimes()
		cursor.EXPECT().Shape().Return(1).AnyTimes()
		cursor.EXPECT().ReadStep(0).Return([]float64{1.5}, nil)
		cursor.EXPECT().ReadStep(1).Return([]float64{2.5}, nil)

		adapter, err := NewFileAdapter(clock, source, "tavgc", 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(clock.Advance()).To(Succeed())
		Expect(adapter.Advance()).To(Succeed())
		v, _ := adapter.Current()
		Expect(v.At(0)).To(Equal(1.5))

		Expect(clock.Advance()).To(Succeed())
		Expect(adapter.Advance()).To(Succeed())
		v, _ = adapter.Current()
		Expect(v.At(0)).To(Equal(2.5))
		Expect(adapter.NumLoads()).To(Equal(1))
	})

	It("should reject records of the wrong shape", func() {
		cursor := NewMockCursor(mockCtrl)
		source := NewMockSeriesSource(mockCtrl)
		source.EXPECT().Open("tavgc").Return(cursor, nil)
		cursor.EXPECT().Len().Return(10).AnyTimes()
		cursor.EXPECT().Shape().Return(2).AnyTimes()
		cursor.EXPECT().ReadStep(0).Return([]float64{1.5}, nil)

		adapter, _ := NewFileAdapter(clock, source, "tavgc", 1)
		Expect(clock.Advance()).To(Succeed())

		err := adapter.Advance()

		var mismatch *ShapeMismatchError
		Expect(errors.As(err, &mismatch)).To(BeTrue())
		Expect(mismatch.Want).To(Equal(2))
		Expect(mismatch.Got).To(Equal(1))
	})

	It("should close the cursor", func() {
		cursor := NewMockCursor(mockCtrl)
		source := NewMockSeriesSource(mockCtrl)
		source.EXPECT().Open("tavgc").Return(cursor, nil)
		cursor.EXPECT().Close().Return(nil)

		adapter, _ := NewFileAdapter(clock, source, "tavgc", 1)

		Expect(adapter.Close()).To(Succeed())
	})

	It("should be idempotent within a step", func() {
		cursor := &sliceCursor{records: rampRecords(10, 2), shape: 2}
		adapter, _ := NewFileAdapter(clock, sliceSource{"potet": cursor},
			"potet", 1)

		Expect(clock.Advance()).To(Succeed())
		Expect(adapter.Advance()).To(Succeed())
		Expect(adapter.Advance()).To(Succeed())

		Expect(cursor.reads).To(Equal(1))
	})

	It("should fail past the end of the series", func() {
		cursor := &sliceCursor{records: rampRecords(3, 2), shape: 2}
		adapter, _ := NewFileAdapter(clock, sliceSource{"potet": cursor},
			"potet", 0)

		for i := 0; i < 3; i++ {
			Expect(clock.Advance()).To(Succeed())
			Expect(adapter.Advance()).To(Succeed())
		}

		Expect(clock.Advance()).To(Succeed())
		err := adapter.Advance()

		var eos *EndOfSeriesError
		Expect(errors.As(err, &eos)).To(BeTrue())
		Expect(eos.Step).To(Equal(3))
		Expect(errors.Is(err, ErrDataSource)).To(BeTrue())
	})

	It("should start at the clock's current step", func() {
		cursor := &sliceCursor{records: rampRecords(10, 2), shape: 2}
		adapter, _ := NewFileAdapter(clock, sliceSource{"potet": cursor},
			"potet", 3)

		for i := 0; i < 5; i++ {
			Expect(clock.Advance()).To(Succeed())
		}

		Expect(adapter.Advance()).To(Succeed())
		v, _ := adapter.Current()

		Expect(v.Values()).To(Equal([]float64{40, 41}))
	})

	DescribeTable("should give the same values for any batch size",
		func(batchSize, wantLoads int) {
			cursor := &sliceCursor{records: rampRecords(10, 3), shape: 3}
			adapter, err := NewFileAdapter(clock,
				sliceSource{"hru_rain": cursor}, "hru_rain", batchSize)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 10; i++ {
				Expect(clock.Advance()).To(Succeed())
				Expect(adapter.Advance()).To(Succeed())

				v, err := adapter.Current()
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Values()).To(Equal(cursor.records[i]))
			}

			Expect(adapter.NumLoads()).To(Equal(wantLoads))
		},
		Entry("everything at once", 0, 1),
		Entry("one step", 1, 10),
		Entry("three steps", 3, 4),
		Entry("more than the series", 100, 1),
	)
})
