package sim

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("ComponentBase", func() {
	var (
		mockCtrl *gomock.Controller
		clock    *Clock
		kernel   *MockKernel
		adapter  *MockAdapter
		meta     Metadata
		comp     *ComponentBase
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = MustNewClock(day(1979, 1, 1), day(1979, 1, 10), 24*time.Hour)
		kernel = NewMockKernel(mockCtrl)
		adapter = NewMockAdapter(mockCtrl)
		adapter.EXPECT().Len().Return(2).AnyTimes()

		meta = Metadata{
			Inputs:  []string{"infil"},
			Outputs: []string{"soil_moist", "soil_moist_change", "ssres_flow"},
			Budget: &BudgetTerms{
				Inputs:         []string{"infil"},
				Outputs:        []string{"ssres_flow"},
				StorageChanges: []string{"soil_moist_change"},
			},
		}
		comp = NewComponentBase("Soilzone", meta, clock, kernel)
		for _, o := range meta.Outputs {
			comp.AddOutput(o, 2)
		}
		comp.ExpectInputLen("infil", 2)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectPull := func(values ...float64) {
		adapter.EXPECT().Advance().Return(nil)
		adapter.EXPECT().Current().Return(ViewOf(values), nil)
	}

	It("should panic on an invalid name", func() {
		Expect(func() {
			NewComponentBase("soil_zone", meta, clock, kernel)
		}).To(Panic())
	})

	It("should be uninitialized until all inputs are bound", func() {
		Expect(comp.State()).To(Equal(StateUninitialized))

		Expect(comp.Bind("infil", adapter)).To(Succeed())

		Expect(comp.State()).To(Equal(StateBound))
		Expect(comp.IsBound("infil")).To(BeTrue())
	})

	It("should be bound from the start without inputs", func() {
		c := NewComponentBase("Source", Metadata{Outputs: []string{"x"}},
			clock, kernel)

		Expect(c.State()).To(Equal(StateBound))
	})

	It("should reject binding an undeclared input", func() {
		err := comp.Bind("potet", adapter)

		Expect(errors.Is(err, ErrRunState)).To(BeTrue())
	})

	It("should reject rebinding", func() {
		Expect(comp.Bind("infil", adapter)).To(Succeed())

		var stateErr *InvalidStateError
		Expect(errors.As(comp.Bind("infil", adapter), &stateErr)).To(BeTrue())
	})

	It("should reject an adapter of the wrong length", func() {
		short := NewMockAdapter(mockCtrl)
		short.EXPECT().Len().Return(3).AnyTimes()

		var mismatch *ShapeMismatchError
		Expect(errors.As(comp.Bind("infil", short), &mismatch)).To(BeTrue())
	})

	It("should report unbound inputs on advance", func() {
		Expect(clock.Advance()).To(Succeed())

		var stale *StaleInputError
		Expect(errors.As(comp.Advance(), &stale)).To(BeTrue())
		Expect(stale.Inputs).To(ConsistOf("infil"))
	})

	Context("when bound", func() {
		BeforeEach(func() {
			Expect(comp.Bind("infil", adapter)).To(Succeed())
			Expect(clock.Advance()).To(Succeed())
		})

		It("should pull the inputs once per step", func() {
			expectPull(1, 2)

			Expect(comp.Advance()).To(Succeed())
			Expect(comp.Advance()).To(Succeed())

			Expect(comp.State()).To(Equal(StateAdvanced))
			Expect(comp.MustInput("infil").Values()).To(Equal([]float64{1, 2}))
		})

		It("should not calculate before advancing", func() {
			var stateErr *InvalidStateError
			Expect(errors.As(comp.Calculate(1), &stateErr)).To(BeTrue())
			Expect(stateErr.State).To(Equal(StateBound))
		})

		It("should not calculate twice in a step", func() {
			expectPull(0, 0)
			kernel.EXPECT().Calculate(1.0).Return(nil)

			Expect(comp.Advance()).To(Succeed())
			Expect(comp.Calculate(1)).To(Succeed())

			Expect(errors.Is(comp.Calculate(1), ErrRunState)).To(BeTrue())
		})

		It("should not calculate with inputs of a previous step", func() {
			expectPull(0, 0)
			kernel.EXPECT().Calculate(1.0).Return(nil)
			Expect(comp.Advance()).To(Succeed())
			Expect(comp.Calculate(1)).To(Succeed())
			Expect(clock.Advance()).To(Succeed())

			Expect(errors.Is(comp.Calculate(1), ErrRunState)).To(BeTrue())
		})

		It("should wrap kernel errors", func() {
			expectPull(0, 0)
			kernelErr := errors.New("negative storage")
			kernel.EXPECT().Calculate(1.0).Return(kernelErr)

			Expect(comp.Advance()).To(Succeed())

			Expect(errors.Is(comp.Calculate(1), kernelErr)).To(BeTrue())
		})

		It("should check the ledger after the kernel", func() {
			comp.AttachLedger(BasisUnit, LedgerConfig{Mode: BudgetError})
			expectPull(1, 2)
			kernel.EXPECT().Calculate(1.0).DoAndReturn(func(float64) error {
				comp.Buffer("ssres_flow").CopyFrom([]float64{0.5, 0.5})
				comp.Buffer("soil_moist_change").CopyFrom([]float64{0.5, 1.0})
				return nil
			})

			Expect(comp.Advance()).To(Succeed())
			err := comp.Calculate(1)

			var imb *ImbalanceError
			Expect(errors.As(err, &imb)).To(BeTrue())
			Expect(imb.Location).To(Equal(1))
		})

		It("should write outputs and the budget to the sink", func() {
			sink := NewMockSink(mockCtrl)
			comp.SetSink(sink, "soil_moist")
			comp.AttachLedger(BasisUnit, LedgerConfig{Mode: BudgetError})
			expectPull(0, 0)
			kernel.EXPECT().Calculate(1.0).Return(nil)

			sink.EXPECT().Write("Soilzone", "soil_moist", 0, day(1979, 1, 1),
				[]float64{0, 0})
			sink.EXPECT().Write("Soilzone", gomock.Any(), 0, gomock.Any(),
				gomock.Any()).Times(4)

			Expect(comp.Advance()).To(Succeed())
			Expect(comp.Calculate(1)).To(Succeed())
			Expect(comp.Output()).To(Succeed())
			Expect(comp.State()).To(Equal(StateOutput))
		})

		It("should write a step only once", func() {
			sink := NewMockSink(mockCtrl)
			comp.SetSink(sink, "soil_moist")
			expectPull(0, 0)
			kernel.EXPECT().Calculate(1.0).Return(nil)

			sink.EXPECT().Write("Soilzone", "soil_moist", 0, day(1979, 1, 1),
				[]float64{0, 0}).Times(1)

			outputs := 0
			comp.AcceptHook(HookFunc(func(ctx HookCtx) {
				if ctx.Pos == HookPosAfterOutput {
					outputs++
				}
			}))

			Expect(comp.Advance()).To(Succeed())
			Expect(comp.Calculate(1)).To(Succeed())
			Expect(comp.Output()).To(Succeed())
			Expect(comp.Output()).To(Succeed())

			Expect(outputs).To(Equal(1))
			Expect(comp.State()).To(Equal(StateOutput))
		})

		It("should not output before calculating", func() {
			expectPull(0, 0)
			Expect(comp.Advance()).To(Succeed())

			Expect(errors.Is(comp.Output(), ErrRunState)).To(BeTrue())
		})

		It("should invoke the lifecycle hooks in order", func() {
			var positions []*HookPos
			comp.AcceptHook(HookFunc(func(ctx HookCtx) {
				positions = append(positions, ctx.Pos)
			}))
			expectPull(0, 0)
			kernel.EXPECT().Calculate(1.0).Return(nil)
			adapter.EXPECT().Close().Return(nil)

			Expect(comp.Advance()).To(Succeed())
			Expect(comp.Calculate(1)).To(Succeed())
			Expect(comp.Output()).To(Succeed())
			Expect(comp.Finalize()).To(Succeed())

			Expect(positions).To(Equal([]*HookPos{
				HookPosBeforeAdvance,
				HookPosAfterAdvance,
				HookPosBeforeCalculate,
				HookPosAfterCalculate,
				HookPosAfterOutput,
				HookPosFinalize,
			}))
		})

		It("should reject every call after finalize", func() {
			adapter.EXPECT().Close().Return(nil)

			Expect(comp.Finalize()).To(Succeed())

			Expect(comp.State()).To(Equal(StateFinalized))
			Expect(errors.Is(comp.Advance(), ErrRunState)).To(BeTrue())
			Expect(errors.Is(comp.Calculate(1), ErrRunState)).To(BeTrue())
			Expect(errors.Is(comp.Output(), ErrRunState)).To(BeTrue())
			Expect(errors.Is(comp.Finalize(), ErrRunState)).To(BeTrue())
		})

		It("should report adapter close errors", func() {
			closeErr := errors.New("disk gone")
			adapter.EXPECT().Close().Return(closeErr)

			err := comp.Finalize()

			Expect(errors.Is(err, closeErr)).To(BeTrue())
			Expect(comp.State()).To(Equal(StateFinalized))
		})
	})

	It("should expose output buffers as views", func() {
		comp.Buffer("soil_moist").Set(0, 3)

		v, err := comp.Variable("soil_moist")

		Expect(err).NotTo(HaveOccurred())
		Expect(v.At(0)).To(Equal(3.0))

		_, err = comp.Variable("gwres_flow")
		Expect(errors.Is(err, ErrDataSource)).To(BeTrue())
	})

	It("should describe itself", func() {
		buf := new(bytes.Buffer)

		Expect(comp.Description(buf)).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("Soilzone [Uninitialized]"))
		Expect(buf.String()).To(ContainSubstring("soil_moist_change"))
	})
})
