package sim

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.uber.org/mock/gomock"
)

type termMap map[string][]float64

func (m termMap) Term(name string) (View, error) {
	v, ok := m[name]
	if !ok {
		return View{}, &MissingVariableError{Variable: name}
	}

	return ViewOf(v), nil
}

var _ = Describe("Ledger", func() {
	var (
		mockCtrl *gomock.Controller
		clock    *Clock
		terms    termMap
		budget   BudgetTerms
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = MustNewClock(day(1979, 1, 1), day(1979, 1, 10), 24*time.Hour)
		Expect(clock.Advance()).To(Succeed())

		terms = termMap{
			"rain":    {1.0, 2.0},
			"runoff":  {0.4, 0.5},
			"storage": {0.6, 1.5},
		}
		budget = BudgetTerms{
			Inputs:         []string{"rain"},
			Outputs:        []string{"runoff"},
			StorageChanges: []string{"storage"},
			Unit:           "inches",
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pass a balanced step", func() {
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetError}, terms, clock)

		l.Advance()
		Expect(l.Calculate()).To(Succeed())

		in, out, dS := l.Totals()
		Expect(in).To(BeNumerically("~", 3.0, 1e-12))
		Expect(out).To(BeNumerically("~", 0.9, 1e-12))
		Expect(dS).To(BeNumerically("~", 2.1, 1e-12))
		Expect(l.Violations()).To(BeEmpty())
		Expect(l.Tolerance()).To(Equal(DefaultBudgetTolerance))
	})

	It("should fail in error mode with the worst location", func() {
		terms["runoff"][1] += 10 * DefaultBudgetTolerance
		terms["runoff"][0] += 2 * DefaultBudgetTolerance
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetError}, terms, clock)

		l.Advance()
		err := l.Calculate()

		var imb *ImbalanceError
		Expect(errors.As(err, &imb)).To(BeTrue())
		Expect(errors.Is(err, ErrImbalance)).To(BeTrue())
		Expect(imb.Component).To(Equal("Soilzone"))
		Expect(imb.Step).To(Equal(0))
		Expect(imb.Location).To(Equal(1))
		Expect(imb.Magnitude).To(BeNumerically("~", 1e-5, 1e-9))
	})

	It("should log and record in warn mode", func() {
		logger, logs := test.NewNullLogger()
		terms["storage"][0] += 10 * DefaultBudgetTolerance
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetWarn}, terms, clock).
			WithLogger(logger)

		l.Advance()
		Expect(l.Calculate()).To(Succeed())

		Expect(l.Violations()).To(HaveLen(1))
		Expect(l.Violations()[0].Location).To(Equal(0))
		Expect(logs.Entries).To(HaveLen(1))
		Expect(logs.LastEntry().Level).To(Equal(logrus.WarnLevel))
		Expect(logs.LastEntry().Data["component"]).To(Equal("Soilzone"))
	})

	It("should not check when disabled", func() {
		terms["storage"][0] += 1
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetDisabled}, terms, clock)

		l.Advance()

		Expect(l.Calculate()).To(Succeed())
		Expect(l.Violations()).To(BeEmpty())
		in, _, _ := l.Totals()
		Expect(in).To(BeNumerically("~", 3.0, 1e-12))
	})

	It("should check the domain total on a global basis", func() {
		terms["runoff"][0] += 1
		terms["runoff"][1] -= 1
		l := NewLedger("Channel", budget, BasisGlobal,
			LedgerConfig{Mode: BudgetError}, terms, clock)

		l.Advance()

		Expect(l.Calculate()).To(Succeed())
		Expect(l.Balance()).To(HaveLen(1))
	})

	It("should report location -1 on a global basis", func() {
		terms["runoff"][0] += 1
		l := NewLedger("Channel", budget, BasisGlobal,
			LedgerConfig{Mode: BudgetError}, terms, clock)

		l.Advance()
		err := l.Calculate()

		var imb *ImbalanceError
		Expect(errors.As(err, &imb)).To(BeTrue())
		Expect(imb.Location).To(Equal(-1))
	})

	It("should let the configuration force the basis", func() {
		l := NewLedger("Channel", budget, BasisGlobal,
			LedgerConfig{Basis: BasisUnit, ForceBasis: true}, terms, clock)

		Expect(l.Basis()).To(Equal(BasisUnit))
	})

	It("should invoke the imbalance hook", func() {
		hook := NewMockHook(mockCtrl)
		terms["storage"][1] += 1
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetWarn}, terms, clock).
			WithLogger(logrus.New())
		l.AcceptHook(hook)

		hook.EXPECT().Func(gomock.Any()).Do(func(ctx HookCtx) {
			Expect(ctx.Pos).To(Equal(HookPosImbalance))
			Expect(ctx.Item.(*ImbalanceError).Location).To(Equal(1))
		})

		l.Advance()
		Expect(l.Calculate()).To(Succeed())
	})

	It("should read the terms lazily", func() {
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetError}, terms, clock)

		terms["rain"] = []float64{2.0, 2.0}
		terms["storage"] = []float64{1.6, 1.5}

		l.Advance()
		Expect(l.Calculate()).To(Succeed())
	})

	It("should accumulate over steps", func() {
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetError}, terms, clock)

		for i := 0; i < 3; i++ {
			l.Advance()
			Expect(l.Calculate()).To(Succeed())
		}

		in, out, dS := l.Cumulative()
		Expect(in).To(BeNumerically("~", 9.0, 1e-12))
		Expect(out).To(BeNumerically("~", 2.7, 1e-12))
		Expect(dS).To(BeNumerically("~", 6.3, 1e-12))
	})

	It("should write the breakdown to a sink", func() {
		sink := NewMockSink(mockCtrl)
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetError}, terms, clock)
		l.Advance()
		Expect(l.Calculate()).To(Succeed())

		sink.EXPECT().
			Write("Soilzone", "budget_inputs", 0, day(1979, 1, 1),
				[]float64{1.0, 2.0})
		sink.EXPECT().
			Write("Soilzone", "budget_outputs", 0, day(1979, 1, 1),
				gomock.Any())
		sink.EXPECT().
			Write("Soilzone", "budget_storage_changes", 0, day(1979, 1, 1),
				gomock.Any())
		sink.EXPECT().
			Write("Soilzone", "budget_balance", 0, day(1979, 1, 1),
				gomock.Any())

		Expect(l.Output(sink)).To(Succeed())
	})

	It("should fail on a missing term", func() {
		delete(terms, "rain")
		l := NewLedger("Soilzone", budget, BasisUnit,
			LedgerConfig{Mode: BudgetError}, terms, clock)

		l.Advance()

		Expect(errors.Is(l.Calculate(), ErrDataSource)).To(BeTrue())
	})
})

var _ = Describe("BudgetMode", func() {
	DescribeTable("parsing",
		func(s string, want BudgetMode, ok bool) {
			mode, err := ParseBudgetMode(s)
			if !ok {
				Expect(errors.Is(err, ErrConstruction)).To(BeTrue())
				return
			}

			Expect(err).NotTo(HaveOccurred())
			Expect(mode).To(Equal(want))
		},
		Entry("error", "error", BudgetError, true),
		Entry("warn", "Warn", BudgetWarn, true),
		Entry("empty", "", BudgetDisabled, true),
		Entry("none", "none", BudgetDisabled, true),
		Entry("unknown", "loud", BudgetDisabled, false),
	)
})
