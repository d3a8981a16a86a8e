package analysis

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hydrosim/sim"
	"go.uber.org/mock/gomock"
)

type termMap map[string][]float64

func (m termMap) Term(name string) (sim.View, error) {
	return sim.ViewOf(m[name]), nil
}

type reservoir struct {
	name   string
	ledger *sim.Ledger
}

func (r *reservoir) Name() string {
	return r.name
}

func (r *reservoir) Ledger() *sim.Ledger {
	return r.ledger
}

type plain struct{}

func (plain) Name() string {
	return "Plain"
}

var _ = Describe("BudgetAnalyzer", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *MockBackend
		entries  []BudgetEntry
		clock    *sim.Clock
		terms    termMap
		res      *reservoir
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backend = NewMockBackend(mockCtrl)
		entries = nil

		backend.EXPECT().AddDataEntry(gomock.Any()).
			Do(func(e BudgetEntry) { entries = append(entries, e) }).
			AnyTimes()

		start := time.Date(1980, 9, 29, 0, 0, 0, 0, time.UTC)
		clock = sim.MustNewClock(start, start.AddDate(0, 0, 3), 24*time.Hour)

		terms = termMap{
			"in":  {1, 1},
			"out": {0.5, 0.5},
			"ds":  {0.5, 0.5},
		}

		res = &reservoir{
			name: "Res",
			ledger: sim.NewLedger("Res",
				sim.BudgetTerms{
					Inputs:         []string{"in"},
					Outputs:        []string{"out"},
					StorageChanges: []string{"ds"},
					Unit:           "inches",
				},
				sim.BasisUnit,
				sim.LedgerConfig{Mode: sim.BudgetError},
				terms, clock),
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	runSteps := func(a *BudgetAnalyzer) {
		for clock.Remaining() > 0 {
			Expect(clock.Advance()).To(Succeed())

			res.ledger.Advance()
			Expect(res.ledger.Calculate()).To(Succeed())

			a.Func(sim.HookCtx{
				Pos:  sim.HookPosStepComplete,
				Step: clock.CurrentIndex(),
				Item: clock.CurrentTime(),
			})
		}
	}

	build := func(p Period) *BudgetAnalyzer {
		a, err := MakeBudgetAnalyzerBuilder().
			WithPeriod(p).
			WithBackend(backend).
			Build()
		Expect(err).NotTo(HaveOccurred())

		a.RegisterComponent(res)
		a.RegisterComponent(plain{})

		return a
	}

	It("should only register components with a ledger", func() {
		a := build(PeriodRun)
		Expect(a.NumComponents()).To(Equal(1))
	})

	It("should sum the whole run", func() {
		a := build(PeriodRun)
		backend.EXPECT().Flush().Return(nil)

		runSteps(a)
		Expect(entries).To(BeEmpty())

		Expect(a.Flush()).To(Succeed())

		Expect(entries).To(HaveLen(4))
		Expect(entries[0]).To(Equal(BudgetEntry{
			Start: clock.TimeAt(0),
			End:   clock.TimeAt(3),
			Where: "Res",
			What:  "inputs",
			Basis: "unit",
			Value: 8,
			Unit:  "inches",
		}))
		Expect(entries[1].Value).To(BeNumerically("~", 4))
		Expect(entries[2].What).To(Equal("storage_change"))
		Expect(entries[3].What).To(Equal("balance"))
		Expect(entries[3].Value).To(BeNumerically("~", 0))
	})

	It("should split the summary at the start of a water year", func() {
		a := build(PeriodWaterYear)
		backend.EXPECT().Flush().Return(nil)

		runSteps(a)
		Expect(entries).To(HaveLen(4))
		Expect(entries[0].End).To(Equal(clock.TimeAt(1)))
		Expect(entries[0].Value).To(BeNumerically("~", 4))

		Expect(a.Flush()).To(Succeed())

		Expect(entries).To(HaveLen(8))
		Expect(entries[4].Start).To(Equal(
			time.Date(1980, 10, 1, 0, 0, 0, 0, time.UTC)))
		Expect(entries[4].Value).To(BeNumerically("~", 4))
	})

	It("should split the summary at the start of a month", func() {
		a := build(PeriodMonth)
		backend.EXPECT().Flush().Return(nil)

		runSteps(a)
		Expect(a.Flush()).To(Succeed())

		Expect(entries).To(HaveLen(8))
	})

	It("should ignore other hook positions", func() {
		a := build(PeriodRun)
		backend.EXPECT().Flush().Return(nil)

		a.Func(sim.HookCtx{Pos: sim.HookPosAfterCalculate, Item: time.Now()})

		Expect(a.Flush()).To(Succeed())
		Expect(entries).To(BeEmpty())
	})

	It("should close the backend even if the flush fails", func() {
		a := build(PeriodRun)
		flushErr := errors.New("disk full")
		backend.EXPECT().Flush().Return(flushErr)
		backend.EXPECT().Close().Return(nil)

		Expect(a.Close()).To(MatchError(flushErr))
	})

	It("should reject unknown periods", func() {
		_, err := ParsePeriod("fortnight")
		Expect(err).To(MatchError(sim.ErrConstruction))

		p, err := ParsePeriod("WY")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(PeriodWaterYear))
		Expect(p.String()).To(Equal("water_year"))
	})
})

var _ = Describe("Backends", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	entry := BudgetEntry{
		Start: time.Date(1980, 10, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(1981, 9, 30, 0, 0, 0, 0, time.UTC),
		Where: "Channel",
		What:  "outputs",
		Basis: "global",
		Value: 12.5,
		Unit:  "acre-inches",
	}

	It("should write a CSV file", func() {
		b, err := NewCSVBackend(filepath.Join(dir, "out", "summary"))
		Expect(err).NotTo(HaveOccurred())

		b.AddDataEntry(entry)
		Expect(b.Close()).To(Succeed())

		f, err := os.Open(filepath.Join(dir, "out", "summary.csv"))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		rows, err := csv.NewReader(f).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([][]string{
			{"Start", "End", "Where", "What", "Basis", "Value", "Unit"},
			{"1980-10-01T00:00:00Z", "1981-09-30T00:00:00Z",
				"Channel", "outputs", "global", "12.5", "acre-inches"},
		}))
	})

	It("should write a SQLite table", func() {
		filename := filepath.Join(dir, "summary")

		b, err := NewSQLiteBackend(filename)
		Expect(err).NotTo(HaveOccurred())

		b.AddDataEntry(entry)
		b.AddDataEntry(entry)
		Expect(b.Close()).To(Succeed())

		db, err := sql.Open("sqlite3", filename+".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var (
			n     int
			total float64
		)

		err = db.QueryRow(
			"select count(*), sum(value) from budget_summary where location = ?",
			"Channel").Scan(&n, &total)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
		Expect(total).To(Equal(25.0))
	})

	It("should start a fresh SQLite database", func() {
		filename := filepath.Join(dir, "summary")

		for i := 0; i < 2; i++ {
			b, err := NewSQLiteBackend(filename)
			Expect(err).NotTo(HaveOccurred())

			b.AddDataEntry(entry)
			Expect(b.Close()).To(Succeed())
		}

		db, err := sql.Open("sqlite3", filename+".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var n int
		Expect(db.QueryRow("select count(*) from budget_summary").Scan(&n)).
			To(Succeed())
		Expect(n).To(Equal(1))
	})
})
