package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/hydrosim/config"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/sarchlab/hydrosim/timeseries"
	"github.com/sirupsen/logrus/hooks/test"
	"gopkg.in/yaml.v3"
)

const runFile = `
name: two-hru
start: 1979-10-01
end: 1979-10-10
components:
  - {name: Canopy, kind: canopy}
  - {name: Snow, kind: snow}
  - {name: Runoff, kind: runoff, parameters: {carea_frac: [0.2, 0.4]}}
  - {name: SoilZone, kind: soilzone}
  - {name: Groundwater, kind: groundwater}
  - {name: Channel, kind: channel}
parameter_file: params.yaml
parameters:
  covden: 0.5
discretization:
  nhru: 2
  nsegment: 1
  hru_area: [100, 200]
  hru_segment: [1, 1]
  tosegment: [0]
input:
  dir: forcing
  batch_size: 4
budget:
  summary: {type: sqlite, path: out/budget, period: water_year}
output:
  path: out/run
`

const paramFile = `
covden: 0.9
intcp_cap: 0.05
ddf: 0.08
tmelt: 0
carea_frac: 0.9
soil_moist_max: 3
soil2gw_max: 0.2
soil_moist_init: 1
gwflow_coef: 0.05
gwres_init: 2
seg_k: 0.5
`

func write(path, content string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
}

func writeForcing(dir string, start time.Time, n int) {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}

	constant := func(a, b float64) [][]float64 {
		r := make([][]float64, n)
		for i := range r {
			r[i] = []float64{a, b}
		}

		return r
	}

	series := map[string][][]float64{
		"hru_rain": constant(0.2, 0.1),
		"hru_snow": constant(0, 0.05),
		"potet":    constant(0.05, 0.02),
		"tavgc":    constant(8, -2),
	}

	Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

	for name, records := range series {
		f, err := os.Create(filepath.Join(dir, name+timeseries.CSVExt))
		Expect(err).NotTo(HaveOccurred())
		Expect(timeseries.WriteCSV(f, name, times, records)).To(Succeed())
		Expect(f.Close()).To(Succeed())
	}
}

func setenv(name, value string) {
	Expect(os.Setenv(name, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, name)
}

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		write(filepath.Join(dir, "run.yaml"), runFile)
		write(filepath.Join(dir, "params.yaml"), paramFile)
	})

	It("should load a run file", func() {
		cfg, err := config.Load(filepath.Join(dir, "run.yaml"))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Name).To(Equal("two-hru"))
		Expect(cfg.Components).To(HaveLen(6))
		Expect(cfg.Path("forcing")).To(Equal(filepath.Join(dir, "forcing")))

		clock, err := cfg.Clock()
		Expect(err).NotTo(HaveOccurred())
		Expect(clock.NSteps()).To(Equal(10))
		Expect(clock.StepSize()).To(Equal(24 * time.Hour))
	})

	It("should prefer inline parameters to the parameter file", func() {
		cfg, err := config.Load(filepath.Join(dir, "run.yaml"))
		Expect(err).NotTo(HaveOccurred())

		params, err := cfg.SharedParameters()
		Expect(err).NotTo(HaveOccurred())

		covden, ok := params.Get("covden")
		Expect(ok).To(BeTrue())
		Expect(covden.Scalar()).To(Equal(0.5))

		ddf, ok := params.Get("ddf")
		Expect(ok).To(BeTrue())
		Expect(ddf.Scalar()).To(Equal(0.08))
	})

	It("should build and run the model", func() {
		writeForcing(filepath.Join(dir, "forcing"),
			time.Date(1979, 10, 1, 0, 0, 0, 0, time.UTC), 10)

		cfg, err := config.Load(filepath.Join(dir, "run.yaml"))
		Expect(err).NotTo(HaveOccurred())

		logger, _ := test.NewNullLogger()
		b, m, err := cfg.Builder(logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(BeNil())

		s, err := b.Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Run(context.Background(), 0)).To(Succeed())

		_, err = os.Stat(filepath.Join(dir, "out", "run.sqlite3"))
		Expect(err).NotTo(HaveOccurred())

		Expect(s.BudgetAnalyzer().NumComponents()).To(Equal(6))
		_, err = os.Stat(filepath.Join(dir, "out", "budget.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create a monitor when enabled", func() {
		cfg, err := config.Load(filepath.Join(dir, "run.yaml"))
		Expect(err).NotTo(HaveOccurred())
		cfg.Monitor.Enabled = true
		cfg.Output.Path = ""

		logger, _ := test.NewNullLogger()
		_, m, err := cfg.Builder(logger)

		Expect(err).NotTo(HaveOccurred())
		Expect(m).NotTo(BeNil())
	})

	DescribeTable("should reject invalid run files",
		func(content string) {
			write(filepath.Join(dir, "bad.yaml"), content)

			_, err := config.Load(filepath.Join(dir, "bad.yaml"))

			Expect(errors.Is(err, sim.ErrConstruction)).To(BeTrue())
		},
		Entry("unknown field",
			"start: 1979-10-01\nend: 1979-10-02\nfoo: 1\n"),
		Entry("bad date",
			"start: yesterday\nend: 1979-10-02\n"+
				"components: [{name: Snow, kind: snow}]\n"),
		Entry("end before start",
			"start: 1979-10-02\nend: 1979-10-01\n"+
				"components: [{name: Snow, kind: snow}]\n"),
		Entry("no components",
			"start: 1979-10-01\nend: 1979-10-02\n"),
		Entry("unknown kind",
			"start: 1979-10-01\nend: 1979-10-02\n"+
				"components: [{name: Glacier, kind: glacier}]\n"),
		Entry("bad component name",
			"start: 1979-10-01\nend: 1979-10-02\n"+
				"components: [{name: snow_pack, kind: snow}]\n"),
		Entry("bad budget mode",
			"start: 1979-10-01\nend: 1979-10-02\n"+
				"components: [{name: Snow, kind: snow}]\n"+
				"budget: {mode: loud}\n"),
		Entry("budget summary without a path",
			"start: 1979-10-01\nend: 1979-10-02\n"+
				"components: [{name: Snow, kind: snow}]\n"+
				"budget: {summary: {period: month}}\n"),
		Entry("bad budget summary period",
			"start: 1979-10-01\nend: 1979-10-02\n"+
				"components: [{name: Snow, kind: snow}]\n"+
				"budget: {summary: {path: budget, period: decade}}\n"),
		Entry("bad parameter",
			"start: 1979-10-01\nend: 1979-10-02\n"+
				"components: [{name: Snow, kind: snow}]\n"+
				"parameters: {ddf: {a: 1}}\n"),
	)

	It("should report a missing run file", func() {
		_, err := config.Load(filepath.Join(dir, "missing.yaml"))

		Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
	})
})

var _ = Describe("Parameters", func() {
	It("should read scalars and lists", func() {
		path := filepath.Join(GinkgoT().TempDir(), "p.yaml")
		write(path, "covden: 0.5\nhru_area: [1, 2.5]\n")

		p, err := config.LoadParameters(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(p["covden"].IsScalar()).To(BeTrue())
		Expect(p["covden"].Scalar()).To(Equal(0.5))
		Expect(p["hru_area"].Array()).To(Equal([]float64{1, 2.5}))
	})

	It("should write what it reads", func() {
		in := config.ParamMap{
			"covden":   {Param: sim.Scalar(0.5)},
			"hru_area": {Param: sim.Array(1, 2)},
		}

		data, err := yaml.Marshal(in)
		Expect(err).NotTo(HaveOccurred())

		var out config.ParamMap
		Expect(yaml.Unmarshal(data, &out)).To(Succeed())
		Expect(out.Parameters()).To(Equal(in.Parameters()))
	})

	It("should reject text", func() {
		path := filepath.Join(GinkgoT().TempDir(), "p.yaml")
		write(path, "covden: dense\n")

		_, err := config.LoadParameters(path)

		Expect(errors.Is(err, sim.ErrConstruction)).To(BeTrue())
	})
})

var _ = Describe("Environment", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = &config.Config{
			Start:      "1979-10-01",
			End:        "1979-10-10",
			Components: []config.ComponentConfig{{Name: "Snow", Kind: "snow"}},
			Input:      config.InputConfig{Dir: "forcing", BatchSize: 4},
		}
	})

	It("should keep the config without variables", func() {
		before := *cfg

		Expect(config.ApplyEnv(cfg)).To(Succeed())
		Expect(*cfg).To(Equal(before))
	})

	It("should override the set fields", func() {
		setenv("HYDROSIM_END", "1979-10-05")
		setenv("HYDROSIM_BUDGET_MODE", "warn")
		setenv("HYDROSIM_MONITOR", "true")
		setenv("HYDROSIM_MONITOR_PORT", "8123")

		Expect(config.ApplyEnv(cfg)).To(Succeed())

		Expect(cfg.Start).To(Equal("1979-10-01"))
		Expect(cfg.End).To(Equal("1979-10-05"))
		Expect(cfg.Budget.Mode).To(Equal("warn"))
		Expect(cfg.Monitor.Enabled).To(BeTrue())
		Expect(cfg.Monitor.Port).To(Equal(8123))
		Expect(cfg.Input.BatchSize).To(Equal(4))
	})

	It("should validate the overridden config", func() {
		setenv("HYDROSIM_LOG_LEVEL", "chatty")

		err := config.ApplyEnv(cfg)

		Expect(errors.Is(err, sim.ErrConstruction)).To(BeTrue())
	})

	It("should load .env files without overriding the environment", func() {
		path := filepath.Join(GinkgoT().TempDir(), "test.env")
		write(path, "HYDROSIM_END=1979-10-03\nHYDROSIM_LOG_LEVEL=debug\n")
		setenv("HYDROSIM_LOG_LEVEL", "warn")
		DeferCleanup(os.Unsetenv, "HYDROSIM_END")

		Expect(config.LoadEnv(path)).To(Succeed())
		Expect(config.ApplyEnv(cfg)).To(Succeed())

		Expect(cfg.End).To(Equal("1979-10-03"))
		Expect(cfg.LogLevel).To(Equal("warn"))
	})

	It("should report a missing .env file", func() {
		Expect(config.LoadEnv("/nonexistent/hydrosim.env")).NotTo(Succeed())
	})
})
