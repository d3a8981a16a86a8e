// Package monitoring serves the state of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/sarchlab/hydrosim/monitoring/web"
	"github.com/sarchlab/hydrosim/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"
)

// A Pauser can hold a run between two phases while the monitor inspects the
// state of its components.
type Pauser interface {
	Pause()
	Continue()
}

// Monitor can turn a simulation into a server and allows external monitoring
// of the simulation. The monitor never drives the run. It learns about the
// run through hooks and serves snapshots taken under its own locks. Requests
// that walk component internals pause the run while they read.
type Monitor struct {
	pauser          Pauser
	components      []sim.Component
	portNumber      int
	profileDuration time.Duration
	logger          logrus.FieldLogger
	metrics         *Metrics

	clockInfo clockInfo

	statusLock sync.Mutex
	status     nowRsp
	calcStart  map[string]time.Time

	violationsLock sync.Mutex
	violations     []*sim.ImbalanceError

	valuesLock sync.Mutex
	values     map[string]map[string][]float64

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	router   *mux.Router
	server   *http.Server
	listener net.Listener
}

type clockInfo struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	StepSize string    `json:"step_size"`
	NSteps   int       `json:"n_steps"`
}

type nowRsp struct {
	Step   int       `json:"step"`
	Time   time.Time `json:"time"`
	NSteps int       `json:"n_steps"`
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
		logger:          logrus.StandardLogger(),
		metrics:         NewMetrics(""),
		status:          nowRsp{Step: -1},
		calcStart:       make(map[string]time.Time),
		values:          make(map[string]map[string][]float64),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warnf(
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(logger logrus.FieldLogger) *Monitor {
	if logger != nil {
		m.logger = logger
	}

	return m
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileDuration = d
	return m
}

// Metrics returns the Prometheus collectors of the monitor.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// RegisterClock records the time axis of the run.
func (m *Monitor) RegisterClock(c *sim.Clock) {
	m.clockInfo = clockInfo{
		Start:    c.StartTime(),
		End:      c.EndTime(),
		StepSize: c.StepSize().String(),
		NSteps:   c.NSteps(),
	}

	m.statusLock.Lock()
	m.status.NSteps = c.NSteps()
	m.statusLock.Unlock()
}

// RegisterSimulation lets the monitor pause the run while it serializes
// components.
func (m *Monitor) RegisterSimulation(p Pauser) {
	m.pauser = p
}

// RegisterComponent registers a component to be monitored. The monitor hooks
// into the component to time its calculate phase and to collect budget
// violations.
func (m *Monitor) RegisterComponent(c sim.Component) {
	m.components = append(m.components, c)
	c.AcceptHook(m)
}

// Func receives the hooks of components, ledgers and the simulation.
func (m *Monitor) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosBeforeCalculate:
		m.statusLock.Lock()
		m.calcStart[componentName(ctx)] = time.Now()
		m.statusLock.Unlock()
	case sim.HookPosAfterCalculate:
		name := componentName(ctx)

		m.statusLock.Lock()
		start, ok := m.calcStart[name]
		delete(m.calcStart, name)
		m.statusLock.Unlock()

		if ok {
			m.metrics.RecordCalculate(name, time.Since(start))
		}
	case sim.HookPosImbalance:
		v, ok := ctx.Item.(*sim.ImbalanceError)
		if !ok {
			return
		}

		m.violationsLock.Lock()
		m.violations = append(m.violations, v)
		m.violationsLock.Unlock()

		m.metrics.RecordImbalance(v.Component, v.Magnitude)
	case sim.HookPosStepComplete:
		m.statusLock.Lock()
		m.status.Step = ctx.Step
		if t, ok := ctx.Item.(time.Time); ok {
			m.status.Time = t
		}
		m.statusLock.Unlock()

		m.snapshotValues()
		m.metrics.RecordStep(ctx.Step)
	}
}

// snapshotValues copies the outputs of every component. It runs on the
// simulation goroutine, after the output phase, so the buffers are stable.
func (m *Monitor) snapshotValues() {
	m.valuesLock.Lock()
	defer m.valuesLock.Unlock()

	for _, c := range m.components {
		values, ok := m.values[c.Name()]
		if !ok {
			values = make(map[string][]float64)
			m.values[c.Name()] = values
		}

		for _, out := range c.Metadata().Outputs {
			view, err := c.Variable(out)
			if err != nil {
				continue
			}

			dst := values[out]
			if len(dst) != view.Len() {
				dst = make([]float64, view.Len())
				values[out] = dst
			}

			for i := range dst {
				dst[i] = view.At(i)
			}
		}
	}
}

func (m *Monitor) pause() {
	if m.pauser != nil {
		m.pauser.Pause()
	}
}

func (m *Monitor) cont() {
	if m.pauser != nil {
		m.pauser.Continue()
	}
}

func componentName(ctx sim.HookCtx) string {
	if name, ok := ctx.Item.(string); ok {
		return name
	}

	if n, ok := ctx.Domain.(sim.Named); ok {
		return n.Name()
	}

	return ""
}

// Violations returns the budget violations received so far.
func (m *Monitor) Violations() []*sim.ImbalanceError {
	m.violationsLock.Lock()
	defer m.violationsLock.Unlock()

	return append([]*sim.ImbalanceError(nil), m.violations...)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the HTTP handler that serves the monitor.
func (m *Monitor) Handler() http.Handler {
	if m.router != nil {
		return m.router
	}

	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/clock", m.clock)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/variable/{name}/{variable}", m.variableValues)
	r.HandleFunc("/api/budget", m.listViolations)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics", m.metrics.Handler())
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	m.router = r

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() (int, error) {
	addr := fmt.Sprintf("localhost:%d", m.portNumber)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("starting monitor: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := listener.Addr().(*net.TCPAddr).Port

	m.logger.Infof("Monitoring simulation with http://localhost:%d", port)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.WithError(err).Error("monitor server stopped")
		}
	}()

	return port, nil
}

// URL returns the address of the running server, or an empty string if the
// server is not started.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// OpenInBrowser opens the monitor page in the default browser.
func (m *Monitor) OpenInBrowser() error {
	url := m.URL()
	if url == "" {
		return errors.New("monitor server is not started")
	}

	return browser.OpenURL(url)
}

// Shutdown stops the server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	m.statusLock.Lock()
	rsp := m.status
	m.statusLock.Unlock()

	writeJSON(w, rsp)
}

func (m *Monitor) clock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.clockInfo)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	m.pause()
	defer m.cont()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	m.pause()
	defer m.cont()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type variableRsp struct {
	Component string    `json:"component"`
	Variable  string    `json:"variable"`
	Values    []float64 `json:"values"`
}

func (m *Monitor) variableValues(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	component := m.findComponentOr404(w, vars["name"])
	if component == nil {
		return
	}

	variable := vars["variable"]
	if !component.Metadata().HasOutput(variable) {
		http.Error(w, fmt.Sprintf("%s has no output %q",
			component.Name(), variable), http.StatusNotFound)
		return
	}

	m.valuesLock.Lock()
	values := append(make([]float64, 0), m.values[component.Name()][variable]...)
	m.valuesLock.Unlock()

	writeJSON(w, variableRsp{
		Component: component.Name(),
		Variable:  variable,
		Values:    values,
	})
}

type violationRsp struct {
	Component string    `json:"component"`
	Step      int       `json:"step"`
	Time      time.Time `json:"time"`
	Location  int       `json:"location"`
	Magnitude float64   `json:"magnitude"`
	Tolerance float64   `json:"tolerance"`
}

func (m *Monitor) listViolations(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("component")

	rsp := make([]violationRsp, 0)

	for _, v := range m.Violations() {
		if filter != "" && v.Component != filter {
			continue
		}

		rsp = append(rsp, violationRsp{
			Component: v.Component,
			Step:      v.Step,
			Time:      v.Time,
			Location:  v.Location,
			Magnitude: v.Magnitude,
			Tolerance: v.Tolerance,
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Component {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Component not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressBarSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
