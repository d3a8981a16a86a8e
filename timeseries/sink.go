package timeseries

import (
	"sort"
	"sync"
	"time"

	"github.com/sarchlab/hydrosim/sim"
)

// MemorySink is a sim.Sink that keeps everything in memory.
type MemorySink struct {
	mu     sync.Mutex
	series map[string]*memorySeries
	order  []string
	closed bool
}

type memorySeries struct {
	steps   []int
	times   []time.Time
	records [][]float64
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{series: make(map[string]*memorySeries)}
}

func seriesKey(component, variable string) string {
	return component + "." + variable
}

// Write copies the values.
func (s *MemorySink) Write(
	component, variable string,
	step int,
	t time.Time,
	values []float64,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(component, variable)

	ser, ok := s.series[key]
	if !ok {
		ser = &memorySeries{}
		s.series[key] = ser
		s.order = append(s.order, key)
	}

	ser.steps = append(ser.steps, step)
	ser.times = append(ser.times, t)
	ser.records = append(ser.records, append([]float64(nil), values...))

	return nil
}

// Records returns the values written for a variable, one record per write.
func (s *MemorySink) Records(component, variable string) [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[seriesKey(component, variable)]
	if !ok {
		return nil
	}

	return ser.records
}

// Steps returns the steps at which a variable was written.
func (s *MemorySink) Steps(component, variable string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[seriesKey(component, variable)]
	if !ok {
		return nil
	}

	return ser.steps
}

// Keys returns "Component.variable" for every series, sorted.
func (s *MemorySink) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := append([]string(nil), s.order...)
	sort.Strings(keys)

	return keys
}

// Source returns a Memory source with one series per variable, so that the
// output of a run can drive another. Variables written by several
// components are keyed by "Component.variable" only.
func (s *MemorySink) Source() *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := NewMemory()
	count := make(map[string]int)

	for _, key := range s.order {
		_, variable := splitSeriesName(key)
		count[variable]++
	}

	for _, key := range s.order {
		records := s.series[key].records
		m.series[key] = records

		if _, variable := splitSeriesName(key); count[variable] == 1 {
			m.series[variable] = records
		}
	}

	return m
}

// Closed returns true once Close has been called.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Close marks the sink closed. The records stay readable.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

var _ sim.Sink = (*MemorySink)(nil)
