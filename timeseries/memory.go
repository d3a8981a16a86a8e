// Package timeseries provides the sources that feed external inputs to a
// simulation and an in-memory sink.
package timeseries

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/hydrosim/sim"
)

// Memory is a SeriesSource backed by in-memory records.
type Memory struct {
	mu     sync.RWMutex
	name   string
	series map[string][][]float64
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		name:   "memory",
		series: make(map[string][][]float64),
	}
}

// Set stores the records of a variable. Every record must have the same
// length.
func (m *Memory) Set(name string, records [][]float64) error {
	for i, r := range records {
		if len(r) != len(records[0]) {
			return &sim.ShapeMismatchError{
				Variable: fmt.Sprintf("%s[%d]", name, i),
				Want:     len(records[0]),
				Got:      len(r),
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.series[name] = records

	return nil
}

// MustSet is like Set but panics on error.
func (m *Memory) MustSet(name string, records [][]float64) *Memory {
	if err := m.Set(name, records); err != nil {
		panic(err)
	}

	return m
}

// Constant stores nSteps records that all hold the same values.
func (m *Memory) Constant(name string, nSteps int, values ...float64) *Memory {
	records := make([][]float64, nSteps)
	for i := range records {
		records[i] = values
	}

	return m.MustSet(name, records)
}

// Names returns the sorted names of the variables.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.series))
	for n := range m.series {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Open returns a cursor over the records of a variable.
func (m *Memory) Open(name string) (sim.Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, ok := m.series[name]
	if !ok {
		return nil, &sim.MissingVariableError{Variable: name, Source: m.name}
	}

	return newRecordCursor(records), nil
}

// recordCursor gives random access to records held in memory.
type recordCursor struct {
	records [][]float64
	shape   int
}

func newRecordCursor(records [][]float64) *recordCursor {
	c := &recordCursor{records: records}
	if len(records) > 0 {
		c.shape = len(records[0])
	}

	return c
}

func (c *recordCursor) Len() int {
	return len(c.records)
}

func (c *recordCursor) Shape() int {
	return c.shape
}

func (c *recordCursor) ReadStep(i int) ([]float64, error) {
	if i < 0 || i >= len(c.records) {
		return nil, &sim.EndOfSeriesError{Step: i, Len: len(c.records)}
	}

	return c.records[i], nil
}

func (c *recordCursor) ReadSteps(start, count int) ([][]float64, error) {
	if start < 0 || start+count > len(c.records) {
		return nil, &sim.EndOfSeriesError{
			Step: start + count - 1,
			Len:  len(c.records),
		}
	}

	return c.records[start : start+count], nil
}

func (c *recordCursor) Close() error {
	return nil
}
