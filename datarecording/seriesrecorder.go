package datarecording

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/hydrosim/sim"
)

// SeriesTable is the table that stores the values written by components.
const SeriesTable = "series"

// SeriesTimeLayout is the layout of the Time column.
const SeriesTimeLayout = time.RFC3339

var errRecorderClosed = errors.New("recorder is closed")

// SeriesRow is one value of one variable at one step and one location.
type SeriesRow struct {
	Component string
	Variable  string
	Step      int64
	Time      string
	Location  int64
	Value     float64
}

// SeriesRecorder is a sim.Sink that stores every value in the series table
// of a DataRecorder. It also describes the run in the run_info table.
type SeriesRecorder struct {
	mu       sync.Mutex
	recorder DataRecorder
	exec     *execRecorder
	runID    string
	rows     int
	closed   bool
}

// NewSeriesRecorder creates a recorder that writes to path.sqlite3.
func NewSeriesRecorder(path string) (*SeriesRecorder, error) {
	return NewSeriesRecorderWithConfig(RecorderConfig{Path: path})
}

// NewSeriesRecorderWithConfig creates a recorder over the configured
// backend.
func NewSeriesRecorderWithConfig(cfg RecorderConfig) (*SeriesRecorder, error) {
	r, err := NewDataRecorderWithConfig(cfg)
	if err != nil {
		return nil, err
	}

	return NewSeriesRecorderWithRecorder(r)
}

// NewSeriesRecorderWithRecorder creates a recorder over an existing backend.
func NewSeriesRecorderWithRecorder(r DataRecorder) (*SeriesRecorder, error) {
	if err := r.CreateTable(SeriesTable, SeriesRow{}); err != nil {
		return nil, err
	}

	exec, err := newExecRecorder(r)
	if err != nil {
		return nil, err
	}

	s := &SeriesRecorder{
		recorder: r,
		exec:     exec,
		runID:    xid.New().String(),
	}
	exec.Start(s.runID)

	return s, nil
}

// RunID returns the unique id of the run.
func (s *SeriesRecorder) RunID() string {
	return s.runID
}

// Filename returns the database file, or an empty string if the backend is
// not a file.
func (s *SeriesRecorder) Filename() string {
	if w, ok := s.recorder.(*sqliteWriter); ok {
		return w.Filename()
	}

	return ""
}

// NumRows returns the number of rows written so far.
func (s *SeriesRecorder) NumRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rows
}

// SetRunProperty records a property of the run in the run_info table.
func (s *SeriesRecorder) SetRunProperty(property string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exec.Set(property, value)
}

// Write stores one row per value.
func (s *SeriesRecorder) Write(
	component, variable string,
	step int,
	t time.Time,
	values []float64,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errRecorderClosed
	}

	ts := t.Format(SeriesTimeLayout)

	for i, v := range values {
		err := s.recorder.InsertData(SeriesTable, SeriesRow{
			Component: component,
			Variable:  variable,
			Step:      int64(step),
			Time:      ts,
			Location:  int64(i),
			Value:     v,
		})
		if err != nil {
			return err
		}
	}

	s.rows += len(values)

	return nil
}

// Flush writes the buffered rows.
func (s *SeriesRecorder) Flush() error {
	return s.recorder.Flush()
}

// Close writes the run information and closes the backend. Closing twice
// does nothing.
func (s *SeriesRecorder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if err := s.exec.End(); err != nil {
		return err
	}

	return s.recorder.Close()
}

var _ sim.Sink = (*SeriesRecorder)(nil)
var _ sim.Flusher = (*SeriesRecorder)(nil)
