package datarecording

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// RunInfoTable is the table that describes the run that produced a database.
const RunInfoTable = "run_info"

// Struct runInfo is feed to DataRecorder
type runInfo struct {
	Property string
	Value    string
}

// Records program execution
type execRecorder struct {
	tablename string
	recorder  DataRecorder
	entries   []runInfo
}

const execTimeLayout = "2006-01-02 15:04:05.000000000"

// Start logs the current execution.
func (e *execRecorder) Start(runID string) {
	e.entries = append(e.entries,
		runInfo{"Run ID", runID},
		runInfo{"Start Time", time.Now().Format(execTimeLayout)},
		runInfo{"Command", strings.Join(os.Args, " ")},
	)

	if cwd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, runInfo{"Working Directory", cwd})
	}
}

// Set records an extra property of the run.
func (e *execRecorder) Set(property string, value any) {
	e.entries = append(e.entries, runInfo{property, fmt.Sprint(value)})
}

// End writes the entries along with program exit time.
func (e *execRecorder) End() error {
	e.entries = append(e.entries,
		runInfo{"End Time", time.Now().Format(execTimeLayout)})

	for _, entry := range e.entries {
		if err := e.recorder.InsertData(e.tablename, entry); err != nil {
			return err
		}
	}

	e.entries = nil

	return e.recorder.Flush()
}

func newExecRecorder(recorder DataRecorder) (*execRecorder, error) {
	e := &execRecorder{
		tablename: RunInfoTable,
		recorder:  recorder,
	}

	if err := recorder.CreateTable(e.tablename, runInfo{}); err != nil {
		return nil, err
	}

	return e, nil
}
