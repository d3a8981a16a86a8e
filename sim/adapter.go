package sim

import (
	"fmt"
)

// An Adapter gives a component pull access to one of its inputs. The adapter
// is synchronized with the clock: after Advance, Current returns the value of
// the clock's current step.
type Adapter interface {
	// Variable returns the name of the variable the adapter reads.
	Variable() string

	// Len returns the number of values of every step.
	Len() int

	// Advance synchronizes the adapter with the clock. Calling it twice in
	// the same step has no effect.
	Advance() error

	// Current returns the values of the current step. The returned view must
	// be treated as read-only and only stays valid for the current step.
	Current() (View, error)

	// Close releases what the adapter holds.
	Close() error
}

func adapterNotStarted(variable string) error {
	return fmt.Errorf("adapter for %q advanced before the clock started: %w",
		variable, ErrRunState)
}

// LiveAdapter reads the output buffer of another component. Reads are always
// live: the view shares memory with the producer's buffer.
type LiveAdapter struct {
	clock    StepTeller
	variable string
	view     View
	index    int
}

// NewLiveAdapter creates an adapter over a producer's output view.
func NewLiveAdapter(clock StepTeller, variable string, view View) *LiveAdapter {
	return &LiveAdapter{
		clock:    clock,
		variable: variable,
		view:     view,
		index:    -1,
	}
}

// Variable returns the name of the variable.
func (a *LiveAdapter) Variable() string {
	return a.variable
}

// Len returns the number of values of the producer's buffer.
func (a *LiveAdapter) Len() int {
	return a.view.Len()
}

// Advance records the clock step. Live reads need no data movement.
func (a *LiveAdapter) Advance() error {
	step := a.clock.CurrentIndex()
	if step < 0 {
		return adapterNotStarted(a.variable)
	}

	a.index = step

	return nil
}

// Index returns the clock step the adapter was last advanced to.
func (a *LiveAdapter) Index() int {
	return a.index
}

// Current returns the producer's buffer.
func (a *LiveAdapter) Current() (View, error) {
	if a.index < 0 {
		return View{}, &UnboundAdapterError{Variable: a.variable}
	}

	return a.view, nil
}

// Close does nothing. The producer owns the buffer.
func (a *LiveAdapter) Close() error {
	return nil
}

// FileAdapter reads a variable from a series source. It loads the records
// in batches of batchSize steps to bound the memory used on large domains.
type FileAdapter struct {
	clock     StepTeller
	variable  string
	cursor    Cursor
	batchSize int

	batch      [][]float64
	batchStart int
	loads      int

	index   int
	current View
}

// NewFileAdapter opens the named series in the source. A batchSize of zero
// or less loads the whole series at the first advance.
func NewFileAdapter(
	clock StepTeller,
	source SeriesSource,
	variable string,
	batchSize int,
) (*FileAdapter, error) {
	cursor, err := source.Open(variable)
	if err != nil {
		return nil, err
	}

	a := &FileAdapter{
		clock:     clock,
		variable:  variable,
		cursor:    cursor,
		batchSize: batchSize,
		index:     -1,
	}

	return a, nil
}

// Variable returns the name of the variable.
func (a *FileAdapter) Variable() string {
	return a.variable
}

// Len returns the number of values in every record.
func (a *FileAdapter) Len() int {
	return a.cursor.Shape()
}

// NumRecords returns the number of records in the series.
func (a *FileAdapter) NumRecords() int {
	return a.cursor.Len()
}

// NumLoads returns how many times a batch has been read from the cursor.
func (a *FileAdapter) NumLoads() int {
	return a.loads
}

// Advance moves the cursor to the clock's current step, loading the next
// batch if needed.
func (a *FileAdapter) Advance() error {
	step := a.clock.CurrentIndex()
	if step < 0 {
		return adapterNotStarted(a.variable)
	}

	if step == a.index {
		return nil
	}

	if step >= a.cursor.Len() {
		return &EndOfSeriesError{
			Variable: a.variable,
			Step:     step,
			Len:      a.cursor.Len(),
		}
	}

	if !a.inBatch(step) {
		if err := a.load(step); err != nil {
			return err
		}
	}

	record := a.batch[step-a.batchStart]
	if len(record) != a.cursor.Shape() {
		return &ShapeMismatchError{
			Variable: a.variable,
			Want:     a.cursor.Shape(),
			Got:      len(record),
		}
	}

	a.current = ViewOf(record)
	a.index = step

	return nil
}

// Current returns the record of the current step.
func (a *FileAdapter) Current() (View, error) {
	if a.index < 0 {
		return View{}, &UnboundAdapterError{Variable: a.variable}
	}

	return a.current, nil
}

// Close closes the underlying cursor.
func (a *FileAdapter) Close() error {
	a.batch = nil
	return a.cursor.Close()
}

func (a *FileAdapter) inBatch(step int) bool {
	return a.batch != nil &&
		step >= a.batchStart &&
		step < a.batchStart+len(a.batch)
}

func (a *FileAdapter) load(start int) error {
	count := a.cursor.Len() - start
	if a.batchSize > 0 && a.batchSize < count {
		count = a.batchSize
	}

	var (
		records [][]float64
		err     error
	)

	if br, ok := a.cursor.(BatchReader); ok {
		records, err = br.ReadSteps(start, count)
	} else {
		records, err = a.readOneByOne(start, count)
	}

	if err != nil {
		return fmt.Errorf("loading %q steps [%d, %d): %w",
			a.variable, start, start+count, err)
	}

	if len(records) != count {
		return &EndOfSeriesError{
			Variable: a.variable,
			Step:     start + len(records),
			Len:      start + len(records),
		}
	}

	a.batch = records
	a.batchStart = start
	a.loads++

	return nil
}

func (a *FileAdapter) readOneByOne(start, count int) ([][]float64, error) {
	records := make([][]float64, 0, count)

	for i := start; i < start+count; i++ {
		record, err := a.cursor.ReadStep(i)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}
