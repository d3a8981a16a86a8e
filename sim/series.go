package sim

import "time"

// A SeriesSource provides time series of per-step arrays keyed by variable
// name, for example a directory of input files.
type SeriesSource interface {
	// Open returns a cursor over the named series. It returns a
	// *MissingVariableError if the source does not have the series.
	Open(name string) (Cursor, error)
}

// A Cursor gives random access to the records of one series. Record i
// belongs to clock step i.
type Cursor interface {
	// Len returns the number of records.
	Len() int

	// Shape returns the number of values in every record.
	Shape() int

	// ReadStep returns the record of step i.
	ReadStep(i int) ([]float64, error)

	// Close releases the resources held by the cursor.
	Close() error
}

// A BatchReader is a Cursor that can read several consecutive records at
// once, which is cheaper than reading them one by one.
type BatchReader interface {
	ReadSteps(start, count int) ([][]float64, error)
}

// A Sink accepts the values that components produce.
type Sink interface {
	// Write records the values of a variable at a step. Implementations must
	// copy values if they keep them.
	Write(
		component, variable string,
		step int,
		t time.Time,
		values []float64,
	) error

	// Close flushes pending writes and releases the sink.
	Close() error
}
