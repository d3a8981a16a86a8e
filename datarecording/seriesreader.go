package datarecording

import (
	"context"
	"database/sql"
	"fmt"
)

// SeriesKey identifies a series stored in a database.
type SeriesKey struct {
	Component string
	Variable  string
	NSteps    int
	NValues   int
}

// SeriesReader reads what a SeriesRecorder wrote.
type SeriesReader struct {
	db     *sql.DB
	reader DataReader
}

// NewSeriesReader opens a database written by a SeriesRecorder.
func NewSeriesReader(filename string) (*SeriesReader, error) {
	reader, err := NewReader(filename)
	if err != nil {
		return nil, err
	}

	return newSeriesReader(reader), nil
}

// NewSeriesReaderWithDB creates a reader over an open database.
func NewSeriesReaderWithDB(db *sql.DB) *SeriesReader {
	return newSeriesReader(NewReaderWithDB(db))
}

func newSeriesReader(reader DataReader) *SeriesReader {
	reader.MapTable(SeriesTable, SeriesRow{})
	reader.MapTable(RunInfoTable, runInfo{})

	return &SeriesReader{
		db:     reader.(*sqliteReader).DB,
		reader: reader,
	}
}

// Keys lists the series in the database ordered by component and variable.
func (r *SeriesReader) Keys(ctx context.Context) ([]SeriesKey, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT Component, Variable, MAX(Step) + 1, MAX(Location) + 1 FROM "+
			SeriesTable+" GROUP BY Component, Variable "+
			"ORDER BY Component, Variable")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []SeriesKey

	for rows.Next() {
		var k SeriesKey
		if err := rows.Scan(&k.Component, &k.Variable,
			&k.NSteps, &k.NValues); err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// Find returns the key of a variable. If component is empty, the variable
// must be written by exactly one component.
func (r *SeriesReader) Find(
	ctx context.Context,
	component, variable string,
) (SeriesKey, bool, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return SeriesKey{}, false, err
	}

	var found []SeriesKey

	for _, k := range keys {
		if k.Variable != variable {
			continue
		}

		if component != "" && k.Component != component {
			continue
		}

		found = append(found, k)
	}

	switch len(found) {
	case 0:
		return SeriesKey{}, false, nil
	case 1:
		return found[0], true, nil
	default:
		return SeriesKey{}, false, fmt.Errorf(
			"variable %s is written by %d components, name one of them",
			variable, len(found))
	}
}

// Rows returns the rows of steps [start, start+count) of a series, ordered
// by step and location.
func (r *SeriesReader) Rows(
	ctx context.Context,
	key SeriesKey,
	start, count int,
) ([]*SeriesRow, error) {
	results, _, err := r.reader.Query(ctx, SeriesTable, QueryParams{
		Where: "Component = ? AND Variable = ? AND Step >= ? AND Step < ?",
		Args: []any{
			key.Component, key.Variable, int64(start), int64(start + count),
		},
		OrderBy: "Step, Location",
	})
	if err != nil {
		return nil, err
	}

	rows := make([]*SeriesRow, len(results))
	for i, res := range results {
		rows[i] = res.(*SeriesRow)
	}

	return rows, nil
}

// RunInfo returns the properties of the run that wrote the database.
func (r *SeriesReader) RunInfo(ctx context.Context) (map[string]string, error) {
	results, _, err := r.reader.Query(ctx, RunInfoTable, QueryParams{})
	if err != nil {
		return nil, err
	}

	info := make(map[string]string, len(results))
	for _, res := range results {
		e := res.(*runInfo)
		info[e.Property] = e.Value
	}

	return info, nil
}

// Close closes the database.
func (r *SeriesReader) Close() error {
	return r.reader.Close()
}
