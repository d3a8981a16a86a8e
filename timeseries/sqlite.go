package timeseries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sarchlab/hydrosim/datarecording"
	"github.com/sarchlab/hydrosim/sim"
)

// SQLiteExt is the extension of the databases read by SQLite.
const SQLiteExt = ".sqlite3"

// SQLite is a SeriesSource that reads the series table written by a
// datarecording.SeriesRecorder, so the output of one run can drive another.
//
// A name is either a variable name or "Component.variable" when several
// components write the same variable.
type SQLite struct {
	filename string
	reader   *datarecording.SeriesReader
}

// NewSQLite opens a database.
func NewSQLite(filename string) (*SQLite, error) {
	reader, err := datarecording.NewSeriesReader(filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename,
			errors.Join(err, sim.ErrDataSource))
	}

	return &SQLite{filename: filename, reader: reader}, nil
}

// Filename returns the database file.
func (s *SQLite) Filename() string {
	return s.filename
}

// Names lists the series in the database.
func (s *SQLite) Names() ([]string, error) {
	keys, err := s.reader.Keys(context.Background())
	if err != nil {
		return nil, err
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Component + "." + k.Variable
	}

	return names, nil
}

// Open returns a cursor over a series.
func (s *SQLite) Open(name string) (sim.Cursor, error) {
	component, variable := splitSeriesName(name)

	key, found, err := s.reader.Find(context.Background(), component, variable)
	if err != nil {
		return nil, errors.Join(err, sim.ErrDataSource)
	}

	if !found {
		return nil, &sim.MissingVariableError{Variable: name, Source: s.filename}
	}

	return &sqliteCursor{reader: s.reader, key: key, name: name}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.reader.Close()
}

func splitSeriesName(name string) (component, variable string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", name
	}

	return name[:i], name[i+1:]
}

type sqliteCursor struct {
	reader *datarecording.SeriesReader
	key    datarecording.SeriesKey
	name   string
}

func (c *sqliteCursor) Len() int {
	return c.key.NSteps
}

func (c *sqliteCursor) Shape() int {
	return c.key.NValues
}

func (c *sqliteCursor) ReadStep(i int) ([]float64, error) {
	records, err := c.ReadSteps(i, 1)
	if err != nil {
		return nil, err
	}

	return records[0], nil
}

// ReadSteps reads count steps with one query.
func (c *sqliteCursor) ReadSteps(start, count int) ([][]float64, error) {
	rows, err := c.reader.Rows(context.Background(), c.key, start, count)
	if err != nil {
		return nil, errors.Join(err, sim.ErrDataSource)
	}

	records := make([][]float64, count)
	for i := range records {
		records[i] = make([]float64, 0, c.key.NValues)
	}

	for _, row := range rows {
		i := int(row.Step) - start
		records[i] = append(records[i], row.Value)
	}

	for i, r := range records {
		if len(r) != c.key.NValues {
			return nil, &sim.ShapeMismatchError{
				Variable: fmt.Sprintf("%s[%d]", c.name, start+i),
				Want:     c.key.NValues,
				Got:      len(r),
			}
		}
	}

	return records, nil
}

// Close does nothing. The database is closed with the source.
func (c *sqliteCursor) Close() error {
	return nil
}
