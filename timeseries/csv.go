package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/hydrosim/sim"
)

// CSVExt is the extension of the files read by CSVDir.
const CSVExt = ".csv"

var csvTimeLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// CSVDir is a SeriesSource that reads <name>.csv files from a directory.
// The first row is a header. Every following row holds the time of the
// step in the first column and one value per spatial unit in the others.
type CSVDir struct {
	dir   string
	start time.Time
}

// NewCSVDir creates a source over a directory.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{dir: dir}
}

// WithStart drops the rows before t, so that the first record is the one of
// the clock's first step.
func (d *CSVDir) WithStart(t time.Time) *CSVDir {
	d.start = t
	return d
}

// Dir returns the directory.
func (d *CSVDir) Dir() string {
	return d.dir
}

// Has returns true if the directory has a file for the variable.
func (d *CSVDir) Has(name string) bool {
	_, err := os.Stat(d.path(name))
	return err == nil
}

func (d *CSVDir) path(name string) string {
	return filepath.Join(d.dir, name+CSVExt)
}

// Open reads the whole file of the variable.
func (d *CSVDir) Open(name string) (sim.Cursor, error) {
	f, err := os.Open(d.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &sim.MissingVariableError{Variable: name, Source: d.dir}
	}

	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, errors.Join(err,
			sim.ErrDataSource))
	}
	defer f.Close()

	times, records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.path(name), err)
	}

	first := 0
	if !d.start.IsZero() {
		for first < len(times) && times[first].Before(d.start) {
			first++
		}
	}

	return &CSVCursor{
		recordCursor: newRecordCursor(records[first:]),
		times:        times[first:],
	}, nil
}

// CSVCursor is a cursor over the records of a CSV file.
type CSVCursor struct {
	*recordCursor
	times []time.Time
}

// Times returns the time of every record.
func (c *CSVCursor) Times() []time.Time {
	return c.times
}

// ReadCSV parses a series in CSV format.
func ReadCSV(r io.Reader) ([]time.Time, [][]float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, nil, csvError(fmt.Errorf("reading header: %w", err))
	}

	if len(header) < 2 {
		return nil, nil, csvError(fmt.Errorf(
			"header has %d columns, at least 2 required", len(header)))
	}

	var (
		times   []time.Time
		records [][]float64
	)

	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, nil, csvError(err)
		}

		t, err := parseCSVTime(row[0])
		if err != nil {
			return nil, nil, csvError(fmt.Errorf("line %d: %w", line, err))
		}

		values := make([]float64, len(row)-1)
		for i, cell := range row[1:] {
			values[i], err = strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, nil, csvError(fmt.Errorf("line %d column %d: %w",
					line, i+2, err))
			}
		}

		if len(times) > 0 && !t.After(times[len(times)-1]) {
			return nil, nil, csvError(fmt.Errorf(
				"line %d: time %s is not after the previous row", line, row[0]))
		}

		times = append(times, t)
		records = append(records, values)
	}

	return times, records, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func csvError(err error) error {
	return errors.Join(err, sim.ErrDataSource)
}

// WriteCSV writes records in the format read by ReadCSV.
func WriteCSV(w io.Writer, name string, times []time.Time, records [][]float64) error {
	writer := csv.NewWriter(w)

	if len(records) > 0 {
		header := []string{"time"}
		for i := range records[0] {
			header = append(header, fmt.Sprintf("%s_%d", name, i))
		}

		if err := writer.Write(header); err != nil {
			return err
		}
	}

	for i, r := range records {
		row := []string{formatCSVTime(times[i])}
		for _, v := range r {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}

		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}

func formatCSVTime(t time.Time) string {
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(time.DateOnly)
	}

	return t.Format(time.RFC3339)
}
