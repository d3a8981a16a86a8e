package timeseries

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sarchlab/hydrosim/sim"
)

// Directory is a SeriesSource that discovers input files by extension. A
// variable is read from <name>.csv if the file exists, otherwise from the
// first SQLite database of the directory that has it.
type Directory struct {
	dir string
	csv *CSVDir

	once      sync.Once
	databases []*SQLite
	scanErr   error
}

// NewDirectory creates a source over a directory.
func NewDirectory(dir string) *Directory {
	return &Directory{dir: dir, csv: NewCSVDir(dir)}
}

// WithStart aligns the CSV files with the clock's first step.
func (d *Directory) WithStart(t time.Time) *Directory {
	d.csv.WithStart(t)
	return d
}

// Open returns a cursor over the named variable.
func (d *Directory) Open(name string) (sim.Cursor, error) {
	if d.csv.Has(name) {
		return d.csv.Open(name)
	}

	d.once.Do(d.scan)

	if d.scanErr != nil {
		return nil, d.scanErr
	}

	for _, db := range d.databases {
		c, err := db.Open(name)
		if err == nil {
			return c, nil
		}

		var missing *sim.MissingVariableError
		if !errors.As(err, &missing) {
			return nil, err
		}
	}

	return nil, &sim.MissingVariableError{Variable: name, Source: d.dir}
}

// Files lists the input files of the directory.
func (d *Directory) Files() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, errors.Join(err, sim.ErrDataSource)
	}

	var files []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(e.Name())) {
		case CSVExt, SQLiteExt:
			files = append(files, filepath.Join(d.dir, e.Name()))
		}
	}

	sort.Strings(files)

	return files, nil
}

func (d *Directory) scan() {
	files, err := d.Files()
	if err != nil {
		d.scanErr = err
		return
	}

	for _, f := range files {
		if filepath.Ext(f) != SQLiteExt {
			continue
		}

		db, err := NewSQLite(f)
		if err != nil {
			d.scanErr = err
			return
		}

		d.databases = append(d.databases, db)
	}
}

// Close closes the databases opened so far.
func (d *Directory) Close() error {
	var errs []error
	for _, db := range d.databases {
		errs = append(errs, db.Close())
	}

	return errors.Join(errs...)
}
