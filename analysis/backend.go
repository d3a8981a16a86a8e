package analysis

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

// Backend is the interface that provides the service that can record budget
// summary entries.
type Backend interface {
	AddDataEntry(entry BudgetEntry)
	Flush() error
	Close() error
}

// CSVBackend is a Backend that writes data entries to a CSV file.
type CSVBackend struct {
	file      *os.File
	csvWriter *csv.Writer
}

// NewCSVBackend creates a CSV file named filename.csv and writes the header.
func NewCSVBackend(filename string) (*CSVBackend, error) {
	filename += ".csv"

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	p := &CSVBackend{
		file:      f,
		csvWriter: csv.NewWriter(f),
	}

	header := []string{"Start", "End", "Where", "What", "Basis", "Value", "Unit"}
	if err := p.csvWriter.Write(header); err != nil {
		_ = f.Close()
		return nil, err
	}

	return p, nil
}

// AddDataEntry adds a data entry to the CSV file. Write errors are reported
// by the next Flush.
func (p *CSVBackend) AddDataEntry(entry BudgetEntry) {
	_ = p.csvWriter.Write([]string{
		entry.Start.Format(time.RFC3339),
		entry.End.Format(time.RFC3339),
		entry.Where,
		entry.What,
		entry.Basis,
		fmt.Sprintf("%.10g", entry.Value),
		entry.Unit,
	})
}

// Flush flushes the CSV writer.
func (p *CSVBackend) Flush() error {
	p.csvWriter.Flush()
	return p.csvWriter.Error()
}

// Close flushes and closes the file.
func (p *CSVBackend) Close() error {
	if err := p.Flush(); err != nil {
		_ = p.file.Close()
		return err
	}

	return p.file.Close()
}

// SQLiteBackend is a Backend that writes data entries to the budget_summary
// table of a SQLite database.
type SQLiteBackend struct {
	*sql.DB
	statement *sql.Stmt

	batchSize int
	entries   []BudgetEntry
	err       error
}

// NewSQLiteBackend creates a fresh database named filename.sqlite3.
func NewSQLiteBackend(filename string) (*SQLiteBackend, error) {
	p := &SQLiteBackend{
		batchSize: 50000,
	}

	if err := p.createDatabase(filename + ".sqlite3"); err != nil {
		return nil, err
	}

	if err := p.prepareStatement(); err != nil {
		_ = p.DB.Close()
		return nil, err
	}

	return p, nil
}

// AddDataEntry buffers an entry and writes the buffer once it is full.
func (p *SQLiteBackend) AddDataEntry(entry BudgetEntry) {
	p.entries = append(p.entries, entry)
	if len(p.entries) >= p.batchSize && p.err == nil {
		p.err = p.Flush()
	}
}

// Flush writes the buffered entries in one transaction.
func (p *SQLiteBackend) Flush() error {
	if p.err != nil {
		return p.err
	}

	if len(p.entries) == 0 {
		return nil
	}

	tx, err := p.Begin()
	if err != nil {
		return err
	}

	for _, entry := range p.entries {
		_, err = tx.Stmt(p.statement).Exec(
			entry.Start.Format(time.RFC3339),
			entry.End.Format(time.RFC3339),
			entry.Where,
			entry.What,
			entry.Basis,
			entry.Value,
			entry.Unit,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	p.entries = p.entries[:0]

	return tx.Commit()
}

// Close flushes the entries and closes the database.
func (p *SQLiteBackend) Close() error {
	err := p.Flush()
	_ = p.statement.Close()

	if closeErr := p.DB.Close(); err == nil {
		err = closeErr
	}

	return err
}

func (p *SQLiteBackend) createDatabase(filename string) error {
	if _, err := os.Stat(filename); err == nil {
		if err := os.Remove(filename); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	var err error

	p.DB, err = sql.Open("sqlite3", filename)
	if err != nil {
		return err
	}

	return p.createTable()
}

func (p *SQLiteBackend) createTable() error {
	sqlStmt := `
	create table budget_summary (
		id integer not null primary key,
		start_time text,
		end_time text,
		location text,
		what text,
		basis text,
		value real,
		unit text
	);
	`

	_, err := p.Exec(sqlStmt)

	return err
}

func (p *SQLiteBackend) prepareStatement() error {
	var err error

	sqlStmt := `
	insert into budget_summary(start_time, end_time, location, what, basis, value, unit)
	values(?, ?, ?, ?, ?, ?, ?)
	`

	p.statement, err = p.Prepare(sqlStmt)

	return err
}
