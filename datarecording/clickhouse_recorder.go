package datarecording

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/fatih/structs"
	"github.com/tebeka/atexit"
)

// ClickHouseRecorder is a DataRecorder that writes into a ClickHouse
// database. Rows are buffered and sent table by table with native batches.
type ClickHouseRecorder struct {
	conn      clickhouse.Conn
	mu        sync.Mutex
	batchSize int

	tables     map[string]*table
	tableOrder []string
	entryCount int
}

// ClickHouseOptions parses a DSN into connection options.
func ClickHouseOptions(dsn string) (*clickhouse.Options, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing ClickHouse DSN: %w", err)
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}

	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 5
	}

	if opts.Settings == nil {
		opts.Settings = clickhouse.Settings{}
	}

	if _, ok := opts.Settings["max_execution_time"]; !ok {
		opts.Settings["max_execution_time"] = 60
	}

	return opts, nil
}

// NewClickHouseRecorder connects to the ClickHouse server of the DSN.
func NewClickHouseRecorder(dsn string, batchSize int) (*ClickHouseRecorder, error) {
	opts, err := ClickHouseOptions(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return NewClickHouseRecorderWithConn(conn, batchSize), nil
}

// NewClickHouseRecorderWithConn creates a recorder over an open connection.
func NewClickHouseRecorderWithConn(
	conn clickhouse.Conn,
	batchSize int,
) *ClickHouseRecorder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	r := &ClickHouseRecorder{
		conn:      conn,
		batchSize: batchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { _ = r.Flush() })

	return r
}

func clickHouseType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool:
		return "Bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64:
		return "Int64"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "UInt64"
	case reflect.Float32, reflect.Float64:
		return "Float64"
	default:
		return "String"
	}
}

// CreateTableSQL returns the DDL of a MergeTree table with the columns of
// the sample entry, ordered by its first column.
func CreateTableSQL(tableName string, sampleEntry any) string {
	fields := structs.Fields(sampleEntry)
	cols := make([]string, 0, len(fields))

	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%s %s",
			f.Name(), clickHouseType(f.Kind())))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree()\n"+
			"ORDER BY %s",
		tableName, strings.Join(cols, ",\n\t"), fields[0].Name())
}

// CreateTable creates a table with a ClickHouse schema derived from the
// sample entry.
func (r *ClickHouseRecorder) CreateTable(tableName string, sampleEntry any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkStructFields(sampleEntry); err != nil {
		return err
	}

	err := r.conn.Exec(context.Background(),
		CreateTableSQL(tableName, sampleEntry))
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	r.tables[tableName] = &table{structType: reflect.TypeOf(sampleEntry)}
	r.tableOrder = append(r.tableOrder, tableName)

	return nil
}

// InsertData buffers a row.
func (r *ClickHouseRecorder) InsertData(tableName string, entry any) error {
	r.mu.Lock()

	t, ok := r.tables[tableName]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("table %s does not exist", tableName)
	}

	t.entries = append(t.entries, entry)
	r.entryCount++
	full := r.entryCount >= r.batchSize

	r.mu.Unlock()

	if full {
		return r.Flush()
	}

	return nil
}

// ListTables returns the names of the tables created.
func (r *ClickHouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.tableOrder...)
}

// Flush sends the buffered rows.
func (r *ClickHouseRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entryCount == 0 {
		return nil
	}

	ctx := context.Background()

	for _, name := range r.tableOrder {
		t := r.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		if err := r.flushTable(ctx, name, t); err != nil {
			return err
		}
	}

	r.entryCount = 0

	return nil
}

func (r *ClickHouseRecorder) flushTable(
	ctx context.Context,
	name string,
	t *table,
) error {
	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+name)
	if err != nil {
		return fmt.Errorf("failed to prepare batch for %s: %w", name, err)
	}

	for _, entry := range t.entries {
		if err := batch.Append(structs.Values(entry)...); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	t.entries = nil

	return nil
}

// Close flushes remaining data and closes the connection
func (r *ClickHouseRecorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}

	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ClickHouse connection: %w", err)
	}

	return nil
}
