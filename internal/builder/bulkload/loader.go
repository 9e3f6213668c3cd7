// Package bulkload stages cache rows in memory and flushes them in
// large chunks, so catalog-scale builds never pay row-at-a-time insert
// costs. On postgres the flush uses the wire-level COPY protocol; other
// dialects fall back to chunked multi-row inserts.
package bulkload

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/veloxcart/catalog-cache/pkg/metrics"
	"gorm.io/gorm"
)

// DefaultChunkSize is how many staged rows trigger a flush.
const DefaultChunkSize = 10000

// Loader buffers rows for one target table.
type Loader struct {
	db        *gorm.DB
	table     string
	columns   []string
	chunkSize int
	metrics   *metrics.CacheMetrics

	rows  [][]any
	total int
}

// New builds a loader for the given table and column order.
func New(db *gorm.DB, table string, columns []string, chunkSize int, m *metrics.CacheMetrics) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if table == "" {
		return nil, fmt.Errorf("table required")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("columns required")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Loader{
		db:        db,
		table:     table,
		columns:   columns,
		chunkSize: chunkSize,
		metrics:   m,
		rows:      make([][]any, 0, chunkSize),
	}, nil
}

// Append stages one row and flushes when the chunk is full. The row
// must match the loader's column order.
func (l *Loader) Append(ctx context.Context, row ...any) error {
	if len(row) != len(l.columns) {
		return fmt.Errorf("row has %d values, table %s expects %d", len(row), l.table, len(l.columns))
	}
	l.rows = append(l.rows, row)
	if len(l.rows) >= l.chunkSize {
		return l.Flush(ctx)
	}
	return nil
}

// Flush writes all staged rows and clears the buffer.
func (l *Loader) Flush(ctx context.Context) error {
	if len(l.rows) == 0 {
		return nil
	}

	var err error
	if l.db.Dialector.Name() == "postgres" {
		err = l.flushCopy(ctx)
	} else {
		err = l.flushInsert(ctx)
	}
	if err != nil {
		return fmt.Errorf("flushing %d rows into %s: %w", len(l.rows), l.table, err)
	}

	l.total += len(l.rows)
	l.metrics.AddRowsLoaded(l.table, len(l.rows))
	l.rows = l.rows[:0]
	return nil
}

// Total returns how many rows have been flushed so far.
func (l *Loader) Total() int {
	return l.total
}

// flushCopy streams the staged chunk through COPY FROM on the raw pgx
// connection underneath gorm's pool.
func (l *Loader) flushCopy(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql db handle: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		stdlibConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			// pooled wrappers hide the pgx conn; insert instead
			return l.flushInsert(ctx)
		}
		_, copyErr := stdlibConn.Conn().CopyFrom(
			ctx,
			pgx.Identifier{l.table},
			l.columns,
			pgx.CopyFromRows(l.rows),
		)
		return copyErr
	})
}

func (l *Loader) flushInsert(ctx context.Context) error {
	batch := make([]map[string]any, 0, len(l.rows))
	for _, row := range l.rows {
		record := make(map[string]any, len(l.columns))
		for i, column := range l.columns {
			record[column] = row[i]
		}
		batch = append(batch, record)
	}
	return l.db.WithContext(ctx).Table(l.table).Create(batch).Error
}
