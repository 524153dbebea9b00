package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLBackend executes catalog queries over database/sql with a generic
// column scan, so the executor stays agnostic of each tool's row shape.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend wraps an open connection pool.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Query(ctx context.Context, query string, params []any) (*Result, error) {
	rows, err := b.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("Query: columns: %w", err)
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("Query: scan: %w", err)
		}
		for i, v := range values {
			if raw, ok := v.([]byte); ok {
				values[i] = string(raw)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	return result, nil
}
