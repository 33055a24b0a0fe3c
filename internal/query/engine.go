package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// Engine handles DuckDB queries against a local Open Food Facts parquet snapshot
type Engine struct {
	db          *sql.DB
	parquetPath string
	log         *slog.Logger
}

// Ensure Engine implements QueryEngine interface
var _ QueryEngine = (*Engine)(nil)

// NewEngine creates a new query engine
func NewEngine(parquetPath string, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	return &Engine{
		db:          db,
		parquetPath: parquetPath,
		log:         logger,
	}, nil
}

// Close closes the database connection
func (e *Engine) Close() error {
	return e.db.Close()
}

// SearchByBarcode searches for a product by barcode (exact match)
// Columns are read by name so snapshots with extra or missing columns still map
func (e *Engine) SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error) {
	start := time.Now()
	e.log.Debug("SearchByBarcode starting", "barcode", barcode, "source", "parquet")

	query := `
		SELECT *
		FROM read_parquet(?)
		WHERE code = ?
		LIMIT 1`

	rows, err := e.db.QueryContext(ctx, query, e.parquetPath, barcode)
	if err != nil {
		e.log.Error("DuckDB barcode query failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("%w: barcode query failed: %v", types.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: rows error: %v", types.ErrUpstreamUnavailable, err)
		}
		e.log.Debug("No product found for barcode", "barcode", barcode, "duration", time.Since(start))
		return nil, nil
	}

	record, err := scanRecord(rows)
	if err != nil {
		e.log.Error("Row scan failed", "error", err)
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	p := productFromRecord(record)
	if p.Link == "" {
		p.Link = fmt.Sprintf("https://world.openfoodfacts.org/product/%s", p.Code)
	}

	e.log.Info("SearchByBarcode completed", "found", true, "source", "parquet", "duration", time.Since(start))
	return p, nil
}

// TestConnection tests the database connection and parquet file access
func (e *Engine) TestConnection(ctx context.Context) error {
	start := time.Now()
	e.log.Debug("Testing DuckDB connection and parquet file")

	query := `SELECT COUNT(*) FROM read_parquet(?)`
	var count int64

	if err := e.db.QueryRowContext(ctx, query, e.parquetPath).Scan(&count); err != nil {
		e.log.Error("Connection test failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("connection test failed: %w", err)
	}

	e.log.Info("Connection test successful", "total_records", count, "duration", time.Since(start))
	return nil
}

// scanRecord reads the current row into a column name -> value map
func scanRecord(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}

	record := make(map[string]any, len(columns))
	for i, column := range columns {
		record[column] = values[i]
	}
	return record, nil
}
