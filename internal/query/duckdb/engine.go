package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/tabletalk/tabletalk/internal/query"
)

const driverName = "duckdb"

type Engine struct {
	settings Settings
}

func NewEngine(settings Settings) *Engine {
	return &Engine{settings: settings}
}

// Open returns a fresh in-memory database configured with settings.
func Open(settings Settings) (*sql.DB, error) {
	db, err := sql.Open(driverName, DSN(settings))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	db, err := Open(e.settings)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for _, table := range request.Tables {
		if _, err := os.Stat(table.Path); err != nil {
			return query.Result{}, fmt.Errorf("table %q file: %w", table.Name, err)
		}
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, QuoteIdent(table.Name), QuoteString(table.Path))
		if _, err := conn.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", table.Name, err)
		}
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := conn.QueryContext(ctx, sqlText, request.Args...)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:      columns,
		Rows:         resultRows,
		ScannedFiles: len(request.Tables),
		Duration:     time.Since(start),
	}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = NormalizeValue(value)
	}
	return normalized
}

// NormalizeValue converts driver values into JSON-friendly Go values.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case goduckdb.Decimal:
		return typed.Float64()
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = NormalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = NormalizeValue(item)
		}
		return out
	case goduckdb.Map:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = NormalizeValue(item)
		}
		return out
	default:
		return typed
	}
}

// IsNumericType reports whether a DuckDB type name is numeric.
func IsNumericType(typeName string) bool {
	upper := strings.ToUpper(strings.TrimSpace(typeName))
	if strings.HasPrefix(upper, "DECIMAL") || strings.HasPrefix(upper, "NUMERIC") {
		return true
	}
	switch upper {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT",
		"FLOAT", "REAL", "DOUBLE":
		return true
	default:
		return false
	}
}
