package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/parquet-go/parquet-go"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

type SQLConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// OpenSQL opens and pings a relational dataset source.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dataset dsn is required")
	}
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open dataset db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping dataset db: %w", err)
	}
	return db, nil
}

// SQLSource exports a table or query result to parquet.
type SQLSource struct {
	DB     *sql.DB
	Driver string
	Table  string
	Query  string
}

func (s SQLSource) Describe() string {
	if s.Query != "" {
		return s.Driver + ":query"
	}
	return s.Driver + ":table " + s.Table
}

func (s SQLSource) statement() (string, error) {
	if strings.TrimSpace(s.Query) != "" {
		return s.Query, nil
	}
	if strings.TrimSpace(s.Table) == "" {
		return "", fmt.Errorf("table or query is required")
	}
	parts := strings.Split(s.Table, ".")
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = `"` + strings.ReplaceAll(strings.TrimSpace(part), `"`, `""`) + `"`
	}
	return "SELECT * FROM " + strings.Join(quoted, "."), nil
}

func (s SQLSource) Stage(ctx context.Context, workDir string) (Staged, error) {
	if s.DB == nil {
		return Staged{}, fmt.Errorf("dataset db is required")
	}
	statement, err := s.statement()
	if err != nil {
		return Staged{}, err
	}
	rows, err := s.DB.QueryContext(ctx, statement)
	if err != nil {
		return Staged{}, fmt.Errorf("query dataset: %w", err)
	}
	defer func() { _ = rows.Close() }()

	localPath := filepath.Join(workDir, "source.parquet")
	columns, err := writeRowsParquet(rows, localPath)
	if err != nil {
		return Staged{}, err
	}
	return Staged{Path: localPath, Format: FormatParquet, Columns: columns}, nil
}

type physicalType int

const (
	physicalString physicalType = iota
	physicalInt
	physicalDouble
	physicalBool
	physicalTimestamp
)

func physicalFromDatabaseType(name string) (physicalType, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case upper == "":
		return physicalString, false
	case strings.Contains(upper, "INT") || upper == "SERIAL" || upper == "BIGSERIAL":
		return physicalInt, true
	case strings.Contains(upper, "FLOAT"), strings.Contains(upper, "DOUBLE"), strings.Contains(upper, "REAL"),
		strings.Contains(upper, "NUMERIC"), strings.Contains(upper, "DECIMAL"), upper == "MONEY":
		return physicalDouble, true
	case strings.HasPrefix(upper, "BOOL"):
		return physicalBool, true
	case strings.Contains(upper, "TIMESTAMP"), strings.Contains(upper, "DATE"):
		return physicalTimestamp, true
	default:
		return physicalString, true
	}
}

func physicalFromValue(value any) physicalType {
	switch value.(type) {
	case int64, int32, int16, int8, int:
		return physicalInt
	case float64, float32:
		return physicalDouble
	case bool:
		return physicalBool
	case time.Time:
		return physicalTimestamp
	default:
		return physicalString
	}
}

func (p physicalType) node() parquet.Node {
	switch p {
	case physicalInt:
		return parquet.Int(64)
	case physicalDouble:
		return parquet.Leaf(parquet.DoubleType)
	case physicalBool:
		return parquet.Leaf(parquet.BooleanType)
	case physicalTimestamp:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

// writeRowsParquet drains rows into a parquet file. Column types come from
// the driver type names, falling back to the first non-null value.
func writeRowsParquet(rows *sql.Rows, path string) ([]string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dataset columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset query returned no columns")
	}
	seen := map[string]struct{}{}
	for _, column := range columns {
		if _, ok := seen[column]; ok {
			return nil, fmt.Errorf("dataset query returned duplicate column %q", column)
		}
		seen[column] = struct{}{}
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("dataset column types: %w", err)
	}

	types := make([]physicalType, len(columns))
	known := make([]bool, len(columns))
	for i, columnType := range columnTypes {
		types[i], known[i] = physicalFromDatabaseType(columnType.DatabaseTypeName())
	}

	var buffered [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		for i, value := range values {
			if !known[i] && value != nil {
				types[i], known[i] = physicalFromValue(value), true
			}
		}
		buffered = append(buffered, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}

	group := parquet.Group{}
	for i, column := range columns {
		group[column] = parquet.Optional(types[i].node())
	}
	schema := parquet.NewSchema(TableName, group)
	indexes := make([]int, len(columns))
	for i, column := range columns {
		leaf, ok := schema.Lookup(column)
		if !ok {
			return nil, fmt.Errorf("parquet schema is missing column %q", column)
		}
		indexes[i] = leaf.ColumnIndex
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewWriter(file, schema)
	batch := make([]parquet.Row, 0, 1024)
	for _, values := range buffered {
		row := make(parquet.Row, len(columns))
		for i, value := range values {
			converted, err := parquetValue(types[i], value)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", columns[i], err)
			}
			row[indexes[i]] = converted.Level(0, definitionLevel(value), indexes[i])
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if _, err := writer.WriteRows(batch); err != nil {
				return nil, fmt.Errorf("write parquet rows: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := writer.WriteRows(batch); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close parquet file: %w", err)
	}
	return columns, nil
}

func definitionLevel(value any) int {
	if value == nil {
		return 0
	}
	return 1
}

func parquetValue(kind physicalType, value any) (parquet.Value, error) {
	if value == nil {
		return parquet.Value{}, nil
	}
	switch kind {
	case physicalInt:
		n, err := toInt64(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(n), nil
	case physicalDouble:
		f, err := toFloat64(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.DoubleValue(f), nil
	case physicalBool:
		b, err := toBool(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.BooleanValue(b), nil
	case physicalTimestamp:
		t, err := toTime(value)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(t.UnixMicro()), nil
	default:
		return parquet.ByteArrayValue([]byte(toText(value))), nil
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to double", value)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", "2006-01-02"}

func toTime(value any) (time.Time, error) {
	var text string
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", value)
	}
	text = strings.TrimSpace(text)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", text)
}

func toText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
