package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/query"
	"github.com/tabletalk/tabletalk/internal/query/duckdb"
)

func profile(ctx context.Context, engine query.Engine, path string, maxDistinct int) (int64, []Column, error) {
	tables := []query.Table{{Name: TableName, Path: path}}

	described, err := engine.Execute(ctx, query.Request{SQL: "DESCRIBE " + TableName, Tables: tables})
	if err != nil {
		return 0, nil, fmt.Errorf("describe snapshot: %w", err)
	}
	columns := make([]Column, 0, len(described.Rows))
	for _, row := range described.Rows {
		if len(row) < 2 {
			return 0, nil, fmt.Errorf("unexpected describe row %v", row)
		}
		columns = append(columns, Column{Name: fmt.Sprint(row[0]), Type: fmt.Sprint(row[1])})
	}
	if len(columns) == 0 {
		return 0, nil, fmt.Errorf("snapshot has no columns")
	}

	selects := []string{"count(*)"}
	for _, column := range columns {
		quoted := duckdb.QuoteIdent(column.Name)
		selects = append(selects, fmt.Sprintf("count(%s)", quoted), fmt.Sprintf("approx_count_distinct(%s)", quoted))
	}
	counted, err := engine.Execute(ctx, query.Request{
		SQL:    fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), TableName),
		Tables: tables,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("count snapshot: %w", err)
	}
	if len(counted.Rows) != 1 || len(counted.Rows[0]) != len(selects) {
		return 0, nil, fmt.Errorf("unexpected count result shape")
	}
	counts := counted.Rows[0]
	rows, err := toInt64(counts[0])
	if err != nil {
		return 0, nil, fmt.Errorf("row count: %w", err)
	}

	for i := range columns {
		column := &columns[i]
		nonNull, err := toInt64(counts[1+2*i])
		if err != nil {
			return 0, nil, fmt.Errorf("column %q count: %w", column.Name, err)
		}
		approxDistinct, err := toInt64(counts[2+2*i])
		if err != nil {
			return 0, nil, fmt.Errorf("column %q distinct count: %w", column.Name, err)
		}
		column.NonNullCount = nonNull

		if duckdb.IsNumericType(column.Type) {
			column.Kind = KindNumeric
			continue
		}
		column.Kind = KindString
		if !categoricalCandidate(column.Type) {
			continue
		}
		// approx_count_distinct can undercount; the exact check below decides.
		if nonNull == 0 || approxDistinct > int64(2*maxDistinct) {
			continue
		}
		values, err := distinctValues(ctx, engine, tables, column.Name, maxDistinct+1)
		if err != nil {
			return 0, nil, err
		}
		if len(values) <= maxDistinct {
			column.Kind = KindCategorical
			column.Values = values
		}
	}
	return rows, columns, nil
}

func categoricalCandidate(typeName string) bool {
	upper := strings.ToUpper(strings.TrimSpace(typeName))
	return upper == "VARCHAR" || upper == "BOOLEAN" || strings.HasPrefix(upper, "ENUM")
}

func distinctValues(ctx context.Context, engine query.Engine, tables []query.Table, column string, limit int) ([]string, error) {
	quoted := duckdb.QuoteIdent(column)
	result, err := engine.Execute(ctx, query.Request{
		SQL:      fmt.Sprintf("SELECT DISTINCT CAST(%s AS VARCHAR) AS value FROM %s WHERE %s IS NOT NULL ORDER BY 1", quoted, TableName, quoted),
		RowLimit: limit,
		Tables:   tables,
	})
	if err != nil {
		return nil, fmt.Errorf("distinct values for %q: %w", column, err)
	}
	values := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		values = append(values, fmt.Sprint(row[0]))
	}
	return values, nil
}

// Preview returns up to limit rows of the snapshot in file order.
func Preview(ctx context.Context, engine query.Engine, snapshot *Snapshot, limit int) (query.Result, error) {
	if limit <= 0 {
		return query.Result{}, fmt.Errorf("limit must be positive")
	}
	return engine.Execute(ctx, query.Request{
		SQL:      "SELECT * FROM " + TableName,
		RowLimit: limit,
		Tables:   []query.Table{{Name: TableName, Path: snapshot.Path()}},
	})
}
