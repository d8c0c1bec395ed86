package query

import (
	"context"
	"time"
)

// Table binds a view name to a local parquet file.
type Table struct {
	Name string
	Path string
}

// Request runs trusted, host-authored SQL. Generated programs never go
// through an Engine; they run in the sandbox.
type Request struct {
	SQL      string
	Args     []any
	RowLimit int
	Tables   []Table
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
