package dataset

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// TableName is the name every program uses for the dataset.
const TableName = "df"

type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindString      Kind = "string"
	KindCategorical Kind = "categorical"
)

type Column struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Kind         Kind     `json:"kind"`
	NonNullCount int64    `json:"non_null_count"`
	Values       []string `json:"values,omitempty"`
}

// Snapshot is the immutable dataset loaded at startup. The parquet file it
// points to is read-only; executions copy it into private tables.
type Snapshot struct {
	path        string
	source      string
	rows        int64
	sizeBytes   int64
	fingerprint string
	columns     []Column
	loadedAt    time.Time
}

func (s *Snapshot) Table() string       { return TableName }
func (s *Snapshot) Path() string        { return s.path }
func (s *Snapshot) Source() string      { return s.source }
func (s *Snapshot) Rows() int64         { return s.rows }
func (s *Snapshot) SizeBytes() int64    { return s.sizeBytes }
func (s *Snapshot) Fingerprint() string { return s.fingerprint }
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) Columns() []Column {
	out := make([]Column, len(s.columns))
	for i, column := range s.columns {
		out[i] = column
		out[i].Values = append([]string(nil), column.Values...)
	}
	return out
}

// Summary renders the schema summary embedded in prompts.
func (s *Snapshot) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", TableName)
	fmt.Fprintf(&b, "Rows: %d entries\n", s.rows)
	fmt.Fprintf(&b, "Data columns (total %d columns):\n", len(s.columns))

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, " #\tColumn\tNon-Null Count\tType\tKind")
	fmt.Fprintln(w, "---\t------\t--------------\t----\t----")
	for i, column := range s.columns {
		kind := string(column.Kind)
		if column.Kind == KindCategorical && len(column.Values) > 0 {
			kind = fmt.Sprintf("%s [%s]", kind, strings.Join(column.Values, ", "))
		}
		fmt.Fprintf(w, " %d\t%s\t%d non-null\t%s\t%s\n", i, column.Name, column.NonNullCount, column.Type, kind)
	}
	_ = w.Flush()
	return b.String()
}
