package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk/tabletalk/internal/query/duckdb"
)

const salesCSV = `Commodity,Year,Value,Note
Honey,2020,12.5,first
Sugar,2020,8,second
Honey,2021,14.25,third
Sugar,2021,,fourth
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildFromCSV(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	dir := t.TempDir()
	loadedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snapshot, err := Build(context.Background(), FileSource{Path: path}, BuildOptions{
		SnapshotDir:            dir,
		CategoricalMaxDistinct: 3,
		Now:                    func() time.Time { return loadedAt },
	})
	require.NoError(t, err)

	assert.Equal(t, "df", snapshot.Table())
	assert.Equal(t, int64(4), snapshot.Rows())
	assert.Equal(t, filepath.Join(dir, "df.parquet"), snapshot.Path())
	assert.Equal(t, loadedAt, snapshot.LoadedAt())
	assert.Len(t, snapshot.Fingerprint(), 64)
	assert.Positive(t, snapshot.SizeBytes())
	assert.Equal(t, "file:"+path, snapshot.Source())

	columns := snapshot.Columns()
	require.Len(t, columns, 4)
	assert.Equal(t, []string{"Commodity", "Year", "Value", "Note"}, []string{columns[0].Name, columns[1].Name, columns[2].Name, columns[3].Name})

	assert.Equal(t, KindCategorical, columns[0].Kind)
	assert.Equal(t, []string{"Honey", "Sugar"}, columns[0].Values)
	assert.Equal(t, KindNumeric, columns[1].Kind)
	assert.Equal(t, KindNumeric, columns[2].Kind)
	assert.Equal(t, int64(3), columns[2].NonNullCount)
	assert.Equal(t, KindString, columns[3].Kind)
	assert.Empty(t, columns[3].Values)

	info, err := os.Stat(snapshot.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging directory should be removed")
}

func TestSnapshotSummaryListsColumns(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	snapshot, err := Build(context.Background(), FileSource{Path: path}, BuildOptions{SnapshotDir: t.TempDir(), CategoricalMaxDistinct: 3})
	require.NoError(t, err)

	summary := snapshot.Summary()
	assert.Contains(t, summary, "Table: df")
	assert.Contains(t, summary, "Rows: 4 entries")
	assert.Contains(t, summary, "total 4 columns")
	assert.Contains(t, summary, "categorical [Honey, Sugar]")
	assert.Contains(t, summary, "Value")
	assert.Contains(t, summary, "3 non-null")
}

func TestSnapshotColumnsReturnsCopy(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	snapshot, err := Build(context.Background(), FileSource{Path: path}, BuildOptions{SnapshotDir: t.TempDir()})
	require.NoError(t, err)

	columns := snapshot.Columns()
	columns[0].Name = "changed"
	columns[0].Values[0] = "changed"

	again := snapshot.Columns()
	assert.Equal(t, "Commodity", again[0].Name)
	assert.Equal(t, "Honey", again[0].Values[0])
}

func TestBuildReplacesExistingSnapshot(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, "a.csv", "x\n1\n")
	second := writeFile(t, "b.csv", "x\n1\n2\n")

	_, err := Build(context.Background(), FileSource{Path: first}, BuildOptions{SnapshotDir: dir})
	require.NoError(t, err)
	snapshot, err := Build(context.Background(), FileSource{Path: second}, BuildOptions{SnapshotDir: dir})
	require.NoError(t, err)
	assert.Equal(t, int64(2), snapshot.Rows())
}

func TestBuildFromNDJSON(t *testing.T) {
	path := writeFile(t, "rows.ndjson", "{\"city\":\"Oslo\",\"temp\":3.5}\n{\"city\":\"Rome\",\"temp\":18}\n")
	snapshot, err := Build(context.Background(), FileSource{Path: path}, BuildOptions{SnapshotDir: t.TempDir()})
	require.NoError(t, err)

	columns := snapshot.Columns()
	require.Len(t, columns, 2)
	assert.Equal(t, "city", columns[0].Name)
	assert.Equal(t, KindNumeric, columns[1].Kind)
}

func TestBuildRejectsUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "sales.xlsx", "binary")
	_, err := Build(context.Background(), FileSource{Path: path}, BuildOptions{SnapshotDir: t.TempDir()})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestBuildRejectsMissingFile(t *testing.T) {
	_, err := Build(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")}, BuildOptions{SnapshotDir: t.TempDir()})
	require.Error(t, err)
}

func TestPreviewHonorsLimit(t *testing.T) {
	path := writeFile(t, "sales.csv", salesCSV)
	snapshot, err := Build(context.Background(), FileSource{Path: path}, BuildOptions{SnapshotDir: t.TempDir()})
	require.NoError(t, err)

	result, err := Preview(context.Background(), duckdb.NewEngine(duckdb.Settings{}), snapshot, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Commodity", "Year", "Value", "Note"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Honey", result.Rows[0][0])

	_, err = Preview(context.Background(), duckdb.NewEngine(duckdb.Settings{}), snapshot, 0)
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"a.csv":       FormatCSV,
		"a.TSV":       FormatTSV,
		"a.parquet":   FormatParquet,
		"a.json":      FormatJSON,
		"dir/a.jsonl": FormatNDJSON,
	}
	for name, want := range cases {
		got, err := DetectFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := DetectFormat("noext")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
