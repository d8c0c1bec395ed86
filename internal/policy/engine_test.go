package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	return engine
}

func allowedInput() Input {
	return Input{
		Dataset:        "df",
		StatementCount: 1,
		NodeTypes:      []string{"SELECT_NODE"},
		Functions:      []string{"count_star", "json_object", "list", "string_agg", "sum", "||", "~~"},
		TableFunctions: []string{},
		Tables:         []Table{{Name: "df"}, {Name: "totals"}},
		CTEs:           []string{"totals"},
	}
}

func TestEngineAllowsPureSelect(t *testing.T) {
	violations, err := newDefaultEngine(t).Violations(context.Background(), allowedInput())
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestEngineDeniesCapabilities(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		want   string
	}{
		{"multiple statements", func(in *Input) { in.StatementCount = 2 }, "expected exactly one statement, got 2"},
		{"foreign table", func(in *Input) { in.Tables = append(in.Tables, Table{Name: "pg_settings"}) }, `table "pg_settings" is not available; query df`},
		{"schema qualified", func(in *Input) { in.Tables = []Table{{Schema: "information_schema", Name: "df"}} }, `table "df" must not be schema qualified`},
		{"catalog qualified", func(in *Input) { in.Tables = []Table{{Catalog: "other", Name: "df"}} }, `table "df" must not be catalog qualified`},
		{"file read", func(in *Input) { in.TableFunctions = []string{"read_csv"} }, `table function "read_csv" is not allowed`},
		{"nondeterministic", func(in *Input) { in.Functions = append(in.Functions, "random") }, `function "random" is not allowed`},
		{"environment", func(in *Input) { in.Functions = append(in.Functions, "getenv") }, `function "getenv" is not allowed`},
		{"dynamic query", func(in *Input) { in.Functions = append(in.Functions, "query_table") }, `function "query_table" is not allowed`},
	}
	engine := newDefaultEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := allowedInput()
			tt.mutate(&input)
			violations, err := engine.Violations(context.Background(), input)
			require.NoError(t, err)
			assert.Contains(t, violations, tt.want)
		})
	}
}

func TestEngineAllowsSeriesTableFunctions(t *testing.T) {
	input := allowedInput()
	input.TableFunctions = []string{"generate_series", "range", "unnest"}
	input.Functions = append(input.Functions, "generate_series", "range", "unnest")
	violations, err := newDefaultEngine(t).Violations(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestEngineViolationsAreSorted(t *testing.T) {
	input := allowedInput()
	input.Functions = append(input.Functions, "uuid", "now")
	violations, err := newDefaultEngine(t).Violations(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{`function "now" is not allowed`, `function "uuid" is not allowed`}, violations)
}

func TestLoadPolicy(t *testing.T) {
	content, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy, content)

	path := filepath.Join(t.TempDir(), "custom.rego")
	custom := "package tabletalk.capabilities\n\ndeny contains \"closed\" if true\n"
	require.NoError(t, os.WriteFile(path, []byte(custom), 0o600))
	content, err = LoadPolicy(path)
	require.NoError(t, err)

	engine, err := NewEngine(context.Background(), content)
	require.NoError(t, err)
	violations, err := engine.Violations(context.Background(), allowedInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"closed"}, violations)
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package broken\n\ndeny contains")
	require.Error(t, err)
}
