package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Table is a base table reference found in a parsed program.
type Table struct {
	Catalog string `json:"catalog"`
	Schema  string `json:"schema"`
	Name    string `json:"name"`
}

// Input is the structural summary of a program evaluated by the policy.
// Names are lower-cased and deduplicated.
type Input struct {
	Dataset        string   `json:"dataset"`
	StatementCount int      `json:"statement_count"`
	NodeTypes      []string `json:"node_types"`
	Functions      []string `json:"functions"`
	TableFunctions []string `json:"table_functions"`
	Tables         []Table  `json:"tables"`
	CTEs           []string `json:"ctes"`
}

// ParseError reports a program the SQL parser rejected.
type ParseError struct {
	Type    string
	Message string
}

func (e *ParseError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + " error: " + e.Message
}

// FromSerializedSQL builds policy input from DuckDB json_serialize_sql output.
func FromSerializedSQL(data []byte, dataset string) (Input, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Input{}, fmt.Errorf("decode serialized sql: %w", err)
	}
	if failed, _ := doc["error"].(bool); failed {
		message, _ := doc["error_message"].(string)
		errorType, _ := doc["error_type"].(string)
		return Input{}, &ParseError{Type: errorType, Message: message}
	}
	statements, _ := doc["statements"].([]any)

	c := newCollector()
	for _, statement := range statements {
		c.walk(statement)
	}
	return Input{
		Dataset:        strings.ToLower(dataset),
		StatementCount: len(statements),
		NodeTypes:      sortedKeys(c.nodeTypes),
		Functions:      sortedKeys(c.functions),
		TableFunctions: sortedKeys(c.tableFunctions),
		Tables:         c.sortedTables(),
		CTEs:           sortedKeys(c.ctes),
	}, nil
}

type collector struct {
	nodeTypes      map[string]struct{}
	functions      map[string]struct{}
	tableFunctions map[string]struct{}
	tables         map[Table]struct{}
	ctes           map[string]struct{}
}

func newCollector() *collector {
	return &collector{
		nodeTypes:      map[string]struct{}{},
		functions:      map[string]struct{}{},
		tableFunctions: map[string]struct{}{},
		tables:         map[Table]struct{}{},
		ctes:           map[string]struct{}{},
	}
}

func (c *collector) walk(node any) {
	switch value := node.(type) {
	case []any:
		for _, item := range value {
			c.walk(item)
		}
	case map[string]any:
		c.visit(value)
		for _, child := range value {
			c.walk(child)
		}
	}
}

func (c *collector) visit(object map[string]any) {
	nodeType, _ := object["type"].(string)
	if strings.HasSuffix(nodeType, "_NODE") {
		c.nodeTypes[nodeType] = struct{}{}
	}
	if name, ok := object["function_name"].(string); ok && name != "" {
		c.functions[strings.ToLower(name)] = struct{}{}
	}
	switch nodeType {
	case "BASE_TABLE":
		name, _ := object["table_name"].(string)
		schema, _ := object["schema_name"].(string)
		catalog, _ := object["catalog_name"].(string)
		c.tables[Table{
			Catalog: strings.ToLower(catalog),
			Schema:  strings.ToLower(schema),
			Name:    strings.ToLower(name),
		}] = struct{}{}
	case "TABLE_FUNCTION":
		if function, ok := object["function"].(map[string]any); ok {
			if name, ok := function["function_name"].(string); ok {
				c.tableFunctions[strings.ToLower(name)] = struct{}{}
			}
		}
	}
	if cteMap, ok := object["cte_map"].(map[string]any); ok {
		entries, _ := cteMap["map"].([]any)
		for _, entry := range entries {
			if pair, ok := entry.(map[string]any); ok {
				if key, ok := pair["key"].(string); ok {
					c.ctes[strings.ToLower(key)] = struct{}{}
				}
			}
		}
	}
}

func (c *collector) sortedTables() []Table {
	out := make([]Table, 0, len(c.tables))
	for table := range c.tables {
		out = append(out, table)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Schema != out[j].Schema {
			return out[i].Schema < out[j].Schema
		}
		return out[i].Catalog < out[j].Catalog
	})
	return out
}

func sortedKeys(values map[string]struct{}) []string {
	out := make([]string, 0, len(values))
	for value := range values {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
