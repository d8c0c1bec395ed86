package duckdb

import (
	"net/url"
	"strconv"
	"strings"
)

// Settings are DuckDB configuration options applied when a database opens.
type Settings struct {
	Threads     int
	MemoryLimit string
	// NoExtensions disables extension autoload and autoinstall.
	NoExtensions bool
}

// DSN renders an in-memory DuckDB data source name for settings.
func DSN(settings Settings) string {
	values := url.Values{}
	if settings.Threads > 0 {
		values.Set("threads", strconv.Itoa(settings.Threads))
	}
	if strings.TrimSpace(settings.MemoryLimit) != "" {
		values.Set("memory_limit", strings.TrimSpace(settings.MemoryLimit))
	}
	if settings.NoExtensions {
		values.Set("autoinstall_known_extensions", "false")
		values.Set("autoload_known_extensions", "false")
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
