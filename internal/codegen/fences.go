package codegen

import "strings"

// StripFences removes markdown code fences (with or without a language tag)
// and stray surrounding backticks from model output.
func StripFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		body := strings.TrimPrefix(trimmed, "```")
		// The rest of the opening line is a language tag.
		if newline := strings.IndexByte(body, '\n'); newline >= 0 {
			body = body[newline+1:]
		} else {
			body = ""
		}
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, "`") && strings.HasSuffix(trimmed, "`") {
		return strings.TrimSpace(strings.Trim(trimmed, "`"))
	}
	return trimmed
}
