package prompt

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Prompt is the rendered request for the program generator.
type Prompt struct {
	Version string
	System  string
	Text    string
}

// Builder renders prompts from an instruction set. It holds no per-request
// state and is safe for concurrent use.
type Builder struct {
	set      InstructionSet
	template *fasttemplate.Template
}

func NewBuilder(set InstructionSet) (*Builder, error) {
	tmpl, err := fasttemplate.NewTemplate(set.User, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("parse user template for %s: %w", set.Version, err)
	}
	return &Builder{set: set, template: tmpl}, nil
}

func (b *Builder) Version() string {
	return b.set.Version
}

// Build embeds the schema summary, the formatted history and the current
// question into the user template.
func (b *Builder) Build(schema, history, question string) (Prompt, error) {
	values := map[string]string{
		"schema":   strings.TrimRight(schema, "\n"),
		"history":  history,
		"question": strings.TrimSpace(question),
	}
	text, err := b.template.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		value, ok := values[strings.TrimSpace(tag)]
		if !ok {
			return 0, fmt.Errorf("unknown placeholder %q", tag)
		}
		return io.WriteString(w, value)
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("render prompt %s: %w", b.set.Version, err)
	}
	return Prompt{Version: b.set.Version, System: b.set.System, Text: text}, nil
}
