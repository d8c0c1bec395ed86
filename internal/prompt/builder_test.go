package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadInstructionSetEmbeddedVersions(t *testing.T) {
	assert.Equal(t, []string{"v1", "v2"}, Versions())

	set, err := LoadInstructionSet("", "")
	require.NoError(t, err)
	assert.Equal(t, "v2", set.Version)
	assert.Contains(t, set.System, "answer and chart")

	set, err = LoadInstructionSet("", "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", set.Version)
	assert.Contains(t, set.System, "json_object")
}

func TestLoadInstructionSetRejectsUnknownVersion(t *testing.T) {
	_, err := LoadInstructionSet("", "v9")
	require.Error(t, err)
}

func TestLoadInstructionSetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	doc := "default: custom\nversions:\n  custom:\n    system: only SELECT\n    user: \"Q={{question}} S={{schema}} H={{history}}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	set, err := LoadInstructionSet(path, "")
	require.NoError(t, err)
	assert.Equal(t, "custom", set.Version)

	builder, err := NewBuilder(set)
	require.NoError(t, err)
	got, err := builder.Build("a INTEGER\n", "User: hi\n", "  how many?  ")
	require.NoError(t, err)
	assert.Equal(t, "Q=how many? S=a INTEGER H=User: hi\n", got.Text)
	assert.Equal(t, "only SELECT", got.System)
}

func TestLoadInstructionSetRequiresQuestionPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	doc := "default: bad\nversions:\n  bad:\n    system: s\n    user: no placeholder\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := LoadInstructionSet(path, "")
	require.Error(t, err)
}

func TestBuildEmbedsSchemaHistoryAndQuestion(t *testing.T) {
	set, err := LoadInstructionSet("", "v2")
	require.NoError(t, err)
	builder, err := NewBuilder(set)
	require.NoError(t, err)

	history := FormatHistory([]Turn{{Sender: "user", Text: "hi"}, {Sender: "assistant", Text: "hello"}})
	got, err := builder.Build("Commodity VARCHAR", history, "total spend?")
	require.NoError(t, err)

	assert.Equal(t, "v2", got.Version)
	assert.Equal(t, set.System, got.System)
	assert.Contains(t, got.Text, "Commodity VARCHAR")
	assert.Contains(t, got.Text, "User: hi\nAssistant: hello\n")
	assert.Contains(t, got.Text, "total spend?")
	assert.NotContains(t, got.Text, "{{")

	again, err := builder.Build("Commodity VARCHAR", history, "total spend?")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestBuildRejectsUnknownPlaceholder(t *testing.T) {
	builder, err := NewBuilder(InstructionSet{Version: "x", System: "s", User: "{{question}} {{secret}}"})
	require.NoError(t, err)
	_, err = builder.Build("", "", "q")
	require.Error(t, err)
}
