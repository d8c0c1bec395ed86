package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed instructions.yaml
var embeddedInstructions []byte

// InstructionSet is one versioned pair of system instruction and user
// template.
type InstructionSet struct {
	Version string `yaml:"-"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

type instructionFile struct {
	Default  string                    `yaml:"default"`
	Versions map[string]InstructionSet `yaml:"versions"`
}

// LoadInstructionSet resolves version from the YAML document at path, or
// from the built-in document when path is empty. An empty version selects
// the document default.
func LoadInstructionSet(path, version string) (InstructionSet, error) {
	data := embeddedInstructions
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return InstructionSet{}, fmt.Errorf("read instruction file: %w", err)
		}
		data = raw
	}
	return parseInstructionSet(data, version)
}

// Versions lists the versions available in the built-in document.
func Versions() []string {
	var file instructionFile
	if err := yaml.Unmarshal(embeddedInstructions, &file); err != nil {
		return nil
	}
	out := make([]string, 0, len(file.Versions))
	for version := range file.Versions {
		out = append(out, version)
	}
	sort.Strings(out)
	return out
}

func parseInstructionSet(data []byte, version string) (InstructionSet, error) {
	var file instructionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return InstructionSet{}, fmt.Errorf("decode instruction file: %w", err)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		version = file.Default
	}
	if version == "" {
		return InstructionSet{}, fmt.Errorf("instruction version is required")
	}
	set, ok := file.Versions[version]
	if !ok {
		return InstructionSet{}, fmt.Errorf("unknown instruction version %q", version)
	}
	if strings.TrimSpace(set.System) == "" {
		return InstructionSet{}, fmt.Errorf("instruction version %q has empty system instruction", version)
	}
	if !strings.Contains(set.User, "{{question}}") {
		return InstructionSet{}, fmt.Errorf("instruction version %q user template must contain {{question}}", version)
	}
	set.Version = version
	return set, nil
}
