package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// Tool identifies a supported analysis tool.
type Tool string

// Supported tools.
const (
	ToolRuff       Tool = "ruff"
	ToolRuffFormat Tool = "ruff-format"
	ToolBlack      Tool = "black"
	ToolMypy       Tool = "mypy"
	ToolPyflakes   Tool = "pyflakes"
)

// Adapter decodes a tool's raw output into issues. Adapters must never panic
// and never fail; malformed input degrades to line-based issues.
type Adapter func(tool Tool, stdout, stderr string) []Issue

// toolSpec describes how to invoke and decode one tool.
type toolSpec struct {
	// binary is the executable name looked up on PATH unless overridden.
	binary string

	// pipPackage is suggested in the "not found" diagnostic.
	pipPackage string

	// checkArgs precede the file path for a check run.
	checkArgs []string

	// fixArgs precede the file path for an auto-fix run. Nil means the tool
	// has no auto-fix mode.
	fixArgs []string

	adapter Adapter
}

var catalog = map[Tool]toolSpec{
	ToolRuff: {
		binary:     "ruff",
		pipPackage: "ruff",
		checkArgs:  []string{"check", "--output-format=json"},
		fixArgs:    []string{"check", "--fix"},
		adapter:    normalizeRuff,
	},
	ToolRuffFormat: {
		binary:     "ruff",
		pipPackage: "ruff",
		checkArgs:  []string{"format", "--check", "--diff"},
		fixArgs:    []string{"format"},
		adapter:    normalizeText,
	},
	ToolBlack: {
		binary:     "black",
		pipPackage: "black",
		checkArgs:  []string{"--check", "--diff"},
		fixArgs:    []string{},
		adapter:    normalizeText,
	},
	ToolMypy: {
		binary:     "mypy",
		pipPackage: "mypy",
		checkArgs:  []string{"--no-error-summary", "--output-format=json"},
		adapter:    normalizeMypy,
	},
	ToolPyflakes: {
		binary:     "pyflakes",
		pipPackage: "pyflakes",
		adapter:    normalizeText,
	},
}

// ParseTool resolves a tool name, failing for anything outside the supported set.
func ParseTool(name string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := catalog[t]; !ok {
		return "", fmt.Errorf("unknown analysis tool %q (valid: %s)", name, strings.Join(ToolNames(), ", "))
	}
	return t, nil
}

// ToolNames returns the supported tool names in sorted order.
func ToolNames() []string {
	names := make([]string, 0, len(catalog))
	for t := range catalog {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// HasAutoFix reports whether the tool has an auto-fix mode.
func (t Tool) HasAutoFix() bool {
	spec, ok := catalog[t]
	return ok && spec.fixArgs != nil
}

// Binary returns the default executable name for the tool.
func (t Tool) Binary() string {
	return catalog[t].binary
}
