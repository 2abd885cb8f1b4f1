// Package syntax rejects generated candidates that do not parse, using
// tree-sitter grammars selected by file extension.
package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Error reports the first syntax error found in a candidate.
// Line and Column are 1-based.
type Error struct {
	Language string
	Line     int
	Column   int
	// Missing is set when the parser inserted a token that is absent in the source.
	Missing string
}

func (e *Error) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("%s syntax error at line %d, column %d: missing %q", e.Language, e.Line, e.Column, e.Missing)
	}
	return fmt.Sprintf("%s syntax error at line %d, column %d", e.Language, e.Line, e.Column)
}

type grammar struct {
	name     string
	language func() *sitter.Language
}

// Checker parses content with the grammar registered for its extension.
type Checker struct {
	grammars map[string]grammar // extension → grammar
}

// NewChecker returns a checker for Python, JavaScript, TypeScript and Java.
func NewChecker() *Checker {
	c := &Checker{grammars: make(map[string]grammar)}
	c.register("Python", python.GetLanguage, ".py", ".pyi")
	c.register("JavaScript", javascript.GetLanguage, ".js", ".mjs", ".cjs", ".jsx")
	c.register("TypeScript", typescript.GetLanguage, ".ts", ".mts", ".cts")
	c.register("TSX", tsx.GetLanguage, ".tsx")
	c.register("Java", java.GetLanguage, ".java")
	return c
}

func (c *Checker) register(name string, language func() *sitter.Language, exts ...string) {
	for _, ext := range exts {
		c.grammars[ext] = grammar{name: name, language: language}
	}
}

// Supports reports whether path has a registered grammar.
func (c *Checker) Supports(path string) bool {
	_, ok := c.grammars[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions, sorted.
func (c *Checker) Extensions() []string {
	exts := make([]string, 0, len(c.grammars))
	for ext := range c.grammars {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Check parses content as the language of path. Unsupported extensions pass.
// A parse failure is returned as *Error.
func (c *Checker) Check(ctx context.Context, path string, content []byte) error {
	g, ok := c.grammars[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", g.name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	bad := firstError(root)
	if bad == nil {
		bad = root
	}
	point := bad.StartPoint()
	syntaxErr := &Error{
		Language: g.name,
		Line:     int(point.Row) + 1,
		Column:   int(point.Column) + 1,
	}
	if bad.IsMissing() {
		syntaxErr.Missing = bad.Type()
	}
	return syntaxErr
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(node *sitter.Node) *sitter.Node {
	if node.IsMissing() || node.Type() == "ERROR" {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
