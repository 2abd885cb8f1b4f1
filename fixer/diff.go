package fixer

import (
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff between original and fixed with three lines of
// context. Identical inputs yield "".
func Diff(path, original, fixed string) (string, error) {
	if original == fixed {
		return "", nil
	}
	name := filepath.Base(path)
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(fixed),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
