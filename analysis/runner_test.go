package analysis

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/c360studio/codefix/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// writeTool writes an executable shell script standing in for an analysis tool.
func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// writeSource writes a Python file to analyse.
func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunner_Check_StructuredFindings(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "sample.py", "import os\nx=1\n")
	ruff := writeTool(t, dir, "fake-ruff", `cat <<'EOF'
[{"code": "F401", "message": "os imported but unused", "location": {"row": 1, "column": 8}},
 {"code": "E225", "message": "missing whitespace around operator", "location": {"row": 2, "column": 2}}]
EOF
exit 1`)

	r := NewRunner([]Tool{ToolRuff}, WithBinary(ToolRuff, ruff))
	results, err := r.Check(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, ToolRuff, res.Tool)
	assert.False(t, res.Success, "non-zero exit with output is not a success")
	require.Len(t, res.Issues, 2)
	assert.Equal(t, Issue{Tool: ToolRuff, Line: 1, Column: 8, Message: "os imported but unused", Code: "F401"}, res.Issues[0])
	assert.Contains(t, res.Stdout, "E225")
}

func TestRunner_Check_PassesFileAndCheckFlags(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "sample.py", "x = 1\n")
	mypy := writeTool(t, dir, "fake-mypy", `echo "$@" >&2
exit 0`)

	r := NewRunner([]Tool{ToolMypy}, WithBinary(ToolMypy, mypy))
	results, err := r.Check(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Empty(t, results[0].Issues)
	assert.Equal(t, "--no-error-summary --output-format=json "+src+"\n", results[0].Stderr)
}

func TestRunner_Check_MissingToolIsIsolated(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "sample.py", "x = 1\n")
	pyflakes := writeTool(t, dir, "fake-pyflakes", `echo "$1:1:1: undefined name 'y'"
exit 1`)

	m := metrics.New()
	r := NewRunner(
		[]Tool{ToolBlack, ToolPyflakes},
		WithBinary(ToolBlack, filepath.Join(dir, "does-not-exist", "black")),
		WithBinary(ToolPyflakes, pyflakes),
		WithMetrics(m),
	)
	results, err := r.Check(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, ToolBlack, results[0].Tool)
	assert.False(t, results[0].Success)
	assert.Empty(t, results[0].Issues)
	assert.Contains(t, results[0].Stderr, "black not found")

	assert.Equal(t, ToolPyflakes, results[1].Tool)
	require.Len(t, results[1].Issues, 1)
	assert.Equal(t, src+":1:1: undefined name 'y'", results[1].Issues[0].Message)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRuns.WithLabelValues("black", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRuns.WithLabelValues("pyflakes", "issues")))
}

func TestRunner_Check_MissingToolOnPath(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "sample.py", "x = 1\n")

	r := NewRunner([]Tool{ToolPyflakes}, WithBinary(ToolPyflakes, "codefix-no-such-binary"))
	results, err := r.Check(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "pyflakes not found. Install with: pip install pyflakes", results[0].Stderr)
	assert.False(t, r.Available(ToolPyflakes))
}

func TestRunner_Check_Timeout(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "sample.py", "x = 1\n")
	slow := writeTool(t, dir, "fake-mypy", "exec sleep 5")
	ruff := writeTool(t, dir, "fake-ruff", "echo '[]'")

	r := NewRunner(
		[]Tool{ToolMypy, ToolRuff},
		WithBinary(ToolMypy, slow),
		WithBinary(ToolRuff, ruff),
		WithTimeout(200*time.Millisecond),
	)

	start := time.Now()
	results, err := r.Check(context.Background(), src)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Empty(t, results[0].Issues)
	assert.Contains(t, results[0].Stderr, "mypy timed out")
	assert.True(t, results[1].Success, "later tools still run after a timeout")
}

func TestRunner_Check_Cancelled(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "sample.py", "x = 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner([]Tool{ToolRuff})
	results, err := r.Check(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunner_Check_PatternsSkipUnmatchedFiles(t *testing.T) {
	dir := t.TempDir()
	readme := writeSource(t, dir, "README.md", "# hi\n")
	ruff := writeTool(t, dir, "fake-ruff", "echo '[]'")
	pyflakes := writeTool(t, dir, "fake-pyflakes", "exit 0")

	r := NewRunner(
		[]Tool{ToolRuff, ToolPyflakes},
		WithBinary(ToolRuff, ruff),
		WithBinary(ToolPyflakes, pyflakes),
		WithPatterns(ToolPyflakes, nil),
	)
	results, err := r.Check(context.Background(), readme)
	require.NoError(t, err)

	require.Len(t, results, 1, "ruff keeps the default *.py patterns")
	assert.Equal(t, ToolPyflakes, results[0].Tool)
}

func TestRunner_Check_NoTools(t *testing.T) {
	results, err := NewRunner(nil).Check(context.Background(), "/tmp/whatever.py")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunner_ApplyAutoFix(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "sample.py", "x=1\n")
	ruff := writeTool(t, dir, "fake-ruff", `[ "$1" = "check" ] && [ "$2" = "--fix" ] || exit 3
echo 'x = 1' > "$3"`)
	black := writeTool(t, dir, "fake-black", "exit 123")

	r := NewRunner(
		[]Tool{ToolRuff, ToolBlack, ToolMypy},
		WithBinary(ToolRuff, ruff),
		WithBinary(ToolBlack, black),
	)
	fixed := r.ApplyAutoFix(context.Background(), src)

	assert.Equal(t, map[Tool]bool{ToolRuff: true, ToolBlack: false}, fixed)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))
}
