package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/codefix/metrics"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 60 * time.Second

// DefaultPatterns restrict tools to files they understand.
var DefaultPatterns = []string{"**/*.py", "**/*.pyi"}

// Run statuses recorded in metrics.
const (
	statusClean     = "clean"
	statusIssues    = "issues"
	statusNotFound  = "not_found"
	statusTimeout   = "timeout"
	statusError     = "error"
	statusCancelled = "cancelled"
)

// Runner invokes a configured, ordered set of analysis tools against a file.
// Runners hold no per-file state and may be reused across invocations.
type Runner struct {
	tools    []Tool
	timeout  time.Duration
	binaries map[Tool]string
	patterns map[Tool][]string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTimeout sets the per-tool timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBinary overrides the executable used for a tool, e.g. a virtualenv path.
func WithBinary(tool Tool, path string) RunnerOption {
	return func(r *Runner) {
		if path != "" {
			r.binaries[tool] = path
		}
	}
}

// WithPatterns sets the doublestar patterns a file must match for the tool
// to run. An empty slice means the tool runs on every file.
func WithPatterns(tool Tool, patterns []string) RunnerOption {
	return func(r *Runner) {
		r.patterns[tool] = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics records tool runs.
func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner for the given tools, run in the given order.
// A nil or empty tool list yields a Runner that produces no results.
func NewRunner(tools []Tool, opts ...RunnerOption) *Runner {
	r := &Runner{
		tools:    append([]Tool(nil), tools...),
		timeout:  DefaultTimeout,
		binaries: make(map[Tool]string),
		patterns: make(map[Tool][]string),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tools returns the configured tools in run order.
func (r *Runner) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Check runs every applicable tool against path. Individual tool failures
// are captured in their Result and never abort the remaining tools. The only
// error returned is ctx's, when the caller abandons the run; results
// gathered before cancellation are returned alongside it.
func (r *Runner) Check(ctx context.Context, path string) ([]Result, error) {
	var results []Result
	for _, tool := range r.tools {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if !r.applies(tool, path) {
			r.logger.Debug("Tool does not apply to file, skipping",
				slog.String("tool", string(tool)),
				slog.String("path", path))
			continue
		}

		result, status := r.runCheck(ctx, tool, path)
		r.metrics.ObserveToolRun(string(tool), status)
		if status == statusCancelled {
			return results, ctx.Err()
		}
		results = append(results, result)
	}
	return results, nil
}

// ApplyAutoFix runs the auto-fix mode of each applicable tool that has one.
// The returned map records per-tool success; tools without an auto-fix mode
// are absent.
func (r *Runner) ApplyAutoFix(ctx context.Context, path string) map[Tool]bool {
	fixed := make(map[Tool]bool)
	for _, tool := range r.tools {
		if !tool.HasAutoFix() || !r.applies(tool, path) {
			continue
		}
		if ctx.Err() != nil {
			fixed[tool] = false
			continue
		}

		entry := catalog[tool]
		args := append(append([]string{}, entry.fixArgs...), path)
		_, stderr, err := r.exec(ctx, tool, args)
		fixed[tool] = err == nil
		if err != nil {
			r.logger.Warn("Auto-fix failed",
				slog.String("tool", string(tool)),
				slog.String("path", path),
				slog.String("stderr", stderr),
				slog.String("error", err.Error()))
		}
	}
	return fixed
}

// Available reports whether the tool's executable can be found.
func (r *Runner) Available(tool Tool) bool {
	_, err := exec.LookPath(r.binary(tool))
	return err == nil
}

func (r *Runner) runCheck(ctx context.Context, tool Tool, path string) (Result, string) {
	entry := catalog[tool]
	args := append(append([]string{}, entry.checkArgs...), path)

	start := time.Now()
	stdout, stderr, err := r.exec(ctx, tool, args)
	elapsed := time.Since(start)

	result := Result{Tool: tool}
	var exitErr *exec.ExitError

	switch {
	case err == nil:
		result.Success = true
		result.Issues = Normalize(tool, stdout, stderr)
		result.Stdout, result.Stderr = stdout, stderr
	case ctx.Err() != nil:
		result.Stderr = fmt.Sprintf("%s cancelled: %v", tool, ctx.Err())
		return result, statusCancelled
	case errors.Is(err, context.DeadlineExceeded):
		result.Stderr = fmt.Sprintf("%s timed out after %s", tool, r.timeout)
		r.logger.Warn("Analysis tool timed out",
			slog.String("tool", string(tool)),
			slog.Duration("timeout", r.timeout))
		return result, statusTimeout
	case errors.As(err, &exitErr):
		result.Issues = Normalize(tool, stdout, stderr)
		result.Stdout, result.Stderr = stdout, stderr
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		result.Stderr = fmt.Sprintf("%s not found. Install with: pip install %s", tool, entry.pipPackage)
		r.logger.Warn("Analysis tool not found", slog.String("tool", string(tool)))
		return result, statusNotFound
	default:
		result.Stderr = err.Error()
		r.logger.Warn("Analysis tool failed to run",
			slog.String("tool", string(tool)),
			slog.String("error", err.Error()))
		return result, statusError
	}

	r.logger.Debug("Analysis tool finished",
		slog.String("tool", string(tool)),
		slog.Bool("success", result.Success),
		slog.Int("issues", len(result.Issues)),
		slog.Duration("duration", elapsed))

	if len(result.Issues) > 0 {
		return result, statusIssues
	}
	return result, statusClean
}

// exec runs the tool binary with args under the per-tool timeout. A timeout
// is reported as context.DeadlineExceeded regardless of how the process died.
func (r *Runner) exec(ctx context.Context, tool Tool, args []string) (string, string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.binary(tool), args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && ctx.Err() == nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	return stdout.String(), stderr.String(), err
}

func (r *Runner) binary(tool Tool) string {
	if b, ok := r.binaries[tool]; ok {
		return b
	}
	return tool.Binary()
}

// applies reports whether path matches the tool's patterns. Patterns are
// tried against both the full slash path and the base name so "*.py" and
// "**/*.py" behave as expected for absolute paths.
func (r *Runner) applies(tool Tool, path string) bool {
	patterns, ok := r.patterns[tool]
	if !ok {
		patterns = DefaultPatterns
	}
	if len(patterns) == 0 {
		return true
	}

	slashPath := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, slashPath); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
