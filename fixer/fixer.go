// Package fixer runs the single-file repair pipeline: read, analyze, generate,
// back up, write, and re-analyze, restoring the original if the write fails.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/codefix/analysis"
	"github.com/c360studio/codefix/llm"
	"github.com/c360studio/codefix/metrics"
)

// DefaultBackupDir is the backup directory name used when none is configured.
const DefaultBackupDir = ".codefix_backups"

// Outcome results, as recorded in metrics.
const (
	ResultWritten          = "written"
	ResultNoChange         = "no_change"
	ResultDryRun           = "dry_run"
	ResultGenerationFailed = "generation_failed"
	ResultRejected         = "rejected"
	ResultFailed           = "failed"
)

var (
	// ErrFileNotFound is returned when the target does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrStalePreview is returned by Commit when the file changed after the preview.
	ErrStalePreview = errors.New("file changed since preview")
)

// Analyzer runs static analysis on a file. *analysis.Runner implements it.
type Analyzer interface {
	Check(ctx context.Context, path string) ([]analysis.Result, error)
}

// SyntaxChecker validates candidate content before it is written.
// *syntax.Checker implements it.
type SyntaxChecker interface {
	Check(ctx context.Context, path string, content []byte) error
}

// Options selects the pipeline mode for one invocation.
type Options struct {
	// DryRun computes the candidate without touching the file.
	DryRun bool

	// SkipGeneration bypasses the backend; the candidate is the original.
	SkipGeneration bool
}

// Outcome describes one pipeline invocation.
type Outcome struct {
	RunID   string
	Path    string
	DryRun  bool
	Success bool

	// Applied is set once the candidate has been written to disk.
	Applied bool

	Original    string
	Final       string
	Explanation string

	Before       []analysis.Result
	After        []analysis.Result
	IssuesBefore []string
	IssuesAfter  []string

	BackupPath string
	Err        error
	Duration   time.Duration
}

// Changed reports whether the outcome carries content different from the original.
func (o *Outcome) Changed() bool {
	return o.Final != "" && o.Final != o.Original
}

// Fixer orchestrates analysis and generation for single files. It takes no
// locks: callers must not run two fixes on the same path at once.
type Fixer struct {
	analyzer    Analyzer
	backend     llm.Backend
	model       string
	temperature *float64
	backups     *BackupStore
	syntax      SyntaxChecker
	metrics     *metrics.Metrics
	logger      *slog.Logger

	backupDir string
	now       func() time.Time
	writeFile func(name string, data []byte, perm fs.FileMode) error
}

// Option configures a Fixer.
type Option func(*Fixer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fixer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics records outcomes, backups and generation latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fixer) {
		f.metrics = m
	}
}

// WithModel names the model sent with each generation request.
func WithModel(model string) Option {
	return func(f *Fixer) {
		f.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(f *Fixer) {
		f.temperature = &t
	}
}

// WithBackupDir sets the backup directory name created beside each file.
func WithBackupDir(name string) Option {
	return func(f *Fixer) {
		if name != "" {
			f.backupDir = name
		}
	}
}

// WithClock overrides the clock used for backup names.
func WithClock(now func() time.Time) Option {
	return func(f *Fixer) {
		if now != nil {
			f.now = now
		}
	}
}

// WithSyntaxChecker rejects candidates that fail to parse.
func WithSyntaxChecker(c SyntaxChecker) Option {
	return func(f *Fixer) {
		f.syntax = c
	}
}

// New creates a Fixer. backend may be nil when every call skips generation.
func New(analyzer Analyzer, backend llm.Backend, opts ...Option) *Fixer {
	f := &Fixer{
		analyzer:  analyzer,
		backend:   backend,
		logger:    slog.Default(),
		backupDir: DefaultBackupDir,
		now:       time.Now,
		writeFile: os.WriteFile,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.backups = NewBackupStore(f.backupDir, f.now)
	return f
}

// Backups returns the store used for pre-write copies.
func (f *Fixer) Backups() *BackupStore {
	return f.backups
}

// Fix runs the pipeline on path. The returned outcome is never nil; failures
// are reported through Outcome.Err.
func (f *Fixer) Fix(ctx context.Context, path string, opts Options) *Outcome {
	start := time.Now()
	out := &Outcome{RunID: uuid.New().String(), DryRun: opts.DryRun}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	out.Path = abs
	logger := f.logger.With("run_id", out.RunID, "path", abs)

	original, mode, err := readSource(abs)
	if err != nil {
		out.Err = err
		return f.finish(logger, out, ResultFailed, start)
	}
	out.Original = original

	before, err := f.analyzer.Check(ctx, abs)
	out.Before = before
	out.IssuesBefore = analysis.Flatten(before)
	if err != nil {
		out.Err = fmt.Errorf("analysis interrupted: %w", err)
		return f.finish(logger, out, ResultFailed, start)
	}

	candidate := original
	if !opts.SkipGeneration {
		gen, err := f.generate(ctx, logger, abs, original, out.IssuesBefore)
		if err != nil {
			return f.degrade(logger, out, ResultGenerationFailed, fmt.Errorf("generation failed: %w", err), start)
		}
		out.Explanation = gen.Explanation
		candidate = restoreTrailingNewline(original, gen.FixedCode)

		if candidate == "" && original != "" {
			return f.degrade(logger, out, ResultRejected, errors.New("generation returned empty content"), start)
		}
		if candidate != original && f.syntax != nil {
			if err := f.syntax.Check(ctx, abs, []byte(candidate)); err != nil {
				return f.degrade(logger, out, ResultRejected, fmt.Errorf("candidate rejected: %w", err), start)
			}
		}
	}

	if candidate == original {
		out.Final = original
		out.After = out.Before
		out.IssuesAfter = out.IssuesBefore
		out.Success = true
		return f.finish(logger, out, ResultNoChange, start)
	}

	if opts.DryRun {
		out.Final = candidate
		if err := f.analyzeAfter(ctx, out); err != nil {
			return f.finish(logger, out, ResultFailed, start)
		}
		out.Success = true
		return f.finish(logger, out, ResultDryRun, start)
	}

	return f.apply(ctx, logger, out, candidate, mode, start)
}

// Commit writes a previewed (dry-run) outcome through the backup and write
// steps. It refuses when the file no longer holds the previewed original.
func (f *Fixer) Commit(ctx context.Context, preview *Outcome) *Outcome {
	start := time.Now()
	if preview == nil {
		return &Outcome{Err: errors.New("nothing to commit")}
	}

	out := &Outcome{
		RunID:        preview.RunID,
		Path:         preview.Path,
		Original:     preview.Original,
		Explanation:  preview.Explanation,
		Before:       preview.Before,
		IssuesBefore: preview.IssuesBefore,
	}
	logger := f.logger.With("run_id", out.RunID, "path", out.Path)

	switch {
	case preview.Err != nil:
		out.Err = fmt.Errorf("cannot commit a failed preview: %w", preview.Err)
		return f.finish(logger, out, ResultFailed, start)
	case !preview.DryRun || preview.Applied:
		out.Err = errors.New("outcome is not a pending preview")
		return f.finish(logger, out, ResultFailed, start)
	case !preview.Changed():
		out.Final = preview.Original
		out.After = preview.Before
		out.IssuesAfter = preview.IssuesBefore
		out.Success = true
		return f.finish(logger, out, ResultNoChange, start)
	}

	current, mode, err := readSource(out.Path)
	if err != nil {
		out.Err = err
		return f.finish(logger, out, ResultFailed, start)
	}
	if current != preview.Original {
		out.Err = fmt.Errorf("%w: %s", ErrStalePreview, out.Path)
		return f.finish(logger, out, ResultFailed, start)
	}

	return f.apply(ctx, logger, out, preview.Final, mode, start)
}

// apply backs up the original, writes candidate and re-analyzes.
func (f *Fixer) apply(ctx context.Context, logger *slog.Logger, out *Outcome, candidate string, mode fs.FileMode, start time.Time) *Outcome {
	backup, err := f.backups.Create(out.Path)
	if err != nil {
		out.Err = fmt.Errorf("could not create backup: %w", err)
		return f.finish(logger, out, ResultFailed, start)
	}
	out.BackupPath = backup
	f.metrics.ObserveBackup()
	logger.Debug("Backup created", "backup", backup)

	if err := f.writeFile(out.Path, []byte(candidate), mode); err != nil {
		out.Err = fmt.Errorf("could not write file: %w", err)
		if rerr := f.backups.Restore(backup, out.Path); rerr != nil {
			logger.Error("Rollback failed; original remains in backup", "backup", backup, "error", rerr)
			out.Err = errors.Join(out.Err, rerr)
		} else {
			f.metrics.ObserveRollback()
			logger.Warn("Write failed, original restored", "error", err)
			out.BackupPath = ""
		}
		return f.finish(logger, out, ResultFailed, start)
	}
	out.Applied = true
	out.Final = candidate

	if err := f.analyzeAfter(ctx, out); err != nil {
		return f.finish(logger, out, ResultFailed, start)
	}
	out.Success = true
	return f.finish(logger, out, ResultWritten, start)
}

func (f *Fixer) analyzeAfter(ctx context.Context, out *Outcome) error {
	after, err := f.analyzer.Check(ctx, out.Path)
	out.After = after
	out.IssuesAfter = analysis.Flatten(after)
	if err != nil {
		out.Err = fmt.Errorf("analysis interrupted: %w", err)
	}
	return err
}

func (f *Fixer) generate(ctx context.Context, logger *slog.Logger, path, code string, issues []string) (*llm.Generation, error) {
	if f.backend == nil {
		return nil, errors.New("no generation backend configured")
	}

	req := llm.FixRequest{
		Path:        path,
		Code:        code,
		Issues:      issues,
		Model:       f.model,
		Temperature: f.temperature,
	}

	logger.Debug("Requesting fix", "backend", f.backend.Name(), "model", f.model, "issues", len(issues))
	start := time.Now()
	gen, err := f.backend.FixCode(ctx, req)
	f.metrics.ObserveGeneration(f.backend.Name(), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, errors.New("backend returned no generation")
	}
	return gen, nil
}

// degrade ends the run without touching the file, keeping the original as final.
func (f *Fixer) degrade(logger *slog.Logger, out *Outcome, result string, err error, start time.Time) *Outcome {
	out.Err = err
	out.Final = out.Original
	out.After = out.Before
	out.IssuesAfter = out.IssuesBefore
	logger.Warn("Fix degraded, file left untouched", "error", err)
	return f.finish(logger, out, result, start)
}

func (f *Fixer) finish(logger *slog.Logger, out *Outcome, result string, start time.Time) *Outcome {
	out.Duration = time.Since(start)
	if out.Err != nil {
		out.Success = false
	}
	f.metrics.ObserveOutcome(result)
	logger.Debug("Fix finished",
		"result", result,
		"success", out.Success,
		"issues_before", len(out.IssuesBefore),
		"issues_after", len(out.IssuesAfter),
		"duration", out.Duration)
	return out
}

func readSource(path string) (string, fs.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", 0, fmt.Errorf("could not read file: %w", err)
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("could not read file: %s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("could not read file: %w", err)
	}
	return string(data), info.Mode().Perm(), nil
}

// restoreTrailingNewline re-adds the original's final line terminator, which
// the response parser trims.
func restoreTrailingNewline(original, candidate string) string {
	if candidate == "" {
		return candidate
	}
	switch {
	case strings.HasSuffix(original, "\r\n") && !strings.HasSuffix(candidate, "\n"):
		return candidate + "\r\n"
	case strings.HasSuffix(original, "\n") && !strings.HasSuffix(candidate, "\n"):
		return candidate + "\n"
	}
	return candidate
}
