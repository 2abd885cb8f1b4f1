// Package main provides the codefix binary entry point.
// Codefix repairs a single source file by combining static analysis tools
// with a generative backend, backing up the original before writing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c360studio/codefix/analysis"
	"github.com/c360studio/codefix/config"
	"github.com/c360studio/codefix/fixer"
	"github.com/c360studio/codefix/llm"
	"github.com/c360studio/codefix/llm/providers"
	"github.com/c360studio/codefix/metrics"
	"github.com/c360studio/codefix/syntax"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "codefix"
)

// newBackend builds the generation backend; tests replace it.
var newBackend = func(cfg *config.Config, logger *slog.Logger) (llm.Backend, error) {
	kind, err := providers.ParseKind(cfg.LLM.Provider)
	if err != nil {
		return nil, err
	}
	return providers.New(kind, providers.Options{
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.Model(),
		MaxTokens:  cfg.LLM.MaxTokens,
		HTTPClient: &http.Client{Timeout: cfg.LLM.Timeout},
		Logger:     logger,
	})
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	noColor    bool
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Fix code issues in a single file",
		Long: `Codefix repairs one source file at a time.

It runs the configured analysis tools (ruff, black, mypy, pyflakes),
asks a generation backend for a fixed version of the file, shows the
diff, and writes the result after backing up the original. Analysis
runs again afterwards so remaining issues are reported.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		fixCmd(g),
		checkCmd(g),
		autofixCmd(g),
		toolsCmd(g),
		backupsCmd(g),
		configCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// newLogger configures a text logger on stderr at the requested level.
func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig applies the layered config files, then lets modify apply flag
// overrides before validation.
func loadConfig(g *globalFlags, logger *slog.Logger, modify func(*config.Config)) (*config.Config, error) {
	cfg, err := config.NewLoader(logger).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if modify != nil {
		modify(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// newRunner builds the analysis runner described by cfg.
func newRunner(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*analysis.Runner, error) {
	tools, err := cfg.ToolList()
	if err != nil {
		return nil, err
	}

	opts := []analysis.RunnerOption{
		analysis.WithTimeout(cfg.Analysis.Timeout),
		analysis.WithLogger(logger),
		analysis.WithMetrics(m),
	}
	for name, bin := range cfg.Analysis.Binaries {
		tool, err := analysis.ParseTool(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analysis.WithBinary(tool, bin))
	}
	for name, globs := range cfg.Analysis.Patterns {
		tool, err := analysis.ParseTool(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analysis.WithPatterns(tool, globs))
	}

	return analysis.NewRunner(tools, opts...), nil
}

// newFixer wires the runner, backend and safety checks into a Fixer.
func newFixer(cfg *config.Config, runner *analysis.Runner, backend llm.Backend, logger *slog.Logger, m *metrics.Metrics) *fixer.Fixer {
	opts := []fixer.Option{
		fixer.WithLogger(logger),
		fixer.WithMetrics(m),
		fixer.WithModel(cfg.Model()),
		fixer.WithTemperature(cfg.Temperature()),
		fixer.WithBackupDir(cfg.Backup.Dir),
	}
	if cfg.SyntaxCheckEnabled() {
		opts = append(opts, fixer.WithSyntaxChecker(syntax.NewChecker()))
	}
	return fixer.New(runner, backend, opts...)
}

// writeMetrics dumps collected metrics when a textfile path is configured.
func writeMetrics(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("Failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
	}
}
