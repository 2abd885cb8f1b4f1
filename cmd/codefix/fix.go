package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/codefix/config"
	"github.com/c360studio/codefix/fixer"
	"github.com/c360studio/codefix/llm"
	"github.com/c360studio/codefix/metrics"
)

type fixFlags struct {
	provider       string
	model          string
	baseURL        string
	temperature    float64
	dryRun         bool
	skipGeneration bool
	yes            bool
	noDiff         bool
	metricsFile    string
}

func fixCmd(g *globalFlags) *cobra.Command {
	f := &fixFlags{}

	cmd := &cobra.Command{
		Use:   "fix <file>",
		Short: "Analyze a file and apply generated fixes",
		Long: `Analyze the file, ask the generation backend for a fixed version,
show the diff and write it after confirmation. The original is
backed up next to the file before it is overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(cmd, g, f, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.provider, "provider", "p", "", "Generation backend (openai, anthropic, google, local, lmstudio, ollama)")
	flags.StringVarP(&f.model, "model", "m", "", "Model name")
	flags.StringVar(&f.baseURL, "base-url", "", "Backend endpoint override")
	flags.Float64VarP(&f.temperature, "temperature", "t", config.DefaultTemperature, "Sampling temperature (0.0-2.0)")
	flags.BoolVarP(&f.dryRun, "dry-run", "n", false, "Show the fix without writing it")
	flags.BoolVar(&f.skipGeneration, "skip-generation", false, "Only run analysis; never call the backend")
	flags.BoolVarP(&f.yes, "yes", "y", false, "Apply without asking for confirmation")
	flags.BoolVar(&f.noDiff, "no-diff", false, "Do not print the diff")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")

	return cmd
}

func runFix(cmd *cobra.Command, g *globalFlags, f *fixFlags, path string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := newLogger(g.logLevel)

	cfg, err := loadConfig(g, logger, func(cfg *config.Config) {
		if f.provider != "" {
			cfg.LLM.Provider = f.provider
		}
		if f.model != "" {
			cfg.LLM.Model = f.model
		}
		if f.baseURL != "" {
			cfg.LLM.BaseURL = f.baseURL
		}
		if cmd.Flags().Changed("temperature") {
			t := f.temperature
			cfg.LLM.Temperature = &t
		}
		if f.metricsFile != "" {
			cfg.Metrics.Textfile = f.metricsFile
		}
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	defer writeMetrics(cfg, m, logger)

	runner, err := newRunner(cfg, logger, m)
	if err != nil {
		return err
	}

	// Backend errors such as a missing credential surface before any file I/O.
	var backend llm.Backend
	if !f.skipGeneration {
		backend, err = newBackend(cfg, logger)
		if err != nil {
			return err
		}
	}

	fx := newFixer(cfg, runner, backend, logger, m)

	printHeader(out, fmt.Sprintf("Analyzing %s...", path))
	preview := fx.Fix(ctx, path, fixer.Options{DryRun: true, SkipGeneration: f.skipGeneration})
	if preview.Err != nil && preview.Original == "" {
		return preview.Err
	}

	if len(preview.IssuesBefore) == 0 {
		printSuccess(out, "No issues found by analysis tools.")
	} else {
		printWarning(out, fmt.Sprintf("Found %d issue(s):", len(preview.IssuesBefore)))
		printIssues(out, preview.IssuesBefore, maxListedIssues)
	}

	if preview.Err != nil {
		printError(out, preview.Err.Error())
		return preview.Err
	}

	if !preview.Changed() {
		printSuccess(out, "No changes needed.")
		return nil
	}

	if !f.noDiff {
		diff, err := fixer.Diff(preview.Path, preview.Original, preview.Final)
		if err != nil {
			logger.Warn("Failed to render diff", "error", err)
		} else {
			printHeader(out, "Proposed changes:")
			printDiff(out, diff)
		}
	}
	if preview.Explanation != "" {
		printHeader(out, "Explanation:")
		fmt.Fprintln(out, preview.Explanation)
	}

	if f.dryRun {
		printWarning(out, "[Dry run] Changes not applied.")
		return nil
	}

	if !f.yes && !confirm(cmd.InOrStdin(), out, "Apply these changes? [y/N] ") {
		printWarning(out, "Changes not applied.")
		return nil
	}

	result := fx.Commit(ctx, preview)
	if result.Err != nil {
		printError(out, result.Err.Error())
		return result.Err
	}

	printSuccess(out, "Fixes applied successfully!")
	if result.BackupPath != "" {
		fmt.Fprintf(out, "Backup: %s\n", result.BackupPath)
	}
	if len(result.IssuesAfter) == 0 {
		printSuccess(out, "All issues resolved!")
	} else {
		printWarning(out, fmt.Sprintf("%d issue(s) remain:", len(result.IssuesAfter)))
		printIssues(out, result.IssuesAfter, maxListedIssues)
	}
	return nil
}

// confirm reads a yes/no answer. Anything other than y or yes declines.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
