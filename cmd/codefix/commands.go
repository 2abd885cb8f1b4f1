package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/codefix/analysis"
	"github.com/c360studio/codefix/config"
	"github.com/c360studio/codefix/fixer"
	"github.com/c360studio/codefix/llm/providers"
	"github.com/c360studio/codefix/metrics"
)

func checkCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Run the analysis tools on a file without changing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			logger := newLogger(g.logLevel)
			cfg, err := loadConfig(g, logger, nil)
			if err != nil {
				return err
			}
			m := metrics.New()
			defer writeMetrics(cfg, m, logger)

			runner, err := newRunner(cfg, logger, m)
			if err != nil {
				return err
			}
			path, err := existingFile(args[0])
			if err != nil {
				return err
			}

			results, err := runner.Check(cmd.Context(), path)
			printResults(out, results)
			if err != nil {
				return fmt.Errorf("analysis interrupted: %w", err)
			}
			if n := analysis.CountIssues(results); n > 0 {
				return fmt.Errorf("%d issue(s) found", n)
			}
			printSuccess(out, "No issues found.")
			return nil
		},
	}
}

func autofixCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "autofix <file>",
		Short: "Run the tools' own auto-fix modes on a file",
		Long: `Run the auto-fix mode of every configured tool that has one
(ruff, ruff-format, black). No generation backend is involved and no
backup is made.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			logger := newLogger(g.logLevel)
			cfg, err := loadConfig(g, logger, nil)
			if err != nil {
				return err
			}
			runner, err := newRunner(cfg, logger, metrics.New())
			if err != nil {
				return err
			}
			path, err := existingFile(args[0])
			if err != nil {
				return err
			}

			fixed := runner.ApplyAutoFix(cmd.Context(), path)
			if len(fixed) == 0 {
				printWarning(out, "No configured tool has an auto-fix mode for this file.")
				return nil
			}
			failed := 0
			for _, tool := range runner.Tools() {
				ok, ran := fixed[tool]
				switch {
				case !ran:
				case ok:
					fmt.Fprintf(out, "%s: %s\n", tool, okColor.Sprint("fixed"))
				default:
					failed++
					fmt.Fprintf(out, "%s: %s\n", tool, errColor.Sprint("failed"))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d auto-fix run(s) failed", failed)
			}
			return nil
		},
	}
}

func toolsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List supported analysis tools and whether they are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			logger := newLogger(g.logLevel)
			cfg, err := loadConfig(g, logger, nil)
			if err != nil {
				return err
			}
			runner, err := newRunner(cfg, logger, nil)
			if err != nil {
				return err
			}

			enabled := make(map[analysis.Tool]bool)
			for _, t := range runner.Tools() {
				enabled[t] = true
			}
			for _, name := range analysis.ToolNames() {
				tool := analysis.Tool(name)
				installed := errColor.Sprint("missing")
				if runner.Available(tool) {
					installed = okColor.Sprint("installed")
				}
				var notes []string
				if enabled[tool] {
					notes = append(notes, "enabled")
				}
				if tool.HasAutoFix() {
					notes = append(notes, "auto-fix")
				}
				fmt.Fprintf(out, "%-12s %-10s %v\n", name, installed, notes)
			}
			return nil
		},
	}
}

func backupsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "backups <file>",
		Short: "List the backups kept for a file, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			logger := newLogger(g.logLevel)
			cfg, err := loadConfig(g, logger, nil)
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			backups, err := fixer.NewBackupStore(cfg.Backup.Dir, nil).List(path)
			if err != nil {
				return fmt.Errorf("list backups: %w", err)
			}
			if len(backups) == 0 {
				fmt.Fprintf(out, "No backups for %s\n", args[0])
				return nil
			}
			for _, b := range backups {
				fmt.Fprintln(out, b)
			}
			return nil
		},
	}
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the user config file with defaults if it does not exist",
			RunE: func(cmd *cobra.Command, args []string) error {
				loader := config.NewLoader(newLogger(g.logLevel))
				path, err := loader.EnsureUserConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Config: %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(g, newLogger(g.logLevel), nil)
				if err != nil {
					return err
				}
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("marshal config: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "providers",
			Short: "List generation backends and their defaults",
			Run: func(cmd *cobra.Command, args []string) {
				out := cmd.OutOrStdout()
				for _, name := range providers.Kinds() {
					kind := providers.Kind(name)
					endpoint := providers.DefaultBaseURL(kind)
					if endpoint == "" {
						endpoint = "(sdk default)"
					}
					credential := "no key"
					if env := providers.CredentialEnv(kind); env != "" {
						credential = env
					}
					fmt.Fprintf(out, "%-10s %-28s %-34s %s\n", name, providers.DefaultModel(kind), endpoint, credential)
				}
			},
		},
	)

	return cmd
}

// existingFile resolves path and fails when it is missing or a directory.
func existingFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", fixer.ErrFileNotFound, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return abs, nil
}
