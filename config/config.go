// Package config provides configuration loading and management for codefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/codefix/analysis"
	"github.com/c360studio/codefix/llm/providers"
)

// DefaultBackupDir is the directory, next to the fixed file, holding backups.
const DefaultBackupDir = ".codefix_backups"

// DefaultTemperature is the sampling temperature when none is configured.
const DefaultTemperature = 0.2

// Config represents the complete codefix configuration
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Backup   BackupConfig   `yaml:"backup"`
	Safety   SafetyConfig   `yaml:"safety"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LLMConfig configures the generation backend
type LLMConfig struct {
	// Provider is the backend kind (openai, anthropic, google, local, lmstudio, ollama)
	Provider string `yaml:"provider"`
	// Model overrides the provider's default model
	Model string `yaml:"model,omitempty"`
	// Temperature controls randomness (0.0-2.0, default: 0.2); nil means unset
	Temperature *float64 `yaml:"temperature,omitempty"`
	// BaseURL overrides the provider's default endpoint
	BaseURL string `yaml:"base_url,omitempty"`
	// Timeout bounds a single generation call
	Timeout time.Duration `yaml:"timeout"`
	// MaxTokens overrides the provider's output bound (0 = provider default)
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// AnalysisConfig configures the external analysis tools
type AnalysisConfig struct {
	// Enabled turns analysis on or off; nil means unset
	Enabled *bool `yaml:"enabled,omitempty"`
	// Tools lists the tools to run, in order
	Tools []string `yaml:"tools"`
	// Timeout bounds each tool invocation
	Timeout time.Duration `yaml:"timeout"`
	// Binaries maps a tool name to an executable override
	Binaries map[string]string `yaml:"binaries,omitempty"`
	// Patterns maps a tool name to the doublestar globs it applies to
	Patterns map[string][]string `yaml:"patterns,omitempty"`
}

// BackupConfig configures pre-write backups
type BackupConfig struct {
	// Dir is the backup directory name, created beside the target file
	Dir string `yaml:"dir"`
}

// SafetyConfig configures checks applied to candidates before writing
type SafetyConfig struct {
	// SyntaxCheck rejects candidates that do not parse; nil means unset
	SyntaxCheck *bool `yaml:"syntax_check,omitempty"`
}

// MetricsConfig configures metric export
type MetricsConfig struct {
	// Textfile is a path to write Prometheus text-format metrics after a run
	Textfile string `yaml:"textfile,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	enabled := true
	syntax := false
	temperature := DefaultTemperature
	return &Config{
		LLM: LLMConfig{
			Provider:    string(providers.KindOpenAI),
			Temperature: &temperature,
			Timeout:     5 * time.Minute,
		},
		Analysis: AnalysisConfig{
			Enabled: &enabled,
			Tools:   []string{"ruff", "black", "mypy", "pyflakes"},
			Timeout: analysis.DefaultTimeout,
		},
		Backup: BackupConfig{
			Dir: DefaultBackupDir,
		},
		Safety: SafetyConfig{
			SyntaxCheck: &syntax,
		},
	}
}

// AnalysisEnabled reports whether analysis tools should run.
func (c *Config) AnalysisEnabled() bool {
	return c.Analysis.Enabled == nil || *c.Analysis.Enabled
}

// SyntaxCheckEnabled reports whether the syntax guard is on.
func (c *Config) SyntaxCheckEnabled() bool {
	return c.Safety.SyntaxCheck != nil && *c.Safety.SyntaxCheck
}

// Temperature returns the configured sampling temperature.
func (c *Config) Temperature() float64 {
	if c.LLM.Temperature == nil {
		return DefaultTemperature
	}
	return *c.LLM.Temperature
}

// Model returns the configured model, or the provider's default.
func (c *Config) Model() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	kind, err := providers.ParseKind(c.LLM.Provider)
	if err != nil {
		return ""
	}
	return providers.DefaultModel(kind)
}

// ToolList parses the configured tool names. Disabled analysis yields none.
func (c *Config) ToolList() ([]analysis.Tool, error) {
	if !c.AnalysisEnabled() {
		return nil, nil
	}
	tools := make([]analysis.Tool, 0, len(c.Analysis.Tools))
	for _, name := range c.Analysis.Tools {
		tool, err := analysis.ParseTool(name)
		if err != nil {
			return nil, fmt.Errorf("analysis.tools: %w", err)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := providers.ParseKind(c.LLM.Provider); err != nil {
		return fmt.Errorf("llm.provider: %w", err)
	}
	if t := c.Temperature(); t < 0 || t > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must not be negative")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative")
	}
	if c.Analysis.Timeout < 0 {
		return fmt.Errorf("analysis.timeout must not be negative")
	}
	if _, err := c.ToolList(); err != nil {
		return err
	}
	for name := range c.Analysis.Binaries {
		if _, err := analysis.ParseTool(name); err != nil {
			return fmt.Errorf("analysis.binaries: %w", err)
		}
	}
	for name := range c.Analysis.Patterns {
		if _, err := analysis.ParseTool(name); err != nil {
			return fmt.Errorf("analysis.patterns: %w", err)
		}
	}
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir is required")
	}
	if filepath.IsAbs(c.Backup.Dir) {
		return fmt.Errorf("backup.dir must be relative to the fixed file")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start empty so Merge only overrides what the file sets.
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// LLM
	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.Temperature != nil {
		c.LLM.Temperature = other.LLM.Temperature
	}
	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}
	if other.LLM.MaxTokens != 0 {
		c.LLM.MaxTokens = other.LLM.MaxTokens
	}

	// Analysis
	if other.Analysis.Enabled != nil {
		c.Analysis.Enabled = other.Analysis.Enabled
	}
	if len(other.Analysis.Tools) > 0 {
		c.Analysis.Tools = other.Analysis.Tools
	}
	if other.Analysis.Timeout != 0 {
		c.Analysis.Timeout = other.Analysis.Timeout
	}
	for tool, bin := range other.Analysis.Binaries {
		if c.Analysis.Binaries == nil {
			c.Analysis.Binaries = make(map[string]string)
		}
		c.Analysis.Binaries[tool] = bin
	}
	for tool, globs := range other.Analysis.Patterns {
		if c.Analysis.Patterns == nil {
			c.Analysis.Patterns = make(map[string][]string)
		}
		c.Analysis.Patterns[tool] = globs
	}

	// Backup
	if other.Backup.Dir != "" {
		c.Backup.Dir = other.Backup.Dir
	}

	// Safety
	if other.Safety.SyntaxCheck != nil {
		c.Safety.SyntaxCheck = other.Safety.SyntaxCheck
	}

	// Metrics
	if other.Metrics.Textfile != "" {
		c.Metrics.Textfile = other.Metrics.Textfile
	}
}
