/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/harekrishnarai/flowtaint/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config represents the complete flowtaint configuration
type Config struct {
	Version  string   `yaml:"version" json:"version"`
	Visitors Visitors `yaml:"visitors" json:"visitors"`
	Analysis Analysis `yaml:"analysis" json:"analysis"`
	Output   Output   `yaml:"output" json:"output"`
	Logging  Logging  `yaml:"logging" json:"logging"`
	Policies Policies `yaml:"policies,omitempty" json:"policies,omitempty"`
}

// Visitors selects which issue classes are searched for
type Visitors struct {
	Enabled  []string `yaml:"enabled" json:"enabled"`
	Disabled []string `yaml:"disabled" json:"disabled"`
}

// Analysis tunes the graph walk
type Analysis struct {
	// IgnoreWorkflowRun drops workflow_run entry points from Pwn Request analysis
	IgnoreWorkflowRun bool `yaml:"ignore_workflow_run" json:"ignore_workflow_run"`
	// ExcludeWorkflows are doublestar globs over repository relative workflow paths
	ExcludeWorkflows []string `yaml:"exclude_workflows" json:"exclude_workflows"`
	MinConfidence    string   `yaml:"min_confidence" json:"min_confidence"`
	Workers          int      `yaml:"workers" json:"workers"`
	// Offline skips every GitHub API call
	Offline bool `yaml:"offline" json:"offline"`
}

// Output configuration
type Output struct {
	Format          string `yaml:"format" json:"format"` // "cli", "json", "markdown", "sarif"
	File            string `yaml:"file,omitempty" json:"file,omitempty"`
	ShowExplanation bool   `yaml:"show_explanation" json:"show_explanation"`
	ShowPath        bool   `yaml:"show_path" json:"show_path"`
}

// Logging configuration
type Logging struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// Policies lists Rego files evaluated against every finding
type Policies struct {
	Paths []string `yaml:"paths" json:"paths"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Visitors: Visitors{
			Enabled:  []string{}, // Empty means all enabled
			Disabled: []string{},
		},
		Analysis: Analysis{
			ExcludeWorkflows: []string{},
			MinConfidence:    constants.DefaultMinConfidence,
			Workers:          constants.DefaultMaxWorkers,
		},
		Output: Output{
			Format:          constants.DefaultOutputFormat,
			ShowExplanation: true,
			ShowPath:        true,
		},
		Logging: Logging{
			Level: constants.DefaultLogLevel,
		},
	}
}

// LoadConfig loads configuration from file or returns default
func LoadConfig(configPath string) (*Config, error) {
	// If no config path specified, try to find one
	if configPath == "" {
		configPath = findConfigFile()
	}

	// If still no config file, return default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", configPath, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(content, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// findConfigFile searches for configuration files in common locations
func findConfigFile() string {
	candidates := []string{
		constants.ConfigFileFlowtaintYML,
		constants.ConfigFileFlowtaintYAML,
		constants.ConfigFileBaseYML,
		constants.ConfigFileBaseYAML,
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		for _, candidate := range candidates {
			fullPath := filepath.Join(homeDir, candidate)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath
			}
		}
	}

	return ""
}

// validateConfig checks values and fills in defaults for empty ones
func validateConfig(config *Config) error {
	if config.Version == "" {
		config.Version = "1"
	}

	for _, name := range append(append([]string{}, config.Visitors.Enabled...), config.Visitors.Disabled...) {
		if !contains(constants.SupportedVisitors, name) {
			return fmt.Errorf("unknown visitor %q (supported: %s)", name, strings.Join(constants.SupportedVisitors, ", "))
		}
	}

	if config.Output.Format == "" {
		config.Output.Format = constants.DefaultOutputFormat
	}
	if !contains(constants.SupportedOutputFormats, config.Output.Format) {
		return fmt.Errorf("unsupported output format %q", config.Output.Format)
	}

	if config.Analysis.MinConfidence == "" {
		config.Analysis.MinConfidence = constants.DefaultMinConfidence
	}
	config.Analysis.MinConfidence = strings.ToUpper(config.Analysis.MinConfidence)
	if !contains([]string{"HIGH", "MEDIUM", "LOW", "UNKNOWN"}, config.Analysis.MinConfidence) {
		return fmt.Errorf("invalid min_confidence %q", config.Analysis.MinConfidence)
	}

	if config.Analysis.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", config.Analysis.Workers)
	}
	if config.Analysis.Workers == 0 {
		config.Analysis.Workers = constants.DefaultMaxWorkers
	}

	if config.Logging.Level == "" {
		config.Logging.Level = constants.DefaultLogLevel
	}
	if !contains([]string{"trace", "debug", "info", "warn", "error", "off"}, strings.ToLower(config.Logging.Level)) {
		return fmt.Errorf("invalid log level %q", config.Logging.Level)
	}

	for _, pattern := range config.Analysis.ExcludeWorkflows {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return fmt.Errorf("invalid exclude pattern '%s'", pattern)
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// IsVisitorEnabled checks if a visitor should run
func (config *Config) IsVisitorEnabled(name string) bool {
	// If specific visitors are enabled, only those run
	if len(config.Visitors.Enabled) > 0 {
		return contains(config.Visitors.Enabled, name)
	}
	return !contains(config.Visitors.Disabled, name)
}

// IsWorkflowExcluded checks a repository relative workflow path against
// the exclude_workflows globs
func (config *Config) IsWorkflowExcluded(workflowPath string) bool {
	normalizedPath := filepath.ToSlash(workflowPath)
	for _, pattern := range config.Analysis.ExcludeWorkflows {
		if matchGlobPattern(pattern, normalizedPath) {
			return true
		}
	}
	return false
}

func matchGlobPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	normalizedPattern := filepath.ToSlash(pattern)
	matchers := []string{normalizedPattern}

	// Automatically add a glob that searches anywhere in the tree when the pattern isn't anchored
	if !strings.HasPrefix(normalizedPattern, "**/") &&
		!strings.HasPrefix(normalizedPattern, "./") &&
		!strings.HasPrefix(normalizedPattern, "/") &&
		!strings.Contains(normalizedPattern, ":") {
		matchers = append(matchers, "**/"+normalizedPattern)
	}

	for _, candidate := range matchers {
		matched, err := doublestar.Match(candidate, path)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
