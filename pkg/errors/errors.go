package errors

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different types of errors that can occur
type ErrorType int

const (
	// Configuration errors
	ErrorTypeConfig ErrorType = iota
	// Repository access errors
	ErrorTypeRepository
	// Workflow parsing errors
	ErrorTypeWorkflow
	// Graph construction and visitor errors
	ErrorTypeAnalysis
	// Policy evaluation errors
	ErrorTypePolicy
	// Report generation errors
	ErrorTypeReport
	// Validation errors
	ErrorTypeValidation
	// GitHub API errors
	ErrorTypeGitHub
)

// FlowtaintError represents a structured error with context
type FlowtaintError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Details     map[string]interface{}
	Suggestions []string
}

// Error implements the error interface
func (e *FlowtaintError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, e.Details[k]))
		}
		sb.WriteString(")")
	}

	return sb.String()
}

// Unwrap returns the underlying error
func (e *FlowtaintError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *FlowtaintError) Is(target error) bool {
	if t, ok := target.(*FlowtaintError); ok {
		return e.Type == t.Type
	}
	return false
}

// UserFriendlyMessage returns a user-friendly error message with suggestions
func (e *FlowtaintError) UserFriendlyMessage() string {
	var sb strings.Builder
	sb.WriteString("❌ ")
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n\n💡 Suggestions:")
		for _, suggestion := range e.Suggestions {
			sb.WriteString("\n   • ")
			sb.WriteString(suggestion)
		}
	}

	return sb.String()
}

func newError(t ErrorType, message string, cause error, key, value string, suggestions []string) *FlowtaintError {
	details := make(map[string]interface{})
	if value != "" {
		details[key] = value
	}
	return &FlowtaintError{
		Type:        t,
		Message:     message,
		Cause:       cause,
		Details:     details,
		Suggestions: suggestions,
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error, suggestions ...string) *FlowtaintError {
	return newError(ErrorTypeConfig, message, cause, "", "", suggestions)
}

// NewRepositoryError creates a repository error
func NewRepositoryError(message string, cause error, repo string, suggestions ...string) *FlowtaintError {
	return newError(ErrorTypeRepository, message, cause, "repository", repo, suggestions)
}

// NewWorkflowError creates a workflow parsing error
func NewWorkflowError(message string, cause error, workflowPath string, suggestions ...string) *FlowtaintError {
	return newError(ErrorTypeWorkflow, message, cause, "workflow", workflowPath, suggestions)
}

// NewAnalysisError creates a graph or visitor error
func NewAnalysisError(message string, cause error, visitor string, suggestions ...string) *FlowtaintError {
	return newError(ErrorTypeAnalysis, message, cause, "visitor", visitor, suggestions)
}

// NewPolicyError creates a policy evaluation error
func NewPolicyError(message string, cause error, policyPath string, suggestions ...string) *FlowtaintError {
	return newError(ErrorTypePolicy, message, cause, "policy", policyPath, suggestions)
}

// NewReportError creates a report generation error
func NewReportError(message string, cause error, outputPath string, suggestions ...string) *FlowtaintError {
	return newError(ErrorTypeReport, message, cause, "output", outputPath, suggestions)
}

// NewGitHubError creates a GitHub API error
func NewGitHubError(message string, cause error, repo string, suggestions ...string) *FlowtaintError {
	return newError(ErrorTypeGitHub, message, cause, "repository", repo, suggestions)
}

// NewValidationError creates a validation error
func NewValidationError(message string, field string, value interface{}, suggestions ...string) *FlowtaintError {
	details := make(map[string]interface{})
	if field != "" {
		details["field"] = field
	}
	if value != nil {
		details["value"] = value
	}

	return &FlowtaintError{
		Type:        ErrorTypeValidation,
		Message:     message,
		Details:     details,
		Suggestions: suggestions,
	}
}

// Predefined common errors

// ErrNoInputSpecified creates a no input specified error
func ErrNoInputSpecified() *FlowtaintError {
	return NewValidationError(
		"No input specified",
		"input",
		nil,
		"Specify --repo for a local checkout, --url for a GitHub repository, --repos-file for a list, or --workflow for a single file",
		"Use 'flowtaint --help' to see all available options",
	)
}

// ErrConfigNotFound creates a configuration not found error
func ErrConfigNotFound(configPath string) *FlowtaintError {
	return NewConfigError(
		fmt.Sprintf("Configuration file not found: %s", configPath),
		nil,
		"Check the file path and permissions",
		"Use default configuration by omitting the --config flag",
	)
}

// ErrInvalidOutputFormat creates an invalid output format error
func ErrInvalidOutputFormat(format string, supportedFormats []string) *FlowtaintError {
	return NewValidationError(
		fmt.Sprintf("Invalid output format: %s", format),
		"output",
		format,
		fmt.Sprintf("Use one of the supported formats: %s", strings.Join(supportedFormats, ", ")),
	)
}

// ErrMissingToken creates an error for remote scans without credentials
func ErrMissingToken(repo string) *FlowtaintError {
	return NewGitHubError(
		"GitHub token required for remote analysis",
		nil,
		repo,
		"Export GITHUB_TOKEN with read access to the repository",
		"Use --offline to analyse a local checkout without API calls",
	)
}
