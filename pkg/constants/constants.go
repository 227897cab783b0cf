package constants

import "os"

// Application constants
const (
	AppName    = "flowtaint"
	AppVersion = "0.1.0"
	AppUsage   = "Taint-flow analyzer for GitHub Actions pipelines"

	// Default configuration values
	DefaultMinConfidence = "LOW"
	DefaultOutputFormat  = "cli"
	DefaultLogLevel      = "warn"
	DefaultConfigFile    = ".flowtaint.yml"
	DefaultMaxWorkers    = 4
	DefaultRef           = "HEAD"

	// Supported output formats
	OutputFormatCLI      = "cli"
	OutputFormatJSON     = "json"
	OutputFormatMarkdown = "markdown"
	OutputFormatSARIF    = "sarif"

	// Configuration file names
	ConfigFileFlowtaintYML  = ".flowtaint.yml"
	ConfigFileFlowtaintYAML = ".flowtaint.yaml"
	ConfigFileBaseYML       = "flowtaint.yml"
	ConfigFileBaseYAML      = "flowtaint.yaml"

	// Environment variables
	EnvGitHubToken   = "GITHUB_TOKEN"
	EnvLogLevel      = "FLOWTAINT_LOG_LEVEL"
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvNoColor       = "NO_COLOR"

	GitHubWorkflowsPath = ".github/workflows"

	// Error messages
	ErrNoInputSpecified   = "either --repo, --url, --repos-file or --workflow must be specified"
	ErrConfigLoadFailed   = "failed to load configuration"
	ErrWorkflowLoadFailed = "failed to load workflow file"
)

// Visitor names accepted in configuration and on the command line
const (
	VisitorPwnRequest        = "pwn-request"
	VisitorDispatchTOCTOU    = "dispatch-toctou"
	VisitorReviewInjection   = "review-injection"
	VisitorInjection         = "injection"
	VisitorArtifactPoisoning = "artifact-poisoning"
)

// SupportedVisitors lists every visitor name
var SupportedVisitors = []string{
	VisitorPwnRequest,
	VisitorDispatchTOCTOU,
	VisitorReviewInjection,
	VisitorInjection,
	VisitorArtifactPoisoning,
}

// Supported output formats list
var SupportedOutputFormats = []string{
	OutputFormatCLI,
	OutputFormatJSON,
	OutputFormatMarkdown,
	OutputFormatSARIF,
}

// ciEnvironment variables set by common CI providers
var ciEnvironment = []string{
	EnvCI, EnvGitHubActions, "TRAVIS", "CIRCLECI", "JENKINS_URL",
	"GITLAB_CI", "BUILDKITE", "TF_BUILD",
}

// IsRunningInCI reports whether the process runs under a CI provider
func IsRunningInCI() bool {
	for _, env := range ciEnvironment {
		if os.Getenv(env) != "" {
			return true
		}
	}
	return false
}

// IsRunningInGitHubActions reports whether the process runs in a GitHub Actions job
func IsRunningInGitHubActions() bool {
	return os.Getenv(EnvGitHubActions) == "true"
}
