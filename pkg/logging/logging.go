// Package logging builds the hclog loggers used across a scan.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/harekrishnarai/flowtaint/pkg/config"
	"github.com/harekrishnarai/flowtaint/pkg/constants"
)

// New creates a logger named name that writes to stderr, keeping stdout
// free for reports.
func New(cfg *config.Config, name string) hclog.Logger {
	return NewWithOutput(cfg, name, os.Stderr)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(cfg *config.Config, name string, out io.Writer) hclog.Logger {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       determineLogLevel(cfg),
		JSONFormat:  cfg.Logging.JSON,
		DisableTime: true,
		Output:      out,
	})
}

// determineLogLevel prefers FLOWTAINT_LOG_LEVEL over the configured level.
func determineLogLevel(cfg *config.Config) hclog.Level {
	if env := os.Getenv(constants.EnvLogLevel); env != "" {
		return parseLogLevel(env)
	}
	return parseLogLevel(cfg.Logging.Level)
}

// parseLogLevel converts a string level to hclog.Level. Unknown values
// fall back to warn.
func parseLogLevel(level string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN", "WARNING":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	case "OFF":
		return hclog.Off
	default:
		return hclog.Warn
	}
}
