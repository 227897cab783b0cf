package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/harekrishnarai/flowtaint/pkg/config"
	"github.com/harekrishnarai/flowtaint/pkg/constants"
	flowerrors "github.com/harekrishnarai/flowtaint/pkg/errors"
	"github.com/harekrishnarai/flowtaint/pkg/github"
	"github.com/harekrishnarai/flowtaint/pkg/logging"
	"github.com/harekrishnarai/flowtaint/pkg/organization"
	"github.com/harekrishnarai/flowtaint/pkg/policies"
	"github.com/harekrishnarai/flowtaint/pkg/report"
	"github.com/harekrishnarai/flowtaint/pkg/scanner"
	"github.com/harekrishnarai/flowtaint/pkg/terminal"
)

func main() {
	app := &cli.App{
		Name:    constants.AppName,
		Version: constants.AppVersion,
		Usage:   constants.AppUsage,
		Authors: []*cli.Author{
			{
				Name: "Flowtaint Team",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Local repository path to scan",
			},
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "GitHub repository to scan (URL or owner/repo)",
			},
			&cli.StringFlag{
				Name:  "repos-file",
				Usage: "File with one GitHub repository per line",
			},
			&cli.StringFlag{
				Name:  "org",
				Usage: "Scan every repository of a GitHub organization",
			},
			&cli.StringFlag{
				Name:  "repo-filter",
				Usage: "Regular expression on owner/name selecting organization repositories",
			},
			&cli.BoolFlag{
				Name:  "include-forks",
				Usage: "Include forked repositories in organization scans",
			},
			&cli.BoolFlag{
				Name:  "include-archived",
				Usage: "Include archived repositories in organization scans",
			},
			&cli.StringFlag{
				Name:    "workflow",
				Aliases: []string{"w"},
				Usage:   "Path to a single workflow file to scan",
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "Git ref to analyze for remote repositories (defaults to the default branch)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format (cli, json, markdown, sarif)",
			},
			&cli.StringFlag{
				Name:    "output-file",
				Aliases: []string{"f"},
				Usage:   "Output file path (if not specified, prints to stdout)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path (.flowtaint.yml)",
			},
			&cli.StringFlag{
				Name:    "policy",
				Aliases: []string{"p"},
				Usage:   "Rego policy file or directory used to suppress findings",
			},
			&cli.BoolFlag{
				Name:  "ignore-workflow-run",
				Usage: "Do not treat workflow_run as an untrusted trigger",
			},
			&cli.StringFlag{
				Name:  "min-confidence",
				Usage: "Minimum confidence to report (HIGH, MEDIUM, LOW, UNKNOWN)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of repositories analyzed concurrently",
			},
			&cli.StringSliceFlag{
				Name:  "enable",
				Usage: "Run only these visitors (comma-separated)",
			},
			&cli.StringSliceFlag{
				Name:  "disable",
				Usage: "Skip these visitors (comma-separated)",
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Do not call the GitHub API; remote actions and environments are not resolved",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Show explanations and full taint paths",
			},
			&cli.BoolFlag{
				Name:  "fail-on-findings",
				Usage: "Exit with status 1 when findings are reported",
			},
		},
		Action: scan,
		Commands: []*cli.Command{
			{
				Name:  "init-policy",
				Usage: "Create an example policy file",
				Action: func(c *cli.Context) error {
					outputPath := c.Args().First()
					if outputPath == "" {
						outputPath = "policies/example.rego"
					}

					fmt.Printf("Creating example policy file at %s...\n", outputPath)
					if err := policies.CreateExamplePolicy(outputPath); err != nil {
						return flowerrors.NewPolicyError("failed to create example policy", err, outputPath)
					}

					fmt.Println("Example policy file created successfully!")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		var ferr *flowerrors.FlowtaintError
		if errors.As(err, &ferr) {
			fmt.Fprintln(os.Stderr, ferr.UserFriendlyMessage())
		} else {
			fmt.Fprintln(os.Stderr, "❌", err)
		}
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		os.Exit(2)
	}
}

func scan(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return flowerrors.NewConfigError(constants.ErrConfigLoadFailed, err)
	}
	applyFlags(c, cfg)

	if !isSupportedFormat(cfg.Output.Format) {
		return flowerrors.ErrInvalidOutputFormat(cfg.Output.Format, constants.SupportedOutputFormats)
	}

	in := inputsFromFlags(c)
	log := logging.New(cfg, constants.AppName)

	gh, err := githubClient(cfg, in)
	if err != nil {
		return err
	}

	filter := organization.DefaultFilter()
	filter.IncludeForks = c.Bool("include-forks")
	filter.IncludeArchived = c.Bool("include-archived")
	filter.NameFilter = c.String("repo-filter")
	var lister organization.Lister
	if client, ok := gh.(*github.Client); ok {
		lister = client
	}
	targets, err := collectTargets(c.Context, in, lister, filter)
	if err != nil {
		return err
	}
	log.Debug("targets collected", "count", len(targets))

	var engine *policies.PolicyEngine
	if len(cfg.Policies.Paths) > 0 {
		var files []string
		for _, p := range cfg.Policies.Paths {
			found, err := policies.LoadPolicyFiles(p)
			if err != nil {
				return flowerrors.NewPolicyError("failed to load policies", err, p)
			}
			files = append(files, found...)
		}
		engine, err = policies.NewPolicyEngine(c.Context, files)
		if err != nil {
			return flowerrors.NewPolicyError("failed to compile policies", err, strings.Join(cfg.Policies.Paths, ","))
		}
		log.Debug("policies loaded", "files", len(files))
	}

	if cfg.Output.Format == constants.OutputFormatCLI && cfg.Output.File == "" && !constants.IsRunningInCI() {
		fmt.Printf("🔍 Flowtaint - %s\n", constants.AppUsage)
		fmt.Println("=======================================")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	s := scanner.New(cfg, gh, engine, log).WithTerminal(terminal.New(os.Stderr))
	result, err := s.Scan(ctx, targets)
	if err != nil {
		return err
	}

	gen := report.NewGenerator(result, cfg.Output.Format, cfg.Output.ShowExplanation || cfg.Output.ShowPath, cfg.Output.File)
	if err := gen.Generate(); err != nil {
		return flowerrors.NewReportError("failed to generate report", err, cfg.Output.File)
	}
	if constants.IsRunningInGitHubActions() {
		if err := report.WriteAnnotations(os.Stderr, result.Findings()); err != nil {
			log.Warn("failed to write workflow annotations", "error", err)
		}
	}

	if c.Bool("fail-on-findings") && result.Summary.Total > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

// applyFlags overrides configuration values with the flags that were set.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("output") {
		cfg.Output.Format = strings.ToLower(c.String("output"))
	}
	if c.IsSet("output-file") {
		cfg.Output.File = c.String("output-file")
	}
	if c.IsSet("min-confidence") {
		cfg.Analysis.MinConfidence = strings.ToUpper(c.String("min-confidence"))
	}
	if c.IsSet("workers") {
		cfg.Analysis.Workers = c.Int("workers")
	}
	if c.Bool("ignore-workflow-run") {
		cfg.Analysis.IgnoreWorkflowRun = true
	}
	if c.Bool("offline") {
		cfg.Analysis.Offline = true
	}
	if c.Bool("verbose") {
		cfg.Output.ShowExplanation = true
		cfg.Output.ShowPath = true
	}
	if c.IsSet("policy") {
		cfg.Policies.Paths = append(cfg.Policies.Paths, c.String("policy"))
	}
	if enabled := c.StringSlice("enable"); len(enabled) > 0 {
		cfg.Visitors.Enabled = append(cfg.Visitors.Enabled, enabled...)
	}
	if disabled := c.StringSlice("disable"); len(disabled) > 0 {
		cfg.Visitors.Disabled = append(cfg.Visitors.Disabled, disabled...)
	}
}

func isSupportedFormat(format string) bool {
	for _, f := range constants.SupportedOutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// githubClient returns the API client, or the offline stand-in when the
// scan is local and no token is configured.
func githubClient(cfg *config.Config, in inputs) (scanner.GitHub, error) {
	remote := in.remote()
	token := os.Getenv(constants.EnvGitHubToken)

	switch {
	case cfg.Analysis.Offline && remote:
		return nil, flowerrors.NewValidationError("remote repositories cannot be scanned offline", "offline", true,
			"Drop --offline or scan a local checkout with --repo")
	case cfg.Analysis.Offline:
		return github.Offline{}, nil
	case token == "" && !remote:
		return github.Offline{}, nil
	case token == "":
		fmt.Fprintf(os.Stderr, "⚠️  %s is not set, GitHub API requests are rate limited\n", constants.EnvGitHubToken)
	}
	return github.NewClient(), nil
}
