// Package scanner drives one analysis run: it loads workflows, builds the
// graph, runs the visitors and filters what they find.
package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/harekrishnarai/flowtaint/pkg/builder"
	"github.com/harekrishnarai/flowtaint/pkg/concurrent"
	"github.com/harekrishnarai/flowtaint/pkg/config"
	"github.com/harekrishnarai/flowtaint/pkg/constants"
	flowerrors "github.com/harekrishnarai/flowtaint/pkg/errors"
	"github.com/harekrishnarai/flowtaint/pkg/github"
	"github.com/harekrishnarai/flowtaint/pkg/parser"
	"github.com/harekrishnarai/flowtaint/pkg/policies"
	"github.com/harekrishnarai/flowtaint/pkg/report"
	"github.com/harekrishnarai/flowtaint/pkg/repository"
	"github.com/harekrishnarai/flowtaint/pkg/results"
	"github.com/harekrishnarai/flowtaint/pkg/terminal"
	"github.com/harekrishnarai/flowtaint/pkg/visitors"
)

// GitHub is the API surface a scan needs. *github.Client and github.Offline
// both satisfy it.
type GitHub interface {
	builder.Fetcher
	visitors.RuleSource
	repository.InfoSource
	WorkflowFiles(ctx context.Context, repo, ref string) ([]github.WorkflowFile, error)
}

// Target is one repository to analyze.
type Target struct {
	// Repo is the owner/name of the repository.
	Repo string
	// Ref is the branch, tag or SHA to analyze. Remote scans default to the
	// repository's default branch.
	Ref string
	// LocalPath is a checkout of Repo. When set, workflows and local
	// actions are read from disk.
	LocalPath string
	// WorkflowFile restricts a local scan to a single workflow.
	WorkflowFile string
}

func (t Target) String() string {
	if t.Repo != "" {
		return t.Repo
	}
	if t.WorkflowFile != "" {
		return t.WorkflowFile
	}
	return t.LocalPath
}

// Scanner analyzes repositories. It is safe for concurrent use: every
// repository gets its own builder and graph, only the registry is shared.
type Scanner struct {
	cfg      *config.Config
	gh       GitHub
	registry *repository.Registry
	policy   *policies.PolicyEngine
	log      hclog.Logger
	term     *terminal.Terminal
}

// New creates a scanner. policy and log may be nil.
func New(cfg *config.Config, gh GitHub, policy *policies.PolicyEngine, log hclog.Logger) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if gh == nil {
		gh = github.Offline{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Scanner{
		cfg:      cfg,
		gh:       gh,
		registry: repository.NewRegistry(gh),
		policy:   policy,
		log:      log,
		term:     terminal.New(nil),
	}
}

// WithTerminal enables a progress line on t for multi-repository scans.
func (s *Scanner) WithTerminal(t *terminal.Terminal) *Scanner {
	s.term = t
	return s
}

// Registry returns the repository registry shared by every scan.
func (s *Scanner) Registry() *repository.Registry { return s.registry }

// Scan analyzes every target with at most cfg.Analysis.Workers in flight.
// A target that fails is reported with its error and does not stop the
// others.
func (s *Scanner) Scan(ctx context.Context, targets []Target) (report.ScanResult, error) {
	start := time.Now()
	progress := s.term.NewProgress("Scanning repositories...", len(targets))

	pc := &concurrent.ProcessorConfig{
		MaxWorkers: s.cfg.Analysis.Workers,
		OnComplete: func(i int) { progress.Done(targets[i].String()) },
	}
	repos, err := concurrent.Process(ctx, pc, targets, func(ctx context.Context, t Target) (report.RepositoryReport, error) {
		rr, err := s.ScanRepository(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return rr, ctx.Err()
			}
			s.log.Error("repository scan failed", "repository", t.String(), "error", err)
			rr.Repository = t.String()
			rr.Error = err.Error()
		}
		return rr, nil
	})

	result := report.ScanResult{
		Repositories: repos,
		ScanTime:     start,
		Duration:     time.Since(start),
	}
	result.Summary = report.CalculateSummary(result.Findings())
	return result, err
}

// ScanRepository analyzes a single target.
func (s *Scanner) ScanRepository(ctx context.Context, t Target) (report.RepositoryReport, error) {
	log := s.log.With("repository", t.String())
	repo := t.Repo
	if repo == "" {
		repo = localName(t)
	}
	rr := report.RepositoryReport{Repository: repo}

	files, ref, err := s.loadWorkflows(ctx, repo, t)
	if err != nil {
		return rr, err
	}
	rr.WorkflowsCount = len(files)
	log.Debug("workflows loaded", "count", len(files), "ref", ref)

	b := builder.New(builder.Options{
		Registry:  s.registry,
		Fetcher:   s.gh,
		LocalRoot: t.LocalPath,
		LocalRepo: repo,
		Logger:    log,
		Exclude:   s.cfg.IsWorkflowExcluded,
	})
	g, err := b.Build(ctx, repo, ref, files)
	if err != nil {
		return rr, flowerrors.NewAnalysisError("failed to build workflow graph", err, "builder")
	}

	opts := visitors.Options{
		Logger:            log,
		Rules:             s.gh,
		Repos:             s.registry,
		Initialize:        b.Initializer(ctx),
		Factory:           results.NewFactory(),
		IgnoreWorkflowRun: s.cfg.Analysis.IgnoreWorkflowRun,
	}

	var findings []results.Result
	for _, v := range visitors.All(opts) {
		if !s.cfg.IsVisitorEnabled(v.Name()) {
			continue
		}
		found, err := v.Visit(ctx, g)
		if err != nil {
			return rr, flowerrors.NewAnalysisError("visitor failed", err, v.Name())
		}
		log.Debug("visitor finished", "visitor", v.Name(), "findings", len(found))
		findings = append(findings, found...)
	}

	findings = FilterByConfidence(Dedupe(findings), results.ParseConfidence(s.cfg.Analysis.MinConfidence))
	if s.policy != nil {
		kept, suppressed, err := s.policy.Filter(ctx, findings)
		if err != nil {
			return rr, flowerrors.NewPolicyError("failed to evaluate policies", err, "")
		}
		findings = kept
		rr.SuppressedCount = suppressed
	}

	rr.Findings = findings
	rr.SelfHostedWorkflows = s.registry.Repository(repo).SelfHostedWorkflows()
	return rr, nil
}

func (s *Scanner) loadWorkflows(ctx context.Context, repo string, t Target) ([]parser.WorkflowFile, string, error) {
	ref := t.Ref
	if ref == "" {
		ref = constants.DefaultRef
	}

	switch {
	case t.WorkflowFile != "":
		files, err := parser.LoadSingleWorkflow(t.WorkflowFile)
		if err != nil {
			return nil, ref, flowerrors.NewWorkflowError("failed to load workflow", err, t.WorkflowFile)
		}
		return files, ref, nil

	case t.LocalPath != "":
		files, err := parser.FindWorkflows(t.LocalPath)
		if err != nil {
			return nil, ref, flowerrors.NewRepositoryError("failed to load workflows", err, t.LocalPath)
		}
		return files, ref, nil
	}

	info, err := s.registry.Load(ctx, repo)
	if err != nil {
		s.log.Warn("repository metadata unavailable", "repository", repo, "error", err)
	} else if t.Ref == "" && info.DefaultBranch() != "" {
		ref = info.DefaultBranch()
	}

	remote, err := s.gh.WorkflowFiles(ctx, repo, t.Ref)
	if err != nil {
		return nil, ref, flowerrors.NewGitHubError("failed to fetch workflows", err, repo,
			"Set GITHUB_TOKEN to a token that can read the repository")
	}
	files := make([]parser.WorkflowFile, 0, len(remote))
	for _, rf := range remote {
		wf, err := parser.ParseWorkflow(rf.Path, rf.Content)
		if err != nil {
			s.log.Warn("skipping unparsable workflow", "repository", repo, "workflow", rf.Path, "error", err)
			continue
		}
		files = append(files, wf)
	}
	return files, ref, nil
}

func localName(t Target) string {
	dir := t.LocalPath
	if dir == "" {
		dir = filepath.Dir(filepath.Dir(filepath.Dir(t.WorkflowFile)))
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return fmt.Sprintf("local/%s", filepath.Base(dir))
}

// Dedupe keeps the first finding of each issue type per FirstAndLastHash.
func Dedupe(findings []results.Result) []results.Result {
	seen := make(map[string]bool, len(findings))
	out := make([]results.Result, 0, len(findings))
	for _, f := range findings {
		h := string(f.IssueType()) + ":" + f.FirstAndLastHash()
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, f)
	}
	return out
}

// FilterByConfidence drops findings ranked below min.
func FilterByConfidence(findings []results.Result, min results.Confidence) []results.Result {
	out := make([]results.Result, 0, len(findings))
	for _, f := range findings {
		if f.Confidence().Rank() >= min.Rank() {
			out = append(out, f)
		}
	}
	return out
}
