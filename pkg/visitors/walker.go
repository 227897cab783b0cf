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

// Package visitors walks attack paths through the workflow graph and turns
// the exploitable ones into results.
//
// Every visitor selects seed workflows by trigger tag, enumerates paths to a
// target tag with graph.DFSToTag and replays each path through the same
// state machine. The state tracks where expressions come from (workflow
// inputs, env and job outputs) and whether a human approval stands between
// the trigger and the target.
package visitors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/harekrishnarai/flowtaint/pkg/github"
	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/results"
)

// RuleSource provides deployment environment protection rules.
type RuleSource interface {
	EnvironmentProtectionRules(ctx context.Context, repo string) (map[string]github.ProtectionRule, error)
}

// ForkChecker reports whether a repository is a fork.
type ForkChecker interface {
	IsFork(repo string) bool
}

// Options are the collaborators shared by all visitors. Every field is optional.
type Options struct {
	Logger hclog.Logger
	Rules  RuleSource
	Repos  ForkChecker
	// Initialize splices composite action steps into the graph.
	Initialize graph.Initializer
	Factory    *results.Factory
	// IgnoreWorkflowRun drops workflow_run seeds from the Pwn Request visitor.
	IgnoreWorkflowRun bool
}

// Visitor finds one class of issue in a graph.
type Visitor interface {
	Name() string
	Visit(ctx context.Context, g *graph.TaggedGraph) ([]results.Result, error)
}

type pathState struct {
	inputLookup    map[string]string
	envLookup      map[string]string
	flexibleLookup map[string]string
	approvalGate   bool
}

func newPathState() *pathState {
	return &pathState{
		inputLookup:    map[string]string{},
		envLookup:      map[string]string{},
		flexibleLookup: map[string]string{},
	}
}

// maxIndirection bounds lookup chains such as input -> env -> event field.
const maxIndirection = 8

func (s *pathState) lookup(v string) (string, bool) {
	if x, ok := s.inputLookup[v]; ok {
		return x, true
	}
	if name, ok := strings.CutPrefix(v, "env."); ok {
		if x, ok := s.envLookup[name]; ok {
			return x, true
		}
	}
	if i := strings.LastIndex(v, ".outputs."); i >= 0 {
		if x, ok := s.flexibleLookup[v[i+len(".outputs."):]]; ok {
			return x, true
		}
	}
	return "", false
}

// resolve follows a single expression through the lookups.
func (s *pathState) resolve(v string) string {
	v = ProcessContextVar(v)
	for i := 0; i < maxIndirection; i++ {
		next, ok := s.lookup(v)
		if !ok || next == v {
			break
		}
		v = next
	}
	return v
}

var exprPattern = regexp.MustCompile(`\$\{\{\s*(.*?)\s*\}\}`)

// resolveTemplate resolves every expression embedded in s, e.g. a ref of
// the form refs/pull/${{ inputs.pr }}/merge.
func (s *pathState) resolveTemplate(t string) string {
	if !strings.Contains(t, "${{") {
		return s.resolve(t)
	}
	return exprPattern.ReplaceAllStringFunc(t, func(m string) string {
		return s.resolve(m)
	})
}

func (s *pathState) seedEnv(vars map[string]string) {
	for k, v := range vars {
		s.envLookup[k] = s.resolve(v)
	}
}

// scopeEnv seeds vars and returns a func that puts back the values they
// shadowed.
func (s *pathState) scopeEnv(vars map[string]string) func() {
	saved := make(map[string]*string, len(vars))
	for k := range vars {
		if old, ok := s.envLookup[k]; ok {
			saved[k] = &old
		} else {
			saved[k] = nil
		}
	}
	s.seedEnv(vars)
	return func() {
		for k, old := range saved {
			if old == nil {
				delete(s.envLookup, k)
			} else {
				s.envLookup[k] = *old
			}
		}
	}
}

type stepFunc func(ctx context.Context, st *pathState, path []graph.Node, i int, step *graph.StepNode) (done bool, err error)

// walker is the per-run state of a visitor. Each Visit call owns one.
type walker struct {
	g       *graph.TaggedGraph
	opts    Options
	log     hclog.Logger
	factory *results.Factory

	// ruleCache memoizes protection rules per repository for this run.
	ruleCache map[string]map[string]github.ProtectionRule
	results   []results.Result
}

func newWalker(g *graph.TaggedGraph, opts Options, name string) *walker {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	factory := opts.Factory
	if factory == nil {
		factory = results.NewFactory()
	}
	return &walker{
		g:         g,
		opts:      opts,
		log:       log.Named(name),
		factory:   factory,
		ruleCache: map[string]map[string]github.ProtectionRule{},
	}
}

// run searches from every seed to target and hands each path to process.
// Failures on one path are logged and the path skipped, except for an
// unknown issue type which aborts the run.
func (w *walker) run(ctx context.Context, seeds []string, target string, process func(context.Context, []graph.Node) error) ([]results.Result, error) {
	for _, seed := range w.g.NodesForTags(seeds...) {
		if err := ctx.Err(); err != nil {
			return w.results, err
		}
		paths, err := w.search(seed, target)
		if err != nil {
			w.log.Warn("path search failed", "seed", seed.ID(), "target", target, "error", err)
			continue
		}
		for _, p := range paths {
			if err := w.safely(ctx, p, process); err != nil {
				if errors.Is(err, results.ErrUnknownIssueType) {
					return w.results, err
				}
				w.log.Warn("skipping path", "seed", seed.ID(), "path_end", p[len(p)-1].ID(), "error", err)
			}
		}
	}
	w.log.Debug("visit complete", "findings", len(w.results))
	return w.results, nil
}

func (w *walker) search(seed graph.Node, target string) (paths [][]graph.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during path search: %v", r)
		}
	}()
	return w.g.DFSToTag(seed, target, w.opts.Initialize)
}

func (w *walker) safely(ctx context.Context, p []graph.Node, process func(context.Context, []graph.Node) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing path: %v", r)
		}
	}()
	return process(ctx, p)
}

func (w *walker) emit(issue results.IssueType, path []graph.Node, confidence results.Confidence, complexity results.Complexity) error {
	r, err := w.factory.Create(issue, path, confidence, complexity)
	if err != nil {
		return err
	}
	w.results = append(w.results, r)
	return nil
}

// walk replays path through the state machine. onWorkflow may reject the
// seed workflow; onStep returns done once the path reached its verdict.
func (w *walker) walk(ctx context.Context, path []graph.Node, onWorkflow func(*pathState, *graph.WorkflowNode) bool, onStep stepFunc) error {
	st := newPathState()
	for i, node := range path {
		switch n := node.(type) {
		case *graph.WorkflowNode:
			if i == 0 {
				if n.Excluded || (w.opts.Repos != nil && w.opts.Repos.IsFork(n.RepoName)) {
					return nil
				}
				if n.HasTag(graph.TriggerPullRequestTargetLabeled) {
					st.approvalGate = true
				}
				if onWorkflow != nil && !onWorkflow(st, n) {
					return nil
				}
			} else if caller, ok := path[i-1].(*graph.JobNode); ok {
				for k, v := range caller.Params {
					st.inputLookup[k] = st.resolve(v)
				}
			}
			st.seedEnv(n.EnvVars)

		case *graph.JobNode:
			abandon, err := w.enterJob(ctx, st, path, n)
			if err != nil {
				return err
			}
			if abandon {
				return nil
			}

		case *graph.StepNode:
			if n.HardGate {
				return nil
			}
			if n.SoftGate {
				st.approvalGate = true
			}
			restore := st.scopeEnv(n.Env)
			done, err := onStep(ctx, st, path, i, n)
			if err != nil || done {
				return err
			}
			for k, v := range n.Outputs {
				st.flexibleLookup[k] = st.resolveTemplate(v)
			}
			restore()

		case *graph.ActionNode:
			if n.HasTag(graph.TagUninitialized) && w.opts.Initialize != nil {
				if err := w.opts.Initialize(n); err != nil {
					return fmt.Errorf("initialize %s: %w", n.ID(), err)
				}
				if err := w.g.RemoveTagsFromNode(n, graph.TagUninitialized); err != nil {
					return err
				}
			}
			// composite steps read their with: values as inputs.
			for k, v := range n.With {
				st.inputLookup[k] = st.resolve(v)
			}
		}
	}
	return nil
}

func (w *walker) enterJob(ctx context.Context, st *pathState, path []graph.Node, job *graph.JobNode) (bool, error) {
	st.seedEnv(job.Env)
	for _, d := range job.Deployments {
		gated, err := w.deploymentGated(ctx, st, job.RepoName, d.Name)
		if err != nil {
			return false, err
		}
		if gated {
			st.approvalGate = true
		}
	}

	blockers, err := w.g.DFSToTag(job, graph.TagPermissionBlocker, w.opts.Initialize)
	if err != nil {
		return false, err
	}
	for _, b := range blockers {
		if inPath(path, b[len(b)-1]) {
			return true, nil
		}
	}

	checks, err := w.g.DFSToTag(job, graph.TagPermissionCheck, w.opts.Initialize)
	if err != nil {
		return false, err
	}
	if len(checks) > 0 {
		st.approvalGate = true
	}

	for k, v := range job.Outputs {
		if name, ok := strings.CutPrefix(ProcessContextVar(v), "env."); ok {
			if x, ok := st.envLookup[name]; ok {
				st.flexibleLookup[k] = x
			}
		}
	}
	return false, nil
}

// deploymentGated reports whether deploying to env waits for a reviewer.
// An env name that stays an expression after resolution is gated when any
// of its literal branches names a protected environment.
func (w *walker) deploymentGated(ctx context.Context, st *pathState, repo, env string) (bool, error) {
	if env == "" {
		return false, nil
	}
	rules, err := w.rules(ctx, repo)
	if err != nil {
		return false, err
	}
	if len(rules) == 0 {
		return false, nil
	}

	resolved := st.resolve(env)
	if r, ok := rules[resolved]; ok {
		return r.RequiresApproval(), nil
	}
	for name, r := range rules {
		if r.RequiresApproval() && (strings.Contains(resolved, "'"+name+"'") || strings.Contains(resolved, `"`+name+`"`)) {
			return true, nil
		}
	}
	return false, nil
}

func (w *walker) rules(ctx context.Context, repo string) (map[string]github.ProtectionRule, error) {
	if w.opts.Rules == nil {
		return nil, nil
	}
	if cached, ok := w.ruleCache[repo]; ok {
		return cached, nil
	}
	rules, err := w.opts.Rules.EnvironmentProtectionRules(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("protection rules for %s: %w", repo, err)
	}
	w.ruleCache[repo] = rules
	return rules, nil
}

// checkoutOutcome is the verdict on a checkout step.
type checkoutOutcome struct {
	path      []graph.Node
	mutable   bool
	sinkFound bool
}

// evalCheckout classifies the checked out ref and searches for a sink that
// runs the checked out code. It returns nil when the ref resolves to the base
// branch or an approval gate protects an immutable ref.
func (w *walker) evalCheckout(st *pathState, path []graph.Node, i int, step *graph.StepNode) (*checkoutOutcome, error) {
	ref := st.resolveTemplate(step.Metadata)
	if IsBaseRef(ref) {
		return nil, nil
	}
	mutable := CheckMutableRef(ref, path[0].Tags())
	if !mutable && st.approvalGate {
		return nil, nil
	}

	out := &checkoutOutcome{path: append([]graph.Node(nil), path[:i+1]...), mutable: mutable}
	sinks, err := w.g.DFSToTag(step, graph.TagSink, w.opts.Initialize)
	if err != nil {
		return nil, err
	}
	if len(sinks) > 0 {
		first := sinks[0]
		if sink := first[len(first)-1]; sink != graph.Node(step) {
			out.path = append(out.path, sink)
		}
		out.sinkFound = true
	}
	return out, nil
}

func inPath(path []graph.Node, n graph.Node) bool {
	for _, p := range path {
		if p == n {
			return true
		}
	}
	return false
}
