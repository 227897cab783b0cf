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

// Package builder turns parsed workflow files into a tagged graph.
//
// Workflows point at their root jobs, jobs point at the jobs that need
// them and at their first step, and steps are chained in order. A step
// that uses a third party or local action is followed by an uninitialized
// ActionNode; its steps are spliced in lazily by InitializeActionNode when a
// search first reaches it. Jobs that call reusable workflows point at the
// callee workflow node.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/linenum"
	"github.com/harekrishnarai/flowtaint/pkg/parser"
	"github.com/harekrishnarai/flowtaint/pkg/repository"
)

// Fetcher reads a file of a remote repository at ref. A missing file is
// reported with an error wrapping os.ErrNotExist.
type Fetcher interface {
	FileContents(ctx context.Context, repo, path, ref string) ([]byte, error)
}

// Options configure a Builder. Every field is optional.
type Options struct {
	Registry *repository.Registry
	Fetcher  Fetcher
	// LocalRoot is a checkout of LocalRepo. Local actions and reusable
	// workflows of that repository are read from it instead of fetched.
	LocalRoot string
	LocalRepo string
	Logger    hclog.Logger
	// Exclude marks workflows by repository relative path. Excluded
	// workflows stay in the graph but are never reported.
	Exclude func(workflowPath string) bool
}

type pendingCall struct {
	caller *graph.JobNode
	uses   string
	ref    string
}

// Builder accumulates workflows into one graph. It is not safe for
// concurrent use.
type Builder struct {
	g    *graph.TaggedGraph
	opts Options
	log  hclog.Logger

	workflows map[string]*graph.WorkflowNode
	pending   []pendingCall
	actions   map[string]*parser.ActionMetadata
}

// New creates an empty builder.
func New(opts Options) *Builder {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Builder{
		g:         graph.New(),
		opts:      opts,
		log:       log.Named("builder"),
		workflows: map[string]*graph.WorkflowNode{},
		actions:   map[string]*parser.ActionMetadata{},
	}
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *graph.TaggedGraph { return b.g }

// Build adds every workflow of repo at ref and links reusable workflow calls.
func (b *Builder) Build(ctx context.Context, repo, ref string, files []parser.WorkflowFile) (*graph.TaggedGraph, error) {
	for _, f := range files {
		if _, err := b.AddWorkflow(repo, ref, f); err != nil {
			return nil, err
		}
	}
	if err := b.Finish(ctx); err != nil {
		return nil, err
	}
	return b.g, nil
}

func workflowKey(repo, workflowPath string) string {
	return repo + ":" + strings.TrimPrefix(workflowPath, "./")
}

// AddWorkflow adds a workflow, its jobs and their steps. Adding the same
// workflow twice returns the existing node.
func (b *Builder) AddWorkflow(repo, ref string, f parser.WorkflowFile) (*graph.WorkflowNode, error) {
	key := workflowKey(repo, f.Path)
	if existing, ok := b.workflows[key]; ok {
		return existing, nil
	}

	wf := graph.NewWorkflowNode(repo, ref, f.Path, triggerTags(f.Workflow.Triggers()))
	for name, in := range f.Workflow.Inputs() {
		wi := graph.WorkflowInput{Description: in.Description, Type: in.Type, Required: in.Required}
		if in.Default != nil {
			wi.Default = fmt.Sprint(in.Default)
		}
		wf.Inputs[name] = wi
	}
	for k, v := range f.Workflow.Env {
		wf.EnvVars[k] = v
	}
	if b.opts.Exclude != nil && b.opts.Exclude(f.Path) {
		wf.Excluded = true
	}
	if err := b.g.AddNode(wf); err != nil {
		return nil, err
	}
	b.workflows[key] = wf

	lines, err := linenum.Build(f.Content)
	if err != nil {
		b.log.Debug("no line information", "workflow", f.Path, "error", err)
	}

	jobs := make(map[string]*graph.JobNode, len(f.Workflow.Jobs))
	var selfHosted bool
	for _, id := range f.Workflow.JobIDs() {
		job, err := b.addJob(wf, ref, id, f.Workflow.Jobs[id], lines)
		if err != nil {
			return nil, err
		}
		jobs[id] = job
		if job.HasTag(graph.TagSelfHosted) {
			selfHosted = true
		}
	}

	for _, id := range f.Workflow.JobIDs() {
		needs := f.Workflow.Jobs[id].NeedsList()
		var linked bool
		for _, n := range needs {
			dep, ok := jobs[n]
			if !ok {
				continue
			}
			if err := b.g.AddEdge(dep, jobs[id]); err != nil {
				return nil, err
			}
			linked = true
		}
		if !linked {
			if err := b.g.AddEdge(wf, jobs[id]); err != nil {
				return nil, err
			}
		}
	}

	if selfHosted && b.opts.Registry != nil {
		b.opts.Registry.Repository(repo).AddSelfHostedWorkflows([]string{f.Path})
	}
	b.log.Trace("workflow added", "repo", repo, "workflow", f.Path, "jobs", len(jobs))
	return wf, nil
}

// triggerTags maps declared events to tags. pull_request_target limited to
// the labeled activity becomes its own tag.
func triggerTags(triggers map[string][]string) []string {
	tags := make([]string, 0, len(triggers))
	for ev, types := range triggers {
		if ev == graph.TriggerPullRequestTarget && len(types) == 1 && types[0] == "labeled" {
			tags = append(tags, graph.TriggerPullRequestTargetLabeled)
			continue
		}
		tags = append(tags, ev)
	}
	sort.Strings(tags)
	return tags
}

func (b *Builder) addJob(wf *graph.WorkflowNode, ref, id string, j parser.Job, lines *linenum.Index) (*graph.JobNode, error) {
	job := graph.NewJobNode(wf, id)
	job.Line = lines.Job(id)
	job.Name = j.Name
	job.If = j.If
	job.RunsOn = j.RunsOnLabels()
	job.Uses = j.Uses
	job.Params = parser.StringMap(j.With)
	for k, v := range j.Outputs {
		job.Outputs[k] = v
	}
	for k, v := range j.Env {
		job.Env[k] = v
	}
	for _, e := range j.Environments() {
		job.Deployments = append(job.Deployments, graph.Deployment{Name: e.Name, URL: e.URL})
	}

	var tags []string
	for _, l := range job.RunsOn {
		if strings.EqualFold(l, "self-hosted") {
			tags = append(tags, graph.TagSelfHosted)
			break
		}
	}
	if sameRepoCondition(j.If) {
		tags = append(tags, graph.TagPermissionBlocker)
	}
	if permissionCondition(j.If) || labelCondition(j.If) {
		tags = append(tags, graph.TagPermissionCheck)
	}
	if j.Uses != "" {
		tags = append(tags, graph.TagReusable)
	}
	if err := b.g.AddNodeWithTags(job, tags...); err != nil {
		return nil, err
	}

	if j.Uses != "" {
		b.pending = append(b.pending, pendingCall{caller: job, uses: j.Uses, ref: ref})
		return job, nil
	}
	stepLine := func(i int) int { return lines.Step(id, i) }
	if _, err := b.addSteps(job, job.ID(), wf.RepoName, ref, j.Steps, stepLine); err != nil {
		return nil, err
	}
	return job, nil
}

// addSteps chains steps after parent and returns the last node of the chain.
// line, when set, gives the source line of step i.
func (b *Builder) addSteps(parent graph.Node, parentID, repo, ref string, steps []parser.Step, line func(i int) int) (graph.Node, error) {
	prev := parent
	for i, s := range steps {
		step := graph.NewStepNode(parentID, repo, i)
		if line != nil {
			step.Line = line(i)
		}
		step.Name = s.Name
		step.StepID = s.ID
		step.If = s.If
		step.Uses = s.Uses
		step.Run = s.Run
		step.With = parser.StringMap(s.With)
		for k, v := range s.Env {
			step.Env[k] = v
		}

		if err := b.g.AddNodeWithTags(step, tagStep(step)...); err != nil {
			return nil, err
		}
		if err := b.g.AddEdge(prev, step); err != nil {
			return nil, err
		}
		prev = step

		if ar, ok := parseActionRef(s.Uses); ok && !builtinAction(s.Uses) {
			action := graph.NewActionNode(step, s.Uses)
			action.Owner, action.Repo, action.Path, action.Ref = ar.owner, ar.repo, ar.path, ar.ref
			action.IsLocal = ar.local
			action.CallerRef = ref
			for k, v := range step.With {
				action.With[k] = v
			}
			if err := b.g.AddNode(action); err != nil {
				return nil, err
			}
			if err := b.g.AddEdge(step, action); err != nil {
				return nil, err
			}
			prev = action
		}
	}
	return prev, nil
}

// Finish links every reusable workflow call to its callee, loading callees
// that were not added yet from disk or through the fetcher. Callees that
// cannot be found leave the calling job unlinked.
func (b *Builder) Finish(ctx context.Context) error {
	for len(b.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		call := b.pending[0]
		b.pending = b.pending[1:]

		callee, err := b.resolveWorkflow(ctx, call)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				b.log.Debug("reusable workflow not found", "caller", call.caller.ID(), "uses", call.uses)
			} else {
				b.log.Warn("failed to load reusable workflow", "caller", call.caller.ID(), "uses", call.uses, "error", err)
			}
			continue
		}
		if err := b.g.AddEdge(call.caller, callee); err != nil {
			return err
		}
		callee.Callers = append(callee.Callers, call.caller)
	}
	return nil
}

func (b *Builder) resolveWorkflow(ctx context.Context, call pendingCall) (*graph.WorkflowNode, error) {
	repo, wfPath, ref := call.caller.RepoName, "", call.ref
	if strings.HasPrefix(call.uses, "./") {
		wfPath = strings.TrimPrefix(call.uses, "./")
	} else {
		ar, ok := parseActionRef(call.uses)
		if !ok || ar.local {
			return nil, fmt.Errorf("unsupported reusable workflow reference %q", call.uses)
		}
		repo, wfPath, ref = ar.owner+"/"+ar.repo, ar.path, ar.ref
	}

	if wf, ok := b.workflows[workflowKey(repo, wfPath)]; ok {
		return wf, nil
	}
	content, err := b.readFile(ctx, repo, wfPath, ref)
	if err != nil {
		return nil, err
	}
	f, err := parser.ParseWorkflow(wfPath, content)
	if err != nil {
		return nil, err
	}
	return b.AddWorkflow(repo, ref, f)
}

// readFile reads a repository file from the local checkout when repo is the
// local repository, else through the fetcher.
func (b *Builder) readFile(ctx context.Context, repo, p, ref string) ([]byte, error) {
	if b.opts.LocalRoot != "" && repo == b.opts.LocalRepo {
		return os.ReadFile(filepath.Join(b.opts.LocalRoot, filepath.FromSlash(p)))
	}
	if b.opts.Fetcher == nil {
		return nil, fmt.Errorf("%s/%s: %w", repo, p, os.ErrNotExist)
	}
	return b.opts.Fetcher.FileContents(ctx, repo, p, ref)
}

type actionRef struct {
	owner, repo, path, ref string
	local                  bool
}

// parseActionRef splits a uses: value. Docker image references are not
// actions the graph can expand.
func parseActionRef(uses string) (actionRef, bool) {
	if uses == "" || strings.HasPrefix(uses, "docker://") {
		return actionRef{}, false
	}
	if strings.HasPrefix(uses, "./") {
		return actionRef{path: path.Clean(strings.TrimPrefix(uses, "./")), local: true}, true
	}
	name, ref, _ := strings.Cut(uses, "@")
	parts := strings.SplitN(name, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return actionRef{}, false
	}
	ar := actionRef{owner: parts[0], repo: parts[1], ref: ref}
	if len(parts) == 3 {
		ar.path = parts[2]
	}
	return ar, true
}

func actionName(uses string) string {
	name, _, _ := strings.Cut(uses, "@")
	return strings.ToLower(name)
}

// builtinAction reports actions whose behaviour the step tags already
// describe. They never get an ActionNode.
func builtinAction(uses string) bool {
	return strings.HasPrefix(actionName(uses), "actions/")
}

var exprPattern = regexp.MustCompile(`\$\{\{\s*(.*?)\s*\}\}`)

// safeContextPrefixes evaluate to values an external contributor cannot set.
var safeContextPrefixes = []string{"secrets.", "matrix.", "runner.", "job.", "strategy.", "vars."}

// expressionContexts returns the inner expressions of s that may carry
// attacker data, in order of appearance and without duplicates.
func expressionContexts(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range exprPattern.FindAllStringSubmatch(s, -1) {
		expr := m[1]
		if expr == "" || seen[expr] {
			continue
		}
		safe := false
		for _, p := range safeContextPrefixes {
			if strings.HasPrefix(expr, p) {
				safe = true
				break
			}
		}
		if !safe {
			seen[expr] = true
			out = append(out, expr)
		}
	}
	return out
}

var (
	sameRepoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`github\.event\.pull_request\.head\.repo\.full_name\s*==\s*github\.repository\b`),
		regexp.MustCompile(`github\.repository\s*==\s*github\.event\.pull_request\.head\.repo\.full_name`),
		regexp.MustCompile(`github\.event\.pull_request\.head\.repo\.fork\s*==\s*false`),
		regexp.MustCompile(`!\s*github\.event\.pull_request\.head\.repo\.fork`),
	}
	labelPattern      = regexp.MustCompile(`labels|label\.name`)
	permissionPattern = regexp.MustCompile(`author_association|getCollaboratorPermissionLevel|/collaborators/[^ ]*/permission`)
	actorPattern      = regexp.MustCompile(`github\.actor|github\.triggering_actor|author_association|permission`)
)

// sameRepoCondition matches conditions that only hold for pull requests
// from branches of the base repository.
func sameRepoCondition(cond string) bool {
	for _, p := range sameRepoPatterns {
		if p.MatchString(cond) {
			return true
		}
	}
	return false
}

func permissionCondition(cond string) bool { return permissionPattern.MatchString(cond) }

func labelCondition(cond string) bool { return labelPattern.MatchString(cond) }
