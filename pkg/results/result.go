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

// Package results holds the finding records produced by the visitors.
package results

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
)

// Result is a confirmed finding. Results are immutable once created.
type Result interface {
	RepositoryName() string
	IssueType() IssueType
	Confidence() Confidence
	Complexity() Complexity
	Path() []graph.Node
	Triggers() []string
	InitialWorkflow() string
	InitialWorkflowPath() string
	// ToMachine returns the stable key/value form used for serialization.
	ToMachine() map[string]interface{}
	// FirstAndLastHash identifies findings sharing entry point, sink and scoring.
	FirstAndLastHash() string
}

// AnalysisResult carries the fields shared by every finding kind.
type AnalysisResult struct {
	repoName   string
	issueType  IssueType
	path       []graph.Node
	confidence Confidence
	complexity Complexity
}

func newAnalysisResult(issueType IssueType, path []graph.Node, confidence Confidence, complexity Complexity) AnalysisResult {
	return AnalysisResult{
		repoName:   repoOf(path[0]),
		issueType:  issueType,
		path:       append([]graph.Node(nil), path...),
		confidence: confidence,
		complexity: complexity,
	}
}

func (r *AnalysisResult) RepositoryName() string { return r.repoName }
func (r *AnalysisResult) IssueType() IssueType    { return r.issueType }
func (r *AnalysisResult) Confidence() Confidence  { return r.confidence }
func (r *AnalysisResult) Complexity() Complexity  { return r.complexity }

// Path returns a copy of the attack path.
func (r *AnalysisResult) Path() []graph.Node {
	return append([]graph.Node(nil), r.path...)
}

// Triggers returns the triggers of the workflow the path starts in.
func (r *AnalysisResult) Triggers() []string {
	if wf, ok := r.path[0].(*graph.WorkflowNode); ok {
		return append([]string{}, wf.Triggers...)
	}
	return []string{}
}

func (r *AnalysisResult) InitialWorkflow() string {
	if wf, ok := r.path[0].(*graph.WorkflowNode); ok {
		return wf.WorkflowName
	}
	return r.path[0].String()
}

func (r *AnalysisResult) InitialWorkflowPath() string {
	if wf, ok := r.path[0].(*graph.WorkflowNode); ok {
		return wf.WorkflowPath
	}
	return ""
}

func (r *AnalysisResult) FirstAndLastHash() string {
	h := sha256.New()
	for _, part := range []string{
		r.path[0].String(),
		r.path[len(r.path)-1].String(),
		string(r.complexity),
		string(r.confidence),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r *AnalysisResult) steps() []string {
	out := make([]string, 0, len(r.path))
	for _, n := range r.path {
		out = append(out, n.String())
	}
	return out
}

func (r *AnalysisResult) machine(triggers []string) map[string]interface{} {
	return map[string]interface{}{
		"repository_name":   r.repoName,
		"issue_type":        string(r.issueType),
		"triggers":          triggers,
		"initial_workflow":  r.InitialWorkflow(),
		"confidence":        string(r.confidence),
		"attack_complexity": string(r.complexity),
		"explanation":       r.complexity.Explanation(),
		"path":              r.steps(),
	}
}

// PwnRequestResult is a checkout of attacker controlled code followed by a
// sink. Dispatch TOCTOU and artifact poisoning findings share its shape.
type PwnRequestResult struct {
	AnalysisResult
}

// Sink returns the resolved sink payload, or NotDetected unless the
// finding has high confidence.
func (r *PwnRequestResult) Sink() string {
	if r.confidence != High {
		return NotDetected
	}
	switch n := r.path[len(r.path)-1].(type) {
	case *graph.StepNode:
		return n.Payload()
	case *graph.ActionNode:
		return n.Uses
	default:
		return n.String()
	}
}

func (r *PwnRequestResult) ToMachine() map[string]interface{} {
	m := r.machine(r.Triggers())
	m["sink"] = r.Sink()
	return m
}

// DispatchTOCTOUResult is a workflow_dispatch checkout of a pull request
// head that can change after the dispatch was approved.
type DispatchTOCTOUResult struct {
	PwnRequestResult
}

// InjectionResult is an attacker controlled expression interpolated into a
// script.
type InjectionResult struct {
	AnalysisResult
}

// InjectableContexts returns the expressions evaluated by the final step.
func (r *InjectionResult) InjectableContexts() []string {
	if step, ok := r.path[len(r.path)-1].(*graph.StepNode); ok {
		return append([]string{}, step.Contexts...)
	}
	return []string{}
}

func (r *InjectionResult) ToMachine() map[string]interface{} {
	m := r.machine(r.Triggers())
	m["injectable_contexts"] = r.InjectableContexts()
	return m
}

// Render returns a human readable description of the finding.
func (r *InjectionResult) Render() string {
	return render(&r.AnalysisResult, r.Triggers(), r.InjectableContexts())
}

// ReviewInjectionResult is an injection reached from a pull request review
// or review comment.
type ReviewInjectionResult struct {
	InjectionResult
}

var reviewTriggers = map[string]bool{
	graph.TriggerPullRequestReview:        true,
	graph.TriggerPullRequestReviewComment: true,
}

// Triggers returns only the review triggers of the initial workflow.
func (r *ReviewInjectionResult) Triggers() []string {
	out := []string{}
	for _, t := range r.InjectionResult.Triggers() {
		if reviewTriggers[t] {
			out = append(out, t)
		}
	}
	return out
}

func (r *ReviewInjectionResult) ToMachine() map[string]interface{} {
	m := r.machine(r.Triggers())
	m["injectable_contexts"] = r.InjectableContexts()
	return m
}

func (r *ReviewInjectionResult) Render() string {
	return render(&r.AnalysisResult, r.Triggers(), r.InjectableContexts())
}

func render(r *AnalysisResult, triggers, contexts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", r.repoName)
	fmt.Fprintf(&b, "Issue: %s\n", r.issueType)
	fmt.Fprintf(&b, "Workflow: %s\n", r.InitialWorkflow())
	fmt.Fprintf(&b, "Triggers: %s\n", strings.Join(triggers, ", "))
	fmt.Fprintf(&b, "Confidence: %s\n", r.confidence)
	fmt.Fprintf(&b, "Complexity: %s\n", r.complexity)
	fmt.Fprintf(&b, "  %s\n", r.complexity.Explanation())
	b.WriteString("Path:\n")
	for _, s := range r.steps() {
		fmt.Fprintf(&b, "  -> %s\n", s)
	}
	b.WriteString("Injectable contexts:\n")
	for _, c := range contexts {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	return b.String()
}

func repoOf(n graph.Node) string {
	switch v := n.(type) {
	case *graph.WorkflowNode:
		return v.RepoName
	case *graph.JobNode:
		return v.RepoName
	case *graph.StepNode:
		return v.RepoName
	case *graph.ActionNode:
		return v.RepoName
	}
	return ""
}
