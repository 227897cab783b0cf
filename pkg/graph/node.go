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

package graph

import (
	"fmt"
	"path"
	"sort"
)

// Node is a vertex of the workflow graph. The concrete type is one of
// *WorkflowNode, *JobNode, *StepNode or *ActionNode; callers discriminate
// with a type switch. Tags carry security classification only.
type Node interface {
	// ID returns the unique identifier of the node within a graph.
	ID() string
	// String returns the stable display form used in reports and hashes.
	String() string
	// Tags returns a sorted snapshot of the node's tags.
	Tags() []string
	// HasTag reports whether the node currently carries tag.
	HasTag(tag string) bool

	base() *nodeBase
}

type nodeBase struct {
	id   string
	tags map[string]struct{}
}

func newBase(id string, tags ...string) nodeBase {
	b := nodeBase{id: id, tags: make(map[string]struct{}, len(tags))}
	for _, t := range tags {
		b.tags[t] = struct{}{}
	}
	return b
}

func (b *nodeBase) ID() string { return b.id }

func (b *nodeBase) Tags() []string {
	out := make([]string, 0, len(b.tags))
	for t := range b.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (b *nodeBase) HasTag(tag string) bool {
	_, ok := b.tags[tag]
	return ok
}

func (b *nodeBase) base() *nodeBase { return b }

// WorkflowInput describes a declared workflow_call or workflow_dispatch input
type WorkflowInput struct {
	Description string
	Type        string
	Required    bool
	Default     string
}

// WorkflowNode represents a workflow file, either an entry point or a
// reusable workflow reached through a calling job.
type WorkflowNode struct {
	nodeBase

	RepoName     string
	Ref          string
	WorkflowName string
	WorkflowPath string
	Inputs       map[string]WorkflowInput
	EnvVars      map[string]string
	Triggers     []string
	Excluded     bool
	Callers      []*JobNode
}

// NewWorkflowNode creates a workflow node. Every trigger becomes a tag.
func NewWorkflowNode(repoName, ref, workflowPath string, triggers []string) *WorkflowNode {
	id := fmt.Sprintf("%s:%s:%s", repoName, ref, workflowPath)
	trig := append([]string(nil), triggers...)
	sort.Strings(trig)
	return &WorkflowNode{
		nodeBase:     newBase(id, trig...),
		RepoName:     repoName,
		Ref:          ref,
		WorkflowName: path.Base(workflowPath),
		WorkflowPath: workflowPath,
		Inputs:       map[string]WorkflowInput{},
		EnvVars:      map[string]string{},
		Triggers:     trig,
	}
}

func (n *WorkflowNode) String() string { return n.id }

// HasTrigger reports whether the workflow declares trigger.
func (n *WorkflowNode) HasTrigger(trigger string) bool {
	for _, t := range n.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// Deployment is a job environment reference. Name may itself be an expression.
type Deployment struct {
	Name string
	URL  string
}

// JobNode represents a job in a workflow.
type JobNode struct {
	nodeBase

	RepoName     string
	WorkflowPath string
	JobID        string
	Name         string
	If           string
	RunsOn       []string
	Uses         string
	Params       map[string]string
	Outputs      map[string]string
	Env          map[string]string
	Deployments  []Deployment
	// Line is where the job is declared in its workflow, 0 when unknown.
	Line int
}

// NewJobNode creates a job node owned by workflow.
func NewJobNode(workflow *WorkflowNode, jobID string) *JobNode {
	return &JobNode{
		nodeBase:     newBase(workflow.ID() + ":" + jobID),
		RepoName:     workflow.RepoName,
		WorkflowPath: workflow.WorkflowPath,
		JobID:        jobID,
		Params:       map[string]string{},
		Outputs:      map[string]string{},
		Env:          map[string]string{},
	}
}

func (n *JobNode) String() string { return n.id }

// StepNode represents a single step of a job or of a composite action.
type StepNode struct {
	nodeBase

	RepoName string
	Name     string
	StepID   string
	Index    int
	If       string
	Uses     string
	Run      string
	With     map[string]string
	Env      map[string]string

	IsCheckout bool
	// Metadata holds the ref expression consumed by a checkout step.
	Metadata string
	Outputs  map[string]string
	Contexts []string
	HardGate bool
	SoftGate bool
	// Line is where the step starts in its workflow, 0 for composite action steps.
	Line int
}

// NewStepNode creates a step node with an id scoped under parentID.
func NewStepNode(parentID, repoName string, index int) *StepNode {
	return &StepNode{
		nodeBase: newBase(fmt.Sprintf("%s:step[%d]", parentID, index)),
		RepoName: repoName,
		Index:    index,
		With:     map[string]string{},
		Env:      map[string]string{},
		Outputs:  map[string]string{},
	}
}

func (n *StepNode) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s(%s)", n.id, n.Name)
	}
	return n.id
}

// Payload returns the content a sink step executes.
func (n *StepNode) Payload() string {
	if n.Run != "" {
		return n.Run
	}
	return n.Uses
}

// ActionNode references a composite or external action. It carries the
// uninitialized tag until its steps have been spliced into the graph.
type ActionNode struct {
	nodeBase

	RepoName string
	// Uses is the raw uses: reference, e.g. owner/repo/path@ref or ./local.
	Uses    string
	Owner   string
	Repo    string
	Path    string
	Ref     string
	IsLocal bool
	With    map[string]string
	// CallerRef is the ref of the repository the action was referenced from.
	CallerRef string
}

// NewActionNode creates an uninitialized action node for the step that uses it.
func NewActionNode(step *StepNode, uses string) *ActionNode {
	return &ActionNode{
		nodeBase: newBase(step.ID()+":"+uses, TagUninitialized),
		RepoName: step.RepoName,
		Uses:     uses,
		With:     map[string]string{},
	}
}

func (n *ActionNode) String() string { return n.id }
