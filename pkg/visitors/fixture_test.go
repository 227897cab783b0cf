package visitors

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harekrishnarai/flowtaint/pkg/github"
	"github.com/harekrishnarai/flowtaint/pkg/graph"
)

type fixture struct {
	t  *testing.T
	g  *graph.TaggedGraph
	wf *graph.WorkflowNode
}

func newFixture(t *testing.T, triggers ...string) *fixture {
	t.Helper()
	g := graph.New()
	wf := graph.NewWorkflowNode("octo/repo", "main", ".github/workflows/ci.yml", triggers)
	require.NoError(t, g.AddNode(wf))
	return &fixture{t: t, g: g, wf: wf}
}

// job adds a job of wf reached from each node in from.
func (f *fixture) job(wf *graph.WorkflowNode, id string, from ...graph.Node) *graph.JobNode {
	f.t.Helper()
	j := graph.NewJobNode(wf, id)
	require.NoError(f.t, f.g.AddNode(j))
	for _, n := range from {
		require.NoError(f.t, f.g.AddEdge(n, j))
	}
	return j
}

// steps adds a chain of n steps under job.
func (f *fixture) steps(job *graph.JobNode, n int) []*graph.StepNode {
	f.t.Helper()
	out := make([]*graph.StepNode, n)
	var prev graph.Node = job
	for i := range out {
		out[i] = graph.NewStepNode(job.ID(), job.RepoName, i)
		require.NoError(f.t, f.g.AddNode(out[i]))
		require.NoError(f.t, f.g.AddEdge(prev, out[i]))
		prev = out[i]
	}
	return out
}

func (f *fixture) tag(n graph.Node, tags ...string) {
	f.t.Helper()
	require.NoError(f.t, f.g.AddTagsToNode(n, tags...))
}

func (f *fixture) checkout(s *graph.StepNode, ref string) {
	s.Uses = "actions/checkout@v4"
	s.IsCheckout = true
	s.Metadata = ref
	f.tag(s, graph.TagCheckout)
}

func (f *fixture) sink(s *graph.StepNode, run string) {
	s.Run = run
	f.tag(s, graph.TagSink)
}

func (f *fixture) injectable(s *graph.StepNode, contexts ...string) {
	s.Contexts = contexts
	f.tag(s, graph.TagInjectable)
}

type fakeRules struct {
	mu    sync.Mutex
	calls int
	rules map[string]github.ProtectionRule
	err   error
}

func (r *fakeRules) EnvironmentProtectionRules(context.Context, string) (map[string]github.ProtectionRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.rules, r.err
}

func protected(names ...string) *fakeRules {
	rules := map[string]github.ProtectionRule{}
	for _, n := range names {
		rules[n] = github.ProtectionRule{Environment: n, Types: []string{"required_reviewers"}, Reviewers: 1}
	}
	return &fakeRules{rules: rules}
}

var errBoom = errors.New("boom")
