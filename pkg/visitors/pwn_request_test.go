package visitors

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/repository"
	"github.com/harekrishnarai/flowtaint/pkg/results"
)

// basicPwn builds workflow -> build -> [checkout(ref), sink].
func basicPwn(t *testing.T, ref string, triggers ...string) (*fixture, *graph.JobNode, []*graph.StepNode) {
	f := newFixture(t, triggers...)
	job := f.job(f.wf, "build", f.wf)
	s := f.steps(job, 2)
	f.checkout(s[0], ref)
	f.sink(s[1], "make test")
	return f, job, s
}

func visitPwn(t *testing.T, f *fixture, opts Options) []results.Result {
	t.Helper()
	res, err := NewPwnRequestVisitor(opts).Visit(context.Background(), f.g)
	require.NoError(t, err)
	return res
}

func TestPwnRequestUngatedCheckoutWithSink(t *testing.T) {
	f, _, s := basicPwn(t, "refs/heads/main", graph.TriggerPullRequestTarget)

	res := visitPwn(t, f, Options{})
	require.Len(t, res, 1)
	r := res[0]
	assert.Equal(t, results.High, r.Confidence())
	assert.Equal(t, results.ZeroClick, r.Complexity())
	assert.Equal(t, results.PwnRequest, r.IssueType())
	assert.Equal(t, "make test", r.ToMachine()["sink"])

	path := r.Path()
	require.Len(t, path, 4)
	assert.Same(t, s[1], path[3])
}

func TestPwnRequestWithoutSinkIsMedium(t *testing.T) {
	f := newFixture(t, graph.TriggerPullRequestTarget)
	job := f.job(f.wf, "build", f.wf)
	s := f.steps(job, 1)
	f.checkout(s[0], "${{ github.event.pull_request.head.ref }}")

	res := visitPwn(t, f, Options{})
	require.Len(t, res, 1)
	assert.Equal(t, results.Medium, res[0].Confidence())
	assert.Equal(t, results.NotDetected, res[0].ToMachine()["sink"])
}

func TestPwnRequestGateEvidenceYieldsTOCTOU(t *testing.T) {
	const mutable = "${{ github.event.pull_request.head.ref }}"

	cases := map[string]func(t *testing.T) (*fixture, Options){
		"soft gate step": func(t *testing.T) (*fixture, Options) {
			f := newFixture(t, graph.TriggerPullRequestTarget)
			job := f.job(f.wf, "build", f.wf)
			s := f.steps(job, 3)
			s[0].SoftGate = true
			f.checkout(s[1], mutable)
			f.sink(s[2], "npm install")
			return f, Options{}
		},
		"soft gate on checkout": func(t *testing.T) (*fixture, Options) {
			f, _, s := basicPwn(t, mutable, graph.TriggerPullRequestTarget)
			s[0].SoftGate = true
			return f, Options{}
		},
		"labeled trigger": func(t *testing.T) (*fixture, Options) {
			f, _, _ := basicPwn(t, mutable, graph.TriggerPullRequestTargetLabeled)
			return f, Options{}
		},
		"protected deployment": func(t *testing.T) (*fixture, Options) {
			f, job, _ := basicPwn(t, mutable, graph.TriggerPullRequestTarget)
			job.Deployments = []graph.Deployment{{Name: "production"}}
			return f, Options{Rules: protected("production")}
		},
		"protected deployment expression": func(t *testing.T) (*fixture, Options) {
			f, job, _ := basicPwn(t, mutable, graph.TriggerPullRequestTarget)
			job.Deployments = []graph.Deployment{{Name: "${{ github.event.pull_request.head.repo.fork && 'external' || 'internal' }}"}}
			return f, Options{Rules: protected("external")}
		},
		"permission check": func(t *testing.T) (*fixture, Options) {
			f := newFixture(t, graph.TriggerIssueComment)
			job := f.job(f.wf, "build", f.wf)
			s := f.steps(job, 3)
			f.tag(s[0], graph.TagPermissionCheck)
			f.checkout(s[1], mutable)
			f.sink(s[2], "npm install")
			return f, Options{}
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			f, opts := build(t)
			res := visitPwn(t, f, opts)
			require.Len(t, res, 1)
			assert.Equal(t, results.TOCTOU, res[0].Complexity())
			assert.Equal(t, results.High, res[0].Confidence())
		})
	}
}

func TestPwnRequestGatedImmutableRefIsSafe(t *testing.T) {
	f, _, s := basicPwn(t, "${{ github.event.pull_request.head.sha }}", graph.TriggerPullRequestTarget)
	s[0].SoftGate = true

	assert.Empty(t, visitPwn(t, f, Options{}))
}

func TestPwnRequestUnprotectedDeploymentIsNotAGate(t *testing.T) {
	f, job, _ := basicPwn(t, "${{ github.event.pull_request.head.sha }}", graph.TriggerPullRequestTarget)
	job.Deployments = []graph.Deployment{{Name: "preview"}}

	res := visitPwn(t, f, Options{Rules: protected("production")})
	require.Len(t, res, 1)
	assert.Equal(t, results.ZeroClick, res[0].Complexity())
}

func TestPwnRequestHardGateAbandons(t *testing.T) {
	f := newFixture(t, graph.TriggerPullRequestTarget)
	job := f.job(f.wf, "build", f.wf)
	s := f.steps(job, 3)
	s[0].HardGate = true
	f.checkout(s[1], "${{ github.event.pull_request.head.ref }}")
	f.sink(s[2], "make")

	assert.Empty(t, visitPwn(t, f, Options{}))
}

func TestPwnRequestBlockerOnPathAbandons(t *testing.T) {
	f, job, _ := basicPwn(t, "${{ github.event.pull_request.head.ref }}", graph.TriggerPullRequestTarget)
	f.tag(job, graph.TagPermissionBlocker)

	assert.Empty(t, visitPwn(t, f, Options{}))
}

func TestPwnRequestBlockerOffPathIsIgnored(t *testing.T) {
	f, job, _ := basicPwn(t, "${{ github.event.pull_request.head.ref }}", graph.TriggerPullRequestTarget)
	later := f.job(f.wf, "publish", job)
	ls := f.steps(later, 1)
	f.tag(ls[0], graph.TagPermissionBlocker)

	res := visitPwn(t, f, Options{})
	require.Len(t, res, 1)
	assert.Equal(t, results.ZeroClick, res[0].Complexity())
}

func TestPwnRequestUnguardedSiblingCheckIsBrokenAccess(t *testing.T) {
	f, _, _ := basicPwn(t, "${{ github.event.pull_request.head.ref }}", graph.TriggerIssueComment)
	auth := f.job(f.wf, "authorize", f.wf)
	as := f.steps(auth, 1)
	f.tag(as[0], graph.TagPermissionCheck)

	res := visitPwn(t, f, Options{})
	require.Len(t, res, 1)
	assert.Equal(t, results.BrokenAccess, res[0].Complexity())
}

func TestPwnRequestWorkflowRun(t *testing.T) {
	f, _, _ := basicPwn(t, "${{ github.event.workflow_run.head_branch }}", graph.TriggerWorkflowRun)

	res := visitPwn(t, f, Options{})
	require.Len(t, res, 1)
	assert.Equal(t, results.PreviousContributor, res[0].Complexity())

	assert.Empty(t, visitPwn(t, f, Options{IgnoreWorkflowRun: true}))
}

func TestPwnRequestForkAndExcluded(t *testing.T) {
	f, _, _ := basicPwn(t, "${{ github.event.pull_request.head.ref }}", graph.TriggerPullRequestTarget)

	reg := repository.NewRegistry(nil)
	reg.Repository("octo/repo").SetFork(true)
	assert.Empty(t, visitPwn(t, f, Options{Repos: reg}))

	f.wf.Excluded = true
	assert.Empty(t, visitPwn(t, f, Options{}))
}

func TestPwnRequestResolvesCallerParams(t *testing.T) {
	build := func(t *testing.T, param string) *fixture {
		f := newFixture(t, graph.TriggerIssueComment)
		call := f.job(f.wf, "call", f.wf)
		call.Params["ref"] = param

		callee := graph.NewWorkflowNode("octo/repo", "main", ".github/workflows/reusable.yml", []string{graph.TriggerWorkflowCall})
		require.NoError(t, f.g.AddNode(callee))
		require.NoError(t, f.g.AddEdge(call, callee))

		job := f.job(callee, "build", callee)
		s := f.steps(job, 3)
		s[0].SoftGate = true
		f.checkout(s[1], "${{ inputs.ref }}")
		f.sink(s[2], "make")
		return f
	}

	assert.Empty(t, visitPwn(t, build(t, "${{ github.event.pull_request.head.sha }}"), Options{}))

	res := visitPwn(t, build(t, "${{ github.event.pull_request.head.ref }}"), Options{})
	require.Len(t, res, 1)
	assert.Equal(t, results.TOCTOU, res[0].Complexity())
}

func TestPwnRequestResolvesWorkflowEnv(t *testing.T) {
	build := func(t *testing.T, withEnv bool) *fixture {
		f := newFixture(t, graph.TriggerIssueComment)
		if withEnv {
			f.wf.EnvVars["HEAD"] = "${{ github.event.pull_request.head.sha }}"
		}
		job := f.job(f.wf, "build", f.wf)
		s := f.steps(job, 3)
		s[0].SoftGate = true
		f.checkout(s[1], "${{ env.HEAD }}")
		f.sink(s[2], "make")
		return f
	}

	assert.Empty(t, visitPwn(t, build(t, true), Options{}))
	assert.Len(t, visitPwn(t, build(t, false), Options{}), 1)
}

func TestPwnRequestResolvesJobOutputs(t *testing.T) {
	build := func(t *testing.T, withOutput bool) *fixture {
		f := newFixture(t, graph.TriggerIssueComment)
		f.wf.EnvVars["HEAD"] = "${{ github.event.pull_request.head.sha }}"
		resolve := f.job(f.wf, "resolve", f.wf)
		if withOutput {
			resolve.Outputs["ref"] = "${{ env.HEAD }}"
		}
		job := f.job(f.wf, "build", resolve)
		s := f.steps(job, 3)
		s[0].SoftGate = true
		f.checkout(s[1], "${{ needs.resolve.outputs.ref }}")
		f.sink(s[2], "make")
		return f
	}

	assert.Empty(t, visitPwn(t, build(t, true), Options{}))
	assert.Len(t, visitPwn(t, build(t, false), Options{}), 1)
}

func TestPwnRequestRuleCachePerRun(t *testing.T) {
	f := newFixture(t, graph.TriggerPullRequestTarget)
	for _, id := range []string{"a", "b"} {
		job := f.job(f.wf, id, f.wf)
		job.Deployments = []graph.Deployment{{Name: "staging"}}
		s := f.steps(job, 2)
		f.checkout(s[0], "${{ github.event.pull_request.head.ref }}")
		f.sink(s[1], "make")
	}
	rules := protected("production")

	res := visitPwn(t, f, Options{Rules: rules})
	assert.Len(t, res, 2)
	assert.Equal(t, 1, rules.calls)

	visitPwn(t, f, Options{Rules: rules})
	assert.Equal(t, 2, rules.calls)
}

func TestPwnRequestRuleErrorSkipsPath(t *testing.T) {
	f, job, _ := basicPwn(t, "${{ github.event.pull_request.head.ref }}", graph.TriggerPullRequestTarget)
	job.Deployments = []graph.Deployment{{Name: "production"}}

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})
	res := visitPwn(t, f, Options{Rules: &fakeRules{err: errBoom}, Logger: logger})
	assert.Empty(t, res)
	assert.Contains(t, buf.String(), "skipping path")
}

func TestPwnRequestRecoversFromPanics(t *testing.T) {
	f := newFixture(t, graph.TriggerPullRequestTarget)
	job := f.job(f.wf, "build", f.wf)
	s := f.steps(job, 1)
	f.checkout(s[0], "${{ github.event.pull_request.head.ref }}")
	action := graph.NewActionNode(s[0], "octo/build@v1")
	require.NoError(t, f.g.AddNode(action))
	require.NoError(t, f.g.AddEdge(s[0], action))

	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})
	res := visitPwn(t, f, Options{
		Logger:     logger,
		Initialize: func(graph.Node) error { panic("bad action metadata") },
	})
	assert.Empty(t, res)
	assert.Contains(t, buf.String(), "bad action metadata")
}

func TestPwnRequestInitializesActions(t *testing.T) {
	f := newFixture(t, graph.TriggerPullRequestTarget)
	job := f.job(f.wf, "build", f.wf)
	s := f.steps(job, 1)
	f.checkout(s[0], "${{ github.event.pull_request.head.ref }}")
	action := graph.NewActionNode(s[0], "octo/build@v1")
	require.NoError(t, f.g.AddNode(action))
	require.NoError(t, f.g.AddEdge(s[0], action))

	initialize := func(n graph.Node) error {
		inner := graph.NewStepNode(n.ID(), "octo/repo", 0)
		inner.Run = "npm ci"
		if err := f.g.AddNodeWithTags(inner, graph.TagSink); err != nil {
			return err
		}
		return f.g.AddEdge(n, inner)
	}

	res := visitPwn(t, f, Options{Initialize: initialize})
	require.Len(t, res, 1)
	assert.Equal(t, results.High, res[0].Confidence())
	assert.Equal(t, "npm ci", res[0].ToMachine()["sink"])
	assert.False(t, action.HasTag(graph.TagUninitialized))
}

func TestUnknownIssueTypeIsFatal(t *testing.T) {
	f, _, _ := basicPwn(t, "refs/heads/main", graph.TriggerPullRequestTarget)

	_, err := NewPwnRequestVisitor(Options{Factory: &results.Factory{}}).Visit(context.Background(), f.g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, results.ErrUnknownIssueType))
}

func TestAllVisitors(t *testing.T) {
	names := map[string]bool{}
	for _, v := range All(Options{}) {
		assert.False(t, names[v.Name()])
		names[v.Name()] = true
	}
	assert.Len(t, names, 5)
}

func TestPwnRequestBaseRefIsNotACheckout(t *testing.T) {
	for _, ref := range []string{
		"${{ github.ref }}",
		"${{ github.sha }}",
		"${{ github.event.repository.default_branch }}",
		"${{ github.event.pull_request.base.ref }}",
	} {
		f, _, _ := basicPwn(t, ref, graph.TriggerPullRequestTarget)
		assert.Empty(t, visitPwn(t, f, Options{}), ref)
	}

	build := func(t *testing.T, param string) *fixture {
		f := newFixture(t, graph.TriggerPullRequestTarget)
		call := f.job(f.wf, "call", f.wf)
		call.Params["ref"] = param
		callee := graph.NewWorkflowNode("octo/repo", "main", ".github/workflows/reusable.yml", []string{graph.TriggerWorkflowCall})
		require.NoError(t, f.g.AddNode(callee))
		require.NoError(t, f.g.AddEdge(call, callee))
		job := f.job(callee, "build", callee)
		s := f.steps(job, 2)
		f.checkout(s[0], "${{ inputs.ref }}")
		f.sink(s[1], "make")
		return f
	}
	assert.Empty(t, visitPwn(t, build(t, "${{ github.event.pull_request.base.sha }}"), Options{}))
	assert.Len(t, visitPwn(t, build(t, "${{ github.event.pull_request.head.sha }}"), Options{}), 1)
}
