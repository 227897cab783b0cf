package visitors

import (
	"context"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/results"
)

// PwnRequestVisitor finds privileged workflows that check out and run code
// from a pull request.
type PwnRequestVisitor struct {
	opts Options
}

func NewPwnRequestVisitor(opts Options) *PwnRequestVisitor {
	return &PwnRequestVisitor{opts: opts}
}

func (v *PwnRequestVisitor) Name() string { return "pwn-request" }

func (v *PwnRequestVisitor) seeds() []string {
	seeds := []string{
		graph.TriggerIssueComment,
		graph.TriggerPullRequestTarget,
		graph.TriggerPullRequestTargetLabeled,
	}
	if !v.opts.IgnoreWorkflowRun {
		seeds = append(seeds, graph.TriggerWorkflowRun)
	}
	return seeds
}

func (v *PwnRequestVisitor) Visit(ctx context.Context, g *graph.TaggedGraph) ([]results.Result, error) {
	w := newWalker(g, v.opts, v.Name())
	return w.run(ctx, v.seeds(), graph.TagCheckout, func(ctx context.Context, path []graph.Node) error {
		return w.walk(ctx, path, nil, func(ctx context.Context, st *pathState, path []graph.Node, i int, step *graph.StepNode) (bool, error) {
			if !step.IsCheckout {
				return false, nil
			}
			out, err := w.evalCheckout(st, path, i, step)
			if err != nil || out == nil {
				return true, err
			}

			confidence := results.Medium
			if out.sinkFound {
				confidence = results.High
			}
			complexity, err := v.complexity(w, st, path)
			if err != nil {
				return true, err
			}
			return true, w.emit(results.PwnRequest, out.path, confidence, complexity)
		})
	})
}

func (v *PwnRequestVisitor) complexity(w *walker, st *pathState, path []graph.Node) (results.Complexity, error) {
	origin, _ := path[0].(*graph.WorkflowNode)
	if st.approvalGate {
		return results.TOCTOU, nil
	}
	if origin != nil && workflowRunOnly(origin) {
		return results.PreviousContributor, nil
	}

	// A permission check elsewhere in the workflow that does not guard this
	// path is an access control the attacker walks around.
	checks, err := w.g.DFSToTag(path[0], graph.TagPermissionCheck, w.opts.Initialize)
	if err != nil {
		return "", err
	}
	if len(checks) > 0 {
		return results.BrokenAccess, nil
	}
	return results.ZeroClick, nil
}

// workflowRunOnly reports whether workflow_run is the only privileged
// trigger of wf, meaning the attacker needs an earlier workflow to run first.
func workflowRunOnly(wf *graph.WorkflowNode) bool {
	if !wf.HasTrigger(graph.TriggerWorkflowRun) {
		return false
	}
	for _, t := range []string{graph.TriggerIssueComment, graph.TriggerPullRequestTarget, graph.TriggerPullRequestTargetLabeled} {
		if wf.HasTrigger(t) {
			return false
		}
	}
	return true
}
