package visitors

import (
	"context"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/results"
)

// DispatchTOCTOUVisitor finds workflow_dispatch workflows that take a pull
// request number and check out its head. A maintainer reviews the pull
// request, dispatches, and the author pushes in between.
type DispatchTOCTOUVisitor struct {
	opts Options
}

func NewDispatchTOCTOUVisitor(opts Options) *DispatchTOCTOUVisitor {
	return &DispatchTOCTOUVisitor{opts: opts}
}

func (v *DispatchTOCTOUVisitor) Name() string { return "dispatch-toctou" }

func (v *DispatchTOCTOUVisitor) Visit(ctx context.Context, g *graph.TaggedGraph) ([]results.Result, error) {
	w := newWalker(g, v.opts, v.Name())
	return w.run(ctx, []string{graph.TriggerWorkflowDispatch}, graph.TagCheckout, func(ctx context.Context, path []graph.Node) error {
		return w.walk(ctx, path, takesPRNumber, func(ctx context.Context, st *pathState, path []graph.Node, i int, step *graph.StepNode) (bool, error) {
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
			// The dispatch itself is the approval, so the result is always
			// a race regardless of further gates.
			return true, w.emit(results.DispatchTOCTOU, out.path, confidence, results.TOCTOU)
		})
	})
}

// takesPRNumber accepts workflows with a pull request number input and no
// input pinning the commit.
func takesPRNumber(_ *pathState, wf *graph.WorkflowNode) bool {
	hasPR := false
	for name := range wf.Inputs {
		if IsSHAInput(name) {
			return false
		}
		if IsPRNumberInput(name) {
			hasPR = true
		}
	}
	return hasPR
}
