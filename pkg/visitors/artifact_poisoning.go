package visitors

import (
	"context"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/results"
)

// ArtifactPoisoningVisitor finds workflow_run workflows that download
// artifacts produced by an untrusted run and then execute code.
type ArtifactPoisoningVisitor struct {
	opts Options
}

func NewArtifactPoisoningVisitor(opts Options) *ArtifactPoisoningVisitor {
	return &ArtifactPoisoningVisitor{opts: opts}
}

func (v *ArtifactPoisoningVisitor) Name() string { return "artifact-poisoning" }

func (v *ArtifactPoisoningVisitor) Visit(ctx context.Context, g *graph.TaggedGraph) ([]results.Result, error) {
	w := newWalker(g, v.opts, v.Name())
	return w.run(ctx, []string{graph.TriggerWorkflowRun}, graph.TagArtifact, func(ctx context.Context, path []graph.Node) error {
		return w.walk(ctx, path, nil, func(ctx context.Context, st *pathState, path []graph.Node, i int, step *graph.StepNode) (bool, error) {
			if !step.HasTag(graph.TagArtifact) {
				return false, nil
			}

			complexity := results.PreviousContributor
			if st.approvalGate {
				complexity = results.TOCTOU
			}

			found := append([]graph.Node(nil), path[:i+1]...)
			sinks, err := w.g.DFSToTag(step, graph.TagSink, w.opts.Initialize)
			if err != nil {
				return true, err
			}
			if len(sinks) == 0 {
				return true, w.emit(results.ArtifactPoisoning, found, results.Low, complexity)
			}
			if sink := sinks[0][len(sinks[0])-1]; sink != graph.Node(step) {
				found = append(found, sink)
			}
			return true, w.emit(results.ArtifactPoisoning, found, results.High, complexity)
		})
	})
}

// All returns every visitor configured with opts.
func All(opts Options) []Visitor {
	return []Visitor{
		NewPwnRequestVisitor(opts),
		NewDispatchTOCTOUVisitor(opts),
		NewReviewInjectionVisitor(opts),
		NewInjectionVisitor(opts),
		NewArtifactPoisoningVisitor(opts),
	}
}
