package visitors

import (
	"context"
	"strings"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/results"
)

// injectionVisitor is shared by the review and general injection visitors.
type injectionVisitor struct {
	opts     Options
	name     string
	issue    results.IssueType
	seeds    []string
	unsafeFn func(string) bool
}

func (v *injectionVisitor) Name() string { return v.name }

func (v *injectionVisitor) Visit(ctx context.Context, g *graph.TaggedGraph) ([]results.Result, error) {
	w := newWalker(g, v.opts, v.name)
	return w.run(ctx, v.seeds, graph.TagInjectable, func(ctx context.Context, path []graph.Node) error {
		return w.walk(ctx, path, nil, func(ctx context.Context, st *pathState, path []graph.Node, i int, step *graph.StepNode) (bool, error) {
			if !step.HasTag(graph.TagInjectable) {
				return false, nil
			}
			for _, c := range step.Contexts {
				resolved := st.resolve(c)
				if !v.unsafeFn(resolved) && !strings.Contains(resolved, "body") {
					continue
				}
				complexity := results.ZeroClick
				if st.approvalGate {
					complexity = results.FollowUp
				}
				w.log.Debug("injectable context", "step", step.ID(), "context", c, "resolved", resolved)
				return true, w.emit(v.issue, path[:i+1], results.High, complexity)
			}
			return true, nil
		})
	})
}

// ReviewInjectionVisitor finds review and review comment text interpolated
// into scripts.
type ReviewInjectionVisitor struct {
	injectionVisitor
}

func NewReviewInjectionVisitor(opts Options) *ReviewInjectionVisitor {
	return &ReviewInjectionVisitor{injectionVisitor{
		opts:     opts,
		name:     "review-injection",
		issue:    results.PRReviewInjection,
		seeds:    []string{graph.TriggerPullRequestReview, graph.TriggerPullRequestReviewComment},
		unsafeFn: IsUnsafeReviewContext,
	}}
}

// InjectionVisitor finds attacker controlled event fields interpolated into
// scripts of privileged workflows.
type InjectionVisitor struct {
	injectionVisitor
}

func NewInjectionVisitor(opts Options) *InjectionVisitor {
	return &InjectionVisitor{injectionVisitor{
		opts:  opts,
		name:  "injection",
		issue: results.ActionsInjection,
		seeds: []string{
			graph.TriggerIssueComment,
			graph.TriggerIssues,
			graph.TriggerPullRequestTarget,
			graph.TriggerPullRequestTargetLabeled,
			graph.TriggerDiscussion,
			graph.TriggerDiscussionComment,
			graph.TriggerWorkflowRun,
			graph.TriggerFork,
		},
		unsafeFn: IsUntrustedContext,
	}}
}
