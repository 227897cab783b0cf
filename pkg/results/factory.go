package results

import (
	"errors"
	"fmt"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
)

var (
	// ErrUnknownIssueType means a visitor asked for a result kind the
	// factory does not know. It is a programming error, not a data problem.
	ErrUnknownIssueType = errors.New("unknown issue type")

	ErrEmptyPath = errors.New("result path is empty")
)

type constructor func(path []graph.Node, confidence Confidence, complexity Complexity) Result

// Factory maps an issue type to its result constructor.
type Factory struct {
	constructors map[IssueType]constructor
}

// NewFactory returns a factory for every built-in issue type.
func NewFactory() *Factory {
	return &Factory{constructors: map[IssueType]constructor{
		PwnRequest: func(p []graph.Node, c Confidence, x Complexity) Result {
			return &PwnRequestResult{newAnalysisResult(PwnRequest, p, c, x)}
		},
		ArtifactPoisoning: func(p []graph.Node, c Confidence, x Complexity) Result {
			return &PwnRequestResult{newAnalysisResult(ArtifactPoisoning, p, c, x)}
		},
		DispatchTOCTOU: func(p []graph.Node, c Confidence, x Complexity) Result {
			return &DispatchTOCTOUResult{PwnRequestResult{newAnalysisResult(DispatchTOCTOU, p, c, x)}}
		},
		ActionsInjection: func(p []graph.Node, c Confidence, x Complexity) Result {
			return &InjectionResult{newAnalysisResult(ActionsInjection, p, c, x)}
		},
		PRReviewInjection: func(p []graph.Node, c Confidence, x Complexity) Result {
			return &ReviewInjectionResult{InjectionResult{newAnalysisResult(PRReviewInjection, p, c, x)}}
		},
	}}
}

// Create builds the result for issueType.
func (f *Factory) Create(issueType IssueType, path []graph.Node, confidence Confidence, complexity Complexity) (Result, error) {
	ctor, ok := f.constructors[issueType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssueType, issueType)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("create %s: %w", issueType, ErrEmptyPath)
	}
	return ctor(path, confidence, complexity), nil
}
