package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/harekrishnarai/flowtaint/pkg/constants"
	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/results"
	"github.com/owenrumney/go-sarif/v2/sarif"
)

const informationURI = "https://github.com/harekrishnarai/flowtaint"

type ruleInfo struct {
	name        string
	description string
	help        string
}

var sarifRules = map[results.IssueType]ruleInfo{
	results.PwnRequest: {
		name:        "PwnRequest",
		description: "Privileged workflow checks out and executes pull request code",
		help:        "Do not check out the pull request head in pull_request_target or workflow_run workflows, or run no code from it after the checkout.",
	},
	results.DispatchTOCTOU: {
		name:        "DispatchTOCTOU",
		description: "Manually dispatched workflow checks out a mutable pull request reference",
		help:        "Check out the exact commit SHA that was reviewed instead of a branch or pull request number.",
	},
	results.ActionsInjection: {
		name:        "ActionsInjection",
		description: "Attacker controlled expression is interpolated into a script",
		help:        "Pass untrusted values through environment variables instead of ${{ }} expressions inside run: scripts.",
	},
	results.PRReviewInjection: {
		name:        "PRReviewInjection",
		description: "Pull request review content is interpolated into a script",
		help:        "Pass review bodies and comments through environment variables instead of ${{ }} expressions.",
	},
	results.ArtifactPoisoning: {
		name:        "ArtifactPoisoning",
		description: "Artifacts from an untrusted run are downloaded and used",
		help:        "Treat downloaded artifacts as untrusted input: extract them outside the workspace and never execute their content.",
	},
}

// generateSARIFReport creates a SARIF 2.1.0 log with one rule per issue type
func (g *Generator) generateSARIFReport() error {
	report, err := g.createSARIFReport()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.PrettyWrite(&buf); err != nil {
		return fmt.Errorf("failed to marshal SARIF: %w", err)
	}
	return g.emit("SARIF", buf.Bytes())
}

func (g *Generator) createSARIFReport() (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(constants.AppName, informationURI)
	run.Tool.Driver.WithVersion(constants.AppVersion)

	for _, f := range SortFindings(g.Result.Findings()) {
		rule := addSARIFRule(run, f.IssueType())
		run.AddResult(createSARIFResult(f, rule.ID))
	}

	report.AddRun(run)
	return report, nil
}

func addSARIFRule(run *sarif.Run, issue results.IssueType) *sarif.ReportingDescriptor {
	info, ok := sarifRules[issue]
	if !ok {
		info = ruleInfo{name: string(issue), description: string(issue)}
	}
	rule := run.AddRule(string(issue))
	if rule.Name == nil {
		rule.WithName(info.name).
			WithDescription(info.description).
			WithTextHelp(info.help).
			WithHelpURI(informationURI).
			WithDefaultConfiguration(sarif.NewReportingConfiguration().WithLevel("error")).
			WithProperties(sarif.Properties{"tags": []string{"security", "github-actions"}})
	}
	return rule
}

func createSARIFResult(f results.Result, ruleID string) *sarif.Result {
	workflow := displayWorkflow(f)
	location := sarif.NewLocationWithPhysicalLocation(
		sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewSimpleArtifactLocation(workflow)).
			WithRegion(sarif.NewRegion().WithStartLine(primaryLine(f.Path(), workflow))),
	).WithLogicalLocations([]*sarif.LogicalLocation{
		sarif.NewLogicalLocation().WithFullyQualifiedName(f.RepositoryName() + "/" + workflow).WithKind("workflow"),
	})

	message := fmt.Sprintf("%s in %s (confidence %s, complexity %s): %s",
		f.IssueType(), workflow, f.Confidence(), f.Complexity(), f.Complexity().Explanation())

	result := sarif.NewRuleResult(ruleID).
		WithLevel(confidenceToSARIFLevel(f.Confidence())).
		WithMessage(sarif.NewTextMessage(message)).
		WithLocations([]*sarif.Location{location}).
		WithPartialFingerPrints(map[string]interface{}{"firstAndLastHash/v1": f.FirstAndLastHash()}).
		WithCodeFlows([]*sarif.CodeFlow{codeFlow(f.Path(), workflow)})

	props := sarif.NewPropertyBag()
	props.Add("repository", f.RepositoryName())
	props.Add("confidence", string(f.Confidence()))
	props.Add("attack_complexity", string(f.Complexity()))
	props.Add("triggers", f.Triggers())
	if s, ok := f.(sinker); ok {
		props.Add("sink", s.Sink())
	}
	if c, ok := f.(contexter); ok {
		props.Add("injectable_contexts", c.InjectableContexts())
	}
	result.AttachPropertyBag(props)
	return result
}

// codeFlow renders the attack path as a single thread flow. Each node is
// located in the workflow file it was declared in.
func codeFlow(path []graph.Node, workflow string) *sarif.CodeFlow {
	flow := sarif.NewThreadFlow()
	current := workflow
	for i, n := range path {
		kind := "step"
		switch v := n.(type) {
		case *graph.WorkflowNode:
			kind = "workflow"
			if v.WorkflowPath != "" {
				current = v.WorkflowPath
			}
		case *graph.JobNode:
			kind = "job"
			if v.WorkflowPath != "" {
				current = v.WorkflowPath
			}
		case *graph.ActionNode:
			kind = "action"
		}
		physical := sarif.NewPhysicalLocation().WithArtifactLocation(sarif.NewSimpleArtifactLocation(current))
		if line := nodeLine(n); line > 0 {
			physical.WithRegion(sarif.NewRegion().WithStartLine(line))
		}
		loc := sarif.NewLocationWithPhysicalLocation(physical).WithLogicalLocations([]*sarif.LogicalLocation{
			sarif.NewLogicalLocation().WithFullyQualifiedName(n.String()).WithKind(kind),
		}).WithMessage(sarif.NewTextMessage(nodeLabel(n)))
		flow.AddLocation(sarif.NewThreadFlowLocation().WithLocation(loc).WithExecutionOrder(i))
	}
	return sarif.NewCodeFlow().WithThreadFlows([]*sarif.ThreadFlow{flow})
}

// primaryLine is the line of the last path node declared in workflow, so
// the alert points at the sink rather than the file header.
func primaryLine(path []graph.Node, workflow string) int {
	line, current := 1, workflow
	for _, n := range path {
		switch v := n.(type) {
		case *graph.WorkflowNode:
			current = v.WorkflowPath
		case *graph.JobNode:
			current = v.WorkflowPath
		}
		if l := nodeLine(n); l > 0 && current == workflow {
			line = l
		}
	}
	return line
}

func nodeLine(n graph.Node) int {
	switch v := n.(type) {
	case *graph.StepNode:
		return v.Line
	case *graph.JobNode:
		return v.Line
	}
	return 0
}

func nodeLabel(n graph.Node) string {
	switch v := n.(type) {
	case *graph.StepNode:
		switch {
		case v.Name != "":
			return "step " + v.Name
		case v.Uses != "":
			return "uses " + v.Uses
		default:
			return "run " + strings.SplitN(strings.TrimSpace(v.Run), "\n", 2)[0]
		}
	case *graph.JobNode:
		return "job " + v.JobID
	case *graph.ActionNode:
		return "action " + v.Uses
	case *graph.WorkflowNode:
		return "workflow " + v.WorkflowPath
	}
	return n.String()
}

// confidenceToSARIFLevel maps finding confidence to a SARIF level
func confidenceToSARIFLevel(c results.Confidence) string {
	switch c {
	case results.High:
		return "error"
	case results.Medium:
		return "warning"
	default:
		return "note"
	}
}
