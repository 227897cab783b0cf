package visitors

import (
	"regexp"
	"strings"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
)

// ProcessContextVar normalizes an expression: the ${{ }} wrapper and
// surrounding whitespace are removed, then an inputs. prefix.
func ProcessContextVar(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "${{") && strings.HasSuffix(v, "}}") {
		v = strings.TrimSpace(v[3 : len(v)-2])
	}
	return strings.TrimPrefix(v, "inputs.")
}

// CheckMutableRef reports whether a checkout ref can be changed by the
// attacker after it was approved. startTags are the tags of the seed workflow.
func CheckMutableRef(ref string, startTags []string) bool {
	switch {
	case strings.Contains(ref, "github.event.pull_request.head.sha"):
		return false
	case strings.Contains(ref, "github.event.workflow_run.head.sha"):
		return false
	case strings.Contains(ref, "github.sha"):
		return false
	case strings.Contains(ref, "sha") && hasPullRequestTarget(startTags):
		return false
	case strings.Contains(ref, "github.ref") && !strings.Contains(ref, "||"):
		return false
	}
	return true
}

var baseRefPattern = regexp.MustCompile(`^(refs/heads/)?(github\.(ref|sha|ref_name|base_ref|repository)|github\.event\.repository\.(default_branch|full_name)|github\.event\.pull_request\.base\.(ref|sha|repo\.full_name))$`)

// IsBaseRef reports whether a resolved checkout ref or repository only names
// the base branch or base repository of the event.
func IsBaseRef(ref string) bool {
	return baseRefPattern.MatchString(strings.TrimSpace(ref))
}

func hasPullRequestTarget(tags []string) bool {
	for _, t := range tags {
		if t == graph.TriggerPullRequestTarget || t == graph.TriggerPullRequestTargetLabeled {
			return true
		}
	}
	return false
}

// unsafeReviewContexts are the review and comment fields a pull request
// author or commenter controls as free text.
var unsafeReviewContexts = []string{
	"github.event.review.body",
	"github.event.review_comment.body",
	"github.event.comment.body",
	"github.event.pull_request.title",
	"github.event.pull_request.body",
	"github.event.pull_request.head.ref",
	"github.event.pull_request.head.label",
	"github.event.pull_request.head.repo.default_branch",
	"github.head_ref",
}

// IsUnsafeReviewContext classifies an expression reached from a review trigger.
func IsUnsafeReviewContext(ctx string) bool {
	ctx = ProcessContextVar(ctx)
	for _, u := range unsafeReviewContexts {
		if strings.Contains(ctx, u) {
			return true
		}
	}
	if strings.HasPrefix(ctx, "github.") {
		return false
	}
	return strings.Contains(ctx, "body")
}

var untrustedContextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.head_ref`),
	regexp.MustCompile(`github\.event\.workflow_run\.(head_branch|display_title|head_commit\.(message|author\.(email|name))|head_repository\.(description|owner\.email)|pull_requests.*\.head\.(ref|repo\.name))`),
	regexp.MustCompile(`github\.event\.(issue\.(title|body)|pull_request\.(title|body)|comment\.body|review\.body|review_comment\.body|discussion\.(title|body))`),
	regexp.MustCompile(`github\.event\.(pages.*\.page_name|head_commit\.message|head_commit\.author\.(email|name)|commits.*\.(message|author\.(email|name)))`),
	regexp.MustCompile(`github\.event\.pull_request\.head\.(ref|label|repo\.default_branch)`),
	regexp.MustCompile(`github\.event\.(issue|pull_request)\.labels.*\.name`),
	regexp.MustCompile(`github\.event\.client_payload`),
}

// IsUntrustedContext reports whether an expression reads attacker
// controlled event data.
func IsUntrustedContext(ctx string) bool {
	ctx = ProcessContextVar(ctx)
	for _, p := range untrustedContextPatterns {
		if p.MatchString(ctx) {
			return true
		}
	}
	return false
}

var (
	prNumberInput = regexp.MustCompile(`(?i)^(pr|pull|pull_?request)[_-]?(number|num|no|id)?$|^(number|pr[_-]?ref)$`)
	shaInput      = regexp.MustCompile(`(^|[_-])(sha|commit)([_-]|$)`)
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// IsPRNumberInput reports whether a dispatch input name looks like a
// pull request number.
func IsPRNumberInput(name string) bool {
	return prNumberInput.MatchString(name)
}

// IsSHAInput reports whether a dispatch input name pins a commit.
func IsSHAInput(name string) bool {
	return shaInput.MatchString(strings.ToLower(camelBoundary.ReplaceAllString(name, "${1}_${2}")))
}
