package graph

// Security classification tags.
const (
	TagCheckout          = "checkout"
	TagSink              = "sink"
	TagInjectable        = "injectable"
	TagArtifact          = "artifact"
	TagPermissionCheck   = "permission_check"
	TagPermissionBlocker = "permission_blocker"
	TagUninitialized     = "uninitialized"
	TagSelfHosted        = "self-hosted"
	TagReusable          = "reusable"
)

// Trigger tags. A workflow carries one tag per trigger it declares.
const (
	TriggerPullRequest              = "pull_request"
	TriggerPullRequestTarget        = "pull_request_target"
	TriggerPullRequestTargetLabeled = "pull_request_target:labeled"
	TriggerIssueComment             = "issue_comment"
	TriggerIssues                   = "issues"
	TriggerWorkflowRun              = "workflow_run"
	TriggerWorkflowDispatch         = "workflow_dispatch"
	TriggerWorkflowCall             = "workflow_call"
	TriggerPullRequestReview        = "pull_request_review"
	TriggerPullRequestReviewComment = "pull_request_review_comment"
	TriggerDiscussion               = "discussion"
	TriggerDiscussionComment        = "discussion_comment"
	TriggerFork                     = "fork"
	TriggerPush                     = "push"
)
