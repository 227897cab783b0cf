package builder

import (
	"regexp"
	"strings"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/shell"
)

// sinkActions run code from the workspace they are invoked in.
var sinkActions = set(
	"github/codeql-action/autobuild",
	"docker/build-push-action",
	"gradle/gradle-build-action",
	"gradle/actions/setup-gradle",
	"pre-commit/action",
	"andresz1/size-limit-action",
	"preactjs/compressed-size-action",
	"cypress-io/github-action",
	"goreleaser/goreleaser-action",
	"nick-fields/retry",
	"nick-invision/retry",
	"bahmutov/npm-install",
	"borales/actions-yarn",
	"microsoft/playwright-github-action",
	"treosh/lighthouse-ci-action",
	"mattnotmitt/doxygen-action",
	"jakejarvis/hugo-build-action",
	"golangci/golangci-lint-action",
	"snyk/actions/node",
	"sonarsource/sonarcloud-github-action",
	"sonarsource/sonarqube-scan-action",
	"chromaui/action",
	"mxschmitt/action-tmate",
	"lhotari/action-upterm",
	"amondnet/vercel-action",
	"cloudflare/wrangler-action",
	"azure/static-web-apps-deploy",
	"firebaseextended/action-hosting-deploy",
	"netlify/actions/cli",
	"serverless/github-action",
	"pulumi/actions",
	"dflook/terraform-plan",
	"dflook/terraform-apply",
	"gradle/gradle-command-action",
	"eskatos/gradle-command-action",
	"php-actions/composer",
	"ramsey/composer-install",
	"py-actions/py-dependency-install",
	"actions-rs/cargo",
	"actions-rs/clippy-check",
	"samuelmeuli/action-electron-builder",
	"tauri-apps/tauri-action",
	"paambaati/codeclimate-action",
	"reviewdog/action-eslint",
	"wearerequired/lint-action",
	"super-linter/super-linter",
	"github/super-linter",
	"oxsecurity/megalinter",
	"changesets/action",
)

// permissionActions check the permission of the triggering actor.
var permissionActions = set(
	"actions-cool/check-user-permission",
	"prince-chrismc/check-actor-permissions-action",
	"lannonbr/repo-permission-check-action",
	"sushichop/action-repository-permission",
	"themoddinginquisition/actions-team-membership",
	"tspascoal/get-user-teams-membership",
	"morfien101/actions-authorized-user",
	"skjnldsv/check-actor-permission",
)

var (
	requireLocal    = regexp.MustCompile(`require\(\s*['"]\.{1,2}/|process\.cwd\(\)|GITHUB_WORKSPACE`)
	scriptArtifacts = regexp.MustCompile(`downloadArtifact|listWorkflowRunArtifacts`)
	// headRef matches refs naming pull request head data, and the indirections
	// the visitors resolve later on.
	headRef    = regexp.MustCompile(`pull_request\.(head\.|merge_commit_sha|number)|github\.head_ref|pull/|event\.(number|issue\.number|workflow_run\.(head_|pull_requests)|client_payload|comment\.|review\.|review_comment\.)|\b(inputs|env|steps|needs)\.`)
	stepOutput = regexp.MustCompile(`(?m)echo\s+["']?([A-Za-z_][\w-]*)=(.*?)["']?\s*>>\s*["']?\$\{?GITHUB_OUTPUT`)
)

// tagStep classifies step and fills its checkout, context and gate fields.
// It returns the tags the step carries.
func tagStep(step *graph.StepNode) []string {
	var tags []string
	add := func(t string) { tags = append(tags, t) }

	name := actionName(step.Uses)
	switch {
	case step.Run != "":
		script := shell.ParseScript(step.Run)
		if script.Sink() {
			add(graph.TagSink)
		}
		if ref, ok := script.Checkout(); ok && (ref == "" || headRef.MatchString(ref)) {
			step.IsCheckout = true
			step.Metadata = ref
			add(graph.TagCheckout)
		}
		if script.ArtifactDownload() {
			add(graph.TagArtifact)
		}
		if permissionCondition(step.Run) {
			add(graph.TagPermissionCheck)
		}
		if script.ExitsNonZero() && actorPattern.MatchString(step.If) {
			step.HardGate = true
		}
		step.Contexts = expressionContexts(step.Run)
		for _, m := range stepOutput.FindAllStringSubmatch(step.Run, -1) {
			step.Outputs[m[1]] = m[2]
		}

	case name == "actions/checkout":
		ref, repo := step.With["ref"], step.With["repository"]
		if headRef.MatchString(ref) || headRef.MatchString(repo) {
			step.IsCheckout = true
			step.Metadata = ref
			if ref == "" {
				step.Metadata = repo
			}
			add(graph.TagCheckout)
		}

	case name == "actions/github-script":
		script := step.With["script"]
		if requireLocal.MatchString(script) {
			add(graph.TagSink)
		}
		if scriptArtifacts.MatchString(script) {
			add(graph.TagArtifact)
		}
		if permissionCondition(script) {
			add(graph.TagPermissionCheck)
		}
		step.Contexts = expressionContexts(script)

	case name == "dawidd6/action-download-artifact":
		add(graph.TagArtifact)

	case name == "actions/download-artifact":
		if step.With["run-id"] != "" {
			add(graph.TagArtifact)
		}

	case strings.HasPrefix(step.Uses, "./"):
		add(graph.TagSink)

	case sinkActions[name]:
		add(graph.TagSink)

	case permissionActions[name]:
		add(graph.TagPermissionCheck)
	}

	if len(step.Contexts) > 0 {
		add(graph.TagInjectable)
	}
	if sameRepoCondition(step.If) {
		add(graph.TagPermissionBlocker)
	}
	if !step.HardGate && (labelCondition(step.If) || permissionCondition(step.If)) {
		step.SoftGate = true
	}
	return tags
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
