/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package shell_test

import (
	"testing"

	"github.com/harekrishnarai/flowtaint/pkg/shell"
)

func TestParseScriptKeepsExpressions(t *testing.T) {
	s := shell.ParseScript(`echo "${{ github.event.issue.title }}" | tee out.txt`)
	if !s.Parsed {
		t.Fatal("script should parse once expressions are masked")
	}
	if len(s.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %v", s.Commands)
	}
	if got := s.Commands[0][1]; got != "${{ github.event.issue.title }}" {
		t.Errorf("expression not restored: %q", got)
	}
}

func TestSink(t *testing.T) {
	sinks := []string{
		"npm ci",
		"npm run build",
		"yarn",
		"make test",
		"./scripts/release.sh",
		"bash ci/test.sh",
		"python setup.py install",
		"if [ -f go.mod ]; then go test ./...; fi",
		"echo $(./gradlew -q version)",
		"pip install -e .",
	}
	for _, script := range sinks {
		if !shell.ParseScript(script).Sink() {
			t.Errorf("expected sink: %q", script)
		}
	}

	safe := []string{
		"echo hello",
		"npm --version",
		"bash -c 'echo hi'",
		"gh pr comment 1 --body ok",
		"go version",
	}
	for _, script := range safe {
		if shell.ParseScript(script).Sink() {
			t.Errorf("unexpected sink: %q", script)
		}
	}
}

func TestCheckout(t *testing.T) {
	cases := []struct {
		script string
		ok     bool
		ref    string
	}{
		{"gh pr checkout ${{ github.event.issue.number }}", true, ""},
		{"git fetch origin pull/${{ github.event.pull_request.number }}/head:pr\ngit checkout pr", true, ""},
		{"git fetch origin ${{ github.event.pull_request.head.sha }}\ngit checkout ${{ github.event.pull_request.head.sha }}", true, "${{ github.event.pull_request.head.sha }}"},
		{"git checkout main", false, ""},
		{"git status", false, ""},
	}
	for _, tc := range cases {
		ref, ok := shell.ParseScript(tc.script).Checkout()
		if ok != tc.ok || ref != tc.ref {
			t.Errorf("%q: got (%q, %v), want (%q, %v)", tc.script, ref, ok, tc.ref, tc.ok)
		}
	}
}

func TestArtifactDownloadAndExit(t *testing.T) {
	if !shell.ParseScript("gh run download ${{ github.event.workflow_run.id }} -n dist").ArtifactDownload() {
		t.Error("gh run download not detected")
	}
	if shell.ParseScript("gh run list").ArtifactDownload() {
		t.Error("gh run list is not a download")
	}

	if !shell.ParseScript("echo 'not allowed'\nexit 1").ExitsNonZero() {
		t.Error("exit 1 not detected")
	}
	if shell.ParseScript("exit 0").ExitsNonZero() {
		t.Error("exit 0 is not a failure")
	}
}

func TestUnparsableScriptFallsBack(t *testing.T) {
	s := shell.ParseScript("npm ci && (echo unterminated")
	if s.Parsed {
		t.Fatal("script should not parse")
	}
	if !s.Sink() {
		t.Error("fallback should still find npm ci")
	}
}
