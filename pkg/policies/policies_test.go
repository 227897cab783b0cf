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

package policies_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/policies"
	"github.com/harekrishnarai/flowtaint/pkg/results"
)

func finding(t *testing.T, repo, workflow string, issue results.IssueType, conf results.Confidence) results.Result {
	t.Helper()
	wf := graph.NewWorkflowNode(repo, "main", workflow, []string{graph.TriggerWorkflowRun})
	job := graph.NewJobNode(wf, "build")
	step := graph.NewStepNode(job.ID(), repo, 0)
	step.Run = "npm ci"
	r, err := results.NewFactory().Create(issue, []graph.Node{wf, job, step}, conf, results.PreviousContributor)
	if err != nil {
		t.Fatalf("create result: %v", err)
	}
	return r
}

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}
	return path
}

func TestExamplePolicySuppresses(t *testing.T) {
	tmpDir := t.TempDir()
	policyPath := filepath.Join(tmpDir, "policies", "example.rego")
	if err := policies.CreateExamplePolicy(policyPath); err != nil {
		t.Fatalf("Failed to create example policy: %v", err)
	}

	files, err := policies.LoadPolicyFiles(filepath.Dir(policyPath))
	if err != nil {
		t.Fatalf("Failed to load policy files: %v", err)
	}
	engine, err := policies.NewPolicyEngine(context.Background(), files)
	if err != nil {
		t.Fatalf("Failed to compile example policy: %v", err)
	}

	low := finding(t, "octo/repo", ".github/workflows/ci.yml", results.ArtifactPoisoning, results.Low)
	high := finding(t, "octo/repo", ".github/workflows/ci.yml", results.ArtifactPoisoning, results.High)
	sandbox := finding(t, "sandbox/repo", ".github/workflows/ci.yml", results.PwnRequest, results.High)

	kept, dropped, err := engine.Filter(context.Background(), []results.Result{low, high, sandbox})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if dropped != 2 || len(kept) != 1 || kept[0] != high {
		t.Errorf("expected only the high confidence finding to survive, kept %d dropped %d", len(kept), dropped)
	}
}

func TestPolicyInputFields(t *testing.T) {
	policy := `package flowtaint

suppress if {
	input.initial_workflow_path == ".github/workflows/docs.yml"
	input.sink == "npm ci"
	"workflow_run" in input.triggers
}
`
	path := writePolicy(t, t.TempDir(), "docs.rego", policy)
	engine, err := policies.NewPolicyEngine(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	docs := finding(t, "octo/repo", ".github/workflows/docs.yml", results.PwnRequest, results.High)
	ok, err := engine.Suppressed(context.Background(), docs)
	if err != nil || !ok {
		t.Errorf("expected docs finding to be suppressed, got %v, %v", ok, err)
	}

	other := finding(t, "octo/repo", ".github/workflows/ci.yml", results.PwnRequest, results.High)
	ok, err = engine.Suppressed(context.Background(), other)
	if err != nil || ok {
		t.Errorf("expected ci finding to be kept, got %v, %v", ok, err)
	}
}

func TestEmptyEngineKeepsEverything(t *testing.T) {
	engine, err := policies.NewPolicyEngine(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	f := finding(t, "octo/repo", ".github/workflows/ci.yml", results.PwnRequest, results.High)
	kept, dropped, err := engine.Filter(context.Background(), []results.Result{f})
	if err != nil || dropped != 0 || len(kept) != 1 {
		t.Errorf("unexpected filter result: %d kept, %d dropped, %v", len(kept), dropped, err)
	}
}

func TestInvalidPolicy(t *testing.T) {
	path := writePolicy(t, t.TempDir(), "broken.rego", "package flowtaint\n\nsuppress if {\n")
	if _, err := policies.NewPolicyEngine(context.Background(), []string{path}); err == nil {
		t.Error("expected a compile error")
	}
}

func TestLoadPolicyFiles(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.rego", "package flowtaint\n")
	writePolicy(t, dir, "notes.txt", "not a policy")

	files, err := policies.LoadPolicyFiles(dir)
	if err != nil {
		t.Fatalf("LoadPolicyFiles: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 policy file, got %v", files)
	}

	if _, err := policies.LoadPolicyFiles(filepath.Join(dir, "notes.txt")); err == nil {
		t.Error("expected an error for a non .rego file")
	}
	if _, err := policies.LoadPolicyFiles(t.TempDir()); err == nil {
		t.Error("expected an error for an empty directory")
	}
}
