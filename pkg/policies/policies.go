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

package policies

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/harekrishnarai/flowtaint/pkg/results"
)

// SuppressQuery is the rule a policy defines to drop a finding.
const SuppressQuery = "data.flowtaint.suppress"

// PolicyEngine evaluates Rego suppression policies against findings
type PolicyEngine struct {
	policyFiles []string
	query       rego.PreparedEvalQuery
}

// NewPolicyEngine compiles every policy file into one prepared query. An
// engine without policy files suppresses nothing.
func NewPolicyEngine(ctx context.Context, policyFiles []string) (*PolicyEngine, error) {
	e := &PolicyEngine{policyFiles: policyFiles}
	if len(policyFiles) == 0 {
		return e, nil
	}

	opts := []func(*rego.Rego){rego.Query(SuppressQuery)}
	for _, policyFile := range policyFiles {
		content, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		opts = append(opts, rego.Module(policyFile, string(content)))
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policies: %w", err)
	}
	e.query = query
	return e, nil
}

// PolicyFiles returns the files the engine was built from
func (e *PolicyEngine) PolicyFiles() []string {
	return e.policyFiles
}

// Input builds the policy input document for a finding: its machine form
// plus the repository relative path of the initial workflow.
func Input(r results.Result) map[string]interface{} {
	in := r.ToMachine()
	in["initial_workflow_path"] = r.InitialWorkflowPath()
	in["hash"] = r.FirstAndLastHash()
	return in
}

// Suppressed reports whether any policy suppresses the finding
func (e *PolicyEngine) Suppressed(ctx context.Context, r results.Result) (bool, error) {
	if len(e.policyFiles) == 0 {
		return false, nil
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(Input(r)))
	if err != nil {
		return false, fmt.Errorf("policy evaluation failed: %w", err)
	}
	for _, result := range rs {
		for _, expr := range result.Expressions {
			if v, ok := expr.Value.(bool); ok && v {
				return true, nil
			}
		}
	}
	return false, nil
}

// Filter returns the findings no policy suppresses and the number dropped
func (e *PolicyEngine) Filter(ctx context.Context, findings []results.Result) ([]results.Result, int, error) {
	if len(e.policyFiles) == 0 {
		return findings, 0, nil
	}

	kept := make([]results.Result, 0, len(findings))
	for _, f := range findings {
		suppressed, err := e.Suppressed(ctx, f)
		if err != nil {
			return nil, 0, err
		}
		if !suppressed {
			kept = append(kept, f)
		}
	}
	return kept, len(findings) - len(kept), nil
}

// LoadPolicyFiles loads policy files from a directory or file
func LoadPolicyFiles(policyPath string) ([]string, error) {
	var policyFiles []string

	fileInfo, err := os.Stat(policyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access policy path: %w", err)
	}

	if fileInfo.IsDir() {
		// Walk the directory to find .rego files
		err = filepath.Walk(policyPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(path) == ".rego" {
				policyFiles = append(policyFiles, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk policy directory: %w", err)
		}
	} else {
		if filepath.Ext(policyPath) == ".rego" {
			policyFiles = append(policyFiles, policyPath)
		} else {
			return nil, fmt.Errorf("policy file must have .rego extension")
		}
	}

	if len(policyFiles) == 0 {
		return nil, fmt.Errorf("no policy files found at %s", policyPath)
	}

	return policyFiles, nil
}

// ExamplePolicy is the starter policy written by CreateExamplePolicy
const ExamplePolicy = `package flowtaint

# A finding is dropped when suppress evaluates to true. The input is the
# machine form of the finding: repository_name, issue_type, triggers,
# initial_workflow, initial_workflow_path, confidence, attack_complexity,
# explanation, path, hash and either sink or injectable_contexts.

default suppress := false

# Low confidence artifact findings without a detected sink
suppress if {
	input.issue_type == "ARTIFACT_POISONING"
	input.confidence == "LOW"
}

# Workflows that only run in a sandboxed fork of the project
suppress if {
	startswith(input.repository_name, "sandbox/")
}

# Accepted risk for a reviewed workflow
suppress if {
	input.initial_workflow_path == ".github/workflows/reviewed.yml"
	input.attack_complexity == "TOCTOU"
}
`

// CreateExamplePolicy creates an example policy file
func CreateExamplePolicy(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, []byte(ExamplePolicy), 0644); err != nil {
		return fmt.Errorf("failed to write example policy file: %w", err)
	}

	return nil
}
