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

// Package linenum maps jobs and steps of a workflow file to their source lines.
package linenum

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Index holds the 1-based lines of the jobs and steps of one workflow.
type Index struct {
	jobs  map[string]int
	steps map[string][]int
}

// Build parses content and records where every job and step starts.
// Content that is not a mapping yields an empty index.
func Build(content []byte) (*Index, error) {
	x := &Index{jobs: map[string]int{}, steps: map[string][]int{}}

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return x, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return x, nil
	}

	jobs := mappingValue(doc.Content[0], "jobs")
	if jobs == nil || jobs.Kind != yaml.MappingNode {
		return x, nil
	}
	for i := 0; i+1 < len(jobs.Content); i += 2 {
		key, job := jobs.Content[i], jobs.Content[i+1]
		x.jobs[key.Value] = key.Line

		steps := mappingValue(job, "steps")
		if steps == nil || steps.Kind != yaml.SequenceNode {
			continue
		}
		lines := make([]int, len(steps.Content))
		for j, s := range steps.Content {
			lines[j] = s.Line
		}
		x.steps[key.Value] = lines
	}
	return x, nil
}

// Job returns the line of the key of job id, or 0 when unknown.
func (x *Index) Job(id string) int {
	if x == nil {
		return 0
	}
	return x.jobs[id]
}

// Step returns the line of step i of job id, or 0 when unknown.
func (x *Index) Step(id string, i int) int {
	if x == nil {
		return 0
	}
	lines := x.steps[id]
	if i < 0 || i >= len(lines) {
		return 0
	}
	return lines[i]
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
