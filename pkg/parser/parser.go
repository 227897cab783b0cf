package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkflowFile represents a GitHub Actions workflow file
type WorkflowFile struct {
	// Path is relative to the repository root, e.g. .github/workflows/ci.yml
	Path     string
	Name     string
	Content  []byte
	Workflow Workflow
}

// Workflow represents the parsed structure of a GitHub Actions workflow file
type Workflow struct {
	Name        string            `yaml:"name"`
	On          interface{}       `yaml:"on"`
	Env         map[string]string `yaml:"env,omitempty"`
	Jobs        map[string]Job    `yaml:"jobs"`
	Permissions interface{}       `yaml:"permissions,omitempty"`
}

// Job represents a job in a GitHub Actions workflow
type Job struct {
	Name        string                 `yaml:"name,omitempty"`
	RunsOn      interface{}            `yaml:"runs-on"`
	Permissions interface{}            `yaml:"permissions,omitempty"`
	Needs       interface{}            `yaml:"needs,omitempty"`
	If          string                 `yaml:"if,omitempty"`
	Steps       []Step                 `yaml:"steps"`
	Env         map[string]string      `yaml:"env,omitempty"`
	Environment interface{}            `yaml:"environment,omitempty"`
	Outputs     map[string]string      `yaml:"outputs,omitempty"`
	Uses        string                 `yaml:"uses,omitempty"`
	With        map[string]interface{} `yaml:"with,omitempty"`
	Secrets     interface{}            `yaml:"secrets,omitempty"`
}

// Step represents a step in a GitHub Actions job or composite action
type Step struct {
	Name             string                 `yaml:"name,omitempty"`
	ID               string                 `yaml:"id,omitempty"`
	If               string                 `yaml:"if,omitempty"`
	Uses             string                 `yaml:"uses,omitempty"`
	Run              string                 `yaml:"run,omitempty"`
	Shell            string                 `yaml:"shell,omitempty"`
	With             map[string]interface{} `yaml:"with,omitempty"`
	Env              map[string]string      `yaml:"env,omitempty"`
	WorkingDirectory string                 `yaml:"working-directory,omitempty"`
}

// Input is a workflow_dispatch or workflow_call input declaration
type Input struct {
	Description string      `yaml:"description,omitempty"`
	Type        string      `yaml:"type,omitempty"`
	Required    bool        `yaml:"required,omitempty"`
	Default     interface{} `yaml:"default,omitempty"`
}

// Environment is a job deployment environment
type Environment struct {
	Name string
	URL  string
}

// ActionMetadata is the content of an action.yml file
type ActionMetadata struct {
	Name   string           `yaml:"name"`
	Inputs map[string]Input `yaml:"inputs,omitempty"`
	Runs   ActionRuns       `yaml:"runs"`
}

// ActionRuns describes how an action executes
type ActionRuns struct {
	Using string `yaml:"using"`
	Main  string `yaml:"main,omitempty"`
	Image string `yaml:"image,omitempty"`
	Steps []Step `yaml:"steps,omitempty"`
}

// IsComposite reports whether the action runs its own steps
func (a ActionMetadata) IsComposite() bool {
	return a.Runs.Using == "composite"
}

// Triggers returns every event the workflow runs on, with the activity
// types declared for it (nil when unrestricted).
func (w Workflow) Triggers() map[string][]string {
	triggers := make(map[string][]string)
	switch on := w.On.(type) {
	case string:
		triggers[on] = nil
	case []interface{}:
		for _, ev := range on {
			if s, ok := ev.(string); ok {
				triggers[s] = nil
			}
		}
	case map[string]interface{}:
		for ev, cfg := range on {
			var types []string
			if m, ok := cfg.(map[string]interface{}); ok {
				types = StringList(m["types"])
			}
			triggers[ev] = types
		}
	}
	return triggers
}

// Inputs returns the inputs declared for workflow_dispatch and workflow_call
func (w Workflow) Inputs() map[string]Input {
	inputs := make(map[string]Input)
	on, ok := w.On.(map[string]interface{})
	if !ok {
		return inputs
	}
	for _, ev := range []string{"workflow_call", "workflow_dispatch"} {
		cfg, ok := on[ev].(map[string]interface{})
		if !ok {
			continue
		}
		declared, ok := cfg["inputs"].(map[string]interface{})
		if !ok {
			continue
		}
		for name, raw := range declared {
			var in Input
			if m, ok := raw.(map[string]interface{}); ok {
				in.Description, _ = m["description"].(string)
				in.Type, _ = m["type"].(string)
				in.Required, _ = m["required"].(bool)
				in.Default = m["default"]
			}
			inputs[name] = in
		}
	}
	return inputs
}

// JobIDs returns the job ids in a stable order
func (w Workflow) JobIDs() []string {
	ids := make([]string, 0, len(w.Jobs))
	for id := range w.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NeedsList normalizes needs to a list of job ids
func (j Job) NeedsList() []string {
	return StringList(j.Needs)
}

// RunsOnLabels normalizes runs-on to its labels
func (j Job) RunsOnLabels() []string {
	if m, ok := j.RunsOn.(map[string]interface{}); ok {
		labels := StringList(m["labels"])
		if group, ok := m["group"].(string); ok {
			labels = append(labels, group)
		}
		return labels
	}
	return StringList(j.RunsOn)
}

// Environments returns the deployment environment of the job, if any
func (j Job) Environments() []Environment {
	switch env := j.Environment.(type) {
	case string:
		return []Environment{{Name: env}}
	case map[string]interface{}:
		e := Environment{}
		e.Name, _ = env["name"].(string)
		e.URL, _ = env["url"].(string)
		if e.Name != "" {
			return []Environment{e}
		}
	}
	return nil
}

// StringList converts a scalar or sequence YAML value to strings
func StringList(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}

// StringMap converts a with: block to strings
func StringMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ParseWorkflow parses workflow content. relPath is kept as the workflow path.
func ParseWorkflow(relPath string, content []byte) (WorkflowFile, error) {
	var workflow Workflow
	if err := yaml.Unmarshal(content, &workflow); err != nil {
		return WorkflowFile{}, fmt.Errorf("failed to parse workflow file %s: %w", relPath, err)
	}
	return WorkflowFile{
		Path:     filepath.ToSlash(relPath),
		Name:     filepath.Base(relPath),
		Content:  content,
		Workflow: workflow,
	}, nil
}

// ParseActionMetadata parses an action.yml
func ParseActionMetadata(content []byte) (ActionMetadata, error) {
	var meta ActionMetadata
	if err := yaml.Unmarshal(content, &meta); err != nil {
		return ActionMetadata{}, fmt.Errorf("failed to parse action metadata: %w", err)
	}
	return meta, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}

// FindWorkflows searches for GitHub Actions workflow files in a repository
func FindWorkflows(repoPath string) ([]WorkflowFile, error) {
	workflowsDir := filepath.Join(repoPath, ".github", "workflows")

	// Check if workflows directory exists
	if _, err := os.Stat(workflowsDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("no .github/workflows directory found in %s", repoPath)
	}

	var workflows []WorkflowFile
	err := filepath.Walk(workflowsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isYAML(info.Name()) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read workflow file %s: %w", path, err)
		}

		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return err
		}
		wf, err := ParseWorkflow(rel, content)
		if err != nil {
			return err
		}
		workflows = append(workflows, wf)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("error searching for workflow files: %w", err)
	}

	if len(workflows) == 0 {
		return nil, fmt.Errorf("no workflow files found in %s", workflowsDir)
	}

	return workflows, nil
}

// LoadSingleWorkflow loads and parses a single workflow file
func LoadSingleWorkflow(filePath string) ([]WorkflowFile, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("workflow file not found: %s", filePath)
	}

	if !isYAML(filePath) {
		return nil, fmt.Errorf("file %s does not have a YAML extension (.yml or .yaml)", filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", filePath, err)
	}

	// Keep the conventional path when the file lives in a workflows directory
	rel := filepath.ToSlash(filePath)
	if i := strings.Index(rel, ".github/workflows/"); i >= 0 {
		rel = rel[i:]
	}

	wf, err := ParseWorkflow(rel, content)
	if err != nil {
		return nil, err
	}
	return []WorkflowFile{wf}, nil
}
