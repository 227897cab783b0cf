package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

// ProtectionRule summarizes the protection configured on a deployment environment
type ProtectionRule struct {
	Environment string
	// Types lists the rule kinds, e.g. required_reviewers, wait_timer, branch_policy
	Types     []string
	Reviewers int
}

// RequiresApproval reports whether a deployment to the environment waits for a human
func (r ProtectionRule) RequiresApproval() bool {
	if r.Reviewers > 0 {
		return true
	}
	for _, t := range r.Types {
		if t == "required_reviewers" {
			return true
		}
	}
	return false
}

// RepositoryInfo is the repository metadata the analysis needs
type RepositoryInfo struct {
	FullName      string
	Fork          bool
	DefaultBranch string
	Private       bool
	Archived      bool
}

func repositoryInfo(r *github.Repository) RepositoryInfo {
	return RepositoryInfo{
		FullName:      r.GetFullName(),
		Fork:          r.GetFork(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Archived:      r.GetArchived(),
	}
}

// Client represents a GitHub API client
type Client struct {
	client *github.Client
}

// NewClient creates a new GitHub API client
func NewClient() *Client {
	ctx := context.Background()
	var client *github.Client

	// Check if GitHub token is available
	token := os.Getenv("GITHUB_TOKEN")
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(ctx, ts)
		client = github.NewClient(tc)
	} else {
		// Create unauthenticated client (rate limited)
		client = github.NewClient(nil)
	}

	return &Client{client: client}
}

// NewClientWithHTTP wraps an existing go-github client, mostly for tests
func NewClientWithHTTP(gh *github.Client) *Client {
	return &Client{client: gh}
}

// ParseRepositoryURL parses a GitHub repository URL or an owner/repo slug
func ParseRepositoryURL(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), "/")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "git@github.com:"} {
		if strings.HasPrefix(trimmed, prefix) {
			trimmed = strings.TrimPrefix(trimmed, prefix)
			parts := strings.Split(trimmed, "/")
			if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
				return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
			}
			return "", "", fmt.Errorf("invalid GitHub repository URL: %s", repoURL)
		}
	}

	// owner/repo slug
	if parts := strings.Split(trimmed, "/"); len(parts) == 2 && parts[0] != "" && parts[1] != "" && !strings.Contains(trimmed, ":") {
		return parts[0], parts[1], nil
	}

	return "", "", fmt.Errorf("invalid GitHub repository URL: %s", repoURL)
}

func splitRepo(fullName string) (string, string, error) {
	owner, repo, err := ParseRepositoryURL(fullName)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository name %q: %w", fullName, err)
	}
	return owner, repo, nil
}

func isNotFound(err error) bool {
	var errResp *github.ErrorResponse
	return errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound
}

// EnvironmentProtectionRules returns the deployment environments of a repository
// that carry protection rules, keyed by environment name. Repositories without
// environments, or whose environments are not visible to the token, yield an
// empty map.
func (c *Client) EnvironmentProtectionRules(ctx context.Context, fullName string) (map[string]ProtectionRule, error) {
	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	rules := make(map[string]ProtectionRule)
	opts := &github.EnvironmentListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		envs, resp, err := c.client.Repositories.ListEnvironments(ctx, owner, repo, opts)
		if err != nil {
			if isNotFound(err) {
				return rules, nil
			}
			return nil, fmt.Errorf("failed to list environments for %s: %w", fullName, err)
		}
		for _, env := range envs.Environments {
			if len(env.ProtectionRules) == 0 {
				continue
			}
			rule := ProtectionRule{Environment: env.GetName()}
			for _, pr := range env.ProtectionRules {
				rule.Types = append(rule.Types, pr.GetType())
				rule.Reviewers += len(pr.Reviewers)
			}
			rules[env.GetName()] = rule
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return rules, nil
}

// RepositoryInfo fetches fork and default branch metadata
func (c *Client) RepositoryInfo(ctx context.Context, fullName string) (RepositoryInfo, error) {
	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return RepositoryInfo{}, err
	}

	r, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return RepositoryInfo{}, fmt.Errorf("failed to get repository %s: %w", fullName, err)
	}

	return repositoryInfo(r), nil
}

// ListOrganizationRepositories pages through every repository of org
func (c *Client) ListOrganizationRepositories(ctx context.Context, org string) ([]RepositoryInfo, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var repos []RepositoryInfo
	for {
		page, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", org, err)
		}
		for _, r := range page {
			repos = append(repos, repositoryInfo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// FileContents downloads a single file at ref. An empty ref means the default branch.
func (c *Client) FileContents(ctx context.Context, fullName, filePath, ref string) ([]byte, error) {
	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	fileContent, _, _, err := c.client.Repositories.GetContents(ctx, owner, repo, filePath, opts)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s/%s@%s: %w", fullName, filePath, ref, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get file %s: %w", filePath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s is a directory", filePath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", filePath, err)
	}
	return []byte(content), nil
}

// WorkflowFile is a workflow definition fetched from a repository
type WorkflowFile struct {
	Path    string
	Content []byte
}

// WorkflowFiles downloads every workflow under .github/workflows at ref
func (c *Client) WorkflowFiles(ctx context.Context, fullName, ref string) ([]WorkflowFile, error) {
	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	workflowsPath := ".github/workflows"
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	_, directoryContent, _, err := c.client.Repositories.GetContents(ctx, owner, repo, workflowsPath, opts)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	var files []WorkflowFile
	for _, entry := range directoryContent {
		if entry.GetType() != "file" {
			continue
		}
		if ext := path.Ext(entry.GetName()); ext != ".yml" && ext != ".yaml" {
			continue
		}
		content, err := c.FileContents(ctx, fullName, entry.GetPath(), ref)
		if err != nil {
			return nil, err
		}
		files = append(files, WorkflowFile{Path: entry.GetPath(), Content: content})
	}

	return files, nil
}

// Offline answers every query with empty data. It is used for local scans
// where no API access is wanted.
type Offline struct{}

func (Offline) EnvironmentProtectionRules(context.Context, string) (map[string]ProtectionRule, error) {
	return map[string]ProtectionRule{}, nil
}

func (Offline) RepositoryInfo(_ context.Context, fullName string) (RepositoryInfo, error) {
	return RepositoryInfo{FullName: fullName}, nil
}

func (Offline) FileContents(_ context.Context, fullName, filePath, ref string) ([]byte, error) {
	return nil, fmt.Errorf("%s/%s@%s: offline: %w", fullName, filePath, ref, os.ErrNotExist)
}

func (Offline) WorkflowFiles(context.Context, string, string) ([]WorkflowFile, error) {
	return nil, nil
}
