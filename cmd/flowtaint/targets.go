package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	flowerrors "github.com/harekrishnarai/flowtaint/pkg/errors"
	"github.com/harekrishnarai/flowtaint/pkg/github"
	"github.com/harekrishnarai/flowtaint/pkg/organization"
	"github.com/harekrishnarai/flowtaint/pkg/scanner"
)

// inputs are the flags that select what to scan
type inputs struct {
	RepoPath     string
	RepoURL      string
	ReposFile    string
	WorkflowFile string
	Org          string
	Ref          string
}

func inputsFromFlags(c *cli.Context) inputs {
	return inputs{
		RepoPath:     c.String("repo"),
		RepoURL:      c.String("url"),
		ReposFile:    c.String("repos-file"),
		WorkflowFile: c.String("workflow"),
		Org:          c.String("org"),
		Ref:          c.String("ref"),
	}
}

// remote reports whether the targets come from the GitHub API
func (in inputs) remote() bool {
	return in.RepoURL != "" || in.ReposFile != "" || in.Org != ""
}

// collectTargets turns the input flags into scan targets. Exactly one of
// the inputs has to be set. lister is only used for organization scans.
func collectTargets(ctx context.Context, in inputs, lister organization.Lister, filter organization.RepositoryFilter) ([]scanner.Target, error) {
	set := 0
	for _, v := range []string{in.RepoPath, in.RepoURL, in.ReposFile, in.WorkflowFile, in.Org} {
		if v != "" {
			set++
		}
	}
	if set == 0 {
		return nil, flowerrors.ErrNoInputSpecified()
	}
	if set > 1 {
		return nil, flowerrors.NewValidationError("only one of --repo, --url, --repos-file, --org or --workflow may be given", "input", nil)
	}
	repoPath, repoURL, reposFile, workflowFile, ref := in.RepoPath, in.RepoURL, in.ReposFile, in.WorkflowFile, in.Ref

	switch {
	case in.Org != "":
		names, err := organization.Discover(ctx, lister, in.Org, filter)
		if err != nil {
			return nil, flowerrors.NewGitHubError("failed to discover organization repositories", err, in.Org)
		}
		if len(names) == 0 {
			return nil, flowerrors.NewValidationError("no repositories matched", "org", in.Org,
				"Relax --repo-filter or pass --include-forks/--include-archived")
		}
		targets := make([]scanner.Target, 0, len(names))
		for _, n := range names {
			targets = append(targets, scanner.Target{Repo: n, Ref: ref})
		}
		return targets, nil

	case repoPath != "":
		info, err := os.Stat(repoPath)
		if err != nil {
			return nil, flowerrors.NewRepositoryError("cannot open repository", err, repoPath)
		}
		if !info.IsDir() {
			return nil, flowerrors.NewRepositoryError("repository path is not a directory", nil, repoPath,
				"Use --workflow to scan a single file")
		}
		return []scanner.Target{{LocalPath: repoPath, Ref: ref}}, nil

	case workflowFile != "":
		return []scanner.Target{{WorkflowFile: workflowFile, Ref: ref}}, nil

	case repoURL != "":
		t, err := remoteTarget(repoURL, ref)
		if err != nil {
			return nil, err
		}
		return []scanner.Target{t}, nil
	}

	repos, err := readReposFile(reposFile)
	if err != nil {
		return nil, err
	}
	targets := make([]scanner.Target, 0, len(repos))
	for _, r := range repos {
		t, err := remoteTarget(r, ref)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, flowerrors.NewValidationError("repository list is empty", "repos-file", reposFile)
	}
	return targets, nil
}

func remoteTarget(repoURL, ref string) (scanner.Target, error) {
	// owner/repo@ref pins a ref per line in a repository list
	if i := strings.LastIndex(repoURL, "@"); i > 0 && !strings.HasPrefix(repoURL, "git@") {
		if ref == "" {
			ref = repoURL[i+1:]
		}
		repoURL = repoURL[:i]
	}
	owner, name, err := github.ParseRepositoryURL(repoURL)
	if err != nil {
		return scanner.Target{}, flowerrors.NewValidationError(err.Error(), "url", repoURL,
			"Use https://github.com/owner/repo or owner/repo")
	}
	return scanner.Target{Repo: owner + "/" + name, Ref: ref}, nil
}

// readReposFile reads one repository per line, skipping blanks and # comments.
func readReposFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, flowerrors.NewValidationError(fmt.Sprintf("cannot read repository list: %v", err), "repos-file", path)
	}
	defer f.Close()

	var repos []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		repos = append(repos, line)
	}
	return repos, sc.Err()
}
