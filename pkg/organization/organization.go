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

// Package organization discovers the repositories of a GitHub organization
// for a bulk scan.
package organization

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/harekrishnarai/flowtaint/pkg/github"
)

// Lister lists the repositories of an organization
type Lister interface {
	ListOrganizationRepositories(ctx context.Context, org string) ([]github.RepositoryInfo, error)
}

// RepositoryFilter selects which repositories of an organization are scanned
type RepositoryFilter struct {
	IncludeForks    bool
	IncludeArchived bool
	IncludePrivate  bool
	IncludePublic   bool
	// NameFilter is a regular expression matched against the full name
	NameFilter string
}

// DefaultFilter scans every live, non-fork repository. Forks are skipped
// because findings in them are never reported.
func DefaultFilter() RepositoryFilter {
	return RepositoryFilter{
		IncludePrivate: true,
		IncludePublic:  true,
	}
}

// ApplyRepositoryFilter checks if a repository matches the filter criteria
func ApplyRepositoryFilter(repo github.RepositoryInfo, filter RepositoryFilter, name *regexp.Regexp) bool {
	// Check visibility filters
	if repo.Private && !filter.IncludePrivate {
		return false
	}
	if !repo.Private && !filter.IncludePublic {
		return false
	}

	// Check special repository types
	if repo.Fork && !filter.IncludeForks {
		return false
	}
	if repo.Archived && !filter.IncludeArchived {
		return false
	}

	return name == nil || name.MatchString(repo.FullName)
}

// Discover returns the sorted full names of the repositories of org that
// pass filter.
func Discover(ctx context.Context, lister Lister, org string, filter RepositoryFilter) ([]string, error) {
	var name *regexp.Regexp
	if filter.NameFilter != "" {
		var err error
		if name, err = regexp.Compile(filter.NameFilter); err != nil {
			return nil, fmt.Errorf("invalid repository name filter: %w", err)
		}
	}

	repos, err := lister.ListOrganizationRepositories(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to discover repositories: %w", err)
	}

	var names []string
	for _, r := range repos {
		if ApplyRepositoryFilter(r, filter, name) {
			names = append(names, r.FullName)
		}
	}
	sort.Strings(names)
	return names, nil
}
