// Package repository tracks per-repository facts gathered while scanning:
// fork status and the workflows that run on self-hosted runners.
package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/harekrishnarai/flowtaint/pkg/github"
)

// InfoSource fetches repository metadata.
type InfoSource interface {
	RepositoryInfo(ctx context.Context, fullName string) (github.RepositoryInfo, error)
}

// Repo holds what is known about one repository. It is safe for concurrent use.
type Repo struct {
	name string

	mu            sync.RWMutex
	fork          bool
	defaultBranch string
	loaded        bool
	selfHosted    map[string]struct{}
}

func (r *Repo) Name() string { return r.name }

func (r *Repo) IsFork() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fork
}

func (r *Repo) DefaultBranch() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultBranch
}

// SetFork records the fork flag, for local scans and tests.
func (r *Repo) SetFork(fork bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fork = fork
}

// AddSelfHostedWorkflows records workflows with jobs on self-hosted runners.
func (r *Repo) AddSelfHostedWorkflows(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range paths {
		r.selfHosted[p] = struct{}{}
	}
}

// SelfHostedWorkflows returns the recorded workflow paths, sorted.
func (r *Repo) SelfHostedWorkflows() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.selfHosted))
	for p := range r.selfHosted {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Registry is the shared repository cache of one scan run.
type Registry struct {
	source InfoSource

	mu    sync.Mutex
	repos map[string]*Repo
}

// NewRegistry creates a registry. source may be nil for offline scans.
func NewRegistry(source InfoSource) *Registry {
	return &Registry{source: source, repos: make(map[string]*Repo)}
}

// Repository returns the entry for name, creating it on first use.
func (g *Registry) Repository(name string) *Repo {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[name]
	if !ok {
		r = &Repo{name: name, selfHosted: make(map[string]struct{})}
		g.repos[name] = r
	}
	return r
}

// IsFork reports whether name is known to be a fork.
func (g *Registry) IsFork(name string) bool {
	return g.Repository(name).IsFork()
}

// Load populates repository metadata from the source once per repository.
func (g *Registry) Load(ctx context.Context, name string) (*Repo, error) {
	r := g.Repository(name)
	if g.source == nil {
		return r, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r, nil
	}
	info, err := g.source.RepositoryInfo(ctx, name)
	if err != nil {
		return r, err
	}
	r.fork = info.Fork
	r.defaultBranch = info.DefaultBranch
	r.loaded = true
	return r, nil
}

// Names returns every registered repository, sorted.
func (g *Registry) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.repos))
	for n := range g.repos {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
