package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/harekrishnarai/flowtaint/pkg/graph"
	"github.com/harekrishnarai/flowtaint/pkg/parser"
)

// InitializeActionNode loads the metadata of the action behind n and splices
// the steps of a composite action between n and its successors. Actions
// that cannot be found or that are not composite are left as they are. The
// caller removes the uninitialized tag.
func (b *Builder) InitializeActionNode(ctx context.Context, n graph.Node) error {
	action, ok := n.(*graph.ActionNode)
	if !ok || !b.g.Contains(action) {
		return nil
	}

	meta, err := b.actionMetadata(ctx, action)
	if errors.Is(err, os.ErrNotExist) {
		b.log.Debug("action metadata not found", "uses", action.Uses)
		return nil
	}
	if err != nil {
		return err
	}
	if !meta.IsComposite() || len(meta.Runs.Steps) == 0 {
		return nil
	}

	repo, ref := action.RepoName, action.CallerRef
	if !action.IsLocal {
		repo, ref = action.Owner+"/"+action.Repo, action.Ref
	}

	next := b.g.Successors(action)
	for _, s := range next {
		b.g.RemoveEdge(action, s)
	}
	last, err := b.addSteps(action, action.ID(), repo, ref, meta.Runs.Steps, nil)
	if err != nil {
		return err
	}
	for _, s := range next {
		if err := b.g.AddEdge(last, s); err != nil {
			return err
		}
	}
	b.log.Trace("composite action expanded", "uses", action.Uses, "steps", len(meta.Runs.Steps))
	return nil
}

// Initializer adapts InitializeActionNode to the search hook of the graph.
func (b *Builder) Initializer(ctx context.Context) graph.Initializer {
	return func(n graph.Node) error {
		return b.InitializeActionNode(ctx, n)
	}
}

func (b *Builder) actionMetadata(ctx context.Context, a *graph.ActionNode) (*parser.ActionMetadata, error) {
	repo, dir, ref := a.RepoName, a.Path, a.CallerRef
	if !a.IsLocal {
		repo, ref = a.Owner+"/"+a.Repo, a.Ref
	}
	key := repo + ":" + dir + "@" + ref
	if meta, ok := b.actions[key]; ok {
		if meta == nil {
			return nil, fmt.Errorf("%s: %w", a.Uses, os.ErrNotExist)
		}
		return meta, nil
	}

	var (
		content []byte
		err     error
	)
	for _, name := range []string{"action.yml", "action.yaml"} {
		content, err = b.readFile(ctx, repo, path.Join(dir, name), ref)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			break
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		b.actions[key] = nil
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("fetch action %s: %w", a.Uses, err)
	}

	meta, err := parser.ParseActionMetadata(content)
	if err != nil {
		return nil, err
	}
	b.actions[key] = &meta
	return &meta, nil
}
