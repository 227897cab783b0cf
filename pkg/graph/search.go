package graph

import "fmt"

// Initializer materializes an uninitialized node (typically an ActionNode
// whose steps still have to be fetched) before its successors are read.
type Initializer func(n Node) error

type frame struct {
	succ []Node
	next int
}

// DFSToTag returns every simple path from start to a node carrying tag.
//
// A branch stops at its first match. The visited set is scoped to the call
// and restored on backtrack, so the same node can appear in several paths
// through different branches. Nodes tagged uninitialized are handed to initialize
// (when non-nil) and untagged before their successors are expanded. The
// walk uses an explicit stack so deep reusable-workflow chains cannot
// exhaust the goroutine stack.
func (g *TaggedGraph) DFSToTag(start Node, tag string, initialize Initializer) ([][]Node, error) {
	if !g.Contains(start) {
		return nil, fmt.Errorf("search from %s: %w", describe(start), ErrNodeNotPresent)
	}

	var (
		paths   [][]Node
		path    []Node
		stack   []frame
		visited = make(map[string]bool)
	)

	// enter pushes n onto the current path. A matching node closes its
	// branch immediately and is popped again.
	enter := func(n Node) error {
		visited[n.ID()] = true
		path = append(path, n)

		if n.HasTag(tag) {
			paths = append(paths, append([]Node(nil), path...))
			path = path[:len(path)-1]
			delete(visited, n.ID())
			return nil
		}

		if n.HasTag(TagUninitialized) && initialize != nil {
			if err := initialize(n); err != nil {
				return fmt.Errorf("initialize %s: %w", n.ID(), err)
			}
			if g.Contains(n) {
				if err := g.RemoveTagsFromNode(n, TagUninitialized); err != nil {
					return err
				}
			}
		}

		stack = append(stack, frame{succ: g.Successors(n)})
		return nil
	}

	if err := enter(start); err != nil {
		return nil, err
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.succ) {
			last := path[len(path)-1]
			delete(visited, last.ID())
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
			continue
		}

		nb := top.succ[top.next]
		top.next++
		if visited[nb.ID()] {
			continue
		}
		if err := enter(nb); err != nil {
			return nil, err
		}
	}

	return paths, nil
}
