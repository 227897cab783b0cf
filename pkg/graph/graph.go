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

// Package graph provides the tagged workflow graph and its path search.
//
// The graph stores workflow, job, step and action nodes together with a
// tag index mapping each tag to the nodes carrying it. Every mutating
// operation updates adjacency and index together, so the index never has
// to be rebuilt.
//
// # Thread Safety
//
// TaggedGraph is NOT safe for concurrent use. Lazy action initialization
// mutates the graph while a path search is reading it; callers that share
// a graph between goroutines must synchronize externally.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNodeNotPresent is returned when an operation references a node
	// that is not part of the graph.
	ErrNodeNotPresent = errors.New("node not present in graph")

	// ErrNilNode is returned when a nil node is passed to the graph.
	ErrNilNode = errors.New("nil node")
)

// TaggedGraph is a directed graph over Node with a tag -> nodes index.
type TaggedGraph struct {
	nodes map[string]Node
	// succ preserves insertion order so traversals are deterministic.
	succ map[string][]string
	pred map[string]map[string]struct{}
	tags map[string]map[string]struct{}
}

// New creates an empty graph.
func New() *TaggedGraph {
	return &TaggedGraph{
		nodes: make(map[string]Node),
		succ:  make(map[string][]string),
		pred:  make(map[string]map[string]struct{}),
		tags:  make(map[string]map[string]struct{}),
	}
}

// Len returns the number of nodes in the graph.
func (g *TaggedGraph) Len() int { return len(g.nodes) }

// Contains reports whether n is part of the graph.
func (g *TaggedGraph) Contains(n Node) bool {
	if n == nil {
		return false
	}
	existing, ok := g.nodes[n.ID()]
	return ok && existing == n
}

// Node returns the node with the given id.
func (g *TaggedGraph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// AddNode adds n and indexes the tags it already carries. Adding a node
// that is already present is a no-op.
func (g *TaggedGraph) AddNode(n Node) error {
	if n == nil {
		return ErrNilNode
	}
	if existing, ok := g.nodes[n.ID()]; ok {
		if existing != n {
			return fmt.Errorf("node id %q already bound to a different node", n.ID())
		}
		return nil
	}
	g.nodes[n.ID()] = n
	for t := range n.base().tags {
		g.index(t, n.ID())
	}
	return nil
}

// AddNodeWithTags adds n and attaches tags to it.
func (g *TaggedGraph) AddNodeWithTags(n Node, tags ...string) error {
	if err := g.AddNode(n); err != nil {
		return err
	}
	return g.AddTagsToNode(n, tags...)
}

// AddNodesWithTags adds every node in nodes with the same tag set.
func (g *TaggedGraph) AddNodesWithTags(nodes []Node, tags ...string) error {
	for _, n := range nodes {
		if err := g.AddNodeWithTags(n, tags...); err != nil {
			return err
		}
	}
	return nil
}

// RemoveNode removes n, its edges, and its membership in every tag set.
func (g *TaggedGraph) RemoveNode(n Node) error {
	if !g.Contains(n) {
		return fmt.Errorf("remove %s: %w", describe(n), ErrNodeNotPresent)
	}
	id := n.ID()
	for t := range n.base().tags {
		g.unindex(t, id)
	}
	for _, to := range g.succ[id] {
		delete(g.pred[to], id)
	}
	for from := range g.pred[id] {
		g.succ[from] = removeID(g.succ[from], id)
	}
	delete(g.succ, id)
	delete(g.pred, id)
	delete(g.nodes, id)
	return nil
}

// AddEdge adds a directed edge from -> to. Duplicate edges are ignored.
func (g *TaggedGraph) AddEdge(from, to Node) error {
	if !g.Contains(from) {
		return fmt.Errorf("edge source %s: %w", describe(from), ErrNodeNotPresent)
	}
	if !g.Contains(to) {
		return fmt.Errorf("edge target %s: %w", describe(to), ErrNodeNotPresent)
	}
	fid, tid := from.ID(), to.ID()
	if _, ok := g.pred[tid][fid]; ok {
		return nil
	}
	g.succ[fid] = append(g.succ[fid], tid)
	if g.pred[tid] == nil {
		g.pred[tid] = make(map[string]struct{})
	}
	g.pred[tid][fid] = struct{}{}
	return nil
}

// RemoveEdge removes the edge from -> to if it exists.
func (g *TaggedGraph) RemoveEdge(from, to Node) {
	if from == nil || to == nil {
		return
	}
	fid, tid := from.ID(), to.ID()
	if _, ok := g.pred[tid][fid]; !ok {
		return
	}
	g.succ[fid] = removeID(g.succ[fid], tid)
	delete(g.pred[tid], fid)
}

// Successors returns the direct successors of n in insertion order.
func (g *TaggedGraph) Successors(n Node) []Node {
	if !g.Contains(n) {
		return nil
	}
	ids := g.succ[n.ID()]
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// Predecessors returns the direct predecessors of n sorted by id.
func (g *TaggedGraph) Predecessors(n Node) []Node {
	if !g.Contains(n) {
		return nil
	}
	return g.sorted(g.pred[n.ID()])
}

// AddTag attaches tag to every node in nodes.
func (g *TaggedGraph) AddTag(tag string, nodes ...Node) error {
	for _, n := range nodes {
		if err := g.AddTagsToNode(n, tag); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTag detaches tag from every node in nodes. Nodes that do not carry
// the tag are left untouched.
func (g *TaggedGraph) RemoveTag(tag string, nodes ...Node) error {
	for _, n := range nodes {
		if err := g.RemoveTagsFromNode(n, tag); err != nil {
			return err
		}
	}
	return nil
}

// AddTagsToNode attaches tags to n. It fails if n is not in the graph.
func (g *TaggedGraph) AddTagsToNode(n Node, tags ...string) error {
	if !g.Contains(n) {
		return fmt.Errorf("tag %s: %w", describe(n), ErrNodeNotPresent)
	}
	b := n.base()
	for _, t := range tags {
		b.tags[t] = struct{}{}
		g.index(t, n.ID())
	}
	return nil
}

// RemoveTagsFromNode detaches tags from n. It fails if n is not in the graph.
func (g *TaggedGraph) RemoveTagsFromNode(n Node, tags ...string) error {
	if !g.Contains(n) {
		return fmt.Errorf("untag %s: %w", describe(n), ErrNodeNotPresent)
	}
	b := n.base()
	for _, t := range tags {
		delete(b.tags, t)
		g.unindex(t, n.ID())
	}
	return nil
}

// NodesByTag returns the nodes carrying tag, sorted by id.
func (g *TaggedGraph) NodesByTag(tag string) []Node {
	return g.sorted(g.tags[tag])
}

// NodesForTags returns the union of the nodes carrying any of tags.
func (g *TaggedGraph) NodesForTags(tags ...string) []Node {
	union := make(map[string]struct{})
	for _, t := range tags {
		for id := range g.tags[t] {
			union[id] = struct{}{}
		}
	}
	return g.sorted(union)
}

// TagsForNode returns the indexed tags of n, or nil if n is absent.
func (g *TaggedGraph) TagsForNode(n Node) []string {
	if !g.Contains(n) {
		return nil
	}
	return n.Tags()
}

func (g *TaggedGraph) index(tag, id string) {
	set, ok := g.tags[tag]
	if !ok {
		set = make(map[string]struct{})
		g.tags[tag] = set
	}
	set[id] = struct{}{}
}

func (g *TaggedGraph) unindex(tag, id string) {
	set, ok := g.tags[tag]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(g.tags, tag)
	}
}

func (g *TaggedGraph) sorted(ids map[string]struct{}) []Node {
	keys := make([]string, 0, len(ids))
	for id := range ids {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	out := make([]Node, 0, len(keys))
	for _, id := range keys {
		out = append(out, g.nodes[id])
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func describe(n Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.ID()
}
