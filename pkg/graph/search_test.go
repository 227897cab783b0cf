package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain(t *testing.T, g *TaggedGraph, n int) []*StepNode {
	t.Helper()
	steps := make([]*StepNode, n)
	for i := range steps {
		steps[i] = NewStepNode("octo/repo:main:ci.yml:build", "octo/repo", i)
		require.NoError(t, g.AddNode(steps[i]))
		if i > 0 {
			require.NoError(t, g.AddEdge(steps[i-1], steps[i]))
		}
	}
	return steps
}

func TestDFSToTagThreeNodeChain(t *testing.T) {
	g := New()
	s := chain(t, g, 3)
	require.NoError(t, g.AddTagsToNode(s[2], TagSink))

	paths, err := g.DFSToTag(s[0], TagSink, nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{s[0].ID(), s[1].ID(), s[2].ID()}, ids(paths[0]))
}

func TestDFSToTagNoMatch(t *testing.T) {
	g := New()
	s := chain(t, g, 3)

	paths, err := g.DFSToTag(s[0], TagSink, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestDFSToTagStartMatches(t *testing.T) {
	g := New()
	s := chain(t, g, 2)
	require.NoError(t, g.AddTagsToNode(s[0], TagSink))
	require.NoError(t, g.AddTagsToNode(s[1], TagSink))

	paths, err := g.DFSToTag(s[0], TagSink, nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{s[0].ID()}, ids(paths[0]))
}

func TestDFSToTagStopsAtFirstMatch(t *testing.T) {
	g := New()
	s := chain(t, g, 4)
	require.NoError(t, g.AddTagsToNode(s[1], TagSink))
	require.NoError(t, g.AddTagsToNode(s[3], TagSink))

	paths, err := g.DFSToTag(s[0], TagSink, nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{s[0].ID(), s[1].ID()}, ids(paths[0]))
}

func TestDFSToTagDiamondSharesNodes(t *testing.T) {
	// a -> b -> d, a -> c -> d, d is the target
	g := New()
	s := make([]*StepNode, 4)
	for i := range s {
		s[i] = NewStepNode("diamond", "octo/repo", i)
		require.NoError(t, g.AddNode(s[i]))
	}
	require.NoError(t, g.AddEdge(s[0], s[1]))
	require.NoError(t, g.AddEdge(s[0], s[2]))
	require.NoError(t, g.AddEdge(s[1], s[3]))
	require.NoError(t, g.AddEdge(s[2], s[3]))
	require.NoError(t, g.AddTagsToNode(s[3], TagCheckout))

	paths, err := g.DFSToTag(s[0], TagCheckout, nil)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{s[0].ID(), s[1].ID(), s[3].ID()}, ids(paths[0]))
	assert.Equal(t, []string{s[0].ID(), s[2].ID(), s[3].ID()}, ids(paths[1]))
}

func TestDFSToTagCycle(t *testing.T) {
	g := New()
	s := chain(t, g, 3)
	require.NoError(t, g.AddEdge(s[2], s[0]))
	require.NoError(t, g.AddEdge(s[1], s[0]))

	paths, err := g.DFSToTag(s[0], TagSink, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)

	require.NoError(t, g.AddTagsToNode(s[2], TagSink))
	paths, err = g.DFSToTag(s[0], TagSink, nil)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestDFSToTagDeepChain(t *testing.T) {
	g := New()
	s := chain(t, g, 20000)
	require.NoError(t, g.AddTagsToNode(s[len(s)-1], TagSink))

	paths, err := g.DFSToTag(s[0], TagSink, nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Len(t, paths[0], len(s))
}

func TestDFSToTagInitializesActionsOnce(t *testing.T) {
	g := New()
	step := NewStepNode("octo/repo:main:ci.yml:build", "octo/repo", 0)
	action := NewActionNode(step, "octo/setup@v1")
	require.NoError(t, g.AddNode(step))
	require.NoError(t, g.AddNode(action))
	require.NoError(t, g.AddEdge(step, action))

	calls := 0
	var inner *StepNode
	initialize := func(n Node) error {
		calls++
		inner = NewStepNode(n.ID(), "octo/repo", 0)
		if err := g.AddNodeWithTags(inner, TagSink); err != nil {
			return err
		}
		return g.AddEdge(n, inner)
	}

	paths, err := g.DFSToTag(step, TagSink, initialize)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{step.ID(), action.ID(), inner.ID()}, ids(paths[0]))
	assert.False(t, action.HasTag(TagUninitialized))
	assert.Empty(t, g.NodesByTag(TagUninitialized))

	_, err = g.DFSToTag(step, TagSink, initialize)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDFSToTagPropagatesInitializerError(t *testing.T) {
	g := New()
	step := NewStepNode("octo/repo:main:ci.yml:build", "octo/repo", 0)
	action := NewActionNode(step, "octo/setup@v1")
	require.NoError(t, g.AddNode(step))
	require.NoError(t, g.AddNode(action))
	require.NoError(t, g.AddEdge(step, action))

	boom := fmt.Errorf("rate limited")
	_, err := g.DFSToTag(step, TagSink, func(Node) error { return boom })
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, action.HasTag(TagUninitialized))
}

func TestDFSToTagAbsentStart(t *testing.T) {
	g := New()
	_, err := g.DFSToTag(NewStepNode("x", "octo/repo", 0), TagSink, nil)
	assert.True(t, errors.Is(err, ErrNodeNotPresent))
}
