package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowmap-backend/domain/core/entities"
	"knowmap-backend/domain/core/valueobjects"
)

func newTestNode(t *testing.T, id, label string) *entities.Node {
	t.Helper()
	nodeID, err := valueobjects.NewNodeIDFromString(id)
	require.NoError(t, err)
	node, err := entities.NewNode(nodeID, label, "about "+label, nil)
	require.NoError(t, err)
	return node
}

func newTestEdge(t *testing.T, id, source, target string) *entities.Edge {
	t.Helper()
	sourceID, err := valueobjects.NewNodeIDFromString(source)
	require.NoError(t, err)
	targetID, err := valueobjects.NewNodeIDFromString(target)
	require.NoError(t, err)
	edge, err := entities.NewEdge(id, sourceID, targetID, true)
	require.NoError(t, err)
	return edge
}

func TestMap_ReplaceAll(t *testing.T) {
	m := NewMap()

	t.Run("skips duplicate node ids and dangling edges", func(t *testing.T) {
		m.ReplaceAll(
			[]*entities.Node{
				newTestNode(t, "a", "Calculus"),
				newTestNode(t, "b", "Limits"),
				newTestNode(t, "a", "Shadow"),
			},
			[]*entities.Edge{
				newTestEdge(t, "e1", "a", "b"),
				newTestEdge(t, "e2", "a", "ghost"),
			},
		)

		assert.Equal(t, 2, m.NodeCount())
		assert.Equal(t, 1, m.EdgeCount())
		require.NoError(t, m.Validate())

		// First occurrence wins for duplicate ids.
		node, ok := m.Node(mustID(t, "a"))
		require.True(t, ok)
		assert.Equal(t, "Calculus", node.Label())
	})

	t.Run("clears previous content", func(t *testing.T) {
		m.ReplaceAll([]*entities.Node{newTestNode(t, "x", "X")}, nil)
		assert.Equal(t, 1, m.NodeCount())
		assert.Equal(t, 0, m.EdgeCount())
		assert.False(t, m.HasLabel("Calculus"))
	})
}

func TestMap_AddNodeAndEdge(t *testing.T) {
	t.Run("atomic node plus edge", func(t *testing.T) {
		m := NewMap()
		require.NoError(t, m.AddNode(newTestNode(t, "base", "Base")))
		before := m.Revision()

		node := newTestNode(t, "new", "New")
		edge := newTestEdge(t, "e1", "base", "new")
		require.NoError(t, m.AddNodeAndEdge(node, edge))

		assert.Equal(t, 2, m.NodeCount())
		assert.Equal(t, 1, m.EdgeCount())
		assert.Equal(t, before+1, m.Revision(), "both additions share one revision bump")
	})

	t.Run("edge only when node is nil", func(t *testing.T) {
		m := NewMap()
		require.NoError(t, m.AddNode(newTestNode(t, "a", "A")))
		require.NoError(t, m.AddNode(newTestNode(t, "b", "B")))

		require.NoError(t, m.AddNodeAndEdge(nil, newTestEdge(t, "e1", "a", "b")))
		assert.Equal(t, 1, m.EdgeCount())
	})

	t.Run("failure leaves map untouched", func(t *testing.T) {
		m := NewMap()
		require.NoError(t, m.AddNode(newTestNode(t, "base", "Base")))
		before := m.Revision()

		node := newTestNode(t, "new", "New")
		bad := newTestEdge(t, "e1", "base", "elsewhere")
		require.Error(t, m.AddNodeAndEdge(node, bad))

		assert.Equal(t, 1, m.NodeCount(), "node must not land when the edge fails")
		assert.Equal(t, 0, m.EdgeCount())
		assert.Equal(t, before, m.Revision())
	})
}

func TestMap_AddEdge_RejectsDangling(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.AddNode(newTestNode(t, "a", "A")))

	err := m.AddEdge(newTestEdge(t, "e1", "a", "missing"))
	assert.Error(t, err)
	assert.Equal(t, 0, m.EdgeCount())
}

func TestMap_NodeByLabel(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.AddNode(newTestNode(t, "a", "Calculus")))

	t.Run("exact match only", func(t *testing.T) {
		_, ok := m.NodeByLabel("Calculus")
		assert.True(t, ok)
		_, ok = m.NodeByLabel("calculus")
		assert.False(t, ok, "label matching is case sensitive")
		_, ok = m.NodeByLabel("")
		assert.False(t, ok)
	})

	t.Run("last added wins for duplicate labels", func(t *testing.T) {
		require.NoError(t, m.AddNode(newTestNode(t, "b", "Calculus")))
		node, ok := m.NodeByLabel("Calculus")
		require.True(t, ok)
		assert.Equal(t, "b", node.ID().String())
	})
}

func TestMap_MergeBatch(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.AddNode(newTestNode(t, "base", "Base")))
	before := m.Revision()

	m.MergeBatch(
		[]*entities.Node{
			newTestNode(t, "base", "Shadow"),
			newTestNode(t, "p1", "Past"),
			newTestNode(t, "f1", "Future"),
		},
		[]*entities.Edge{
			newTestEdge(t, "e1", "p1", "base"),
			newTestEdge(t, "e2", "base", "f1"),
			newTestEdge(t, "e3", "p1", "gone"),
		},
	)

	assert.Equal(t, 3, m.NodeCount())
	assert.Equal(t, 2, m.EdgeCount())
	assert.Equal(t, before+1, m.Revision(), "whole merge is one transition")
	require.NoError(t, m.Validate())

	// Existing node kept its identity.
	node, ok := m.Node(mustID(t, "base"))
	require.True(t, ok)
	assert.Equal(t, "Base", node.Label())

	// A no-op merge does not bump the revision.
	rev := m.Revision()
	m.MergeBatch(nil, nil)
	assert.Equal(t, rev, m.Revision())
}

func TestMap_ApplyPositions(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.AddNode(newTestNode(t, "a", "A")))

	pos := func(x, y float64) valueobjects.Position {
		p, err := valueobjects.NewPosition(x, y)
		require.NoError(t, err)
		return p
	}

	m.ApplyPositions(map[valueobjects.NodeID]valueobjects.Position{
		mustID(t, "a"):    pos(10, 20),
		mustID(t, "gone"): pos(99, 99),
	})

	node, _ := m.Node(mustID(t, "a"))
	assert.Equal(t, 10.0, node.Position().X())
	assert.Equal(t, 20.0, node.Position().Y())

	// Re-applying identical positions is a no-op revision-wise.
	rev := m.Revision()
	m.ApplyPositions(map[valueobjects.NodeID]valueobjects.Position{
		mustID(t, "a"): pos(10, 20),
	})
	assert.Equal(t, rev, m.Revision())
}

func TestMap_SnapshotIsolation(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.AddNode(newTestNode(t, "a", "A")))

	nodes, _ := m.Snapshot()
	require.Len(t, nodes, 1)

	p, err := valueobjects.NewPosition(500, 500)
	require.NoError(t, err)
	require.NoError(t, nodes[0].MoveTo(p))

	live, _ := m.Node(mustID(t, "a"))
	assert.Equal(t, 0.0, live.Position().X(), "mutating a snapshot must not touch the live map")
}

func TestMap_InsertionOrderStable(t *testing.T) {
	m := NewMap()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.AddNode(newTestNode(t, id, id)))
	}

	var got []string
	for _, n := range m.Nodes() {
		got = append(got, n.ID().String())
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func mustID(t *testing.T, id string) valueobjects.NodeID {
	t.Helper()
	nodeID, err := valueobjects.NewNodeIDFromString(id)
	require.NoError(t, err)
	return nodeID
}
