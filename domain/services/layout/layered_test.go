package layout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layeredSpec(direction Direction, nodes []string, edges [][2]string) Spec {
	spec := Spec{Options: Options{Direction: direction}}
	for _, id := range nodes {
		spec.Nodes = append(spec.Nodes, Node{ID: id})
	}
	for i, e := range edges {
		spec.Edges = append(spec.Edges, Edge{ID: string(rune('a' + i)), Source: e[0], Target: e[1]})
	}
	return spec
}

func TestLayered_Empty(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Layered(context.Background(), Spec{})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestLayered_ChainDown(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Layered(context.Background(),
		layeredSpec(DirectionDown, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}}))
	require.NoError(t, err)
	require.Len(t, result, 3)

	// Layers advance downward by node height plus layer spacing.
	step := DefaultNodeHeight + MainOptions().LayerSpacing
	assert.Equal(t, 0.0, result["a"].Y)
	assert.Equal(t, float64(step), result["b"].Y)
	assert.Equal(t, float64(2*step), result["c"].Y)

	// Single-node layers are centered on the cross axis.
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, -float64(DefaultNodeWidth)/2, result[id].X)
	}
}

func TestLayered_ChainRight(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Layered(context.Background(),
		layeredSpec(DirectionRight, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}}))
	require.NoError(t, err)

	step := DefaultNodeWidth + MainOptions().LayerSpacing
	assert.Equal(t, 0.0, result["a"].X)
	assert.Equal(t, float64(step), result["b"].X)
	assert.Equal(t, float64(2*step), result["c"].X)
	assert.Equal(t, result["a"].Y, result["b"].Y)
}

func TestLayered_SiblingsShareLayer(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Layered(context.Background(),
		layeredSpec(DirectionDown, []string{"root", "b", "c"}, [][2]string{{"root", "b"}, {"root", "c"}}))
	require.NoError(t, err)

	assert.Equal(t, result["b"].Y, result["c"].Y)
	assert.NotEqual(t, result["root"].Y, result["b"].Y)

	gap := result["c"].X - result["b"].X
	if gap < 0 {
		gap = -gap
	}
	assert.Equal(t, float64(DefaultNodeWidth)+MainOptions().NodeSpacing, gap)
}

func TestLayered_ToleratesCycles(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Layered(context.Background(),
		layeredSpec(DirectionDown, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}}))
	require.NoError(t, err)
	require.Len(t, result, 3)

	// The a<->b cycle condenses onto one layer; c still lands below it.
	assert.Equal(t, result["a"].Y, result["b"].Y)
	assert.Greater(t, result["c"].Y, result["a"].Y)
}

func TestLayered_IgnoresSelfLoopsAndUnknownEndpoints(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Layered(context.Background(),
		layeredSpec(DirectionDown, []string{"a", "b"}, [][2]string{{"a", "a"}, {"a", "ghost"}, {"a", "b"}}))
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Greater(t, result["b"].Y, result["a"].Y)
}

func TestLayered_RejectsBadSpecs(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Layered(context.Background(),
		layeredSpec(DirectionDown, []string{"a", "a"}, nil))
	assert.Error(t, err, "duplicate node ids")

	_, err = engine.Layered(context.Background(),
		layeredSpec(DirectionDown, []string{""}, nil))
	assert.Error(t, err, "empty node id")
}

func TestLayered_CancelledContext(t *testing.T) {
	engine := NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Layered(ctx, layeredSpec(DirectionDown, []string{"a"}, nil))
	assert.Error(t, err)
}

func TestLayered_Deterministic(t *testing.T) {
	engine := NewEngine()
	spec := layeredSpec(DirectionDown,
		[]string{"a", "b", "c", "d", "e"},
		[][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}, {"d", "e"}})

	first, err := engine.Layered(context.Background(), spec)
	require.NoError(t, err)
	second, err := engine.Layered(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
