// Package layout computes automatic node positions for knowledge maps. The
// engine implements a layered (Sugiyama-style) algorithm: cycle condensation,
// longest-path layer assignment, barycenter ordering, then coordinate
// assignment along a configurable direction. A grouped variant nests
// per-owner layered sub-layouts inside shelf-packed owner boxes for the
// combined cross-user view.
package layout

// Direction is the main axis along which layers advance.
type Direction string

const (
	// DirectionDown grows layers top to bottom, the main editor default.
	DirectionDown Direction = "DOWN"
	// DirectionRight grows layers left to right, used by the preview pane
	// and the per-owner sub-layouts of the grouped view.
	DirectionRight Direction = "RIGHT"
)

// Default node extent when a caller does not measure its nodes.
const (
	DefaultNodeWidth  = 150
	DefaultNodeHeight = 50
)

// Options are the spacing constants of one layout run.
type Options struct {
	Direction Direction
	// NodeSpacing separates nodes within the same layer.
	NodeSpacing float64
	// LayerSpacing separates consecutive layers.
	LayerSpacing float64
}

// MainOptions returns the spacing used by the primary editor canvas.
func MainOptions() Options {
	return Options{Direction: DirectionDown, NodeSpacing: 100, LayerSpacing: 120}
}

// PreviewOptions returns the spacing used by the temporal preview pane.
func PreviewOptions() Options {
	return Options{Direction: DirectionRight, NodeSpacing: 80, LayerSpacing: 100}
}

// Node is one layout participant: an id plus an approximate extent.
type Node struct {
	ID     string
	Width  float64
	Height float64
}

// Edge is a connection reduced to its endpoints.
type Edge struct {
	ID     string
	Source string
	Target string
}

// Spec is a fully self-contained graph description. The engine is stateless;
// nothing carries over between calls.
type Spec struct {
	Nodes   []Node
	Edges   []Edge
	Options Options
}

// Point is a computed position.
type Point struct {
	X float64
	Y float64
}

// Result maps node id to its computed position.
type Result map[string]Point

func (n Node) width() float64 {
	if n.Width > 0 {
		return n.Width
	}
	return DefaultNodeWidth
}

func (n Node) height() float64 {
	if n.Height > 0 {
		return n.Height
	}
	return DefaultNodeHeight
}
