package layout

import (
	"context"
	"math"
	"sort"

	pkgerrors "knowmap-backend/pkg/errors"
)

// GroupedSpec describes a two-level layout: each owner's nodes form an
// independent layered sub-layout nested inside an outer placement of the
// owner boxes themselves.
type GroupedSpec struct {
	Groups []Group
	// Edges may cross groups; only intra-group edges influence the
	// sub-layouts, the rest are carried through untouched by the caller.
	Edges []Edge
	// GroupSpacing separates owner boxes. Zero means the default.
	GroupSpacing float64
	// Padding insets members from their owner box edge. Zero fields take
	// defaults.
	Padding Padding
}

// Group is one owner's node set.
type Group struct {
	ID    string
	Nodes []Node
}

// Padding is the inset applied inside each owner box. Top is larger by
// default to leave room for the owner caption.
type Padding struct {
	Top    float64
	Left   float64
	Bottom float64
	Right  float64
}

// DefaultPadding returns the owner-box insets used by the combined view.
func DefaultPadding() Padding {
	return Padding{Top: 80, Left: 40, Bottom: 40, Right: 40}
}

const defaultGroupSpacing = 120

// Container is an owner's bounding box in the outer coordinate space.
// Containers are rendered as non-interactive background boxes.
type Container struct {
	ID     string
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// GroupedResult holds owner boxes plus member positions relative to their
// owner's box. Members are constrained within the box.
type GroupedResult struct {
	Containers []Container
	// Positions are member positions relative to the owning container.
	Positions Result
	// ContainerOf maps a member node id to its container id.
	ContainerOf map[string]string
}

// Grouped lays out each group independently (layered, rightward, padded) and
// then shelf-packs the owner boxes. Group order follows the input; packing is
// deterministic.
func (e *Engine) Grouped(ctx context.Context, spec GroupedSpec) (*GroupedResult, error) {
	if spec.GroupSpacing <= 0 {
		spec.GroupSpacing = defaultGroupSpacing
	}
	pad := spec.Padding
	if pad == (Padding{}) {
		pad = DefaultPadding()
	}

	owner := make(map[string]string)
	for _, g := range spec.Groups {
		for _, n := range g.Nodes {
			if _, dup := owner[n.ID]; dup {
				return nil, pkgerrors.NewValidationError("node assigned to more than one group: " + n.ID)
			}
			owner[n.ID] = g.ID
		}
	}

	result := &GroupedResult{
		Positions:   make(Result),
		ContainerOf: owner,
	}

	type placedGroup struct {
		id            string
		width, height float64
		positions     Result
	}
	placed := make([]placedGroup, 0, len(spec.Groups))

	for _, g := range spec.Groups {
		var inner []Edge
		for _, edge := range spec.Edges {
			if owner[edge.Source] == g.ID && owner[edge.Target] == g.ID {
				inner = append(inner, edge)
			}
		}
		sub, err := e.Layered(ctx, Spec{
			Nodes:   g.Nodes,
			Edges:   inner,
			Options: Options{Direction: DirectionRight, NodeSpacing: 80, LayerSpacing: 100},
		})
		if err != nil {
			return nil, err
		}

		// Shift the sub-layout into padded, non-negative space and measure
		// the box around it.
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, n := range g.Nodes {
			p := sub[n.ID]
			minX = math.Min(minX, p.X)
			minY = math.Min(minY, p.Y)
			maxX = math.Max(maxX, p.X+n.width())
			maxY = math.Max(maxY, p.Y+n.height())
		}
		if len(g.Nodes) == 0 {
			minX, minY, maxX, maxY = 0, 0, 0, 0
		}

		positions := make(Result, len(g.Nodes))
		for _, n := range g.Nodes {
			p := sub[n.ID]
			positions[n.ID] = Point{X: p.X - minX + pad.Left, Y: p.Y - minY + pad.Top}
		}

		placed = append(placed, placedGroup{
			id:        g.ID,
			width:     (maxX - minX) + pad.Left + pad.Right,
			height:    (maxY - minY) + pad.Top + pad.Bottom,
			positions: positions,
		})
	}

	// Shelf-pack the owner boxes: rows of roughly sqrt(n) groups keep the
	// combined view close to square.
	perRow := int(math.Ceil(math.Sqrt(float64(len(placed)))))
	if perRow < 1 {
		perRow = 1
	}

	x, y, rowHeight := 0.0, 0.0, 0.0
	for i, pg := range placed {
		if i > 0 && i%perRow == 0 {
			x = 0
			y += rowHeight + spec.GroupSpacing
			rowHeight = 0
		}
		result.Containers = append(result.Containers, Container{
			ID:     pg.id,
			X:      x,
			Y:      y,
			Width:  pg.width,
			Height: pg.height,
		})
		for id, p := range pg.positions {
			result.Positions[id] = clampInto(p, nodeByID(spec.Groups, id), pg.width, pg.height, pad)
		}
		x += pg.width + spec.GroupSpacing
		if pg.height > rowHeight {
			rowHeight = pg.height
		}
	}

	sort.SliceStable(result.Containers, func(a, b int) bool {
		return result.Containers[a].ID < result.Containers[b].ID
	})
	return result, nil
}

// clampInto keeps a member inside its owner box.
func clampInto(p Point, n Node, width, height float64, pad Padding) Point {
	maxX := width - pad.Right - n.width()
	maxY := height - pad.Bottom - n.height()
	if p.X > maxX {
		p.X = maxX
	}
	if p.X < pad.Left {
		p.X = pad.Left
	}
	if p.Y > maxY {
		p.Y = maxY
	}
	if p.Y < pad.Top {
		p.Y = pad.Top
	}
	return p
}

func nodeByID(groups []Group, id string) Node {
	for _, g := range groups {
		for _, n := range g.Nodes {
			if n.ID == id {
				return n
			}
		}
	}
	return Node{ID: id}
}
