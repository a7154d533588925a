package layout

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	pkgerrors "knowmap-backend/pkg/errors"
)

// Engine computes layered layouts. It holds no per-call state and is safe for
// concurrent use; treat it as a process-wide service.
type Engine struct{}

// NewEngine creates a layout engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Layered computes a position per node id for the given spec. Edges whose
// endpoints are not in the node list are ignored. Cycles are tolerated by
// condensing strongly connected components onto a shared layer.
func (e *Engine) Layered(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Nodes) == 0 {
		return Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewTimeoutError("layout").WithCause(err)
	}

	opts := spec.Options
	if opts.Direction == "" {
		opts.Direction = DirectionDown
	}
	if opts.NodeSpacing <= 0 {
		opts.NodeSpacing = MainOptions().NodeSpacing
	}
	if opts.LayerSpacing <= 0 {
		opts.LayerSpacing = MainOptions().LayerSpacing
	}

	lg, err := newLayeredGraph(spec)
	if err != nil {
		return nil, err
	}

	lg.assignLayers()
	lg.orderWithinLayers()

	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewTimeoutError("layout").WithCause(err)
	}
	return lg.coordinates(opts), nil
}

// layeredGraph carries the intermediate state of one layered computation.
type layeredGraph struct {
	nodes   []Node
	index   map[string]int // node id -> index into nodes
	dg      *simple.DirectedGraph
	comp    []int   // node index -> condensation component
	compAdj [][]int // component -> successor components (deduplicated)
	members [][]int // component -> node indices
	layer   []int   // component -> layer
	order   [][]int // layer -> node indices in cross-axis order
}

func newLayeredGraph(spec Spec) (*layeredGraph, error) {
	lg := &layeredGraph{
		nodes: spec.Nodes,
		index: make(map[string]int, len(spec.Nodes)),
		dg:    simple.NewDirectedGraph(),
	}
	for i, n := range spec.Nodes {
		if n.ID == "" {
			return nil, pkgerrors.NewValidationError("layout node id cannot be empty")
		}
		if _, dup := lg.index[n.ID]; dup {
			return nil, pkgerrors.NewValidationError("duplicate layout node id: " + n.ID)
		}
		lg.index[n.ID] = i
		lg.dg.AddNode(simple.Node(i))
	}
	for _, edge := range spec.Edges {
		from, okF := lg.index[edge.Source]
		to, okT := lg.index[edge.Target]
		if !okF || !okT || from == to {
			continue
		}
		if lg.dg.HasEdgeFromTo(int64(from), int64(to)) {
			continue
		}
		lg.dg.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	}
	return lg, nil
}

// assignLayers condenses cycles with Tarjan's algorithm, then runs a
// longest-path layering over the acyclic condensation. TarjanSCC yields
// components in reverse topological order, so walking the list backwards
// visits predecessors before successors.
func (lg *layeredGraph) assignLayers() {
	sccs := topo.TarjanSCC(lg.dg)

	lg.comp = make([]int, len(lg.nodes))
	lg.members = make([][]int, len(sccs))
	for ci, scc := range sccs {
		for _, gn := range scc {
			idx := int(gn.ID())
			lg.comp[idx] = ci
			lg.members[ci] = append(lg.members[ci], idx)
		}
		sort.Ints(lg.members[ci])
	}

	lg.compAdj = make([][]int, len(sccs))
	seen := make(map[[2]int]bool)
	edges := lg.dg.Edges()
	for edges.Next() {
		ed := edges.Edge()
		cf, ct := lg.comp[int(ed.From().ID())], lg.comp[int(ed.To().ID())]
		if cf == ct || seen[[2]int{cf, ct}] {
			continue
		}
		seen[[2]int{cf, ct}] = true
		lg.compAdj[cf] = append(lg.compAdj[cf], ct)
	}

	lg.layer = make([]int, len(sccs))
	for ci := len(sccs) - 1; ci >= 0; ci-- {
		for _, succ := range lg.compAdj[ci] {
			if lg.layer[ci]+1 > lg.layer[succ] {
				lg.layer[succ] = lg.layer[ci] + 1
			}
		}
	}
}

// orderWithinLayers seeds each layer in input order, then runs a few
// barycenter sweeps to pull connected nodes toward each other.
func (lg *layeredGraph) orderWithinLayers() {
	maxLayer := 0
	for _, l := range lg.layer {
		if l > maxLayer {
			maxLayer = l
		}
	}
	lg.order = make([][]int, maxLayer+1)
	for idx := range lg.nodes {
		l := lg.layer[lg.comp[idx]]
		lg.order[l] = append(lg.order[l], idx)
	}

	pos := make([]float64, len(lg.nodes))
	refresh := func() {
		for _, row := range lg.order {
			for i, idx := range row {
				pos[idx] = float64(i)
			}
		}
	}
	refresh()

	const sweeps = 4
	for s := 0; s < sweeps; s++ {
		downward := s%2 == 0
		for li := range lg.order {
			l := li
			if !downward {
				l = len(lg.order) - 1 - li
			}
			row := lg.order[l]
			if len(row) < 2 {
				continue
			}
			bary := make(map[int]float64, len(row))
			for _, idx := range row {
				sum, count := 0.0, 0
				neighbors := func(it graph.Nodes) {
					for it.Next() {
						n := int(it.Node().ID())
						if lg.layer[lg.comp[n]] != l {
							sum += pos[n]
							count++
						}
					}
				}
				neighbors(lg.dg.To(int64(idx)))
				neighbors(lg.dg.From(int64(idx)))
				if count == 0 {
					bary[idx] = pos[idx]
				} else {
					bary[idx] = sum / float64(count)
				}
			}
			sort.SliceStable(row, func(a, b int) bool {
				return bary[row[a]] < bary[row[b]]
			})
			refresh()
		}
	}
}

// coordinates turns layers and orders into positions. The main axis advances
// per layer by the layer's thickest node plus LayerSpacing; the cross axis
// packs each layer's nodes with NodeSpacing and centers the row.
func (lg *layeredGraph) coordinates(opts Options) Result {
	result := make(Result, len(lg.nodes))
	vertical := opts.Direction == DirectionDown

	mainExtent := func(n Node) float64 {
		if vertical {
			return n.height()
		}
		return n.width()
	}
	crossExtent := func(n Node) float64 {
		if vertical {
			return n.width()
		}
		return n.height()
	}

	mainOffset := 0.0
	for _, row := range lg.order {
		thickest := 0.0
		for _, idx := range row {
			if ext := mainExtent(lg.nodes[idx]); ext > thickest {
				thickest = ext
			}
		}

		total := 0.0
		for i, idx := range row {
			if i > 0 {
				total += opts.NodeSpacing
			}
			total += crossExtent(lg.nodes[idx])
		}

		cross := -total / 2
		for _, idx := range row {
			n := lg.nodes[idx]
			if vertical {
				result[n.ID] = Point{X: cross, Y: mainOffset}
			} else {
				result[n.ID] = Point{X: mainOffset, Y: cross}
			}
			cross += crossExtent(n) + opts.NodeSpacing
		}

		mainOffset += thickest + opts.LayerSpacing
	}
	return result
}
