package aggregates

import (
	"knowmap-backend/domain/core/entities"
	"knowmap-backend/domain/core/valueobjects"
	pkgerrors "knowmap-backend/pkg/errors"
)

// Map is the aggregate root for one open document's knowledge map: the
// canonical node/edge collections and their invariants. All mutation goes
// through controlled operations; raw slices are never handed out.
//
// Invariants held after every operation:
//   - node ids are unique
//   - every edge's source and target resolve to a present node id
type Map struct {
	nodes     map[valueobjects.NodeID]*entities.Node
	nodeOrder []valueobjects.NodeID
	edges     map[string]*entities.Edge
	edgeOrder []string

	// labelIndex maps a label to the most recently added node carrying it.
	// Duplicate labels are legal for loaded/legacy data; the index backs the
	// suggestion-merge dedup policy only.
	labelIndex map[string]valueobjects.NodeID

	// revision increments on every structural or positional change. Autosave
	// and the layout adapter compare revisions to detect staleness.
	revision uint64
}

// NewMap creates an empty map aggregate
func NewMap() *Map {
	return &Map{
		nodes:      make(map[valueobjects.NodeID]*entities.Node),
		edges:      make(map[string]*entities.Edge),
		labelIndex: make(map[string]valueobjects.NodeID),
	}
}

// Revision returns the current mutation counter.
func (m *Map) Revision() uint64 {
	return m.revision
}

// NodeCount returns the number of nodes
func (m *Map) NodeCount() int {
	return len(m.nodes)
}

// EdgeCount returns the number of edges
func (m *Map) EdgeCount() int {
	return len(m.edges)
}

// ReplaceAll swaps in a freshly loaded node/edge set. Duplicate node ids keep
// the first occurrence; edges referencing absent nodes are filtered out.
// Legacy payloads are known to contain both and must not crash the viewer.
func (m *Map) ReplaceAll(nodes []*entities.Node, edges []*entities.Edge) {
	m.nodes = make(map[valueobjects.NodeID]*entities.Node, len(nodes))
	m.nodeOrder = m.nodeOrder[:0]
	m.edges = make(map[string]*entities.Edge, len(edges))
	m.edgeOrder = m.edgeOrder[:0]
	m.labelIndex = make(map[string]valueobjects.NodeID, len(nodes))

	for _, node := range nodes {
		if node == nil {
			continue
		}
		if _, exists := m.nodes[node.ID()]; exists {
			continue
		}
		m.insertNode(node)
	}
	for _, edge := range edges {
		if edge == nil {
			continue
		}
		if !m.resolvable(edge) {
			continue
		}
		if _, exists := m.edges[edge.ID()]; exists {
			continue
		}
		m.insertEdge(edge)
	}
	m.revision++
}

// AddNode appends a node. The caller guarantees id uniqueness; a duplicate is
// a conflict.
func (m *Map) AddNode(node *entities.Node) error {
	if node == nil {
		return pkgerrors.NewValidationError("node cannot be nil")
	}
	if _, exists := m.nodes[node.ID()]; exists {
		return pkgerrors.NewConflictError("node already exists in map")
	}
	m.insertNode(node)
	m.revision++
	return nil
}

// AddEdge appends an edge. Both endpoints must already be present.
func (m *Map) AddEdge(edge *entities.Edge) error {
	if edge == nil {
		return pkgerrors.NewValidationError("edge cannot be nil")
	}
	if _, exists := m.edges[edge.ID()]; exists {
		return pkgerrors.NewConflictError("edge already exists in map")
	}
	if !m.resolvable(edge) {
		return pkgerrors.NewValidationError("edge endpoints must resolve to existing nodes")
	}
	m.insertEdge(edge)
	m.revision++
	return nil
}

// AddNodeAndEdge atomically adds an optional node followed by an edge. With a
// non-nil node the node lands first so the edge never dangles; with a nil
// node only the edge is added (the connect-to-existing case). Validation runs
// up front so a failure leaves the map untouched, and observers never see an
// intermediate state: both land under one revision bump.
func (m *Map) AddNodeAndEdge(node *entities.Node, edge *entities.Edge) error {
	if edge == nil {
		return pkgerrors.NewValidationError("edge cannot be nil")
	}
	if _, exists := m.edges[edge.ID()]; exists {
		return pkgerrors.NewConflictError("edge already exists in map")
	}
	if node != nil {
		if _, exists := m.nodes[node.ID()]; exists {
			return pkgerrors.NewConflictError("node already exists in map")
		}
	}

	resolves := func(id valueobjects.NodeID) bool {
		if _, ok := m.nodes[id]; ok {
			return true
		}
		return node != nil && node.ID().Equals(id)
	}
	if !resolves(edge.Source()) || !resolves(edge.Target()) {
		return pkgerrors.NewValidationError("edge endpoints must resolve to existing nodes")
	}

	if node != nil {
		m.insertNode(node)
	}
	m.insertEdge(edge)
	m.revision++
	return nil
}

// MergeBatch appends many nodes and edges in one transition, used by the
// temporal sub-map apply and the post-generation load path. Nodes whose id is
// already present are skipped rather than duplicated; edges are filtered to
// those whose endpoints resolve after the node merge.
func (m *Map) MergeBatch(nodes []*entities.Node, edges []*entities.Edge) {
	changed := false
	for _, node := range nodes {
		if node == nil {
			continue
		}
		if _, exists := m.nodes[node.ID()]; exists {
			continue
		}
		m.insertNode(node)
		changed = true
	}
	for _, edge := range edges {
		if edge == nil {
			continue
		}
		if _, exists := m.edges[edge.ID()]; exists {
			continue
		}
		if !m.resolvable(edge) {
			continue
		}
		m.insertEdge(edge)
		changed = true
	}
	if changed {
		m.revision++
	}
}

// Node retrieves a node by id
func (m *Map) Node(id valueobjects.NodeID) (*entities.Node, bool) {
	node, ok := m.nodes[id]
	return node, ok
}

// NodeByLabel returns the node currently indexed under the given label. The
// match is exact and case-sensitive. When several loaded nodes share a label,
// the most recently added one wins, which is all the suggestion-merge policy
// needs.
func (m *Map) NodeByLabel(label string) (*entities.Node, bool) {
	if label == "" {
		return nil, false
	}
	id, ok := m.labelIndex[label]
	if !ok {
		return nil, false
	}
	node, ok := m.nodes[id]
	return node, ok
}

// HasLabel reports whether any node carries the exact label.
func (m *Map) HasLabel(label string) bool {
	_, ok := m.NodeByLabel(label)
	return ok
}

// Labels returns the set of labels present on the map.
func (m *Map) Labels() map[string]struct{} {
	labels := make(map[string]struct{}, len(m.nodes))
	for _, node := range m.nodes {
		if node.Label() != "" {
			labels[node.Label()] = struct{}{}
		}
	}
	return labels
}

// Nodes returns the nodes in insertion order. Entities are shared references;
// callers that need isolation use Snapshot.
func (m *Map) Nodes() []*entities.Node {
	nodes := make([]*entities.Node, 0, len(m.nodeOrder))
	for _, id := range m.nodeOrder {
		nodes = append(nodes, m.nodes[id])
	}
	return nodes
}

// Edges returns the edges in insertion order.
func (m *Map) Edges() []*entities.Edge {
	edges := make([]*entities.Edge, 0, len(m.edgeOrder))
	for _, id := range m.edgeOrder {
		edges = append(edges, m.edges[id])
	}
	return edges
}

// MoveNode updates one node's position, as a direct drag does.
func (m *Map) MoveNode(id valueobjects.NodeID, position valueobjects.Position) error {
	node, ok := m.nodes[id]
	if !ok {
		return pkgerrors.NewNotFoundError("node")
	}
	if err := node.MoveTo(position); err != nil {
		return err
	}
	m.revision++
	return nil
}

// ApplyPositions applies a computed layout. Ids absent from the map are
// ignored, which makes a layout computed against an older snapshot safe to
// apply partially.
func (m *Map) ApplyPositions(positions map[valueobjects.NodeID]valueobjects.Position) {
	changed := false
	for id, pos := range positions {
		node, ok := m.nodes[id]
		if !ok {
			continue
		}
		if node.Position().Equals(pos) {
			continue
		}
		if err := node.MoveTo(pos); err != nil {
			continue
		}
		changed = true
	}
	if changed {
		m.revision++
	}
}

// Snapshot returns deep copies of the node and edge lists in insertion order.
// Layout computation and autosave serialization work off snapshots so the
// live aggregate can keep mutating underneath them.
func (m *Map) Snapshot() ([]*entities.Node, []*entities.Edge) {
	nodes := make([]*entities.Node, 0, len(m.nodeOrder))
	for _, id := range m.nodeOrder {
		nodes = append(nodes, m.nodes[id].Clone())
	}
	edges := make([]*entities.Edge, 0, len(m.edgeOrder))
	for _, id := range m.edgeOrder {
		edges = append(edges, m.edges[id].Clone())
	}
	return nodes, edges
}

// Reset empties the map, used when the underlying document identity changes.
func (m *Map) Reset() {
	m.ReplaceAll(nil, nil)
}

// Validate ensures map invariants
func (m *Map) Validate() error {
	for _, edge := range m.edges {
		if _, ok := m.nodes[edge.Source()]; !ok {
			return pkgerrors.NewInternalError("edge references non-existent source node")
		}
		if _, ok := m.nodes[edge.Target()]; !ok {
			return pkgerrors.NewInternalError("edge references non-existent target node")
		}
	}
	if len(m.nodes) != len(m.nodeOrder) {
		return pkgerrors.NewInternalError("node index out of sync")
	}
	if len(m.edges) != len(m.edgeOrder) {
		return pkgerrors.NewInternalError("edge index out of sync")
	}
	return nil
}

// Private helpers. insertNode and insertEdge assume the caller already
// checked uniqueness and endpoint resolution.

func (m *Map) insertNode(node *entities.Node) {
	m.nodes[node.ID()] = node
	m.nodeOrder = append(m.nodeOrder, node.ID())
	if node.Label() != "" {
		m.labelIndex[node.Label()] = node.ID()
	}
}

func (m *Map) insertEdge(edge *entities.Edge) {
	m.edges[edge.ID()] = edge
	m.edgeOrder = append(m.edgeOrder, edge.ID())
}

func (m *Map) resolvable(edge *entities.Edge) bool {
	if _, ok := m.nodes[edge.Source()]; !ok {
		return false
	}
	if _, ok := m.nodes[edge.Target()]; !ok {
		return false
	}
	return true
}
