package services

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/core/entities"
	"knowmap-backend/domain/core/valueobjects"
	"knowmap-backend/domain/services/layout"
	appErrors "knowmap-backend/pkg/errors"
)

// Partition names within a temporal preview.
const (
	PartitionBase   = "base"
	PartitionPast   = "past"
	PartitionFuture = "future"
)

// temporalBasePrefix builds the synthetic id that stands in for the queried
// node inside sub-map coordinate space. Sub-map ids are server-local, so the
// real base id never appears in a temporal response.
const temporalBasePrefix = "input_"

// TemporalPreviewNode is one node of a rendered preview.
type TemporalPreviewNode struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Sentence  string  `json:"sentence"`
	Partition string  `json:"partition"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// TemporalPreviewEdge is one edge of a rendered preview.
type TemporalPreviewEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// TemporalPreviewView is the preview pane content: the deduplicated union of
// both partitions around a synthetic base node, laid out left to right.
type TemporalPreviewView struct {
	BaseID string                `json:"base_id"`
	Nodes  []TemporalPreviewNode `json:"nodes"`
	Edges  []TemporalPreviewEdge `json:"edges"`
}

// pendingTemporal is preview state held between preview and apply.
type pendingTemporal struct {
	baseID      valueobjects.NodeID
	syntheticID string
	// nodes in render order: base first, then past, then future, deduped
	// by id with first occurrence winning.
	nodes []TemporalPreviewNode
	edges []TemporalPreviewEdge
}

// TemporalPreview fetches the time-partitioned neighborhood of the selected
// node and lays it out for the preview pane. The result is held in the
// session until it is applied or superseded by another preview.
func (s *Session) TemporalPreview(ctx context.Context) (*TemporalPreviewView, error) {
	s.mu.Lock()
	base, ok := s.model.Node(s.selected)
	if !ok {
		s.mu.Unlock()
		return nil, appErrors.NewConflictError("no node selected")
	}
	query := ports.TemporalQuery{
		ID:         base.ID().String(),
		Label:      base.Label(),
		Sentence:   base.Sentence(),
		RelatedIDs: base.RelatedIDs(),
	}
	baseID := base.ID()
	s.mu.Unlock()

	response, err := s.deps.Temporal.TemporalRelated(ctx, query)
	if err != nil {
		s.mu.Lock()
		s.pushNotification("warning", "Could not load the temporal neighborhood.")
		s.mu.Unlock()
		return nil, err
	}

	pending := buildPendingTemporal(baseID, query, response)
	if len(pending.nodes) <= 1 {
		// Only the synthetic base: nothing to lay out, and applying this
		// preview merges nothing.
		s.mu.Lock()
		s.pendingMerge = pending
		s.mu.Unlock()
		return &TemporalPreviewView{BaseID: pending.syntheticID, Nodes: pending.nodes}, nil
	}

	spec := layout.Spec{
		Nodes: make([]layout.Node, 0, len(pending.nodes)),
		Edges: make([]layout.Edge, 0, len(pending.edges)),
	}
	for _, n := range pending.nodes {
		spec.Nodes = append(spec.Nodes, layout.Node{ID: n.ID})
	}
	for i, e := range pending.edges {
		spec.Edges = append(spec.Edges, layout.Edge{
			ID:     "preview-" + strconv.Itoa(i),
			Source: e.Source,
			Target: e.Target,
		})
	}

	result, err := s.deps.Layout.Layered(ctx, "preview", spec, s.deps.previewLayoutOptions())
	if err == nil {
		for i := range pending.nodes {
			if point, ok := result[pending.nodes[i].ID]; ok {
				pending.nodes[i].X = point.X
				pending.nodes[i].Y = point.Y
			}
		}
	}

	s.mu.Lock()
	s.pendingMerge = pending
	s.mu.Unlock()

	s.logActivity(ctx, "temporal_previewed", map[string]interface{}{
		"label": query.Label,
		"nodes": len(pending.nodes),
	})
	return &TemporalPreviewView{
		BaseID: pending.syntheticID,
		Nodes:  pending.nodes,
		Edges:  pending.edges,
	}, nil
}

// ApplyTemporal merges the held preview into the main map. The synthetic
// base is excluded; past nodes land left of the real base node, future nodes
// right of it, each partition stacked vertically. Edges touching the
// synthetic base are rewritten to the real one, and rewrites that collapse
// into self-loops are dropped. The whole merge is one model operation.
func (s *Session) ApplyTemporal(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingMerge
	if pending == nil {
		return 0, appErrors.NewConflictError("no temporal preview to apply")
	}
	base, ok := s.model.Node(pending.baseID)
	if !ok {
		s.pendingMerge = nil
		return 0, appErrors.NewConflictError("the previewed node is no longer on the map")
	}

	var nodes []*entities.Node
	pastIndex, futureIndex := 0, 0
	for _, pn := range pending.nodes {
		if pn.Partition == PartitionBase {
			continue
		}

		var x, y float64
		switch pn.Partition {
		case PartitionPast:
			x = base.Position().X() - temporalOffsetX
			y = base.Position().Y() + temporalStartY + temporalStepY*float64(pastIndex)
			pastIndex++
		case PartitionFuture:
			x = base.Position().X() + temporalOffsetX
			y = base.Position().Y() + temporalStartY + temporalStepY*float64(futureIndex)
			futureIndex++
		}

		id, err := valueobjects.NewNodeIDFromString(pn.ID)
		if err != nil {
			continue
		}
		node, err := entities.NewNode(id, pn.Label, pn.Sentence, nil)
		if err != nil {
			continue
		}
		position, err := valueobjects.NewPosition(x, y)
		if err != nil {
			continue
		}
		if err := node.MoveTo(position); err != nil {
			continue
		}
		style := valueobjects.StylePast
		if pn.Partition == PartitionFuture {
			style = valueobjects.StyleFuture
		}
		if err := node.SetStyle(style); err != nil {
			continue
		}
		nodes = append(nodes, node)
	}

	var edges []*entities.Edge
	for i, pe := range pending.edges {
		source, target := pe.Source, pe.Target
		if source == pending.syntheticID {
			source = base.ID().String()
		}
		if target == pending.syntheticID {
			target = base.ID().String()
		}
		if source == target {
			continue
		}
		sourceID, err := valueobjects.NewNodeIDFromString(source)
		if err != nil {
			continue
		}
		targetID, err := valueobjects.NewNodeIDFromString(target)
		if err != nil {
			continue
		}
		edge, err := entities.NewEdge(
			entities.DeriveEdgeID(sourceID, targetID, "t"+strconv.Itoa(i)),
			sourceID, targetID, true)
		if err != nil {
			continue
		}
		edges = append(edges, edge)
	}

	before := s.model.NodeCount()
	s.model.MergeBatch(nodes, edges)
	added := s.model.NodeCount() - before

	s.pendingMerge = nil
	if s.deps.Metrics != nil {
		s.deps.Metrics.TemporalApplied.Inc()
	}
	s.markDirtyLocked()

	s.logActivity(ctx, "temporal_applied", map[string]interface{}{
		"base_id":     base.ID().String(),
		"nodes_added": added,
	})
	s.deps.Logger.Info("temporal sub-map merged",
		zap.String("session_id", s.id),
		zap.String("base_id", base.ID().String()),
		zap.Int("nodes_added", added))
	return added, nil
}

// buildPendingTemporal dedupes both partitions around the synthetic base and
// filters edges to the surviving node set.
func buildPendingTemporal(baseID valueobjects.NodeID, query ports.TemporalQuery, response *ports.TemporalResponse) *pendingTemporal {
	syntheticID := temporalBasePrefix + query.Label
	pending := &pendingTemporal{
		baseID:      baseID,
		syntheticID: syntheticID,
	}

	// When the response carries the synthetic base itself, render its own
	// label and sentence; the prefixed label is only for a synthesized entry.
	baseLabel := "[base] " + query.Label
	baseSentence := query.Sentence
	found := false
	for _, sub := range []*ports.SubMap{response.Past, response.Future} {
		if sub == nil || found {
			continue
		}
		for _, n := range sub.Nodes {
			if n.ID == syntheticID {
				baseLabel = n.Label
				baseSentence = n.Sentence
				found = true
				break
			}
		}
	}

	seen := map[string]bool{syntheticID: true}
	pending.nodes = append(pending.nodes, TemporalPreviewNode{
		ID:        syntheticID,
		Label:     baseLabel,
		Sentence:  baseSentence,
		Partition: PartitionBase,
	})

	appendPartition := func(sub *ports.SubMap, partition string) {
		if sub == nil {
			return
		}
		for _, n := range sub.Nodes {
			if n.ID == "" || seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			pending.nodes = append(pending.nodes, TemporalPreviewNode{
				ID:        n.ID,
				Label:     n.Label,
				Sentence:  n.Sentence,
				Partition: partition,
			})
		}
		for _, e := range sub.Edges {
			pending.edges = append(pending.edges, TemporalPreviewEdge{
				Source: e.Source,
				Target: e.Target,
			})
		}
	}
	appendPartition(response.Past, PartitionPast)
	appendPartition(response.Future, PartitionFuture)

	// Drop edges that reference nodes outside the deduplicated union.
	filtered := pending.edges[:0]
	for _, e := range pending.edges {
		if seen[e.Source] && seen[e.Target] {
			filtered = append(filtered, e)
		}
	}
	pending.edges = filtered
	return pending
}
