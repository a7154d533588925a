package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/services/layout"
	"knowmap-backend/pkg/observability"
)

// CombinedNode is one node of the combined view, positioned in absolute
// coordinates inside its owner's box.
type CombinedNode struct {
	ID       string  `json:"id"`
	Owner    string  `json:"owner"`
	Label    string  `json:"label"`
	Sentence string  `json:"sentence"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Style    string  `json:"style"`
}

// CombinedEdge is one intra-owner edge of the combined view.
type CombinedEdge struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated"`
}

// OwnerBox is the rendered background box of one owner.
type OwnerBox struct {
	Owner  string  `json:"owner"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CombinedView is the read-only cross-user map: every owner's current map
// packed into labeled boxes.
type CombinedView struct {
	Boxes []OwnerBox     `json:"boxes"`
	Nodes []CombinedNode `json:"nodes"`
	Edges []CombinedEdge `json:"edges"`
}

// CombinedViewService builds the combined view on demand. It holds no state;
// each build fetches fresh maps and lays them out.
type CombinedViewService struct {
	source  ports.CombinedMapSource
	engine  *layout.Engine
	logger  *zap.Logger
	metrics *observability.Collector

	mu           sync.RWMutex
	groupSpacing float64
}

// NewCombinedViewService creates the combined view builder. A groupSpacing
// of zero uses the engine default.
func NewCombinedViewService(source ports.CombinedMapSource, engine *layout.Engine, logger *zap.Logger, metrics *observability.Collector, groupSpacing float64) *CombinedViewService {
	return &CombinedViewService{
		source:       source,
		engine:       engine,
		logger:       logger,
		metrics:      metrics,
		groupSpacing: groupSpacing,
	}
}

// SetGroupSpacing updates the spacing between owner boxes for future builds.
func (s *CombinedViewService) SetGroupSpacing(v float64) {
	if v <= 0 {
		return
	}
	s.mu.Lock()
	s.groupSpacing = v
	s.mu.Unlock()
}

// Build fetches every owner's map and packs them into the combined view.
// Node ids are prefixed with the owner so maps sharing ids cannot collide.
func (s *CombinedViewService) Build(ctx context.Context) (*CombinedView, error) {
	maps, err := s.source.FetchAllMaps(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	spec := layout.GroupedSpec{GroupSpacing: s.groupSpacing}
	s.mu.RUnlock()
	view := &CombinedView{}

	for _, om := range maps {
		group := layout.Group{ID: om.Owner}
		for _, n := range om.Nodes {
			scopedID := scopedNodeID(om.Owner, n.ID().String())
			group.Nodes = append(group.Nodes, layout.Node{ID: scopedID})
			view.Nodes = append(view.Nodes, CombinedNode{
				ID:       scopedID,
				Owner:    om.Owner,
				Label:    n.Label(),
				Sentence: n.Sentence(),
				Style:    string(n.Style()),
			})
		}
		spec.Groups = append(spec.Groups, group)

		for _, e := range om.Edges {
			spec.Edges = append(spec.Edges, layout.Edge{
				ID:     scopedNodeID(om.Owner, e.ID()),
				Source: scopedNodeID(om.Owner, e.Source().String()),
				Target: scopedNodeID(om.Owner, e.Target().String()),
			})
			view.Edges = append(view.Edges, CombinedEdge{
				ID:       scopedNodeID(om.Owner, e.ID()),
				Owner:    om.Owner,
				Source:   scopedNodeID(om.Owner, e.Source().String()),
				Target:   scopedNodeID(om.Owner, e.Target().String()),
				Animated: e.Animated(),
			})
		}
	}

	start := time.Now()
	result, err := s.engine.Grouped(ctx, spec)
	if s.metrics != nil {
		s.metrics.ObserveLayout("combined", time.Since(start), err)
	}
	if err != nil {
		s.logger.Warn("combined layout failed", zap.Error(err))
		return nil, err
	}

	boxOrigin := make(map[string]layout.Point, len(result.Containers))
	for _, c := range result.Containers {
		boxOrigin[c.ID] = layout.Point{X: c.X, Y: c.Y}
		view.Boxes = append(view.Boxes, OwnerBox{
			Owner:  c.ID,
			X:      c.X,
			Y:      c.Y,
			Width:  c.Width,
			Height: c.Height,
		})
	}

	for i := range view.Nodes {
		id := view.Nodes[i].ID
		if point, ok := result.Positions[id]; ok {
			origin := boxOrigin[result.ContainerOf[id]]
			view.Nodes[i].X = origin.X + point.X
			view.Nodes[i].Y = origin.Y + point.Y
		}
	}

	s.logger.Info("combined view built",
		zap.Int("owners", len(view.Boxes)),
		zap.Int("nodes", len(view.Nodes)),
		zap.Int("edges", len(view.Edges)))
	return view, nil
}

func scopedNodeID(owner, id string) string {
	return fmt.Sprintf("%s:%s", owner, id)
}
