// Package services contains the application layer: the layout adapter, the
// editing session and its manager, and the combined cross-user view. This is
// where collaborator ports, the domain model, and the layout engine are
// orchestrated into the operations the HTTP surface exposes.
package services

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"knowmap-backend/domain/core/entities"
	"knowmap-backend/domain/services/layout"
	"knowmap-backend/pkg/observability"
)

// LayoutAdapter mediates between the editor and the layout engine. Every
// request is stamped with a monotonically increasing trigger token; a result
// is applied only if no newer trigger was issued while it computed, so a slow
// layout can never clobber positions produced by a later one.
type LayoutAdapter struct {
	engine  *layout.Engine
	logger  *zap.Logger
	metrics *observability.Collector
	token   atomic.Uint64
}

// NewLayoutAdapter creates a layout adapter.
func NewLayoutAdapter(engine *layout.Engine, logger *zap.Logger, metrics *observability.Collector) *LayoutAdapter {
	return &LayoutAdapter{
		engine:  engine,
		logger:  logger,
		metrics: metrics,
	}
}

// Begin registers a new layout trigger and returns its token. Issuing a
// token invalidates all earlier ones.
func (a *LayoutAdapter) Begin() uint64 {
	return a.token.Add(1)
}

// IsCurrent reports whether token is still the newest trigger.
func (a *LayoutAdapter) IsCurrent(token uint64) bool {
	return a.token.Load() == token
}

// Layered computes a layered layout for a snapshot. The caller must not hold
// the session lock; the snapshot is immutable.
func (a *LayoutAdapter) Layered(ctx context.Context, kind string, spec layout.Spec, opts layout.Options) (layout.Result, error) {
	start := time.Now()
	result, err := a.engine.Layered(ctx, layout.Spec{
		Nodes:   spec.Nodes,
		Edges:   spec.Edges,
		Options: opts,
	})
	if a.metrics != nil {
		a.metrics.ObserveLayout(kind, time.Since(start), err)
	}
	if err != nil {
		a.logger.Warn("layout computation failed",
			zap.String("kind", kind),
			zap.Int("nodes", len(spec.Nodes)),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// MarkStale records a discarded result.
func (a *LayoutAdapter) MarkStale(kind string, token uint64) {
	if a.metrics != nil {
		a.metrics.LayoutStale.Inc()
	}
	a.logger.Debug("stale layout result discarded",
		zap.String("kind", kind),
		zap.Uint64("token", token))
}

// SpecFromSnapshot converts a model snapshot into a layout spec. Self-loops
// are excluded by the engine itself.
func SpecFromSnapshot(nodes []*entities.Node, edges []*entities.Edge) layout.Spec {
	spec := layout.Spec{
		Nodes: make([]layout.Node, 0, len(nodes)),
		Edges: make([]layout.Edge, 0, len(edges)),
	}
	for _, n := range nodes {
		spec.Nodes = append(spec.Nodes, layout.Node{ID: n.ID().String()})
	}
	for _, e := range edges {
		spec.Edges = append(spec.Edges, layout.Edge{
			ID:     e.ID(),
			Source: e.Source().String(),
			Target: e.Target().String(),
		})
	}
	return spec
}
