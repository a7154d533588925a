package entities

import (
	"fmt"

	"knowmap-backend/domain/core/valueobjects"
	pkgerrors "knowmap-backend/pkg/errors"
)

// Edge represents a directed connection between two nodes. Animation and
// styling are cosmetic only.
type Edge struct {
	id       string
	source   valueobjects.NodeID
	target   valueobjects.NodeID
	animated bool
}

// NewEdge creates an edge with an explicit id. Endpoint existence is the
// aggregate's concern, not the edge's.
func NewEdge(id string, source, target valueobjects.NodeID, animated bool) (*Edge, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("edge id cannot be empty")
	}
	if source.IsZero() || target.IsZero() {
		return nil, pkgerrors.NewValidationError("edge endpoints cannot be empty")
	}
	return &Edge{id: id, source: source, target: target, animated: animated}, nil
}

// DeriveEdgeID builds the conventional edge id from its endpoints plus a
// disambiguator, so duplicate source/target pairs remain distinct.
func DeriveEdgeID(source, target valueobjects.NodeID, disambiguator string) string {
	return fmt.Sprintf("e-%s-to-%s-%s", source.String(), target.String(), disambiguator)
}

// ID returns the edge's unique identifier
func (e *Edge) ID() string {
	return e.id
}

// Source returns the source node id
func (e *Edge) Source() valueobjects.NodeID {
	return e.source
}

// Target returns the target node id
func (e *Edge) Target() valueobjects.NodeID {
	return e.target
}

// Animated returns the cosmetic animation flag
func (e *Edge) Animated() bool {
	return e.animated
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	clone := *e
	return &clone
}
