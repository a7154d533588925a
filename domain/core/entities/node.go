package entities

import (
	"knowmap-backend/domain/core/valueobjects"
	pkgerrors "knowmap-backend/pkg/errors"
)

// Node is the entity representing one concept on the knowledge map.
// Encapsulated behind getters so that all mutation goes through the map
// aggregate's controlled operations.
type Node struct {
	id         valueobjects.NodeID
	label      string
	sentence   string
	relatedIDs []string
	position   valueobjects.Position
	style      valueobjects.StyleCategory
}

// NewNode creates a node. Label may legitimately be empty for legacy data;
// only the id is mandatory.
func NewNode(id valueobjects.NodeID, label, sentence string, relatedIDs []string) (*Node, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("node id cannot be empty")
	}

	node := &Node{
		id:       id,
		label:    label,
		sentence: sentence,
		style:    valueobjects.StyleNeutral,
	}
	if len(relatedIDs) > 0 {
		node.relatedIDs = make([]string, len(relatedIDs))
		copy(node.relatedIDs, relatedIDs)
	}
	return node, nil
}

// ReconstructNode recreates a node from stored data, position and style
// included.
func ReconstructNode(
	id valueobjects.NodeID,
	label, sentence string,
	relatedIDs []string,
	position valueobjects.Position,
	style valueobjects.StyleCategory,
) (*Node, error) {
	node, err := NewNode(id, label, sentence, relatedIDs)
	if err != nil {
		return nil, err
	}
	node.position = position
	if style.Valid() {
		node.style = style
	}
	return node, nil
}

// ID returns the node's unique identifier
func (n *Node) ID() valueobjects.NodeID {
	return n.id
}

// Label returns the display name, also the deduplication key for suggestion
// merges.
func (n *Node) Label() string {
	return n.label
}

// Sentence returns the free-text description
func (n *Node) Sentence() string {
	return n.sentence
}

// RelatedIDs returns the ordered external concept identifiers used to widen
// temporal queries. Advisory only, duplicates allowed.
func (n *Node) RelatedIDs() []string {
	ids := make([]string, len(n.relatedIDs))
	copy(ids, n.relatedIDs)
	return ids
}

// Position returns the node's position
func (n *Node) Position() valueobjects.Position {
	return n.position
}

// Style returns the node's presentation category
func (n *Node) Style() valueobjects.StyleCategory {
	return n.style
}

// MoveTo moves the node to a new position
func (n *Node) MoveTo(position valueobjects.Position) error {
	if !position.IsFinite() {
		return pkgerrors.NewValidationError("position must be finite")
	}
	n.position = position
	return nil
}

// SetStyle changes the node's presentation category
func (n *Node) SetStyle(style valueobjects.StyleCategory) error {
	if !style.Valid() {
		return pkgerrors.NewValidationError("unknown style category")
	}
	n.style = style
	return nil
}

// Clone returns a deep copy, so preview state never aliases main-map nodes.
func (n *Node) Clone() *Node {
	clone := *n
	if n.relatedIDs != nil {
		clone.relatedIDs = make([]string, len(n.relatedIDs))
		copy(clone.relatedIDs, n.relatedIDs)
	}
	return &clone
}
