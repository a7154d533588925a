// Package ports declares the collaborator interfaces the editor core
// consumes. The core never sees authentication, routing, or ownership; it is
// handed an already-resolved document identity and talks to collaborators
// through these boundaries only.
package ports

import (
	"context"

	"knowmap-backend/domain/core/entities"
)

// Memo is the document identity a map hangs off. A session without a memo
// has nothing to save to.
type Memo struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// MapStore loads and persists the full node/edge set for a memo. Saves always
// serialize the complete current state, never a partial diff.
type MapStore interface {
	FetchMap(ctx context.Context, memoID int64) ([]*entities.Node, []*entities.Edge, error)
	SaveMap(ctx context.Context, memoID int64, nodes []*entities.Node, edges []*entities.Edge) error
}

// MemoStore manages memo identities and the generation of initial maps from
// free text. Map generation itself is an opaque external concern.
type MemoStore interface {
	ListMemos(ctx context.Context) ([]Memo, error)
	// CreateMemoWithMap creates a memo from text and returns it together
	// with the generated initial map, which may be an empty shell.
	CreateMemoWithMap(ctx context.Context, content string) (Memo, []*entities.Node, []*entities.Edge, error)
}

// Suggestion is one related-concept candidate for a base node.
type Suggestion struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Sentence string `json:"sentence"`
}

// SuggestionService fetches related-concept candidates for a label.
type SuggestionService interface {
	SuggestRelated(ctx context.Context, label string) ([]Suggestion, error)
}

// CreatedNode is the result of asking the node factory to flesh out a label.
type CreatedNode struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Sentence   string   `json:"sentence"`
	RelatedIDs []string `json:"related_ids"`
}

// NodeFactory creates a node from a label only, server side.
type NodeFactory interface {
	CreateNode(ctx context.Context, label string) (CreatedNode, error)
}

// TemporalQuery describes the base node of a temporal neighborhood request.
// RelatedIDs widen the server-side retrieval.
type TemporalQuery struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Sentence   string   `json:"sentence"`
	RelatedIDs []string `json:"extend_query"`
}

// SubMapNode is a node of a temporal sub-map, addressed by a server-local id
// scheme distinct from main-map ids.
type SubMapNode struct {
	ID         string
	Label      string
	Sentence   string
	RelatedIDs []string
}

// SubMapEdge is an edge of a temporal sub-map, already normalized to
// source/target form.
type SubMapEdge struct {
	Source string
	Target string
}

// SubMap is one time partition of a temporal response.
type SubMap struct {
	Nodes []SubMapNode
	Edges []SubMapEdge
}

// TemporalResponse carries the two independent partitions. Either may be nil.
type TemporalResponse struct {
	Past   *SubMap
	Future *SubMap
}

// TemporalService fetches the time-partitioned neighborhood of a node.
type TemporalService interface {
	TemporalRelated(ctx context.Context, query TemporalQuery) (*TemporalResponse, error)
}

// ActivityLogger records UI activity events. Fire-and-forget: failures are
// swallowed by implementations, never surfaced to the editor.
type ActivityLogger interface {
	Log(ctx context.Context, activityType string, details map[string]interface{})
}

// OwnerMap is one user's map as served to the combined cross-user view.
type OwnerMap struct {
	Owner string
	Nodes []*entities.Node
	Edges []*entities.Edge
}

// CombinedMapSource supplies every owner's current map for the combined view.
type CombinedMapSource interface {
	FetchAllMaps(ctx context.Context) ([]OwnerMap, error)
}
