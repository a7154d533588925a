// Package acl is the anti-corruption layer between collaborator payloads and
// the domain model. Several incompatible historical payload shapes exist in
// stored data (wrapped vs flat nodes, from/to vs source/target edges, three
// spellings of the related-id list); everything inbound is normalized here so
// internal code only ever sees the canonical shape. Normalization is pure and
// best-effort: missing fields get defaults, unresolvable edges are dropped,
// nothing raises.
package acl

import (
	"encoding/json"
	"fmt"
	"strconv"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/core/entities"
	"knowmap-backend/domain/core/valueobjects"
)

// DefaultSentence substitutes for a missing node description.
const DefaultSentence = "No description available."

// FlexID tolerates ids sent as JSON strings or numbers.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 1 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// RawPosition is a stored coordinate pair.
type RawPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawNodeData is the wrapped payload introduced by the newer storage shape.
type RawNodeData struct {
	Label       string   `json:"label"`
	Sentence    string   `json:"sentence"`
	APINodeID   FlexID   `json:"apiNodeId"`
	AllQIDs     []string `json:"all_qids"`
	ExtendQuery []string `json:"extend_query"`
}

// RawNode accepts every historical node shape at once: flat fields, the
// wrapped data form, and all three related-id spellings.
type RawNode struct {
	ID          FlexID       `json:"id"`
	Label       string       `json:"label"`
	Sentence    string       `json:"sentence"`
	ExtendQuery []string     `json:"extend_query"`
	AllQIDs     []string     `json:"all_qids"`
	AllNodeQIDs []string     `json:"all_node_qids"`
	Position    *RawPosition `json:"position"`
	Type        string       `json:"type"`
	Style       string       `json:"style"`
	Data        *RawNodeData `json:"data"`
}

// RawEdge accepts both endpoint spellings.
type RawEdge struct {
	ID       FlexID `json:"id"`
	Source   FlexID `json:"source"`
	Target   FlexID `json:"target"`
	From     FlexID `json:"from"`
	To       FlexID `json:"to"`
	Animated *bool  `json:"animated"`
}

// RawMap is an inbound node/edge payload.
type RawMap struct {
	Nodes []RawNode `json:"nodes"`
	Edges []RawEdge `json:"edges"`
}

// NormalizeMap reconstructs domain nodes and edges from any historical
// payload shape. Edges whose endpoints do not resolve within the same payload
// are filtered out before the data can touch the aggregate.
func NormalizeMap(raw RawMap) ([]*entities.Node, []*entities.Edge) {
	nodes := make([]*entities.Node, 0, len(raw.Nodes))
	present := make(map[string]bool, len(raw.Nodes))

	for _, rn := range raw.Nodes {
		node := normalizeNode(rn)
		if node == nil {
			continue
		}
		nodes = append(nodes, node)
		present[node.ID().String()] = true
	}

	edges := make([]*entities.Edge, 0, len(raw.Edges))
	for i, re := range raw.Edges {
		edge := normalizeEdge(re, i)
		if edge == nil {
			continue
		}
		if !present[edge.Source().String()] || !present[edge.Target().String()] {
			continue
		}
		edges = append(edges, edge)
	}
	return nodes, edges
}

func normalizeNode(rn RawNode) *entities.Node {
	if rn.ID == "" {
		return nil
	}

	label := rn.Label
	sentence := rn.Sentence
	var related []string

	if rn.Data != nil && rn.Data.Label != "" {
		// Wrapped storage shape: the data envelope is authoritative.
		label = rn.Data.Label
		sentence = rn.Data.Sentence
		related = firstNonEmpty(rn.Data.AllQIDs, rn.Data.ExtendQuery)
	}
	if related == nil {
		related = firstNonEmpty(rn.ExtendQuery, rn.AllNodeQIDs, rn.AllQIDs)
	}
	if sentence == "" {
		sentence = DefaultSentence
	}

	id, err := valueobjects.NewNodeIDFromString(string(rn.ID))
	if err != nil {
		return nil
	}

	position := valueobjects.Origin()
	if rn.Position != nil {
		if p, err := valueobjects.NewPosition(rn.Position.X, rn.Position.Y); err == nil {
			position = p
		}
	}

	style := valueobjects.StyleCategory(rn.Style)
	if !style.Valid() {
		style = valueobjects.StyleNeutral
	}

	node, err := entities.ReconstructNode(id, label, sentence, related, position, style)
	if err != nil {
		return nil
	}
	return node
}

func normalizeEdge(re RawEdge, ordinal int) *entities.Edge {
	src := re.Source
	if src == "" {
		src = re.From
	}
	tgt := re.Target
	if tgt == "" {
		tgt = re.To
	}
	if src == "" || tgt == "" {
		return nil
	}

	sourceID, err := valueobjects.NewNodeIDFromString(string(src))
	if err != nil {
		return nil
	}
	targetID, err := valueobjects.NewNodeIDFromString(string(tgt))
	if err != nil {
		return nil
	}

	id := string(re.ID)
	if id == "" {
		id = entities.DeriveEdgeID(sourceID, targetID, strconv.Itoa(ordinal))
	}

	animated := true
	if re.Animated != nil {
		animated = *re.Animated
	}

	edge, err := entities.NewEdge(id, sourceID, targetID, animated)
	if err != nil {
		return nil
	}
	return edge
}

// NormalizeSubMap converts one temporal partition. Dangling-edge filtering is
// deferred to the preview builder, which filters against the deduplicated
// union of both partitions.
func NormalizeSubMap(raw *RawMap) *ports.SubMap {
	if raw == nil {
		return nil
	}
	sub := &ports.SubMap{}
	for _, rn := range raw.Nodes {
		if rn.ID == "" {
			continue
		}
		sub.Nodes = append(sub.Nodes, ports.SubMapNode{
			ID:         string(rn.ID),
			Label:      rn.Label,
			Sentence:   rn.Sentence,
			RelatedIDs: firstNonEmpty(rn.ExtendQuery, rn.AllNodeQIDs, rn.AllQIDs),
		})
	}
	for _, re := range raw.Edges {
		src := re.Source
		if src == "" {
			src = re.From
		}
		tgt := re.Target
		if tgt == "" {
			tgt = re.To
		}
		if src == "" || tgt == "" {
			continue
		}
		sub.Edges = append(sub.Edges, ports.SubMapEdge{Source: string(src), Target: string(tgt)})
	}
	return sub
}

// SavedNodeData is the persisted node envelope.
type SavedNodeData struct {
	Label     string   `json:"label"`
	Sentence  string   `json:"sentence"`
	APINodeID string   `json:"apiNodeId"`
	AllQIDs   []string `json:"all_qids"`
}

// SavedNode is the outbound node shape.
type SavedNode struct {
	ID       string        `json:"id"`
	Data     SavedNodeData `json:"data"`
	Position RawPosition   `json:"position"`
	Type     string        `json:"type"`
}

// SavedEdge is the outbound edge shape.
type SavedEdge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated"`
}

// SavedMap is the full outbound payload; saves always carry the complete
// node/edge set.
type SavedMap struct {
	Nodes []SavedNode `json:"nodes"`
	Edges []SavedEdge `json:"edges"`
}

// SerializeMap reduces a snapshot to the persisted shape.
func SerializeMap(nodes []*entities.Node, edges []*entities.Edge) SavedMap {
	saved := SavedMap{
		Nodes: make([]SavedNode, 0, len(nodes)),
		Edges: make([]SavedEdge, 0, len(edges)),
	}
	for _, node := range nodes {
		saved.Nodes = append(saved.Nodes, SavedNode{
			ID: node.ID().String(),
			Data: SavedNodeData{
				Label:     node.Label(),
				Sentence:  node.Sentence(),
				APINodeID: node.ID().String(),
				AllQIDs:   node.RelatedIDs(),
			},
			Position: RawPosition{X: node.Position().X(), Y: node.Position().Y()},
			Type:     "default",
		})
	}
	for _, edge := range edges {
		saved.Edges = append(saved.Edges, SavedEdge{
			ID:       edge.ID(),
			Source:   edge.Source().String(),
			Target:   edge.Target().String(),
			Animated: edge.Animated(),
		})
	}
	return saved
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
