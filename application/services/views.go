package services

import (
	"knowmap-backend/application/ports"
	"knowmap-backend/domain/core/entities"
)

// NodeView is a node as rendered to clients.
type NodeView struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Sentence   string   `json:"sentence"`
	RelatedIDs []string `json:"related_ids,omitempty"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Style      string   `json:"style"`
}

// EdgeView is an edge as rendered to clients.
type EdgeView struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated"`
}

// MapView is the full rendered map plus its revision counter, which clients
// use to detect missed updates.
type MapView struct {
	Nodes    []NodeView `json:"nodes"`
	Edges    []EdgeView `json:"edges"`
	Revision uint64     `json:"revision"`
}

// SuggestionView is a candidate as rendered to clients. AlreadyAdded is
// recomputed from the current node set on every render, so a candidate whose
// label enters the map by any route is marked without a re-fetch.
type SuggestionView struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Sentence     string `json:"sentence"`
	AlreadyAdded bool   `json:"already_added"`
}

// SessionView is the complete rendered session state.
type SessionView struct {
	ID          string           `json:"id"`
	Memo        *ports.Memo      `json:"memo,omitempty"`
	Inspector   InspectorState   `json:"inspector"`
	SelectedID  string           `json:"selected_id,omitempty"`
	Suggestions []SuggestionView `json:"suggestions,omitempty"`
	Map         MapView          `json:"map"`
}

func nodeView(n *entities.Node) NodeView {
	return NodeView{
		ID:         n.ID().String(),
		Label:      n.Label(),
		Sentence:   n.Sentence(),
		RelatedIDs: n.RelatedIDs(),
		X:          n.Position().X(),
		Y:          n.Position().Y(),
		Style:      string(n.Style()),
	}
}

func edgeView(e *entities.Edge) EdgeView {
	return EdgeView{
		ID:       e.ID(),
		Source:   e.Source().String(),
		Target:   e.Target().String(),
		Animated: e.Animated(),
	}
}

// suggestionViewsLocked renders the candidate list; callers hold s.mu.
func (s *Session) suggestionViewsLocked() []SuggestionView {
	views := make([]SuggestionView, 0, len(s.suggestions))
	for _, c := range s.suggestions {
		views = append(views, SuggestionView{
			ID:           c.ID,
			Label:        c.Label,
			Sentence:     c.Sentence,
			AlreadyAdded: s.model.HasLabel(c.Label),
		})
	}
	return views
}

// viewLocked renders the session; callers hold s.mu.
func (s *Session) viewLocked() SessionView {
	view := SessionView{
		ID:        s.id,
		Memo:      s.memo,
		Inspector: s.inspector,
		Map: MapView{
			Nodes:    make([]NodeView, 0, s.model.NodeCount()),
			Edges:    make([]EdgeView, 0, s.model.EdgeCount()),
			Revision: s.model.Revision(),
		},
	}
	if !s.selected.IsZero() {
		view.SelectedID = s.selected.String()
	}
	if s.inspector == InspectorShowSuggestions {
		view.Suggestions = s.suggestionViewsLocked()
	}
	for _, n := range s.model.Nodes() {
		view.Map.Nodes = append(view.Map.Nodes, nodeView(n))
	}
	for _, e := range s.model.Edges() {
		view.Map.Edges = append(view.Map.Edges, edgeView(e))
	}
	return view
}
