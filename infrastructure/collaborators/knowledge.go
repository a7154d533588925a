package collaborators

import (
	"context"

	"knowmap-backend/application/ports"
	appErrors "knowmap-backend/pkg/errors"
)

// HTTPSuggestionService fetches related-concept candidates from the
// knowledge service.
type HTTPSuggestionService struct {
	client *Client
}

// NewHTTPSuggestionService creates the suggestion adapter.
func NewHTTPSuggestionService(client *Client) *HTTPSuggestionService {
	return &HTTPSuggestionService{client: client}
}

var _ ports.SuggestionService = (*HTTPSuggestionService)(nil)

type labelRequest struct {
	Label string `json:"label"`
}

type suggestionEnvelope struct {
	Suggested []ports.Suggestion `json:"suggested_nodes"`
}

// SuggestRelated returns candidates for a base label. An empty list is a
// valid answer.
func (s *HTTPSuggestionService) SuggestRelated(ctx context.Context, label string) ([]ports.Suggestion, error) {
	var envelope suggestionEnvelope
	if err := s.client.PostJSON(ctx, "/api/knowledge/related", labelRequest{Label: label}, &envelope); err != nil {
		return nil, err
	}
	return envelope.Suggested, nil
}

// HTTPNodeFactory creates fleshed-out nodes from bare labels.
type HTTPNodeFactory struct {
	client *Client
}

// NewHTTPNodeFactory creates the node factory adapter.
func NewHTTPNodeFactory(client *Client) *HTTPNodeFactory {
	return &HTTPNodeFactory{client: client}
}

var _ ports.NodeFactory = (*HTTPNodeFactory)(nil)

// createdNodePayload tolerates the legacy related-id spellings on the wire.
type createdNodePayload struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Sentence    string   `json:"sentence"`
	RelatedIDs  []string `json:"related_ids"`
	ExtendQuery []string `json:"extend_query"`
	AllQIDs     []string `json:"all_qids"`
}

// CreateNode asks the knowledge service to build a node for a label.
func (f *HTTPNodeFactory) CreateNode(ctx context.Context, label string) (ports.CreatedNode, error) {
	var payload createdNodePayload
	if err := f.client.PostJSON(ctx, "/api/knowledge/nodes", labelRequest{Label: label}, &payload); err != nil {
		return ports.CreatedNode{}, err
	}
	if payload.ID == "" {
		return ports.CreatedNode{}, appErrors.NewExternalError("knowledge service returned a node without an id", nil)
	}
	related := payload.RelatedIDs
	if len(related) == 0 {
		if len(payload.ExtendQuery) > 0 {
			related = payload.ExtendQuery
		} else {
			related = payload.AllQIDs
		}
	}
	return ports.CreatedNode{
		ID:         payload.ID,
		Label:      payload.Label,
		Sentence:   payload.Sentence,
		RelatedIDs: related,
	}, nil
}
