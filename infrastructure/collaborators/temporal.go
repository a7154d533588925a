package collaborators

import (
	"context"

	"knowmap-backend/application/ports"
	"knowmap-backend/infrastructure/acl"
)

// HTTPTemporalService fetches time-partitioned neighborhoods from the
// knowledge service.
type HTTPTemporalService struct {
	client *Client
}

// NewHTTPTemporalService creates the temporal adapter.
func NewHTTPTemporalService(client *Client) *HTTPTemporalService {
	return &HTTPTemporalService{client: client}
}

var _ ports.TemporalService = (*HTTPTemporalService)(nil)

type temporalPayload struct {
	Past   *acl.RawMap `json:"past_map"`
	Future *acl.RawMap `json:"future_map"`
}

// TemporalRelated returns the past and future partitions around a node.
// Either partition may be absent.
func (s *HTTPTemporalService) TemporalRelated(ctx context.Context, query ports.TemporalQuery) (*ports.TemporalResponse, error) {
	var payload temporalPayload
	if err := s.client.PostJSON(ctx, "/api/knowledge/temporal", query, &payload); err != nil {
		return nil, err
	}
	return &ports.TemporalResponse{
		Past:   acl.NormalizeSubMap(payload.Past),
		Future: acl.NormalizeSubMap(payload.Future),
	}, nil
}
