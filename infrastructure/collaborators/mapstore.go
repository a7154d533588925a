package collaborators

import (
	"context"
	"fmt"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/core/entities"
	"knowmap-backend/infrastructure/acl"
)

// HTTPMapStore persists maps through the document service.
type HTTPMapStore struct {
	client *Client
}

// NewHTTPMapStore creates the map persistence adapter.
func NewHTTPMapStore(client *Client) *HTTPMapStore {
	return &HTTPMapStore{client: client}
}

var _ ports.MapStore = (*HTTPMapStore)(nil)

// FetchMap loads and normalizes the stored map for a memo. The store may
// hold any historical payload shape.
func (s *HTTPMapStore) FetchMap(ctx context.Context, memoID int64) ([]*entities.Node, []*entities.Edge, error) {
	var raw acl.RawMap
	if err := s.client.GetJSON(ctx, fmt.Sprintf("/api/memos/%d/map", memoID), &raw); err != nil {
		return nil, nil, err
	}
	nodes, edges := acl.NormalizeMap(raw)
	return nodes, edges, nil
}

// SaveMap persists the complete current map.
func (s *HTTPMapStore) SaveMap(ctx context.Context, memoID int64, nodes []*entities.Node, edges []*entities.Edge) error {
	payload := acl.SerializeMap(nodes, edges)
	return s.client.PutJSON(ctx, fmt.Sprintf("/api/memos/%d/map", memoID), payload, nil)
}
