package collaborators

import (
	"context"

	"knowmap-backend/application/ports"
	"knowmap-backend/infrastructure/acl"
)

// HTTPCombinedMapSource fetches every owner's map for the combined
// cross-user view.
type HTTPCombinedMapSource struct {
	client *Client
}

// NewHTTPCombinedMapSource creates the combined view adapter.
func NewHTTPCombinedMapSource(client *Client) *HTTPCombinedMapSource {
	return &HTTPCombinedMapSource{client: client}
}

var _ ports.CombinedMapSource = (*HTTPCombinedMapSource)(nil)

type ownerMapPayload struct {
	Username string      `json:"username"`
	MapData  *acl.RawMap `json:"map_data"`
}

// FetchAllMaps returns each owner's normalized map. Owners without map data
// are skipped.
func (s *HTTPCombinedMapSource) FetchAllMaps(ctx context.Context) ([]ports.OwnerMap, error) {
	var payloads []ownerMapPayload
	if err := s.client.GetJSON(ctx, "/api/admin/maps", &payloads); err != nil {
		return nil, err
	}

	maps := make([]ports.OwnerMap, 0, len(payloads))
	for _, p := range payloads {
		if p.Username == "" || p.MapData == nil {
			continue
		}
		nodes, edges := acl.NormalizeMap(*p.MapData)
		maps = append(maps, ports.OwnerMap{Owner: p.Username, Nodes: nodes, Edges: edges})
	}
	return maps, nil
}
