package collaborators

import (
	"context"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/core/entities"
	"knowmap-backend/infrastructure/acl"
)

// HTTPMemoStore manages memo identities through the document service.
type HTTPMemoStore struct {
	client *Client
}

// NewHTTPMemoStore creates the memo adapter.
func NewHTTPMemoStore(client *Client) *HTTPMemoStore {
	return &HTTPMemoStore{client: client}
}

var _ ports.MemoStore = (*HTTPMemoStore)(nil)

// ListMemos returns every memo visible to the resolved identity.
func (s *HTTPMemoStore) ListMemos(ctx context.Context) ([]ports.Memo, error) {
	var memos []ports.Memo
	if err := s.client.GetJSON(ctx, "/api/memos", &memos); err != nil {
		return nil, err
	}
	return memos, nil
}

type createMemoRequest struct {
	Content string `json:"content"`
}

type createMemoResponse struct {
	Memo ports.Memo  `json:"memo"`
	Map  *acl.RawMap `json:"map"`
}

// CreateMemoWithMap creates a memo from free text and returns the generated
// initial map. An absent map is treated as an empty shell, not an error.
func (s *HTTPMemoStore) CreateMemoWithMap(ctx context.Context, content string) (ports.Memo, []*entities.Node, []*entities.Edge, error) {
	var resp createMemoResponse
	if err := s.client.PostJSON(ctx, "/api/memos", createMemoRequest{Content: content}, &resp); err != nil {
		return ports.Memo{}, nil, nil, err
	}
	if resp.Map == nil {
		return resp.Memo, nil, nil, nil
	}
	nodes, edges := acl.NormalizeMap(*resp.Map)
	return resp.Memo, nodes, edges, nil
}
