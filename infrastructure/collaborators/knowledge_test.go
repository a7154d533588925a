package collaborators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knowmap-backend/application/ports"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, DefaultBreakerSettings("test"), zap.NewNop())
}

func TestHTTPSuggestionService_DecodesEnvelope(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/knowledge/related", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"suggested_nodes":[
			{"id":"s1","label":"Limits","sentence":"bounds of a function"},
			{"id":"s2","label":"Derivatives","sentence":""}
		]}`))
	})

	suggestions, err := NewHTTPSuggestionService(client).SuggestRelated(context.Background(), "Calculus")
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "s1", suggestions[0].ID)
	assert.Equal(t, "Limits", suggestions[0].Label)
	assert.Equal(t, "bounds of a function", suggestions[0].Sentence)
}

func TestHTTPSuggestionService_EmptyEnvelope(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"suggested_nodes":[]}`))
	})

	suggestions, err := NewHTTPSuggestionService(client).SuggestRelated(context.Background(), "Calculus")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestHTTPTemporalService_DecodesPartitionKeys(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/knowledge/temporal", r.URL.Path)
		w.Write([]byte(`{
			"past_map": {
				"nodes": [{"id":"p1","label":"Arithmetic"}],
				"edges": [{"source":"p1","target":"input_Calculus"}]
			},
			"future_map": null
		}`))
	})

	resp, err := NewHTTPTemporalService(client).TemporalRelated(context.Background(), ports.TemporalQuery{
		ID:    "base",
		Label: "Calculus",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Past, "a populated past_map must decode")
	require.Len(t, resp.Past.Nodes, 1)
	assert.Equal(t, "p1", resp.Past.Nodes[0].ID)
	require.Len(t, resp.Past.Edges, 1)
	assert.Equal(t, "input_Calculus", resp.Past.Edges[0].Target)
	assert.Nil(t, resp.Future)
}
