package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/core/entities"
	"knowmap-backend/domain/core/valueobjects"
	"knowmap-backend/domain/services/layout"
)

// --- mock collaborators ---

type mockMapStore struct {
	mu        sync.Mutex
	nodes     []*entities.Node
	edges     []*entities.Edge
	saveCount int
	saveErr   error
	fetchErr  error
}

func (m *mockMapStore) FetchMap(ctx context.Context, memoID int64) ([]*entities.Node, []*entities.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, nil, m.fetchErr
	}
	return m.nodes, m.edges, nil
}

func (m *mockMapStore) SaveMap(ctx context.Context, memoID int64, nodes []*entities.Node, edges []*entities.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saveCount++
	m.nodes = nodes
	m.edges = edges
	return nil
}

func (m *mockMapStore) saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCount
}

type mockSuggestions struct {
	result []ports.Suggestion
	err    error
}

func (m *mockSuggestions) SuggestRelated(ctx context.Context, label string) ([]ports.Suggestion, error) {
	return m.result, m.err
}

type mockNodeFactory struct {
	result ports.CreatedNode
	err    error
}

func (m *mockNodeFactory) CreateNode(ctx context.Context, label string) (ports.CreatedNode, error) {
	return m.result, m.err
}

type mockTemporal struct {
	result *ports.TemporalResponse
	err    error
}

func (m *mockTemporal) TemporalRelated(ctx context.Context, query ports.TemporalQuery) (*ports.TemporalResponse, error) {
	return m.result, m.err
}

// --- fixtures ---

func testNode(t *testing.T, id, label string, x, y float64) *entities.Node {
	t.Helper()
	nodeID, err := valueobjects.NewNodeIDFromString(id)
	require.NoError(t, err)
	node, err := entities.NewNode(nodeID, label, "about "+label, nil)
	require.NoError(t, err)
	pos, err := valueobjects.NewPosition(x, y)
	require.NoError(t, err)
	require.NoError(t, node.MoveTo(pos))
	return node
}

func testEdge(t *testing.T, id, source, target string) *entities.Edge {
	t.Helper()
	sourceID, err := valueobjects.NewNodeIDFromString(source)
	require.NoError(t, err)
	targetID, err := valueobjects.NewNodeIDFromString(target)
	require.NoError(t, err)
	edge, err := entities.NewEdge(id, sourceID, targetID, true)
	require.NoError(t, err)
	return edge
}

type sessionFixture struct {
	session  *Session
	store    *mockMapStore
	suggest  *mockSuggestions
	factory  *mockNodeFactory
	temporal *mockTemporal
}

func newFixture(t *testing.T, memo *ports.Memo, opts Options) *sessionFixture {
	t.Helper()
	if opts.RandSeed == 0 {
		opts.RandSeed = 1
	}
	if opts.AutosaveQuietPeriod == 0 {
		opts.AutosaveQuietPeriod = time.Hour // keep autosave out of the way unless a test opts in
	}
	logger := zap.NewNop()
	fx := &sessionFixture{
		store:    &mockMapStore{},
		suggest:  &mockSuggestions{},
		factory:  &mockNodeFactory{},
		temporal: &mockTemporal{},
	}
	fx.session = NewSession("s1", memo, Dependencies{
		MapStore:    fx.store,
		Suggestions: fx.suggest,
		NodeFactory: fx.factory,
		Temporal:    fx.temporal,
		Layout:      NewLayoutAdapter(layout.NewEngine(), logger, nil),
		Logger:      logger,
	}, opts)
	return fx
}

func seedMap(t *testing.T, fx *sessionFixture, nodes []*entities.Node, edges []*entities.Edge) {
	t.Helper()
	fx.store.nodes = nodes
	fx.store.edges = edges
	require.NoError(t, fx.session.Hydrate(context.Background()))
}

// --- tests ---

func TestSession_HydrateKeepsStoredPositions(t *testing.T) {
	fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
	seedMap(t, fx,
		[]*entities.Node{testNode(t, "a", "Calculus", 120, 240)},
		nil)

	view := fx.session.View()
	require.Len(t, view.Map.Nodes, 1)
	assert.Equal(t, 120.0, view.Map.Nodes[0].X)
	assert.Equal(t, 240.0, view.Map.Nodes[0].Y)
	assert.Equal(t, InspectorHidden, view.Inspector)
}

func TestSession_HydrateLaysOutOriginOnlyMaps(t *testing.T) {
	fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
	seedMap(t, fx,
		[]*entities.Node{
			testNode(t, "a", "A", 0, 0),
			testNode(t, "b", "B", 0, 0),
		},
		[]*entities.Edge{testEdge(t, "e1", "a", "b")})

	view := fx.session.View()
	positions := map[string][2]float64{}
	for _, n := range view.Map.Nodes {
		positions[n.ID] = [2]float64{n.X, n.Y}
	}
	assert.NotEqual(t, positions["a"], positions["b"], "stored origin pile-up gets an initial layout")
}

func TestSession_InspectorStateMachine(t *testing.T) {
	fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
	seedMap(t, fx, []*entities.Node{testNode(t, "a", "Calculus", 10, 10)}, nil)
	ctx := context.Background()

	t.Run("select opens node detail", func(t *testing.T) {
		node, err := fx.session.SelectNode(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Calculus", node.Label)
		assert.Equal(t, InspectorNodeDetail, fx.session.View().Inspector)
	})

	t.Run("select unknown node fails", func(t *testing.T) {
		_, err := fx.session.SelectNode(ctx, "nope")
		assert.Error(t, err)
	})

	t.Run("back is only legal from suggestions", func(t *testing.T) {
		assert.Error(t, fx.session.BackToDetail())
	})

	t.Run("close hides panel and clears selection", func(t *testing.T) {
		fx.session.ClosePanel()
		view := fx.session.View()
		assert.Equal(t, InspectorHidden, view.Inspector)
		assert.Empty(t, view.SelectedID)
	})

	t.Run("suggestions require a selection", func(t *testing.T) {
		_, err := fx.session.FetchSuggestions(ctx)
		assert.Error(t, err)
	})
}

func TestSession_FetchSuggestions(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path lands in suggestion view", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{testNode(t, "a", "Calculus", 0, 1)}, nil)
		fx.suggest.result = []ports.Suggestion{{ID: "s1", Label: "Limits", Sentence: "..."}}

		_, err := fx.session.SelectNode(ctx, "a")
		require.NoError(t, err)
		suggestions, err := fx.session.FetchSuggestions(ctx)
		require.NoError(t, err)
		require.Len(t, suggestions, 1)
		assert.Equal(t, "Limits", suggestions[0].Label)
		assert.False(t, suggestions[0].AlreadyAdded)
		assert.Equal(t, InspectorShowSuggestions, fx.session.View().Inspector)
	})

	t.Run("candidates matching an existing label render as already added", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{
			testNode(t, "a", "Calculus", 0, 1),
			testNode(t, "lim", "Limits", 5, 5),
		}, nil)
		fx.suggest.result = []ports.Suggestion{
			{ID: "s1", Label: "Limits"},
			{ID: "s2", Label: "Derivatives"},
		}

		_, err := fx.session.SelectNode(ctx, "a")
		require.NoError(t, err)
		suggestions, err := fx.session.FetchSuggestions(ctx)
		require.NoError(t, err)
		require.Len(t, suggestions, 2)
		assert.True(t, suggestions[0].AlreadyAdded)
		assert.False(t, suggestions[1].AlreadyAdded)
	})

	t.Run("fetch failure still shows the empty panel", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{testNode(t, "a", "Calculus", 0, 1)}, nil)
		fx.suggest.err = errors.New("upstream down")

		_, err := fx.session.SelectNode(ctx, "a")
		require.NoError(t, err)
		suggestions, err := fx.session.FetchSuggestions(ctx)
		require.NoError(t, err, "the panel transition must not fail")
		assert.Empty(t, suggestions)
		assert.Equal(t, InspectorShowSuggestions, fx.session.View().Inspector)

		notes := fx.session.Notifications()
		require.Len(t, notes, 1)
		assert.Equal(t, "warning", notes[0].Level)
	})
}

func TestSession_AcceptSuggestion(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, fx *sessionFixture) {
		_, err := fx.session.SelectNode(ctx, "base")
		require.NoError(t, err)
		_, err = fx.session.FetchSuggestions(ctx)
		require.NoError(t, err)
	}

	t.Run("new label creates a styled node near the base", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{testNode(t, "base", "Calculus", 100, 200)}, nil)
		fx.suggest.result = []ports.Suggestion{{ID: "s1", Label: "Limits", Sentence: "bounds"}}
		open(t, fx)

		node, err := fx.session.AcceptSuggestion(ctx, "s1", AcceptLearned)
		require.NoError(t, err)
		assert.Equal(t, "Limits", node.Label)
		assert.Equal(t, string(valueobjects.StyleLearned), node.Style)

		// Placed at the base offset plus bounded jitter.
		assert.InDelta(t, 100+suggestionOffsetX, node.X, suggestionJitter)
		assert.InDelta(t, 200+suggestionOffsetY, node.Y, suggestionJitter)

		view := fx.session.View()
		assert.Len(t, view.Map.Nodes, 2)
		assert.Len(t, view.Map.Edges, 1)
		require.Len(t, view.Suggestions, 1)
		assert.True(t, view.Suggestions[0].AlreadyAdded, "accepted candidate renders as added")
	})

	t.Run("existing label connects instead of duplicating", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{
			testNode(t, "base", "Calculus", 100, 200),
			testNode(t, "lim", "Limits", 400, 50),
		}, nil)
		fx.suggest.result = []ports.Suggestion{{ID: "s1", Label: "Limits"}}
		open(t, fx)

		node, err := fx.session.AcceptSuggestion(ctx, "s1", AcceptInterested)
		require.NoError(t, err)
		assert.Equal(t, "lim", node.ID, "accept resolves to the existing node")

		view := fx.session.View()
		assert.Len(t, view.Map.Nodes, 2, "no duplicate node")
		require.Len(t, view.Map.Edges, 1)
		assert.Equal(t, "base", view.Map.Edges[0].Source)
		assert.Equal(t, "lim", view.Map.Edges[0].Target)
	})

	t.Run("case differences are distinct labels", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{
			testNode(t, "base", "Calculus", 0, 0),
			testNode(t, "lim", "limits", 400, 50),
		}, nil)
		fx.suggest.result = []ports.Suggestion{{ID: "s1", Label: "Limits"}}
		open(t, fx)

		_, err := fx.session.AcceptSuggestion(ctx, "s1", AcceptLearned)
		require.NoError(t, err)
		assert.Len(t, fx.session.View().Map.Nodes, 3, "dedup is case sensitive")
	})

	t.Run("rejects bad category and unknown suggestion", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{testNode(t, "base", "Calculus", 0, 0)}, nil)
		fx.suggest.result = []ports.Suggestion{{ID: "s1", Label: "Limits"}}
		open(t, fx)

		_, err := fx.session.AcceptSuggestion(ctx, "s1", AcceptCategory("bogus"))
		assert.Error(t, err)
		_, err = fx.session.AcceptSuggestion(ctx, "missing", AcceptLearned)
		assert.Error(t, err)
	})

	t.Run("blocked outside the suggestion view", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{testNode(t, "base", "Calculus", 0, 0)}, nil)
		_, err := fx.session.SelectNode(ctx, "base")
		require.NoError(t, err)

		_, err = fx.session.AcceptSuggestion(ctx, "s1", AcceptLearned)
		assert.Error(t, err)
	})
}

func TestSession_Connect(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
	seedMap(t, fx, []*entities.Node{
		testNode(t, "a", "A", 0, 0),
		testNode(t, "b", "B", 10, 10),
	}, nil)

	_, err := fx.session.SelectNode(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, fx.session.Connect(ctx, "b"))
	view := fx.session.View()
	require.Len(t, view.Map.Edges, 1)
	assert.True(t, view.Map.Edges[0].Animated)

	assert.Error(t, fx.session.Connect(ctx, "a"), "self connection")
	assert.Error(t, fx.session.Connect(ctx, "ghost"), "unknown target")
}

func TestSession_CreateManualNode(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a memo", func(t *testing.T) {
		fx := newFixture(t, nil, Options{})
		_, err := fx.session.CreateManualNode(ctx, "Topology")
		assert.Error(t, err)
	})

	t.Run("creates a fresh node near the origin", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		fx.factory.result = ports.CreatedNode{ID: "srv-1", Label: "Topology", Sentence: "shapes"}

		node, err := fx.session.CreateManualNode(ctx, "Topology")
		require.NoError(t, err)
		assert.Equal(t, "srv-1", node.ID)
		assert.Equal(t, string(valueobjects.StyleFresh), node.Style)
		assert.LessOrEqual(t, node.X, float64(manualNodeSpread))
		assert.GreaterOrEqual(t, node.X, float64(-manualNodeSpread))
		assert.Len(t, fx.session.View().Map.Nodes, 1)
	})

	t.Run("factory failure leaves the map untouched", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		fx.factory.err = errors.New("upstream down")

		_, err := fx.session.CreateManualNode(ctx, "Topology")
		assert.Error(t, err)
		assert.Empty(t, fx.session.View().Map.Nodes)
	})
}

func TestSession_RequestLayout(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
	seedMap(t, fx, []*entities.Node{
		testNode(t, "a", "A", 5, 5),
		testNode(t, "b", "B", 5, 5),
	}, []*entities.Edge{testEdge(t, "e1", "a", "b")})

	require.NoError(t, fx.session.RequestLayout(ctx))
	view := fx.session.View()
	byID := map[string][2]float64{}
	for _, n := range view.Map.Nodes {
		byID[n.ID] = [2]float64{n.X, n.Y}
	}
	assert.NotEqual(t, byID["a"], byID["b"])

	t.Run("cancelled layout keeps positions and notifies", func(t *testing.T) {
		before := fx.session.View().Map
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		require.NoError(t, fx.session.RequestLayout(cancelled), "failure is absorbed")
		assert.Equal(t, before.Nodes, fx.session.View().Map.Nodes)

		notes := fx.session.Notifications()
		require.Len(t, notes, 1)
		assert.Equal(t, "warning", notes[0].Level)
	})
}

func TestLayoutAdapter_TokenSupersession(t *testing.T) {
	adapter := NewLayoutAdapter(layout.NewEngine(), zap.NewNop(), nil)

	first := adapter.Begin()
	assert.True(t, adapter.IsCurrent(first))

	second := adapter.Begin()
	assert.False(t, adapter.IsCurrent(first), "an older trigger is superseded")
	assert.True(t, adapter.IsCurrent(second))
}

func TestSession_AdoptMemo(t *testing.T) {
	fx := newFixture(t, nil, Options{})
	require.Nil(t, fx.session.Memo())

	memo := &ports.Memo{ID: 12, Content: "calculus notes"}
	nodes := []*entities.Node{testNode(t, "a", "Calculus", 100, 100)}
	require.NoError(t, fx.session.AdoptMemo(memo, nodes, nil))

	require.NotNil(t, fx.session.Memo())
	assert.Equal(t, int64(12), fx.session.Memo().ID)
	view := fx.session.View()
	require.Len(t, view.Map.Nodes, 1)
	assert.Equal(t, "Calculus", view.Map.Nodes[0].Label)

	// A session never switches memos.
	err := fx.session.AdoptMemo(&ports.Memo{ID: 13}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int64(12), fx.session.Memo().ID)

	// Saving is possible now that a memo is attached.
	require.NoError(t, fx.session.SaveNow(context.Background()))
	assert.Equal(t, 1, fx.store.saves())
}

func TestSession_Autosave(t *testing.T) {
	ctx := context.Background()

	t.Run("fires once after the quiet period", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{AutosaveQuietPeriod: 50 * time.Millisecond})
		seedMap(t, fx, []*entities.Node{
			testNode(t, "a", "A", 1, 1),
			testNode(t, "b", "B", 2, 2),
		}, nil)

		_, err := fx.session.SelectNode(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, fx.session.Connect(ctx, "b"))
		// A second change inside the quiet period restarts the countdown.
		require.NoError(t, fx.session.MoveNode(ctx, "a", 9, 9))

		require.Eventually(t, func() bool { return fx.store.saves() == 1 },
			2*time.Second, 10*time.Millisecond)

		// No further changes, no further saves.
		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, 1, fx.store.saves())
	})

	t.Run("suppressed without a memo", func(t *testing.T) {
		fx := newFixture(t, nil, Options{AutosaveQuietPeriod: 20 * time.Millisecond})
		require.NoError(t, fx.session.model.AddNode(testNode(t, "a", "A", 0, 0)))
		require.NoError(t, fx.session.MoveNode(ctx, "a", 5, 5))

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 0, fx.store.saves())
	})
}

func TestSession_SaveNow(t *testing.T) {
	ctx := context.Background()

	t.Run("without memo fails", func(t *testing.T) {
		fx := newFixture(t, nil, Options{})
		assert.Error(t, fx.session.SaveNow(ctx))
	})

	t.Run("persists the full snapshot", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{testNode(t, "a", "A", 1, 2)}, nil)

		require.NoError(t, fx.session.SaveNow(ctx))
		assert.Equal(t, 1, fx.store.saves())
		require.Len(t, fx.store.nodes, 1)
		assert.Equal(t, "a", fx.store.nodes[0].ID().String())
	})

	t.Run("save failure surfaces and notifies", func(t *testing.T) {
		fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
		seedMap(t, fx, []*entities.Node{testNode(t, "a", "A", 1, 2)}, nil)
		fx.store.saveErr = errors.New("write refused")

		assert.Error(t, fx.session.SaveNow(ctx))
		notes := fx.session.Notifications()
		require.Len(t, notes, 1)
		assert.Equal(t, "error", notes[0].Level)
	})
}

func TestSession_CloseFlushesDirtyState(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &ports.Memo{ID: 7}, Options{})
	seedMap(t, fx, []*entities.Node{testNode(t, "a", "A", 1, 2)}, nil)

	require.NoError(t, fx.session.MoveNode(ctx, "a", 50, 60))
	require.NoError(t, fx.session.Close(ctx))
	assert.Equal(t, 1, fx.store.saves())

	// Idempotent.
	require.NoError(t, fx.session.Close(ctx))
	assert.Equal(t, 1, fx.store.saves())
}
