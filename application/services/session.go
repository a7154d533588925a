package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"knowmap-backend/application/ports"
	"knowmap-backend/domain/core/aggregates"
	"knowmap-backend/domain/core/entities"
	"knowmap-backend/domain/core/valueobjects"
	"knowmap-backend/domain/services/layout"
	appErrors "knowmap-backend/pkg/errors"
	"knowmap-backend/pkg/observability"
)

// InspectorState is the state of the detail panel attached to the selected
// node. Suggestion operations are only legal in the states that show them.
type InspectorState string

const (
	InspectorHidden             InspectorState = "hidden"
	InspectorNodeDetail         InspectorState = "nodeDetail"
	InspectorLoadingSuggestions InspectorState = "loadingSuggestions"
	InspectorShowSuggestions    InspectorState = "showSuggestions"
)

// Placement constants for nodes created by accepting a suggestion: offset
// from the base node plus a small jitter so stacked accepts stay readable.
const (
	suggestionOffsetX = 200
	suggestionOffsetY = 80
	suggestionJitter  = 25
)

// Placement constants for merged temporal nodes relative to the base node.
const (
	temporalOffsetX = 300
	temporalStartY  = -40
	temporalStepY   = 70
)

// manualNodeSpread bounds the random placement of manually created nodes.
const manualNodeSpread = 100

// AcceptCategory is the caller's intent when accepting a suggestion; it maps
// directly to the style of a node created from it.
type AcceptCategory string

const (
	AcceptLearned    AcceptCategory = "learned"
	AcceptInterested AcceptCategory = "interested"
)

func (c AcceptCategory) style() (valueobjects.StyleCategory, error) {
	switch c {
	case AcceptLearned:
		return valueobjects.StyleLearned, nil
	case AcceptInterested:
		return valueobjects.StyleInterested, nil
	default:
		return "", appErrors.NewValidationError(fmt.Sprintf("unknown accept category %q", string(c)))
	}
}

// Notification is a transient user-facing message produced by background
// work, drained by polling.
type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Dependencies bundles everything a session needs. Logger and Layout are
// mandatory; collaborator ports may be nil only where an operation
// explicitly tolerates it.
type Dependencies struct {
	MapStore    ports.MapStore
	Suggestions ports.SuggestionService
	NodeFactory ports.NodeFactory
	Temporal    ports.TemporalService
	Activity    ports.ActivityLogger
	Layout      *LayoutAdapter
	Logger      *zap.Logger
	Metrics     *observability.Collector

	// MainLayout and PreviewLayout supply layout options per run, so
	// spacing tuning applies to live sessions. Nil falls back to the
	// built-in defaults.
	MainLayout    func() layout.Options
	PreviewLayout func() layout.Options
}

func (d Dependencies) mainLayoutOptions() layout.Options {
	if d.MainLayout != nil {
		return d.MainLayout()
	}
	return layout.MainOptions()
}

func (d Dependencies) previewLayoutOptions() layout.Options {
	if d.PreviewLayout != nil {
		return d.PreviewLayout()
	}
	return layout.PreviewOptions()
}

// Options tunes one session.
type Options struct {
	// AutosaveQuietPeriod is how long after the last change a save fires.
	AutosaveQuietPeriod time.Duration
	// MaxNotifications caps the pending notification buffer.
	MaxNotifications int
	// RandSeed makes placement jitter deterministic; zero seeds from time.
	RandSeed int64
}

func (o *Options) withDefaults() {
	if o.AutosaveQuietPeriod <= 0 {
		o.AutosaveQuietPeriod = 2 * time.Second
	}
	if o.MaxNotifications <= 0 {
		o.MaxNotifications = 50
	}
	if o.RandSeed == 0 {
		o.RandSeed = time.Now().UnixNano()
	}
}

// Session is one user's live editing session over one map. All state is
// guarded by a single mutex; operations take it for their full duration, so
// every mutation is atomic with respect to concurrent requests.
type Session struct {
	id   string
	memo *ports.Memo

	mu            sync.Mutex
	model         *aggregates.Map
	inspector     InspectorState
	selected      valueobjects.NodeID
	suggestions   []ports.Suggestion
	pendingMerge  *pendingTemporal
	notifications []Notification
	rng           *rand.Rand

	quiet         time.Duration
	saveTimer     *time.Timer
	savedRevision uint64
	closed        bool

	deps Dependencies
	opts Options
}

// NewSession creates an empty session. Hydrate loads the stored map when a
// memo is attached; without one the session edits a scratch map that cannot
// be saved.
func NewSession(id string, memo *ports.Memo, deps Dependencies, opts Options) *Session {
	opts.withDefaults()
	return &Session{
		id:        id,
		memo:      memo,
		model:     aggregates.NewMap(),
		inspector: InspectorHidden,
		rng:       rand.New(rand.NewSource(opts.RandSeed)),
		quiet:     opts.AutosaveQuietPeriod,
		deps:      deps,
		opts:      opts,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Memo returns the attached memo, nil for scratch sessions.
func (s *Session) Memo() *ports.Memo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memo
}

func (s *Session) hasMemo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memo != nil
}

// Hydrate loads the stored map for the attached memo, replacing any current
// content. Sessions without a memo hydrate to an empty map.
func (s *Session) Hydrate(ctx context.Context) error {
	if s.memo == nil {
		return nil
	}
	nodes, edges, err := s.deps.MapStore.FetchMap(ctx, s.memo.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.model.ReplaceAll(nodes, edges)
	s.savedRevision = s.model.Revision()
	needsLayout := allAtOrigin(nodes)
	s.mu.Unlock()

	// Stored maps predating position persistence arrive with every node at
	// the origin; lay them out once so the first render is usable.
	if needsLayout && len(nodes) > 0 {
		if err := s.RequestLayout(ctx); err != nil {
			s.deps.Logger.Warn("initial layout failed, keeping origin positions",
				zap.String("session_id", s.id),
				zap.Error(err))
		}
	}
	return nil
}

// HydrateFrom seeds the session with an already-normalized map, used when a
// memo and its generated map were just created together.
func (s *Session) HydrateFrom(nodes []*entities.Node, edges []*entities.Edge) {
	s.mu.Lock()
	s.model.ReplaceAll(nodes, edges)
	s.savedRevision = s.model.Revision()
	needsLayout := allAtOrigin(nodes)
	s.mu.Unlock()

	if needsLayout && len(nodes) > 0 {
		if err := s.RequestLayout(context.Background()); err != nil {
			s.deps.Logger.Warn("initial layout failed, keeping origin positions",
				zap.String("session_id", s.id),
				zap.Error(err))
		}
	}
}

// AdoptMemo binds a freshly created memo to a scratch session and replaces
// the working map with the memo's generated initial map. Fails once a memo
// is attached; a session never switches memos.
func (s *Session) AdoptMemo(memo *ports.Memo, nodes []*entities.Node, edges []*entities.Edge) error {
	if memo == nil {
		return appErrors.NewValidationError("memo must not be nil")
	}

	s.mu.Lock()
	if s.memo != nil {
		s.mu.Unlock()
		return appErrors.NewConflictError("session already has a memo")
	}
	s.memo = memo
	s.model.ReplaceAll(nodes, edges)
	s.savedRevision = s.model.Revision()
	s.inspector = InspectorHidden
	s.selected = valueobjects.NodeID{}
	s.suggestions = nil
	s.pendingMerge = nil
	needsLayout := allAtOrigin(nodes)
	s.mu.Unlock()

	if needsLayout && len(nodes) > 0 {
		if err := s.RequestLayout(context.Background()); err != nil {
			s.deps.Logger.Warn("initial layout failed, keeping origin positions",
				zap.String("session_id", s.id),
				zap.Error(err))
		}
	}
	return nil
}

func allAtOrigin(nodes []*entities.Node) bool {
	for _, n := range nodes {
		if !n.Position().Equals(valueobjects.Origin()) {
			return false
		}
	}
	return true
}

// SelectNode focuses a node and opens its detail panel. Selecting while
// suggestions are shown discards them.
func (s *Session) SelectNode(ctx context.Context, id string) (*NodeView, error) {
	nodeID, err := valueobjects.NewNodeIDFromString(id)
	if err != nil {
		return nil, appErrors.NewValidationError("node id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.model.Node(nodeID)
	if !ok {
		return nil, appErrors.NewNotFoundError("node")
	}
	s.selected = nodeID
	s.inspector = InspectorNodeDetail
	s.suggestions = nil

	s.logActivity(ctx, "node_selected", map[string]interface{}{
		"node_id": id,
		"label":   node.Label(),
	})
	view := nodeView(node)
	return &view, nil
}

// ClosePanel hides the inspector and clears the selection.
func (s *Session) ClosePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspector = InspectorHidden
	s.selected = valueobjects.NodeID{}
	s.suggestions = nil
}

// BackToDetail returns from the suggestion list to the node detail view,
// keeping the selection.
func (s *Session) BackToDetail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inspector != InspectorShowSuggestions {
		return appErrors.NewConflictError("no suggestion list to return from")
	}
	s.inspector = InspectorNodeDetail
	s.suggestions = nil
	return nil
}

// FetchSuggestions loads related-concept candidates for the selected node.
// The inspector always lands in the suggestion view afterwards; a fetch
// failure shows an empty list plus a notification rather than failing the
// operation, matching how the panel behaves.
func (s *Session) FetchSuggestions(ctx context.Context) ([]SuggestionView, error) {
	s.mu.Lock()
	if s.selected.IsZero() || s.inspector == InspectorHidden {
		s.mu.Unlock()
		return nil, appErrors.NewConflictError("no node selected")
	}
	node, ok := s.model.Node(s.selected)
	if !ok {
		s.mu.Unlock()
		return nil, appErrors.NewNotFoundError("selected node")
	}
	label := node.Label()
	s.inspector = InspectorLoadingSuggestions
	s.mu.Unlock()

	suggestions, err := s.deps.Suggestions.SuggestRelated(ctx, label)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspector = InspectorShowSuggestions
	if err != nil {
		s.suggestions = nil
		s.pushNotification("warning", "Could not load suggestions. Try again.")
		s.deps.Logger.Warn("suggestion fetch failed",
			zap.String("session_id", s.id),
			zap.String("label", label),
			zap.Error(err))
		return nil, nil
	}
	s.suggestions = suggestions

	s.logActivity(ctx, "suggestions_fetched", map[string]interface{}{
		"label": label,
		"count": len(suggestions),
	})
	return s.suggestionViewsLocked(), nil
}

// AcceptSuggestion folds one candidate into the map. If a node with the
// candidate's exact label already exists, only an edge from the base node is
// added; otherwise a new styled node is created near the base together with
// the edge, atomically. The candidate stays in the list and renders as
// already added from then on.
func (s *Session) AcceptSuggestion(ctx context.Context, suggestionID string, category AcceptCategory) (*NodeView, error) {
	style, err := category.style()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inspector != InspectorShowSuggestions {
		return nil, appErrors.NewConflictError("no suggestions are being shown")
	}
	base, ok := s.model.Node(s.selected)
	if !ok {
		return nil, appErrors.NewNotFoundError("selected node")
	}

	idx := -1
	for i, c := range s.suggestions {
		if c.ID == suggestionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, appErrors.NewNotFoundError("suggestion")
	}
	candidate := s.suggestions[idx]

	var target *entities.Node
	if existing, found := s.model.NodeByLabel(candidate.Label); found {
		// Label dedup: connect instead of duplicating the concept.
		edge, err := s.newEdge(base.ID(), existing.ID())
		if err != nil {
			return nil, err
		}
		if err := s.model.AddEdge(edge); err != nil {
			return nil, err
		}
		target = existing
		if s.deps.Metrics != nil {
			s.deps.Metrics.SuggestionsAccepted.WithLabelValues("edge_only").Inc()
			s.deps.Metrics.EdgesCreated.Inc()
		}
	} else {
		position := s.jitteredPosition(base.Position(), suggestionOffsetX, suggestionOffsetY)
		node, err := entities.NewNode(valueobjects.NewUserAddedID(), candidate.Label, candidate.Sentence, nil)
		if err != nil {
			return nil, err
		}
		if err := node.MoveTo(position); err != nil {
			return nil, err
		}
		if err := node.SetStyle(style); err != nil {
			return nil, err
		}
		edge, err := s.newEdge(base.ID(), node.ID())
		if err != nil {
			return nil, err
		}
		if err := s.model.AddNodeAndEdge(node, edge); err != nil {
			return nil, err
		}
		target = node
		if s.deps.Metrics != nil {
			s.deps.Metrics.SuggestionsAccepted.WithLabelValues("node_created").Inc()
			s.deps.Metrics.NodesCreated.Inc()
			s.deps.Metrics.EdgesCreated.Inc()
		}
	}

	s.markDirtyLocked()

	s.logActivity(ctx, "suggestion_accepted", map[string]interface{}{
		"label":    candidate.Label,
		"category": string(category),
	})
	view := nodeView(target)
	return &view, nil
}

// Connect links the selected node to another existing node.
func (s *Session) Connect(ctx context.Context, targetID string) error {
	target, err := valueobjects.NewNodeIDFromString(targetID)
	if err != nil {
		return appErrors.NewValidationError("target node id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.model.Node(s.selected)
	if !ok {
		return appErrors.NewConflictError("no node selected")
	}
	if base.ID().Equals(target) {
		return appErrors.NewValidationError("cannot connect a node to itself")
	}
	edge, err := s.newEdge(base.ID(), target)
	if err != nil {
		return err
	}
	if err := s.model.AddEdge(edge); err != nil {
		return err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.EdgesCreated.Inc()
	}
	s.markDirtyLocked()

	s.logActivity(ctx, "nodes_connected", map[string]interface{}{
		"source": base.ID().String(),
		"target": targetID,
	})
	return nil
}

// CreateManualNode asks the node factory to flesh out a label and places the
// result near the origin with the fresh style. Requires an attached memo;
// a scratch map would silently lose the node. A factory failure leaves the
// model untouched.
func (s *Session) CreateManualNode(ctx context.Context, label string) (*NodeView, error) {
	if label == "" {
		return nil, appErrors.NewValidationError("label must not be empty")
	}
	if !s.hasMemo() {
		return nil, appErrors.NewConflictError("select or create a memo before adding nodes")
	}

	created, err := s.deps.NodeFactory.CreateNode(ctx, label)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := valueobjects.NewNodeIDFromString(created.ID)
	if err != nil {
		return nil, appErrors.NewExternalError("node factory returned an empty id", nil)
	}
	node, err := entities.NewNode(id, created.Label, created.Sentence, created.RelatedIDs)
	if err != nil {
		return nil, err
	}
	position := s.jitteredPosition(valueobjects.Origin(), 0, 0)
	if err := node.MoveTo(position); err != nil {
		return nil, err
	}
	if err := node.SetStyle(valueobjects.StyleFresh); err != nil {
		return nil, err
	}
	if err := s.model.AddNode(node); err != nil {
		return nil, err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.NodesCreated.Inc()
	}
	s.markDirtyLocked()

	s.logActivity(ctx, "node_created_manually", map[string]interface{}{
		"label": created.Label,
	})
	view := nodeView(node)
	return &view, nil
}

// MoveNode records a user drag.
func (s *Session) MoveNode(ctx context.Context, id string, x, y float64) error {
	nodeID, err := valueobjects.NewNodeIDFromString(id)
	if err != nil {
		return appErrors.NewValidationError("node id must not be empty")
	}
	position, err := valueobjects.NewPosition(x, y)
	if err != nil {
		return appErrors.NewValidationError("position must be finite")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.model.MoveNode(nodeID, position); err != nil {
		return err
	}
	s.markDirtyLocked()
	return nil
}

// RequestLayout recomputes positions for the whole map with the layered
// engine. Concurrent requests race on the trigger token; only the newest
// one's result is applied, earlier results are discarded.
func (s *Session) RequestLayout(ctx context.Context) error {
	s.mu.Lock()
	nodes, edges := s.model.Snapshot()
	s.mu.Unlock()
	if len(nodes) == 0 {
		return nil
	}

	token := s.deps.Layout.Begin()
	spec := SpecFromSnapshot(nodes, edges)

	result, err := s.deps.Layout.Layered(ctx, "main", spec, s.deps.mainLayoutOptions())
	if err != nil {
		// Positions are kept as they were; the map stays usable.
		s.mu.Lock()
		s.pushNotification("warning", "Automatic layout failed. Positions were left unchanged.")
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deps.Layout.IsCurrent(token) {
		s.deps.Layout.MarkStale("main", token)
		return nil
	}
	s.model.ApplyPositions(resultPositions(result))
	s.markDirtyLocked()
	return nil
}

// SaveNow persists the full map immediately, regardless of the autosave
// timer. Fails for sessions without a memo.
func (s *Session) SaveNow(ctx context.Context) error {
	if !s.hasMemo() {
		return appErrors.NewConflictError("session has no memo to save to")
	}
	return s.save(ctx, "manual")
}

// Notifications drains and returns the pending notification buffer.
func (s *Session) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.notifications
	s.notifications = nil
	return pending
}

// View returns the full session state for rendering.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Close stops the autosave timer and flushes unsaved changes.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	dirty := s.memo != nil && s.model.Revision() != s.savedRevision
	s.mu.Unlock()

	if dirty {
		return s.save(ctx, "close")
	}
	return nil
}

// save persists a snapshot. Never called with the lock held; the snapshot is
// taken under the lock, the upstream call happens outside it.
func (s *Session) save(ctx context.Context, trigger string) error {
	s.mu.Lock()
	nodes, edges := s.model.Snapshot()
	revision := s.model.Revision()
	memoID := s.memo.ID
	s.mu.Unlock()

	start := time.Now()
	err := s.deps.MapStore.SaveMap(ctx, memoID, nodes, edges)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveSave(trigger, time.Since(start), err)
	}
	if err != nil {
		s.deps.Logger.Warn("map save failed",
			zap.String("session_id", s.id),
			zap.String("trigger", trigger),
			zap.Int64("memo_id", memoID),
			zap.Error(err))
		s.mu.Lock()
		s.pushNotification("error", "Saving the map failed. Changes are kept in the session.")
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if revision > s.savedRevision {
		s.savedRevision = revision
	}
	s.mu.Unlock()

	s.deps.Logger.Info("map saved",
		zap.String("session_id", s.id),
		zap.String("trigger", trigger),
		zap.Int64("memo_id", memoID),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)))
	return nil
}

// markDirtyLocked restarts the autosave countdown. Callers hold s.mu.
// Sessions without a memo never autosave; there is nowhere to save to.
func (s *Session) markDirtyLocked() {
	if s.memo == nil || s.closed {
		return
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.quiet, func() {
		s.mu.Lock()
		stale := s.closed || s.model.Revision() == s.savedRevision
		s.mu.Unlock()
		if stale {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.save(ctx, "autosave")
	})
}

func (s *Session) pushNotification(level, message string) {
	s.notifications = append(s.notifications, Notification{
		Level:   level,
		Message: message,
		At:      time.Now(),
	})
	if len(s.notifications) > s.opts.MaxNotifications {
		s.notifications = s.notifications[len(s.notifications)-s.opts.MaxNotifications:]
	}
}

// logActivity is fire-and-forget; the adapter swallows failures.
func (s *Session) logActivity(ctx context.Context, activityType string, details map[string]interface{}) {
	if s.deps.Activity == nil {
		return
	}
	s.deps.Activity.Log(ctx, activityType, details)
}

// newEdge derives an edge id with a random disambiguator so parallel edges
// between the same pair cannot collide.
func (s *Session) newEdge(source, target valueobjects.NodeID) (*entities.Edge, error) {
	disambiguator := fmt.Sprintf("%04d", s.rng.Intn(10000))
	return entities.NewEdge(entities.DeriveEdgeID(source, target, disambiguator), source, target, true)
}

// jitteredPosition offsets base and adds bounded random jitter on both axes.
func (s *Session) jitteredPosition(base valueobjects.Position, dx, dy float64) valueobjects.Position {
	spread := float64(suggestionJitter)
	if dx == 0 && dy == 0 {
		spread = manualNodeSpread
	}
	jx := (s.rng.Float64()*2 - 1) * spread
	jy := (s.rng.Float64()*2 - 1) * spread
	position, err := base.Translate(dx+jx, dy+jy)
	if err != nil {
		return base
	}
	return position
}

func resultPositions(result layout.Result) map[valueobjects.NodeID]valueobjects.Position {
	positions := make(map[valueobjects.NodeID]valueobjects.Position, len(result))
	for id, point := range result {
		nodeID, err := valueobjects.NewNodeIDFromString(id)
		if err != nil {
			continue
		}
		position, err := valueobjects.NewPosition(point.X, point.Y)
		if err != nil {
			continue
		}
		positions[nodeID] = position
	}
	return positions
}
