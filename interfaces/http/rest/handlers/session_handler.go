// Package handlers implements the REST endpoints of the editing service.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"knowmap-backend/application/services"
	"knowmap-backend/pkg/common"
	appErrors "knowmap-backend/pkg/errors"
	"knowmap-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// SessionHandler handles session lifecycle and editing requests.
type SessionHandler struct {
	manager *services.SessionManager
	logger  *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *services.SessionManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger}
}

// OpenSessionRequest opens a session. Exactly one of memo_id or content may
// be set; with content a new memo is created first. Neither opens a scratch
// session that cannot save.
type OpenSessionRequest struct {
	MemoID  *int64 `json:"memo_id,omitempty"`
	Content string `json:"content,omitempty" validate:"omitempty,min=1,max=10000"`
}

// CreateMemoRequest attaches a new memo to a scratch session.
type CreateMemoRequest struct {
	Content string `json:"content" validate:"required,min=1,max=10000"`
}

// SelectNodeRequest focuses one node.
type SelectNodeRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

// AcceptSuggestionRequest folds a suggestion into the map.
type AcceptSuggestionRequest struct {
	SuggestionID string `json:"suggestion_id" validate:"required"`
	Category     string `json:"category" validate:"required,oneof=learned interested"`
}

// ConnectRequest links the selected node to an existing one.
type ConnectRequest struct {
	TargetID string `json:"target_id" validate:"required"`
}

// CreateNodeRequest creates a node from a bare label.
type CreateNodeRequest struct {
	Label string `json:"label" validate:"required,min=1,max=200"`
}

// MoveNodeRequest records a drag.
type MoveNodeRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ListMemos handles GET /memos
func (h *SessionHandler) ListMemos(w http.ResponseWriter, r *http.Request) {
	memos, err := h.manager.ListMemos(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, memos)
}

// OpenSession handles POST /sessions
func (h *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if req.MemoID != nil && req.Content != "" {
		common.RespondAppError(w, appErrors.NewValidationError("memo_id and content are mutually exclusive"))
		return
	}

	var (
		session *services.Session
		err     error
	)
	if req.Content != "" {
		session, err = h.manager.OpenWithNewMemo(r.Context(), req.Content)
	} else {
		session, err = h.manager.Open(r.Context(), req.MemoID)
	}
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, session.View())
}

// GetSession handles GET /sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	common.RespondJSON(w, http.StatusOK, session.View())
}

// CreateMemo handles POST /sessions/{sessionID}/memo
func (h *SessionHandler) CreateMemo(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, err)
		return
	}
	session, err := h.manager.AttachMemo(r.Context(), chi.URLParam(r, "sessionID"), req.Content)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, session.View())
}

// GetMap handles GET /sessions/{sessionID}/map
func (h *SessionHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	common.RespondJSON(w, http.StatusOK, session.View().Map)
}

// CloseSession handles DELETE /sessions/{sessionID}
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// SelectNode handles POST /sessions/{sessionID}/select
func (h *SessionHandler) SelectNode(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectNodeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	node, err := session.SelectNode(r.Context(), req.NodeID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, node)
}

// ClosePanel handles POST /sessions/{sessionID}/panel/close
func (h *SessionHandler) ClosePanel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.ClosePanel()
	common.RespondJSON(w, http.StatusOK, session.View())
}

// BackToDetail handles POST /sessions/{sessionID}/panel/back
func (h *SessionHandler) BackToDetail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.BackToDetail(); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, session.View())
}

// FetchSuggestions handles POST /sessions/{sessionID}/suggestions
func (h *SessionHandler) FetchSuggestions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	suggestions, err := session.FetchSuggestions(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []services.SuggestionView{}
	}
	common.RespondJSON(w, http.StatusOK, suggestions)
}

// AcceptSuggestion handles POST /sessions/{sessionID}/suggestions/accept
func (h *SessionHandler) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req AcceptSuggestionRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	node, err := session.AcceptSuggestion(r.Context(), req.SuggestionID, services.AcceptCategory(req.Category))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, node)
}

// Connect handles POST /sessions/{sessionID}/connect
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ConnectRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := session.Connect(r.Context(), req.TargetID); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, session.View())
}

// CreateNode handles POST /sessions/{sessionID}/nodes
func (h *SessionHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CreateNodeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	node, err := session.CreateManualNode(r.Context(), req.Label)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, node)
}

// MoveNode handles PUT /sessions/{sessionID}/nodes/{nodeID}/position
func (h *SessionHandler) MoveNode(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req MoveNodeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := session.MoveNode(r.Context(), chi.URLParam(r, "nodeID"), req.X, req.Y); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

// TemporalPreview handles POST /sessions/{sessionID}/temporal/preview
func (h *SessionHandler) TemporalPreview(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	preview, err := session.TemporalPreview(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, preview)
}

// ApplyTemporal handles POST /sessions/{sessionID}/temporal/apply
func (h *SessionHandler) ApplyTemporal(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	added, err := session.ApplyTemporal(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"nodes_added": added,
		"map":         session.View().Map,
	})
}

// RequestLayout handles POST /sessions/{sessionID}/layout
func (h *SessionHandler) RequestLayout(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.RequestLayout(r.Context()); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, session.View().Map)
}

// Save handles POST /sessions/{sessionID}/save
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.SaveNow(r.Context()); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// Notifications handles GET /sessions/{sessionID}/notifications
func (h *SessionHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	pending := session.Notifications()
	if pending == nil {
		pending = []services.Notification{}
	}
	common.RespondJSON(w, http.StatusOK, pending)
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	session, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		common.RespondAppError(w, err)
		return nil, false
	}
	return session, true
}
