package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"knowmap-backend/application/services"
	"knowmap-backend/pkg/common"
)

// CombinedHandler serves the read-only cross-user view.
type CombinedHandler struct {
	combined *services.CombinedViewService
	logger   *zap.Logger
}

// NewCombinedHandler creates a new combined view handler
func NewCombinedHandler(combined *services.CombinedViewService, logger *zap.Logger) *CombinedHandler {
	return &CombinedHandler{combined: combined, logger: logger}
}

// GetCombined handles GET /combined
func (h *CombinedHandler) GetCombined(w http.ResponseWriter, r *http.Request) {
	view, err := h.combined.Build(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, view)
}
