package handlers

import (
	"net/http"
	"time"

	"github.com/Voork1144/just-memory/internal/api/middleware"
	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/Voork1144/just-memory/internal/service"
	"go.uber.org/zap"
)

type EdgeHandler struct {
	svc    *service.EdgeService
	logger *zap.Logger
}

func NewEdgeHandler(svc *service.EdgeService, logger *zap.Logger) *EdgeHandler {
	return &EdgeHandler{svc: svc, logger: logger}
}

func (h *EdgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.EdgeRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.ProjectID == "" {
		req.ProjectID = middleware.ProjectFromContext(r.Context())
	}

	e, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *EdgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type invalidateRequest struct {
	ValidTo *time.Time `json:"valid_to,omitempty"`
}

func (h *EdgeHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req invalidateRequest
	if err := decode(r, &req, true); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	e, err := h.svc.Invalidate(r.Context(), id, req.ValidTo)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
