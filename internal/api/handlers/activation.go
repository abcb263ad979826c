package handlers

import (
	"net/http"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/Voork1144/just-memory/internal/service"
	"go.uber.org/zap"
)

type ActivationHandler struct {
	svc    *service.ActivationService
	logger *zap.Logger
}

func NewActivationHandler(svc *service.ActivationService, logger *zap.Logger) *ActivationHandler {
	return &ActivationHandler{svc: svc, logger: logger}
}

func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req domain.ActivationRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.Activate(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
