package handlers

import (
	"net/http"
	"time"

	"github.com/Voork1144/just-memory/internal/api/middleware"
	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/Voork1144/just-memory/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MemoryHandler struct {
	svc    *service.MemoryService
	edges  *service.EdgeService
	logger *zap.Logger
}

func NewMemoryHandler(svc *service.MemoryService, edges *service.EdgeService, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{svc: svc, edges: edges, logger: logger}
}

func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.StoreRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.ProjectID == "" {
		req.ProjectID = middleware.ProjectFromContext(r.Context())
	}

	m, err := h.svc.Store(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	mems, err := h.svc.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": mems, "count": len(mems)})
}

func listOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{
		ProjectID: middleware.ProjectFromContext(r.Context()),
		Tag:       q.Get("tag"),
	}

	if t := q.Get("type"); t != "" {
		if !domain.ValidMemoryType(t) {
			return opts, domain.NewValidationError("type", "unknown memory type")
		}
		mt := domain.MemoryType(t)
		opts.Type = &mt
	}

	if t := q.Get("tier"); t != "" {
		if !domain.ValidTier(t) {
			return opts, domain.NewValidationError("tier", "must be hot, warm, cold or archive")
		}
		tier := domain.MemoryTier(t)
		opts.Tier = &tier
	}

	var err error
	if opts.AsOf, err = queryTime(r, "as_of"); err != nil {
		return opts, err
	}
	if opts.IncludeSuperseded, err = queryBool(r, "include_superseded"); err != nil {
		return opts, err
	}
	if opts.IncludeDeleted, err = queryBool(r, "include_deleted"); err != nil {
		return opts, err
	}
	if opts.MinRetention, err = queryFloat(r, "min_retention"); err != nil {
		return opts, err
	}
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		return opts, err
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		return opts, err
	}
	return opts, nil
}

func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req domain.UpdateRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	m, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	permanent, err := queryBool(r, "permanent")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.Delete(r.Context(), id, permanent)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	m, err := h.svc.Recall(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type confirmRequest struct {
	SourceID *uuid.UUID `json:"source_id,omitempty"`
}

func (h *MemoryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req confirmRequest
	if err := decode(r, &req, true); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.Confirm(r.Context(), id, req.SourceID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type contradictRequest struct {
	ContradictingID *uuid.UUID `json:"contradicting_id,omitempty"`
}

func (h *MemoryHandler) Contradict(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req contradictRequest
	if err := decode(r, &req, true); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.svc.Contradict(r.Context(), id, req.ContradictingID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type supersedeRequest struct {
	NewID     uuid.UUID  `json:"new_id"`
	ValidFrom *time.Time `json:"valid_from,omitempty"`
}

// Supersede marks the path memory as replaced by new_id.
func (h *MemoryHandler) Supersede(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req supersedeRequest
	if err := decode(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.NewID == uuid.Nil {
		writeServiceError(w, h.logger, domain.NewValidationError("new_id", "is required"))
		return
	}

	res, err := h.svc.Supersede(r.Context(), id, req.NewID, req.ValidFrom)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MemoryHandler) Scores(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	sm, err := h.svc.Scores(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                   sm.ID,
		"retention":            sm.Retention,
		"effective_confidence": sm.EffectiveConfidence,
		"tier":                 sm.Tier,
	})
}

// Edges lists the edges touching the path memory.
func (h *MemoryHandler) Edges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	query := domain.EdgeQuery{
		MemoryID:     id,
		Direction:    domain.Direction(q.Get("direction")),
		RelationType: q.Get("relation_type"),
	}
	if query.AsOf, err = queryTime(r, "as_of"); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if query.IncludeExpired, err = queryBool(r, "include_expired"); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	edges, err := h.edges.Query(r.Context(), query)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edges": edges, "count": len(edges)})
}
