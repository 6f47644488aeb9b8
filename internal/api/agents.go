package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/flexinfer/agentmarket/internal/catalog"
)

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &catalog.ListOptions{
		Category: q.Get("category"),
		Query:    q.Get("q"),
	}
	if v := q.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			h.respondError(w, r, http.StatusBadRequest, "featured must be a boolean", err)
			return
		}
		opts.Featured = &featured
	}
	var err error
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid limit", err)
		return
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid offset", err)
		return
	}

	agents, err := h.catalog.List(r.Context(), opts)
	if err != nil {
		h.respondDomainError(w, r, "failed to list agents", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"agents": agents,
		"count":  len(agents),
	})
}

// ListCategories handles GET /api/v1/agents/categories
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.respondDomainError(w, r, "failed to list categories", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// GetAgent handles GET /api/v1/agents/{id}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.catalog.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, "failed to get agent", err)
		return
	}
	h.respondJSON(w, http.StatusOK, agent)
}

// CreateAgent handles POST /api/v1/agents
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if h.validator != nil {
		if result := h.validator.ValidateAgentJSON(body); !result.Valid {
			writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "agent failed validation",
				map[string]interface{}{"errors": result.Errors})
			return
		}
	}

	var req catalog.CreateAgentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	agent, err := h.catalog.Create(r.Context(), &req)
	if err != nil {
		h.respondDomainError(w, r, "failed to create agent", err)
		return
	}
	h.logger.Info("agent listed", "agent_id", agent.ID, "category", agent.Category)
	h.respondJSON(w, http.StatusCreated, agent)
}

// UpdateAgent handles PUT /api/v1/agents/{id}
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req catalog.UpdateAgentRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	if req.Rating != nil && (*req.Rating < 0 || *req.Rating > 5) {
		h.respondError(w, r, http.StatusBadRequest, "agent rating must be between 0 and 5", nil)
		return
	}
	if req.Price != nil && *req.Price < 0 {
		h.respondError(w, r, http.StatusBadRequest, "agent price must not be negative", nil)
		return
	}

	agent, err := h.catalog.Update(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.respondDomainError(w, r, "failed to update agent", err)
		return
	}
	h.respondJSON(w, http.StatusOK, agent)
}

// DeleteAgent handles DELETE /api/v1/agents/{id}
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondDomainError(w, r, "failed to delete agent", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckCompatibility handles GET /api/v1/agents/compatibility/{from}/{to}
func (h *Handlers) CheckCompatibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	from, err := h.catalog.Get(ctx, vars["from"])
	if err != nil {
		h.respondDomainError(w, r, "failed to get agent", err)
		return
	}
	to, err := h.catalog.Get(ctx, vars["to"])
	if err != nil {
		h.respondDomainError(w, r, "failed to get agent", err)
		return
	}
	h.respondJSON(w, http.StatusOK, catalog.CheckCompatibility(from, to))
}

// ValidateAgent handles POST /api/v1/agents/validate
func (h *Handlers) ValidateAgent(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if h.validator == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "validator not available", errors.New("validator not configured"))
		return
	}
	h.respondJSON(w, http.StatusOK, h.validator.ValidateAgentJSON(body))
}

func (h *Handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, r, http.StatusRequestEntityTooLarge, "request body too large", err)
			return nil, false
		}
		h.respondError(w, r, http.StatusBadRequest, "failed to read request body", err)
		return nil, false
	}
	return body, true
}
