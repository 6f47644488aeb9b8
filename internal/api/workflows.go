package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flexinfer/agentmarket/internal/auth"
	"github.com/flexinfer/agentmarket/internal/flowstore"
	"github.com/flexinfer/agentmarket/pkg/types"
)

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &flowstore.ListOptions{
		CreatedBy:     q.Get("created_by"),
		Category:      q.Get("category"),
		Status:        flowstore.Status(q.Get("status")),
		FavoritesOnly: q.Get("favorites") == "true",
	}
	if opts.Status != "" && !opts.Status.Valid() {
		h.respondError(w, r, http.StatusBadRequest, "invalid status filter", nil)
		return
	}
	if q.Get("mine") == "true" {
		opts.CreatedBy = auth.Subject(r.Context())
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

	flows, err := h.flows.List(r.Context(), opts)
	if err != nil {
		h.respondDomainError(w, r, "failed to list workflows", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": flows,
		"count":     len(flows),
	})
}

// GetWorkflow handles GET /api/v1/workflows/{id}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, "failed to get workflow", err)
		return
	}
	h.respondJSON(w, http.StatusOK, flow)
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req flowstore.CreateFlowRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	if !h.checkGraph(w, r, req.Graph) {
		return
	}
	if sub := auth.Subject(r.Context()); sub != "" {
		req.CreatedBy = sub
	}

	flow, err := h.flows.Create(r.Context(), &req)
	if err != nil {
		h.respondDomainError(w, r, "failed to create workflow", err)
		return
	}
	h.logger.Info("workflow saved", "workflow_id", flow.ID, "nodes", len(flow.Graph.Nodes))
	h.respondJSON(w, http.StatusCreated, flow)
}

// UpdateWorkflow handles PUT /api/v1/workflows/{id}
func (h *Handlers) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req flowstore.UpdateFlowRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	if req.Graph != nil && !h.checkGraph(w, r, req.Graph) {
		return
	}

	flow, err := h.flows.Update(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.respondDomainError(w, r, "failed to update workflow", err)
		return
	}
	h.respondJSON(w, http.StatusOK, flow)
}

// DeleteWorkflow handles DELETE /api/v1/workflows/{id}
func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.flows.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondDomainError(w, r, "failed to delete workflow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFavorite handles POST /api/v1/workflows/{id}/favorite
func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.ToggleFavorite(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, "failed to toggle favorite", err)
		return
	}
	h.respondJSON(w, http.StatusOK, flow)
}

// ValidateWorkflow handles POST /api/v1/workflows/validate. The body is a
// graph, or an object with a "graph" field.
func (h *Handlers) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if h.validator == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "validator not available", errors.New("validator not configured"))
		return
	}

	var wrapper struct {
		Graph json.RawMessage `json:"graph"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Graph) > 0 {
		body = wrapper.Graph
	}
	h.respondJSON(w, http.StatusOK, h.validator.ValidateGraphJSON(body))
}

// checkGraph runs schema validation on a decoded graph.
func (h *Handlers) checkGraph(w http.ResponseWriter, r *http.Request, g *types.Graph) bool {
	if h.validator == nil || g == nil {
		return true
	}
	// Clone allocates empty slices so missing lists encode as [].
	data, err := json.Marshal(g.Clone())
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid graph", err)
		return false
	}
	if result := h.validator.ValidateGraphJSON(data); !result.Valid {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "graph failed validation",
			map[string]interface{}{"errors": result.Errors})
		return false
	}
	return true
}
