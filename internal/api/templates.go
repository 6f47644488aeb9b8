package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/flexinfer/agentmarket/internal/catalog"
)

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &catalog.TemplateListOptions{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}
	if v := q.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			h.respondError(w, r, http.StatusBadRequest, "featured must be a boolean", err)
			return
		}
		opts.Featured = &featured
	}

	templates := h.templates.List(opts)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

// GetTemplate handles GET /api/v1/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.templates.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, "failed to get template", err)
		return
	}
	h.respondJSON(w, http.StatusOK, tpl)
}

// InstantiateTemplate handles POST /api/v1/templates/{id}/graph. It returns
// an editor graph and a suggested workflow name; nothing is stored.
func (h *Handlers) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.templates.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, "failed to get template", err)
		return
	}
	graph, err := catalog.Instantiate(r.Context(), h.catalog, tpl)
	if err != nil {
		h.respondDomainError(w, r, "failed to instantiate template", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"template_id": tpl.ID,
		"name":        tpl.Title,
		"graph":       graph,
	})
}
