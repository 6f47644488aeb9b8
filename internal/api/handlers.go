// Package api provides HTTP handlers and routing for the marketplace service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flexinfer/agentmarket/internal/attachments"
	"github.com/flexinfer/agentmarket/internal/catalog"
	"github.com/flexinfer/agentmarket/internal/config"
	"github.com/flexinfer/agentmarket/internal/flowstore"
	"github.com/flexinfer/agentmarket/internal/session"
	"github.com/flexinfer/agentmarket/internal/validator"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// Deps are the backends the handlers serve.
type Deps struct {
	Catalog     catalog.Catalog
	Templates   *catalog.TemplateSet
	Flows       flowstore.FlowStore
	Sessions    *session.Manager
	Attachments attachments.Store
	Validator   *validator.Validator
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	catalog     catalog.Catalog
	templates   *catalog.TemplateSet
	flows       flowstore.FlowStore
	sessions    *session.Manager
	attachments attachments.Store
	validator   *validator.Validator
	config      *config.Config
	logger      *slog.Logger

	maxUpload int64
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Load()
	}
	if deps.Attachments == nil {
		deps.Attachments = attachments.NewMemoryStore()
	}
	if deps.Templates == nil {
		deps.Templates = catalog.NewTemplateSet(catalog.DefaultTemplates())
	}
	maxUpload := cfg.AttachmentMaxSize
	if maxUpload <= 0 {
		maxUpload = attachments.DefaultMaxSize
	}
	return &Handlers{
		catalog:     deps.Catalog,
		templates:   deps.Templates,
		flows:       deps.Flows,
		sessions:    deps.Sessions,
		attachments: deps.Attachments,
		validator:   deps.Validator,
		config:      cfg,
		logger:      logger,
		maxUpload:   maxUpload,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking dependencies.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.catalog.Exists(ctx, "_ready"); err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "catalog unavailable", err)
		return
	}
	if _, err := h.flows.List(ctx, &flowstore.ListOptions{Limit: 1}); err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "workflow store unavailable", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"sessions": h.sessions.Count(),
	})
}

// --- Helper Methods ---

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// respondError writes the error envelope. Server errors are logged; the
// underlying error is only exposed for client errors.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	var details map[string]interface{}
	if status >= 500 {
		h.logger.Error(message,
			slog.String("request_id", GetRequestID(r.Context(), r)),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	} else if err != nil {
		details = map[string]interface{}{"reason": err.Error()}
	}
	writeErrorResponse(w, r, status, HTTPStatusToErrorCode(status), message, details)
}

// respondDomainError maps a store or machine error to a response.
func (h *Handlers) respondDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusForError(err)
	if status < 500 {
		message = err.Error()
	}
	h.respondError(w, r, status, message, err)
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.respondError(w, r, http.StatusRequestEntityTooLarge, "request body too large", err)
		return false
	}
	h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
	return false
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
