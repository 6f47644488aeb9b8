package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flexinfer/agentmarket/internal/attachments"
	"github.com/flexinfer/agentmarket/internal/auth"
	"github.com/flexinfer/agentmarket/internal/catalog"
	"github.com/flexinfer/agentmarket/internal/execution"
	"github.com/flexinfer/agentmarket/internal/session"
	"github.com/flexinfer/agentmarket/pkg/types"
)

// maxMultipartMemory is how much of a multipart form is held in memory.
const maxMultipartMemory = 8 << 20

// SessionView is a session with its current run state.
type SessionView struct {
	session.Info
	State types.RunState `json:"state"`
}

// StartSessionRequest starts a run from exactly one of an inline graph, a
// saved workflow, or a template.
type StartSessionRequest struct {
	Graph      *types.Graph `json:"graph,omitempty"`
	WorkflowID string       `json:"workflow_id,omitempty"`
	TemplateID string       `json:"template_id,omitempty"`
}

// SubmitInputRequest answers the open prompt.
type SubmitInputRequest struct {
	PromptID string `json:"prompt_id,omitempty"`
	Text     string `json:"text"`
}

// SubmitInputResponse reports the accepted submission.
type SubmitInputResponse struct {
	Index       int                  `json:"index"`
	FileCount   int                  `json:"file_count"`
	Attachments []*types.ArtifactRef `json:"attachments,omitempty"`
	State       types.RunState       `json:"state"`
}

func (h *Handlers) view(ctx context.Context, s *session.Session) SessionView {
	st := s.Machine.State()
	st.CurrentAgent = s.Machine.CurrentAgent(ctx)
	return SessionView{Info: s.Info(), State: st}
}

// session loads the session named in the route, writing 404 when missing.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, "failed to get session", err)
		return nil, false
	}
	if sub := auth.Subject(r.Context()); sub != "" && s.Owner != "" && s.Owner != sub {
		h.respondError(w, r, http.StatusNotFound, session.ErrSessionNotFound.Error(), session.ErrSessionNotFound)
		return nil, false
	}
	return s, true
}

// CreateSession handles POST /api/v1/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context(), auth.Subject(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, "failed to create session", err)
		return
	}
	w.Header().Set("Location", "/api/v1/sessions/"+s.ID)
	h.respondJSON(w, http.StatusCreated, h.view(r.Context(), s))
}

// ListSessions handles GET /api/v1/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.List(r.Context(), auth.Subject(r.Context()))
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": infos,
		"count":    len(infos),
	})
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, h.view(r.Context(), s))
}

// DeleteSession handles DELETE /api/v1/sessions/{id}
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(r.Context(), s.ID); err != nil {
		h.respondDomainError(w, r, "failed to delete session", err)
		return
	}
	if err := h.attachments.DeletePrefix(r.Context(), attachments.SessionPrefix(s.ID)); err != nil {
		h.logger.Warn("failed to remove session attachments", "session_id", s.ID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartSession handles POST /api/v1/sessions/{id}/start
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req StartSessionRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}

	sources := 0
	for _, set := range []bool{req.Graph != nil, req.WorkflowID != "", req.TemplateID != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		h.respondError(w, r, http.StatusBadRequest, "provide only one of graph, workflow_id, or template_id", nil)
		return
	}

	graph := req.Graph
	switch {
	case req.WorkflowID != "":
		flow, err := h.flows.Get(ctx, req.WorkflowID)
		if err != nil {
			h.respondDomainError(w, r, "failed to load workflow", err)
			return
		}
		graph = &flow.Graph
	case req.TemplateID != "":
		tpl, err := h.templates.Get(req.TemplateID)
		if err != nil {
			h.respondDomainError(w, r, "failed to load template", err)
			return
		}
		if graph, err = catalog.Instantiate(ctx, h.catalog, tpl); err != nil {
			h.respondDomainError(w, r, "failed to instantiate template", err)
			return
		}
	case graph == nil:
		h.respondError(w, r, http.StatusBadRequest, "graph, workflow_id, or template_id is required", nil)
		return
	}

	if graph.IsEmpty() {
		s.Notify(ctx, &types.EventInput{
			Type: types.EventTypeWarning,
			Data: types.WarningEvent{Code: "empty_workflow", Message: execution.ErrEmptyWorkflow.Error()},
		})
		h.respondDomainError(w, r, "workflow is empty", execution.ErrEmptyWorkflow)
		return
	}

	seq, err := s.Machine.Start(ctx, graph)
	if err != nil {
		h.respondDomainError(w, r, "failed to start run", err)
		return
	}

	if req.WorkflowID != "" {
		if err := h.flows.MarkRun(ctx, req.WorkflowID, time.Now()); err != nil {
			h.logger.Warn("failed to record workflow run", "workflow_id", req.WorkflowID, "error", err)
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.ID,
		"sequence":   seq,
		"state":      h.view(ctx, s).State,
		"events_url": "/api/v1/sessions/" + s.ID + "/events",
	})
}

// GetPrompt handles GET /api/v1/sessions/{id}/prompt
func (h *Handlers) GetPrompt(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	p, open := s.Machine.Prompt()
	if !open {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.respondJSON(w, http.StatusOK, p)
}

// CancelPrompt handles DELETE /api/v1/sessions/{id}/prompt. Dismissing the
// prompt stops the run.
func (h *Handlers) CancelPrompt(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Machine.CancelPrompt(r.Context(), r.URL.Query().Get("prompt_id")); err != nil {
		h.respondDomainError(w, r, "failed to cancel prompt", err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.view(r.Context(), s))
}

// SubmitInput handles POST /api/v1/sessions/{id}/input. It accepts JSON, or
// multipart/form-data with "text", "prompt_id" and any number of "files".
func (h *Handlers) SubmitInput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	prompt, open := s.Machine.Prompt()
	if !open {
		h.respondDomainError(w, r, "no prompt is open", execution.ErrNotAwaitingInput)
		return
	}

	var (
		req   SubmitInputRequest
		files []*multipart.FileHeader
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload*8+maxJSONBody)
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			h.respondError(w, r, http.StatusBadRequest, "invalid multipart form", err)
			return
		}
		req.Text = r.FormValue("text")
		req.PromptID = r.FormValue("prompt_id")
		files = r.MultipartForm.File["files"]
	} else if !h.decodeJSON(w, r, &req, false) {
		return
	}

	if req.PromptID != "" && req.PromptID != prompt.ID {
		h.respondDomainError(w, r, "stale prompt", execution.ErrStalePrompt)
		return
	}

	refs, err := h.storeFiles(ctx, s.ID, prompt.Index, files)
	if err != nil {
		var tooLarge *fileTooLargeError
		if errors.As(err, &tooLarge) {
			h.respondError(w, r, http.StatusRequestEntityTooLarge, err.Error(), err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to store attachments", err)
		return
	}

	err = s.Machine.SubmitInput(ctx, execution.Submission{
		PromptID: prompt.ID,
		Text:     req.Text,
		Files:    refs,
	})
	if err != nil {
		for _, ref := range refs {
			_ = h.attachments.Delete(ctx, ref)
		}
		h.respondDomainError(w, r, "failed to submit input", err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, SubmitInputResponse{
		Index:       prompt.Index,
		FileCount:   len(refs),
		Attachments: refs,
		State:       h.view(ctx, s).State,
	})
}

type fileTooLargeError struct {
	name  string
	limit int64
}

func (e *fileTooLargeError) Error() string {
	return fmt.Sprintf("file %q exceeds the %d byte upload limit", e.name, e.limit)
}

func (h *Handlers) storeFiles(ctx context.Context, sessionID string, index int, headers []*multipart.FileHeader) ([]*types.ArtifactRef, error) {
	if len(headers) == 0 {
		return nil, nil
	}

	files := make([]attachments.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxUpload {
			return nil, &fileTooLargeError{name: fh.Filename, limit: h.maxUpload}
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		files = append(files, attachments.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        f,
		})
	}
	return attachments.SaveAll(ctx, h.attachments, sessionID, index, files)
}

// stepAction adapts a machine step operation into a handler.
func (h *Handlers) stepAction(name string, op func(*execution.Machine, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.session(w, r)
		if !ok {
			return
		}
		if err := op(s.Machine, r.Context()); err != nil {
			h.respondDomainError(w, r, "failed to "+name, err)
			return
		}
		h.respondJSON(w, http.StatusOK, h.view(r.Context(), s))
	}
}

// Continue handles POST /api/v1/sessions/{id}/continue
func (h *Handlers) Continue(w http.ResponseWriter, r *http.Request) {
	h.stepAction("continue", (*execution.Machine).Continue)(w, r)
}

// Modify handles POST /api/v1/sessions/{id}/modify
func (h *Handlers) Modify(w http.ResponseWriter, r *http.Request) {
	h.stepAction("modify", (*execution.Machine).Modify)(w, r)
}

// GoBack handles POST /api/v1/sessions/{id}/back
func (h *Handlers) GoBack(w http.ResponseWriter, r *http.Request) {
	h.stepAction("go back", (*execution.Machine).GoBack)(w, r)
}

// StopSession handles POST /api/v1/sessions/{id}/stop
func (h *Handlers) StopSession(w http.ResponseWriter, r *http.Request) {
	h.stepAction("stop", func(m *execution.Machine, ctx context.Context) error {
		m.Stop(ctx)
		return nil
	})(w, r)
}
