package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router     *mux.Router
	handlers   *Handlers
	middleware []mux.MiddlewareFunc
}

// NewServer creates a new API server with the given handlers. Extra
// middleware (authentication, rate limiting) runs inside the built-in chain,
// in the order given.
func NewServer(h *Handlers, extra ...mux.MiddlewareFunc) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	s.middleware = append([]mux.MiddlewareFunc{
		h.RequestIDMiddleware,
		h.RecoveryMiddleware,
		h.LoggingMiddleware,
		h.SecurityHeadersMiddleware,
		h.CORSMiddleware,
	}, extra...)
	s.setupRoutes()
	return s
}

// Router returns the configured handler for use with http.Server. The
// middleware wraps the whole router so preflight requests and unmatched
// routes pass through it too.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.router
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	return handler
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, r, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed", nil)
	})

	// Health endpoints
	s.router.HandleFunc("/health", h.Health).Methods("GET")
	s.router.HandleFunc("/healthz", h.Health).Methods("GET")
	s.router.HandleFunc("/ready", h.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Agent catalog. Fixed paths first so they are not taken as ids.
	api.HandleFunc("/agents", h.ListAgents).Methods("GET")
	api.HandleFunc("/agents", h.CreateAgent).Methods("POST")
	api.HandleFunc("/agents/categories", h.ListCategories).Methods("GET")
	api.HandleFunc("/agents/validate", h.ValidateAgent).Methods("POST")
	api.HandleFunc("/agents/compatibility/{from}/{to}", h.CheckCompatibility).Methods("GET")
	api.HandleFunc("/agents/{id}", h.GetAgent).Methods("GET")
	api.HandleFunc("/agents/{id}", h.UpdateAgent).Methods("PUT")
	api.HandleFunc("/agents/{id}", h.DeleteAgent).Methods("DELETE")

	// Template gallery
	api.HandleFunc("/templates", h.ListTemplates).Methods("GET")
	api.HandleFunc("/templates/{id}", h.GetTemplate).Methods("GET")
	api.HandleFunc("/templates/{id}/graph", h.InstantiateTemplate).Methods("POST")

	// Saved workflows
	api.HandleFunc("/workflows", h.ListWorkflows).Methods("GET")
	api.HandleFunc("/workflows", h.CreateWorkflow).Methods("POST")
	api.HandleFunc("/workflows/validate", h.ValidateWorkflow).Methods("POST")
	api.HandleFunc("/workflows/{id}", h.GetWorkflow).Methods("GET")
	api.HandleFunc("/workflows/{id}", h.UpdateWorkflow).Methods("PUT")
	api.HandleFunc("/workflows/{id}", h.DeleteWorkflow).Methods("DELETE")
	api.HandleFunc("/workflows/{id}/favorite", h.ToggleFavorite).Methods("POST")

	// Sessions and their runs
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/start", h.StartSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/prompt", h.GetPrompt).Methods("GET")
	api.HandleFunc("/sessions/{id}/prompt", h.CancelPrompt).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/input", h.SubmitInput).Methods("POST")
	api.HandleFunc("/sessions/{id}/continue", h.Continue).Methods("POST")
	api.HandleFunc("/sessions/{id}/modify", h.Modify).Methods("POST")
	api.HandleFunc("/sessions/{id}/back", h.GoBack).Methods("POST")
	api.HandleFunc("/sessions/{id}/stop", h.StopSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/events", h.StreamEvents).Methods("GET")
	api.HandleFunc("/sessions/{id}/ws", h.ServeWS).Methods("GET")
}
