package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// ErrorWriter renders an authentication or throttling failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

// Middleware enforces bearer authentication on API routes.
type Middleware struct {
	verifier      Verifier
	enabled       bool
	publicPaths   map[string]bool
	publicPrefix  []string
	requiredRoles []string
	writeError    ErrorWriter
	logger        *slog.Logger
}

// MiddlewareConfig holds middleware configuration.
type MiddlewareConfig struct {
	// Enabled controls whether auth is enforced
	Enabled bool

	// PublicPaths are exact paths that don't require authentication
	PublicPaths []string

	// PublicPrefixes are path prefixes that don't require authentication
	PublicPrefixes []string

	// RequiredRoles lists roles of which the caller needs at least one
	RequiredRoles []string

	ErrorWriter ErrorWriter
	Logger      *slog.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(verifier Verifier, cfg *MiddlewareConfig) *Middleware {
	if cfg == nil {
		cfg = &MiddlewareConfig{}
	}

	publicPaths := map[string]bool{
		"/health":  true,
		"/healthz": true,
		"/ready":   true,
		"/metrics": true,
	}
	for _, p := range cfg.PublicPaths {
		publicPaths[p] = true
	}

	writeError := cfg.ErrorWriter
	if writeError == nil {
		writeError = defaultErrorWriter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Middleware{
		verifier:      verifier,
		enabled:       cfg.Enabled,
		publicPaths:   publicPaths,
		publicPrefix:  cfg.PublicPrefixes,
		requiredRoles: cfg.RequiredRoles,
		writeError:    writeError,
		logger:        logger,
	}
}

func (m *Middleware) isPublic(path string) bool {
	if m.publicPaths[path] {
		return true
	}
	for _, p := range m.publicPrefix {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handler returns the auth middleware handler.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || m.isPublic(r.URL.Path) || !m.enabled || m.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		token := tokenFromRequest(r)
		if token == "" {
			m.writeError(w, r, http.StatusUnauthorized, "auth_required", "Authentication token is required")
			return
		}

		claims, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.logger.Warn("invalid token",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			m.writeError(w, r, http.StatusUnauthorized, "invalid_token", "Authentication token is invalid or expired")
			return
		}
		if claims.IsExpired() {
			m.writeError(w, r, http.StatusUnauthorized, "invalid_token", "Authentication token is expired")
			return
		}

		if len(m.requiredRoles) > 0 {
			allowed := false
			for _, role := range m.requiredRoles {
				if claims.HasRole(role) {
					allowed = true
					break
				}
			}
			if !allowed {
				m.writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// tokenFromRequest reads the Authorization header, falling back to the
// token query parameter that EventSource and WebSocket clients use.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token := stripBearer(h)
		if token != h {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// Subject returns the authenticated subject, or "" for anonymous callers.
func Subject(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func defaultErrorWriter(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="agentmarket"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
