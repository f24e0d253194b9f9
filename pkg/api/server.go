package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Aeonia-ai/gaia-sub005/pkg/audit"
	"github.com/Aeonia-ai/gaia-sub005/pkg/authz"
	"github.com/Aeonia-ai/gaia-sub005/pkg/httputil"
	"github.com/Aeonia-ai/gaia-sub005/pkg/observability"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server is the HTTP surface of the authorization service.
type Server struct {
	resolver *authz.Resolver
	store    *authz.Store
	registry *authz.Registry
	router   *mux.Router

	auditor        audit.Logger
	auditDecisions bool
	logger         *observability.Logger
	metrics        *observability.Metrics
	tracing        bool
}

// ServerOption configures optional server collaborators.
type ServerOption func(*Server)

// WithAuditor attaches an audit sink. auditDecisions additionally
// records every allow decision; denials and mutations are always
// recorded.
func WithAuditor(auditor audit.Logger, auditDecisions bool) ServerOption {
	return func(s *Server) {
		s.auditor = auditor
		s.auditDecisions = auditDecisions
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *observability.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches Prometheus HTTP metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithTracing wraps the router in OTel HTTP instrumentation.
func WithTracing() ServerOption {
	return func(s *Server) { s.tracing = true }
}

// NewServer creates the API server and registers its routes.
func NewServer(resolver *authz.Resolver, store *authz.Store, registry *authz.Registry, opts ...ServerOption) *Server {
	s := &Server{
		resolver: resolver,
		store:    store,
		registry: registry,
		router:   mux.NewRouter(),
		auditor:  audit.NopLogger{},
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Decision endpoint
	s.router.HandleFunc("/api/v1/authorize", s.authorize).Methods("POST")

	// Role registry
	s.router.HandleFunc("/api/v1/roles", s.listRoles).Methods("GET")

	// Role assignments
	s.router.HandleFunc("/api/v1/assignments", s.grantRole).Methods("POST")
	s.router.HandleFunc("/api/v1/assignments/{id}", s.revokeRole).Methods("DELETE")
	s.router.HandleFunc("/api/v1/users/{userID}/assignments", s.listAssignments).Methods("GET")

	// Resource permissions
	s.router.HandleFunc("/api/v1/permissions", s.addPermission).Methods("POST")
	s.router.HandleFunc("/api/v1/permissions", s.listPermissions).Methods("GET")
	s.router.HandleFunc("/api/v1/permissions/{id}", s.removePermission).Methods("DELETE")

	// Teams
	s.router.HandleFunc("/api/v1/teams", s.createTeam).Methods("POST")
	s.router.HandleFunc("/api/v1/teams/{teamID}", s.getTeam).Methods("GET")
	s.router.HandleFunc("/api/v1/teams/{teamID}/members", s.addMember).Methods("POST")
	s.router.HandleFunc("/api/v1/teams/{teamID}/members", s.listMembers).Methods("GET")
	s.router.HandleFunc("/api/v1/teams/{teamID}/members/{userID}", s.removeMember).Methods("DELETE")
}

// Handler returns the server's handler with middleware applied.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxRequestBody),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, s.metrics.HTTPMetricsMiddleware)
	}

	var handler http.Handler = s.router
	handler = httputil.Chain(middlewares...)(handler)
	if s.tracing {
		handler = otelhttp.NewHandler(handler, "gaia-authz")
	}
	return handler
}

// actorID identifies the administrator performing a mutation. The
// service runs behind the platform gateway, which authenticates the
// caller and forwards their identity.
func actorID(r *http.Request) string {
	if actor := r.Header.Get("X-Actor-ID"); actor != "" {
		return actor
	}
	return "unknown"
}

// recordAudit logs an event, never failing the request over a sink
// error.
func (s *Server) recordAudit(r *http.Request, event *audit.Event) {
	event.RequestID = observability.GetRequestID(r.Context())
	if err := s.auditor.Log(r.Context(), event); err != nil {
		s.logger.WithError(err).Warn("audit sink write failed")
	}
}
