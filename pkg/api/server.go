package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/directory"
	"github.com/platinummonkey/orgscope/pkg/grants"
	"github.com/platinummonkey/orgscope/pkg/hierarchy"
	"github.com/platinummonkey/orgscope/pkg/observability"
	"github.com/platinummonkey/orgscope/pkg/scope"
)

// AuditSearcher finds persisted audit events. *audit.DBLogger implements it.
// The search route is only registered when a searcher is provided.
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.AuditEvent, error)
}

// Server represents the orgscope API server
type Server struct {
	nodes       *hierarchy.Store
	grants      *grants.Store
	users       *directory.Store
	query       *directory.Service
	resolver    *scope.Resolver
	audit       audit.Logger
	auditSearch AuditSearcher
	logger      *observability.Logger
	router      *mux.Router
}

// NewServer creates a new API server. The stores are built over db; the
// resolver is injected because its cache configuration belongs to the caller.
// auditSearch may be nil, which leaves the audit search route unregistered.
func NewServer(db *sql.DB, resolver *scope.Resolver, auditLog audit.Logger, auditSearch AuditSearcher, logger *observability.Logger) *Server {
	if auditLog == nil {
		auditLog = audit.NopLogger()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		nodes:       hierarchy.NewStore(db),
		grants:      grants.NewStore(db),
		users:       directory.NewStore(db),
		query:       directory.NewService(db),
		resolver:    resolver,
		audit:       auditLog,
		auditSearch: auditSearch,
		logger:      logger,
		router:      mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	r := s.router.PathPrefix("/api/v1").Subrouter()

	// Hierarchy routes
	r.HandleFunc("/nodes", s.createNode).Methods("POST")
	r.HandleFunc("/nodes/{id}", s.getNode).Methods("GET")
	r.HandleFunc("/nodes/{id}", s.updateNode).Methods("PUT")
	r.HandleFunc("/nodes/{id}", s.deleteNode).Methods("DELETE")
	r.HandleFunc("/nodes/{id}/move", s.moveNode).Methods("POST")
	r.HandleFunc("/nodes/{id}/restore", s.restoreNode).Methods("POST")
	r.HandleFunc("/nodes/{id}/children", s.listChildren).Methods("GET")
	r.HandleFunc("/nodes/{id}/ancestors", s.listAncestors).Methods("GET")
	r.HandleFunc("/nodes/{id}/descendants", s.listDescendants).Methods("GET")
	r.HandleFunc("/nodes/{id}/siblings", s.listSiblings).Methods("GET")
	r.HandleFunc("/tree", s.getTree).Methods("GET")
	r.HandleFunc("/hierarchy/integrity", s.integrityReport).Methods("GET")

	// Grant routes
	r.HandleFunc("/grants", s.createGrant).Methods("POST")
	r.HandleFunc("/grants", s.listGrants).Methods("GET")
	r.HandleFunc("/grants/{id}", s.getGrant).Methods("GET")
	r.HandleFunc("/grants/{id}", s.updateGrant).Methods("PATCH")
	r.HandleFunc("/grants/{id}", s.revokeGrant).Methods("DELETE")

	// Scope and access routes
	r.HandleFunc("/scope", s.getScope).Methods("GET")
	r.HandleFunc("/access/check", s.checkAccess).Methods("GET")

	// Directory routes
	r.HandleFunc("/directory/users", s.queryUsers).Methods("GET")
	r.HandleFunc("/directory/users", s.createUser).Methods("POST")
	r.HandleFunc("/directory/users/{id}", s.getUser).Methods("GET")
	r.HandleFunc("/directory/users/{id}", s.updateUser).Methods("PATCH")

	// Audit routes (if a searcher is available)
	if s.auditSearch != nil {
		r.HandleFunc("/audit/events", s.listAuditEvents).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// auditError records an audit-sink write failure. A mutation that already
// committed is not rolled back because its audit write failed.
func (s *Server) auditError(err error) {
	if err != nil {
		s.logger.WithError(err).Warn("audit write failed")
	}
}
