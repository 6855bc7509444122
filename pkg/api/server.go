package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formloft/formloft/pkg/authz"
	"github.com/formloft/formloft/pkg/middleware"
	"github.com/formloft/formloft/pkg/observability"
)

// Server wires handlers to routes.
type Server struct {
	db      *sql.DB
	cache   *authz.Cache
	store   *authz.Store
	handler *authz.PermissionHandler
	logger  *observability.Logger
}

// NewServer creates an API server.
func NewServer(db *sql.DB, cache *authz.Cache, store *authz.Store, handler *authz.PermissionHandler, logger *observability.Logger) *Server {
	return &Server{
		db:      db,
		cache:   cache,
		store:   store,
		handler: handler,
		logger:  logger,
	}
}

// RegisterRoutes registers all routes on the router. The router is
// expected to already carry the authentication middleware; per-route
// permission requirements are attached here.
func (s *Server) RegisterRoutes(router *mux.Router) {
	forms := NewFormHandlers(s.db, s.logger)
	admin := NewAdminHandlers(s.cache, s.store, s.logger)

	router.Handle("/forms",
		s.require(http.HandlerFunc(forms.listForms), "forms.view")).Methods("GET")
	router.Handle("/forms",
		s.require(http.HandlerFunc(forms.createForm), "forms.create")).Methods("POST")
	router.Handle("/forms/{id}",
		s.require(http.HandlerFunc(forms.getForm), "forms.view", "forms.view.owned")).Methods("GET")
	router.Handle("/forms/{id}",
		s.require(http.HandlerFunc(forms.updateForm), "forms.edit", "forms.edit.owned")).Methods("PATCH")

	router.Handle("/submissions/{id}",
		s.require(http.HandlerFunc(forms.getSubmission), "submissions.view", "submissions.view.owned")).Methods("GET")
	router.Handle("/submissions/{id}",
		s.require(http.HandlerFunc(forms.updateSubmission), "submissions.edit", "submissions.edit.owned")).Methods("PATCH")

	router.Handle("/admin/cache/flush",
		s.require(http.HandlerFunc(admin.flushCache), "admin.cache.flush")).Methods("POST")
	router.Handle("/users/{id}/roles",
		s.require(http.HandlerFunc(admin.assignRole), "admin.roles.manage")).Methods("POST")
	router.Handle("/users/{id}/roles/{role}",
		s.require(http.HandlerFunc(admin.revokeRole), "admin.roles.manage")).Methods("DELETE")
}

func (s *Server) require(next http.Handler, permissions ...string) http.Handler {
	return middleware.RequirePermissions(s.handler, permissions...)(next)
}
