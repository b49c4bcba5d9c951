// Package httpapi exposes the workspaces, collections and exports over a JSON
// HTTP API.
package httpapi

import (
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"molluscadb/internal/auth"
	"molluscadb/internal/blob"
	"molluscadb/internal/core"
	"molluscadb/internal/csvimport"
	"molluscadb/internal/observability"
	"molluscadb/internal/workspace"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const (
	apiPrefix          = "/api/v1"
	defaultSyncTimeout = 2 * time.Second
	maxUploadBytes     = 32 << 20
)

// Server routes API requests to the signed-in identity's workspace.
type Server struct {
	echo        *echo.Echo
	svc         *core.Service
	manager     *workspace.Manager
	provider    auth.Provider
	sessions    *auth.Sessions
	archive     *blob.Archive
	audit       *core.AuditLog
	metrics     *observability.Metrics
	importer    *csvimport.Importer
	logger      core.Logger
	syncTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithArchive enables archiving of exports.
func WithArchive(a *blob.Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithMetrics records export counts and serves /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request and error logger.
func WithLogger(l core.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAudit serves recent store operations from log.
func WithAudit(log *core.AuditLog) Option {
	return func(s *Server) { s.audit = log }
}

// WithSyncTimeout bounds how long a read waits for pending snapshots.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// New wires the routes.
func New(svc *core.Service, manager *workspace.Manager, provider auth.Provider, sessions *auth.Sessions, opts ...Option) *Server {
	s := &Server{
		echo:        echo.New(),
		svc:         svc,
		manager:     manager,
		provider:    provider,
		sessions:    sessions,
		logger:      slog.New(slog.DiscardHandler),
		syncTimeout: defaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	var importOpts []csvimport.Option
	if s.metrics != nil {
		importOpts = append(importOpts, csvimport.WithRowRecorder(s.metrics))
	}
	s.importer = csvimport.New(svc, s.logger, importOpts...)

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			s.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	e := s.echo
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	e.GET("/debug/vars", echo.WrapHandler(expvar.Handler()))

	api := e.Group(apiPrefix)
	api.POST("/session", s.signIn)
	api.DELETE("/session", s.signOut)

	authed := api.Group("", s.requireSession)
	authed.GET("/session", s.whoAmI)

	authed.GET("/collections/:c", s.listCollection)
	authed.POST("/collections/:c", s.submitForm)
	authed.GET("/collections/:c/form", s.formState)
	authed.POST("/collections/:c/blur", s.blurForm)
	authed.GET("/collections/:c/:key", s.getRecord)
	authed.PATCH("/collections/:c/:key", s.updateRecord)
	authed.PUT("/collections/:c/:key", s.replaceRecord)
	authed.DELETE("/collections/:c/:key", s.deleteRecord)

	authed.GET("/views", s.listViews)
	authed.GET("/views/:v", s.viewState)
	authed.POST("/views/:v/cells", s.editCell)
	authed.POST("/views/:v/confirm", s.confirmEdit)
	authed.POST("/views/:v/cancel", s.cancelEdit)
	authed.POST("/views/:v/revert", s.revertEdit)
	authed.POST("/views/:v/filters", s.setFilters)
	authed.GET("/views/:v/facets/:column", s.facets)
	authed.POST("/views/:v/search", s.searchOptions)
	authed.POST("/views/:v/sort", s.toggleSort)
	authed.POST("/views/:v/selection", s.setSelection)
	authed.POST("/views/:v/columns", s.layoutColumn)
	authed.POST("/views/:v/fields", s.addField)
	authed.GET("/views/:v/export", s.export)

	authed.GET("/extractions/:key/group", s.groupMembers)
	authed.POST("/extractions/:key/group", s.linkGroup)
	authed.GET("/extractions/:key/group/candidates", s.groupCandidates)
	authed.DELETE("/extractions/:key/group/:member", s.unlinkGroup)

	authed.GET("/notifications", s.notifications)
	authed.GET("/audit", s.recentAudit)
	authed.POST("/import/:c", s.importCSV)
	authed.GET("/exports", s.listExports)
	authed.GET("/exports/*", s.downloadExport)
}
