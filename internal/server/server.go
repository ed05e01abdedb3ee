package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"kvedit/internal/api"
	"kvedit/internal/config"
	"kvedit/internal/dashboard"
	"kvedit/internal/history"
	"kvedit/internal/kvstore"
	"kvedit/internal/logging"
	"kvedit/internal/services"
	"kvedit/internal/snapshot"
	"kvedit/internal/table"
	"kvedit/internal/upload"
)

// Store is the read side of the KV Store client the server uses.
type Store interface {
	table.Source
	GetEntry(ctx context.Context, collection, key string) (kvstore.Record, error)
}

// Options configures a Server. History, Snapshots and Metrics are optional.
// Bridge should be the bridge the write service refreshes through; the
// server's refresh button shares the hub with it.
type Options struct {
	Config    *config.Config
	Service   *upload.Service
	Store     Store
	Hub       *dashboard.Hub
	Bridge    *dashboard.Bridge
	History   *history.Store
	Snapshots *snapshot.Manager
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Server is the HTTP surface of kvedit.
type Server struct {
	cfg       *config.Config
	svc       *upload.Service
	store     Store
	hub       *dashboard.Hub
	bridge    *dashboard.Bridge
	button    *dashboard.RefreshButton
	history   *history.Store
	snapshots *snapshot.Manager
	metrics   *Metrics
	logger    *slog.Logger

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Service == nil || opts.Store == nil {
		return nil, errors.New("server: config, service and store are required")
	}
	hub := opts.Hub
	if hub == nil {
		hub = dashboard.NewHub(opts.Logger, opts.Config.Dashboard.AllowedOrigins...)
	}
	bridge := opts.Bridge
	if bridge == nil {
		bridge = dashboard.NewBridge(nil)
	}
	s := &Server{
		cfg:       opts.Config,
		svc:       opts.Service,
		store:     opts.Store,
		hub:       hub,
		bridge:    bridge,
		button:    dashboard.NewRefreshButton(bridge, hub, opts.Config.Dashboard.VisualizationID, true),
		history:   opts.History,
		snapshots: opts.Snapshots,
		metrics:   opts.Metrics,
		logger:    logging.NewComponentLogger(opts.Logger, "api-server"),
	}

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.instrument(name, authMiddleware(s.cfg.Paths.APIToken, false, h)))
	}
	route("GET /api/status", "status", s.handleStatus)
	route("GET /api/table", "table", s.handleTable)
	route("POST /api/table/cell-click", "cell_click", s.handleCellClick)
	route("GET /api/rows/{key}", "row_get", s.handleGetRow)
	route("POST /api/rows/{key}", "row_edit", s.handleEditRow)
	route("GET /api/export.csv", "export", s.handleExport)
	route("POST /api/upload", "upload", s.handleUpload)
	route("POST /api/backup", "backup", s.handleBackup)
	route("POST /api/restore", "restore", s.handleRestore)
	route("GET /api/snapshots", "snapshots", s.handleSnapshots)
	route("POST /api/snapshots/{name}/restore", "snapshot_restore", s.handleSnapshotRestore)
	route("GET /api/history", "history", s.handleHistory)
	route("POST /api/visualizations/{id}/refresh", "refresh", s.handleRefresh)
	mux.Handle("GET /api/events", s.metrics.instrument("events", authMiddleware(s.cfg.Paths.APIToken, true, s.hub.Handler())))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.handler = s.withRequestID(withCORS(dashboard.Origins(s.cfg.Dashboard.AllowedOrigins), mux))

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("server: paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, err error, fallback string) {
	banner := dashboard.Error(upload.MessageOf(err, fallback))
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Banner: &banner})
}

// writeRun reports a write run. The status code follows its outcome.
func (s *Server) writeRun(w http.ResponseWriter, res upload.Result, err error) {
	s.metrics.ObserveRun(res)
	status := http.StatusOK
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConflict):
			status = http.StatusConflict
		case res.Outcome == services.OutcomeRejected:
			status = http.StatusUnprocessableEntity
		case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrNotFound):
			status = http.StatusBadRequest
		default:
			status = http.StatusBadGateway
		}
	}
	s.writeJSON(w, status, api.FromResult(res))
}
