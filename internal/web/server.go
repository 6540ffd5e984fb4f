package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"ForceView/internal/auth"
	"ForceView/internal/backend"
	"ForceView/internal/model"
	"ForceView/internal/repo"
	"ForceView/internal/run"
	"ForceView/internal/subcase"
	"ForceView/internal/table"
	"ForceView/internal/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// DefaultMaxUpload bounds one upload request.
const DefaultMaxUpload = 4 << 30

type Deps struct {
	Backend   *backend.Client
	Runs      *run.Controller
	History   repo.RunRepository
	Auth      *auth.Authenv
	Limiter   *auth.IPRateLimiter
	Logger    zerolog.Logger
	MaxUpload int64
	// BaseContext outlives requests; progress animations run under it.
	BaseContext context.Context
}

// Server renders the pages and serves the action endpoints.
type Server struct {
	backend   *backend.Client
	runs      *run.Controller
	history   repo.RunRepository
	auth      *auth.Authenv
	limiter   *auth.IPRateLimiter
	logger    zerolog.Logger
	maxUpload int64
	baseCtx   context.Context

	subcases *subcase.Cache
	clusters *table.LocalSource[model.SPCCluster]
	mpcs     *table.LocalSource[table.MPCPart]
	tables   map[string]func() table.Table
	tracker  *run.Tracker
	uploader *upload.Uploader
	pages    map[string]*template.Template
}

func New(d Deps) *Server {
	s := &Server{
		backend:   d.Backend,
		runs:      d.Runs,
		history:   d.History,
		auth:      d.Auth,
		limiter:   d.Limiter,
		logger:    d.Logger,
		maxUpload: d.MaxUpload,
		baseCtx:   d.BaseContext,
		subcases:  subcase.NewCache(d.Backend),
		clusters:  table.SPCClusterSource(d.Backend.SPCClusters),
		mpcs:      table.MPCSource(d.Backend.MPCs),
		tracker:   &run.Tracker{},
		uploader:  upload.New(d.Backend),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUpload
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}
	if s.auth == nil {
		s.auth = &auth.Authenv{Logger: d.Logger}
	}
	s.tables = map[string]func() table.Table{
		"nodes": func() table.Table {
			return table.NewController(table.NodeEntity(d.Backend), s.subcases)
		},
		"spcs": func() table.Table {
			return table.NewController(table.SPCEntity(d.Backend), s.subcases)
		},
		"spcclusters": func() table.Table {
			return table.NewController(table.SPCClusterEntity(s.clusters), s.subcases)
		},
		"mpcs": func() table.Table {
			return table.NewController(table.MPCEntity(s.mpcs), s.subcases)
		},
	}
	s.pages = parsePages()
	return s
}

// Invalidate drops every cached backend list. Called after a run or import.
func (s *Server) Invalidate() {
	s.subcases.Invalidate()
	s.clusters.Invalidate()
	s.mpcs.Invalidate()
}

// Tracker exposes the progress state shared by uploads and runs.
func (s *Server) Tracker() *run.Tracker { return s.tracker }

func (s *Server) Routes(r *mux.Router) {
	static, _ := fs.Sub(staticFS, "static")
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/", s.dashboard).Methods("GET")
	r.Handle("/login", s.auth.RedirectIfLoggedIn(http.HandlerFunc(s.loginPage))).Methods("GET")
	r.HandleFunc("/login", s.auth.LoginHandler).Methods("POST")
	r.HandleFunc("/logout", s.auth.LogoutHandler).Methods("POST")
	r.HandleFunc("/theme", s.toggleTheme).Methods("POST")

	entity := "/{entity:nodes|spcs|spcclusters|mpcs}"
	r.HandleFunc(entity, s.tablePage).Methods("GET")
	r.HandleFunc(entity+"/export.{format:xlsx|pdf}", s.exportTable).Methods("GET")
	r.HandleFunc(entity+"/filter", s.filterFromFile).Methods("POST")

	actions := r.PathPrefix("/actions").Subrouter()
	actions.HandleFunc("/progress", s.progress).Methods("GET")

	guarded := actions.NewRoute().Subrouter()
	if s.limiter != nil {
		guarded.Use(s.limiter.LimitMiddleware)
	}
	guarded.Use(s.auth.AuthMiddleware)
	guarded.HandleFunc("/upload", s.uploadFiles).Methods("POST")
	guarded.HandleFunc("/run", s.runExtractor).Methods("POST")
	guarded.HandleFunc("/import-db", s.importDB).Methods("POST")
}

// Handler returns the routed server without outer middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.backend.BaseURL()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
