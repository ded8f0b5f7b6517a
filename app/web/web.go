// Package web implements the web server for jobtrack application
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/jobtrack/app/tracker"
)

//go:embed templates/*.html templates/partials/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Synchronizer pushes in-memory state to the store and reloads it back
type Synchronizer interface {
	Load(ctx context.Context)
	Save(ctx context.Context)
	Revision() uint64
}

// Server represents the web server
type Server struct {
	state          *tracker.State
	sync           Synchronizer
	templates      map[string]*template.Template
	updateInterval time.Duration
	baseURL        string // base URL path for reverse proxy (e.g., /jobtrack), empty for root
	hostname       string // hostname to display in UI
	version        string
	csrfProtection *http.CrossOriginProtection // csrf protection for POST endpoints
	limiter        *limiter.Limiter            // rate limiter for mutating endpoints
}

// Config holds server configuration
type Config struct {
	State          *tracker.State
	Sync           Synchronizer
	UpdateInterval time.Duration // how often pages poll for changes, 0 disables polling
	BaseURL        string        // base URL path for reverse proxy (e.g., /jobtrack), empty for root
	Hostname       string        // hostname to display in UI
	Version        string
	MutationRate   float64 // max mutating requests per second per client, 0 for default
}

// TemplateData holds data for templates
type TemplateData struct {
	Projects      []tracker.Project
	OlderProjects []tracker.Project
	Processes     []string
	Stats         tracker.Stats
	Revision      uint64
	Search        string
	OlderShown    bool
	Theme         string
	PollSeconds   int
	CurrentYear   int
	BaseURL       string // base URL path for reverse proxy (e.g., /jobtrack)
	Hostname      string
	Version       string
	IsOOB         bool // for OOB template rendering
}

// modalData is used by project and job modals
type modalData struct {
	ProjectID   string // editing project for project modal, target project for job modal
	ProjectName string
	Processes   []string
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.State == nil || cfg.Sync == nil {
		return nil, fmt.Errorf("web server initialization failed: state and synchronizer are required")
	}

	rate := cfg.MutationRate
	if rate <= 0 {
		rate = 10
	}
	lmt := tollbooth.NewLimiter(rate, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	lmt.SetMessage("too many requests")

	s := &Server{
		state:          cfg.State,
		sync:           cfg.Sync,
		updateInterval: cfg.UpdateInterval,
		baseURL:        cfg.BaseURL,
		hostname:       cfg.Hostname,
		version:        cfg.Version,
		csrfProtection: http.NewCrossOriginProtection(),
		limiter:        lmt,
	}

	templates, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates
	return s, nil
}

// Run starts the web server and blocks until ctx is done
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	mux := http.NewServeMux()
	// handle base URL without trailing slash - redirect to with trailing slash
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("jobtrack", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	router.HandleFunc("GET /", s.handleDashboard)

	// HTMX endpoints
	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.Use(s.csrfProtection.Handler)

		api.HandleFunc("GET /projects", s.handleProjectsPartial)
		api.HandleFunc("GET /projects/modal", s.handleProjectModal)
		api.HandleFunc("GET /projects/{id}/jobs/modal", s.handleJobModal)
		api.HandleFunc("POST /modals/close", s.handleCloseModals)
		api.HandleFunc("POST /older-toggle", s.handleOlderToggle)
		api.HandleFunc("POST /theme", s.handleThemeToggle)
		api.HandleFunc("POST /export", s.handleExport)

		mutating := api.With(tollbooth.HTTPMiddleware(s.limiter))
		mutating.HandleFunc("POST /projects", s.handleSaveProject)
		mutating.HandleFunc("POST /projects/{id}/jobs", s.handleSaveJob)
		mutating.HandleFunc("POST /processes", s.handleAddProcess)
	})

	// JSON API for programmatic access
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /projects", s.handleAPIProjects)
		api.HandleFunc("GET /projects/{id}", s.handleAPIProject)
		api.HandleFunc("GET /processes", s.handleAPIProcesses)
	})

	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// render renders a template
func (s *Server) render(w http.ResponseWriter, page, tmplName string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, tmplName, data); err != nil {
		log.Printf("[WARN] failed to execute template: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// renderMany executes several templates of one page into a single response, used for OOB updates
func (s *Server) renderMany(w http.ResponseWriter, page string, data any, tmplNames ...string) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	for _, name := range tmplNames {
		if err := tmpl.ExecuteTemplate(buf, name, data); err != nil {
			log.Printf("[WARN] failed to execute template %s: %v", name, err)
			http.Error(w, "Template error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses all templates
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"url":      s.url,
		"truncate": s.truncate,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templatesFS,
		"templates/base.html", "templates/dashboard.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base template: %w", err)
	}
	templates["base.html"] = base

	// partials separately for HTMX requests
	partials, err := template.New("projects.html").Funcs(funcMap).ParseFS(templatesFS, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse partials: %w", err)
	}
	templates["partials"] = partials

	return templates, nil
}

// newTemplateData creates a TemplateData with common fields populated from request
func (s *Server) newTemplateData(r *http.Request) TemplateData {
	return TemplateData{
		Projects:      s.state.Projects(),
		OlderProjects: s.state.OlderProjects(),
		Processes:     s.state.Processes(),
		Stats:         s.state.Stats(),
		Revision:      s.sync.Revision(),
		OlderShown:    s.getOlderShown(r),
		Theme:         s.getTheme(r),
		PollSeconds:   int(s.updateInterval.Seconds()),
		BaseURL:       s.baseURL,
		Hostname:      s.hostname,
		Version:       s.version,
	}
}

func (s *Server) getTheme(r *http.Request) string {
	cookie, err := r.Cookie("theme")
	if err != nil {
		return themeDark
	}
	switch cookie.Value {
	case themeLight, themeDark:
		return cookie.Value
	default:
		log.Printf("[WARN] invalid theme %q", cookie.Value)
		return themeDark
	}
}

func (s *Server) getOlderShown(r *http.Request) bool {
	cookie, err := r.Cookie("older-projects")
	if err != nil {
		return false
	}
	return cookie.Value == "shown"
}

// setCookie sets a long living UI preference cookie
func (s *Server) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.cookiePath(),
		MaxAge:   365 * 24 * 60 * 60, // 1 year
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// template helper functions

func (s *Server) truncate(str string, n int) string {
	if len(str) <= n {
		return str
	}
	return str[:n] + "..."
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

// shortVersion extracts a short version string from full version
// for version like "v1.7.0-abc1234-20241225", returns "v1.7.0"
func shortVersion(fullVer string) string {
	if fullVer == "" || fullVer == "unknown" {
		return fullVer
	}
	if idx := strings.Index(fullVer, "-"); idx > 0 {
		return fullVer[:idx]
	}
	return fullVer
}
