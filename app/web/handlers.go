package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobtrack/app/tracker"
)

const (
	themeLight = "light"
	themeDark  = "dark"

	olderCookie  = "older-projects"
	exportNotice = "Excel export will work in full version"
)

// handleDashboard renders the main dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r)
	data.Search = strings.TrimSpace(r.URL.Query().Get("search"))
	data.Projects = filterProjects(data.Projects, data.Search)
	data.CurrentYear = time.Now().Year()
	data.Version = shortVersion(s.version)

	s.render(w, "base.html", "base", data)
}

// handleProjectsPartial renders the project list for HTMX polling and search.
// Responds with 204 if the caller already has the current revision.
func (s *Server) handleProjectsPartial(w http.ResponseWriter, r *http.Request) {
	if revStr := r.URL.Query().Get("rev"); revStr != "" {
		rev, err := strconv.ParseUint(revStr, 10, 64)
		if err == nil && rev == s.sync.Revision() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	s.renderProjects(w, r, false)
}

// renderProjects renders project list with OOB stats and poller, optionally clearing modal slots
func (s *Server) renderProjects(w http.ResponseWriter, r *http.Request, closeModals bool) {
	data := s.newTemplateData(r)
	data.Search = strings.TrimSpace(r.FormValue("search"))
	data.Projects = filterProjects(data.Projects, data.Search)
	data.IsOOB = true

	names := []string{"projects-list", "stats", "poller"}
	if closeModals {
		names = append(names, "modal-slots")
	}
	s.renderMany(w, "partials", data, names...)
}

// handleProjectModal opens the project modal, id query param is the project being edited
func (s *Server) handleProjectModal(w http.ResponseWriter, r *http.Request) {
	s.render(w, "partials", "project-modal", modalData{ProjectID: r.URL.Query().Get("id")})
}

// handleJobModal opens the job modal for the project from the path, all processes checked
func (s *Server) handleJobModal(w http.ResponseWriter, r *http.Request) {
	md := modalData{ProjectID: r.PathValue("id"), Processes: s.state.Processes()}
	if p, ok := s.state.Project(md.ProjectID); ok {
		md.ProjectName = p.Name
	}
	s.render(w, "partials", "job-modal", md)
}

// handleCloseModals hides every modal
func (s *Server) handleCloseModals(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "partials", "modal-slots", nil)
}

// handleSaveProject creates a new project or renames the one being edited.
// Blank name keeps the modal open and changes nothing.
func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	p, ok := s.state.SaveProject(r.FormValue("id"), r.FormValue("name"))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if p.ID != "" {
		log.Printf("[INFO] project %q saved, id %s", p.Name, p.ID)
	}

	s.sync.Save(r.Context())
	s.sync.Load(r.Context())
	s.renderProjects(w, r, true)
}

// handleSaveJob adds a job with the checked processes to the project from the path.
// Unknown project keeps the modal open and changes nothing.
func (s *Server) handleSaveJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	projectID := r.PathValue("id")
	job, ok := s.state.AddJob(projectID, r.FormValue("name"), r.FormValue("qty"), r.Form["processes"])
	if !ok {
		log.Printf("[DEBUG] job for unknown project %s ignored", projectID)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	log.Printf("[INFO] job %q added to project %s with %d steps", job.Name, projectID, len(job.Processes))

	s.sync.Save(r.Context())
	s.sync.Load(r.Context())
	s.renderProjects(w, r, true)
}

// handleAddProcess adds a custom process to the available set and re-renders the selector.
// The set lives in memory only.
func (s *Server) handleAddProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	if name := r.FormValue("process"); s.state.AddProcess(name) {
		log.Printf("[DEBUG] process %q added", strings.TrimSpace(name))
	}
	s.render(w, "partials", "process-selector", modalData{Processes: s.state.Processes()})
}

// handleOlderToggle flips older projects visibility
func (s *Server) handleOlderToggle(w http.ResponseWriter, r *http.Request) {
	shown := !s.getOlderShown(r)
	value := "hidden"
	if shown {
		value = "shown"
	}
	s.setCookie(w, olderCookie, value)

	data := s.newTemplateData(r)
	data.OlderShown = shown
	data.IsOOB = true
	s.renderMany(w, "partials", data, "older-projects", "older-toggle")
}

// handleThemeToggle toggles the theme
func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	nextTheme := themeLight
	if s.getTheme(r) == themeLight {
		nextTheme = themeDark
	}
	s.setCookie(w, "theme", nextTheme)

	// trigger full page refresh for theme change
	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusOK)
}

// handleExport reports that export is not available
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "partials", "notice", exportNotice)
}

// filterProjects keeps projects whose name or any job name contains term, case-insensitive
func filterProjects(projects []tracker.Project, term string) []tracker.Project {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return projects
	}

	res := make([]tracker.Project, 0, len(projects))
	for _, p := range projects {
		if strings.Contains(strings.ToLower(p.Name), term) {
			res = append(res, p)
			continue
		}
		for _, j := range p.Jobs {
			if strings.Contains(strings.ToLower(j.Name), term) {
				res = append(res, p)
				break
			}
		}
	}
	return res
}
