package web

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobtrack/app/tracker"
)

// APIProjectsResponse is the JSON response for /api/v1/projects
type APIProjectsResponse struct {
	Projects  []tracker.Project `json:"projects"`
	Stats     APIStats          `json:"stats"`
	Revision  uint64            `json:"revision"`
	Timestamp time.Time         `json:"timestamp"`
}

// APIStats represents dashboard counters in JSON API response
type APIStats struct {
	TotalProjects int    `json:"total_projects"`
	TotalJobs     int    `json:"total_jobs"`
	Progress      string `json:"progress"`
}

// APIProcessesResponse is the JSON response for /api/v1/processes
type APIProcessesResponse struct {
	Processes []string `json:"processes"`
}

// handleAPIProjects returns all active projects, search query param filters them the same way as the dashboard
func (s *Server) handleAPIProjects(w http.ResponseWriter, r *http.Request) {
	st := s.state.Stats()
	resp := APIProjectsResponse{
		Projects:  filterProjects(s.state.Projects(), r.URL.Query().Get("search")),
		Stats:     APIStats{TotalProjects: st.TotalProjects, TotalJobs: st.TotalJobs, Progress: st.Progress},
		Revision:  s.sync.Revision(),
		Timestamp: time.Now(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAPIProject returns a single project by id
func (s *Server) handleAPIProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.state.Project(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleAPIProcesses returns available processes in catalog order
func (s *Server) handleAPIProcesses(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, APIProcessesResponse{Processes: s.state.Processes()})
}

// writeJSON writes a JSON response with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}
