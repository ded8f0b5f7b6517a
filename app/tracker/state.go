package tracker

import (
	"slices"
	"strings"
	"sync"
)

// DefaultProcesses is the catalog offered when no catalog file is configured
var DefaultProcesses = []string{"Raw material order", "Lathe", "VMC", "Welding", "Powder Coat"}

// State is the in-memory application state. All accessors return copies,
// callers never share slices with the state.
type State struct {
	mu            sync.RWMutex
	projects      []Project
	olderProjects []Project // reserved, nothing populates it yet
	processes     []string
}

// NewState makes state with the given available processes, duplicates and blank names are dropped
func NewState(processes []string) *State {
	s := &State{projects: []Project{}, olderProjects: []Project{}, processes: []string{}}
	for _, p := range processes {
		s.AddProcess(p)
	}
	return s
}

// Projects returns active projects in order
func (s *State) Projects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProjects(s.projects)
}

// OlderProjects returns archived projects, always empty for now
func (s *State) OlderProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProjects(s.olderProjects)
}

// Project returns project by id
func (s *State) Project(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.projects[idx].clone(), true
	}
	return Project{}, false
}

// Processes returns available process names in order
func (s *State) Processes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.processes)
}

// Replace swaps all active projects, used after a reload from the store
func (s *State) Replace(projects []Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if projects == nil {
		projects = []Project{}
	}
	s.projects = cloneProjects(projects)
}

// SaveProject renames project id or, with empty id, appends a new project.
// Returns false for a blank name, nothing is changed in this case. Renaming an
// unknown id changes nothing but still reports true, the caller proceeds with the sync.
func (s *State) SaveProject(id, name string) (Project, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		idx := s.indexOf(id)
		if idx < 0 {
			return Project{}, true
		}
		s.projects[idx].Name = name
		return s.projects[idx].clone(), true
	}

	p := Project{ID: NewID(), Name: name, Jobs: []Job{}}
	s.projects = append(s.projects, p)
	return p.clone(), true
}

// AddJob appends a job to project projectID. Selected names not in the available
// processes are ignored, and if nothing is left the job gets every available
// process. All steps start as pending. Returns false if the project is unknown.
func (s *State) AddJob(projectID, name, qty string, selected []string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(projectID)
	if idx < 0 {
		return Job{}, false
	}

	names := make([]string, 0, len(selected))
	for _, sel := range selected {
		if slices.Contains(s.processes, sel) {
			names = append(names, sel)
		}
	}
	if len(names) == 0 {
		names = s.processes
	}

	job := Job{ID: NewID(), Name: strings.TrimSpace(name), Qty: qty, Processes: make([]ProcessStep, 0, len(names))}
	for _, n := range names {
		job.Processes = append(job.Processes, ProcessStep{Name: n, Status: StatusPending})
	}
	s.projects[idx].Jobs = append(s.projects[idx].Jobs, job)

	job.Processes = slices.Clone(job.Processes)
	return job, true
}

// AddProcess appends a process name to the catalog. Blank names and exact
// duplicates are ignored, returns true if the catalog changed.
func (s *State) AddProcess(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.processes, name) {
		return false
	}
	s.processes = append(s.processes, name)
	return true
}

// Stats returns dashboard counters for active projects
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := Stats{TotalProjects: len(s.projects), Progress: progressPlaceholder}
	for _, p := range s.projects {
		res.TotalJobs += len(p.Jobs)
	}
	return res
}

// indexOf returns position of project id, -1 if not found. Caller holds the lock.
func (s *State) indexOf(id string) int {
	return slices.IndexFunc(s.projects, func(p Project) bool { return p.ID == id })
}
