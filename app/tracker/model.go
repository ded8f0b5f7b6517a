// Package tracker holds the in-memory projects state and keeps it in sync with the store.
//
// State is a disposable cache: every mutation is followed by a full overwrite of
// the store and a reload from it, so whatever the store returns is the truth.
package tracker

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// StepStatus is the state of one process step
type StepStatus string

// step statuses, new steps always start as StatusPending
const (
	StatusPending    StepStatus = "Pending"
	StatusInProgress StepStatus = "In Progress"
	StatusCompleted  StepStatus = "Completed"
)

// Class returns css class for the status badge, e.g. "status-in-progress"
func (s StepStatus) Class() string {
	if s == "" {
		s = StatusPending
	}
	return "status-" + strings.ReplaceAll(strings.ToLower(string(s)), " ", "-")
}

// ProcessStep is one manufacturing stage of a job
type ProcessStep struct {
	Name   string     `json:"name" jsonschema:"required"`
	Status StepStatus `json:"status" jsonschema:"enum=Pending,enum=In Progress,enum=Completed,default=Pending"`
}

// Job is a unit of production work within a project
type Job struct {
	ID        string        `json:"id" jsonschema:"required"`
	Name      string        `json:"name"`
	Qty       string        `json:"qty" jsonschema:"description=free-form quantity"`
	Processes []ProcessStep `json:"processes"`
}

// Project is a named unit of work holding jobs. It is also the document stored per row.
type Project struct {
	ID   string `json:"id" jsonschema:"required"`
	Name string `json:"name" jsonschema:"required"`
	Jobs []Job  `json:"jobs"`
}

// Stats are the dashboard counters
type Stats struct {
	TotalProjects int    `json:"total_projects"`
	TotalJobs     int    `json:"total_jobs"`
	Progress      string `json:"progress"` // placeholder, no progress is computed
}

// progressPlaceholder is shown as overall progress
const progressPlaceholder = "0%"

// NewID makes a unique, time ordered identifier
func NewID() string {
	return ulid.Make().String()
}

func (p Project) clone() Project {
	res := p
	res.Jobs = make([]Job, len(p.Jobs))
	for i, j := range p.Jobs {
		res.Jobs[i] = j
		res.Jobs[i].Processes = append([]ProcessStep{}, j.Processes...)
	}
	return res
}

func cloneProjects(pp []Project) []Project {
	res := make([]Project, len(pp))
	for i, p := range pp {
		res[i] = p.clone()
	}
	return res
}
