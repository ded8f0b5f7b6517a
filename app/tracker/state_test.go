package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	s := NewState([]string{"Lathe", " Lathe ", "", "VMC"})
	assert.Equal(t, []string{"Lathe", "VMC"}, s.Processes())
	assert.Empty(t, s.Projects())
	assert.NotNil(t, s.Projects())
	assert.Empty(t, s.OlderProjects())
	assert.Equal(t, Stats{Progress: "0%"}, s.Stats())
}

func TestState_SaveProject(t *testing.T) {
	t.Run("new project", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		p, ok := s.SaveProject("", "  Acme  ")
		require.True(t, ok)
		assert.Equal(t, "Acme", p.Name)
		assert.NotEmpty(t, p.ID)
		assert.Empty(t, p.Jobs)

		projects := s.Projects()
		require.Len(t, projects, 1)
		assert.Equal(t, p, projects[0])
		assert.Equal(t, Stats{TotalProjects: 1, TotalJobs: 0, Progress: "0%"}, s.Stats())
	})

	t.Run("blank name is ignored", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		_, ok := s.SaveProject("", "   ")
		assert.False(t, ok)
		assert.Empty(t, s.Projects())
	})

	t.Run("rename keeps position and jobs", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		first, _ := s.SaveProject("", "first")
		second, _ := s.SaveProject("", "second")
		_, ok := s.AddJob(first.ID, "job", "1", nil)
		require.True(t, ok)

		renamed, ok := s.SaveProject(first.ID, "renamed")
		require.True(t, ok)
		assert.Equal(t, first.ID, renamed.ID)

		projects := s.Projects()
		require.Len(t, projects, 2)
		assert.Equal(t, "renamed", projects[0].Name)
		assert.Len(t, projects[0].Jobs, 1)
		assert.Equal(t, second.ID, projects[1].ID)
	})

	t.Run("rename of unknown id changes nothing", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		s.SaveProject("", "only")
		_, ok := s.SaveProject("missing", "other")
		assert.True(t, ok)
		projects := s.Projects()
		require.Len(t, projects, 1)
		assert.Equal(t, "only", projects[0].Name)
	})

	t.Run("ids are unique", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		ids := map[string]bool{}
		for range 100 {
			p, _ := s.SaveProject("", "p")
			ids[p.ID] = true
		}
		assert.Len(t, ids, 100)
	})
}

func TestState_AddJob(t *testing.T) {
	t.Run("selected processes", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		p, _ := s.SaveProject("", "Acme")

		job, ok := s.AddJob(p.ID, " Batch-1 ", "5", []string{"Lathe", "Welding"})
		require.True(t, ok)
		assert.Equal(t, "Batch-1", job.Name)
		assert.Equal(t, "5", job.Qty)
		assert.Equal(t, []ProcessStep{{Name: "Lathe", Status: StatusPending}, {Name: "Welding", Status: StatusPending}}, job.Processes)
		assert.Equal(t, 1, s.Stats().TotalJobs)

		got, ok := s.Project(p.ID)
		require.True(t, ok)
		require.Len(t, got.Jobs, 1)
		assert.Equal(t, job, got.Jobs[0])
	})

	t.Run("nothing selected falls back to all processes", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		s.AddProcess("Anodize")
		p, _ := s.SaveProject("", "Acme")

		job, ok := s.AddJob(p.ID, "j", "1", nil)
		require.True(t, ok)
		require.Len(t, job.Processes, len(DefaultProcesses)+1)
		for i, name := range s.Processes() {
			assert.Equal(t, ProcessStep{Name: name, Status: StatusPending}, job.Processes[i])
		}
	})

	t.Run("unknown selected names are ignored", func(t *testing.T) {
		s := NewState([]string{"Lathe", "VMC"})
		p, _ := s.SaveProject("", "Acme")

		job, ok := s.AddJob(p.ID, "j", "1", []string{"Bogus", "VMC"})
		require.True(t, ok)
		assert.Equal(t, []ProcessStep{{Name: "VMC", Status: StatusPending}}, job.Processes)

		job, ok = s.AddJob(p.ID, "j2", "1", []string{"Bogus"})
		require.True(t, ok)
		assert.Len(t, job.Processes, 2)
	})

	t.Run("unknown project is a no-op", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		s.SaveProject("", "Acme")
		_, ok := s.AddJob("missing", "j", "1", nil)
		assert.False(t, ok)
		assert.Equal(t, 0, s.Stats().TotalJobs)
	})

	t.Run("blank job name allowed", func(t *testing.T) {
		s := NewState(DefaultProcesses)
		p, _ := s.SaveProject("", "Acme")
		job, ok := s.AddJob(p.ID, "  ", "", nil)
		require.True(t, ok)
		assert.Empty(t, job.Name)
	})
}

func TestState_AddProcess(t *testing.T) {
	s := NewState(DefaultProcesses)
	size := len(s.Processes())

	assert.False(t, s.AddProcess("Lathe"), "exact duplicate")
	assert.Len(t, s.Processes(), size)

	assert.False(t, s.AddProcess("   "))
	assert.Len(t, s.Processes(), size)

	assert.True(t, s.AddProcess("lathe"), "dedup is case sensitive")
	assert.True(t, s.AddProcess(" Anodize "))
	assert.Equal(t, append(DefaultProcesses, "lathe", "Anodize"), s.Processes())
}

func TestState_CopiesAreIsolated(t *testing.T) {
	s := NewState(DefaultProcesses)
	p, _ := s.SaveProject("", "Acme")
	s.AddJob(p.ID, "j", "1", []string{"Lathe"})

	projects := s.Projects()
	projects[0].Name = "changed"
	projects[0].Jobs[0].Processes[0].Status = StatusCompleted

	procs := s.Processes()
	procs[0] = "changed"

	got, _ := s.Project(p.ID)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, StatusPending, got.Jobs[0].Processes[0].Status)
	assert.Equal(t, DefaultProcesses[0], s.Processes()[0])
}

func TestState_Replace(t *testing.T) {
	s := NewState(DefaultProcesses)
	s.SaveProject("", "Acme")
	s.Replace([]Project{{ID: "1", Name: "a", Jobs: []Job{{ID: "j"}}}, {ID: "2", Name: "b", Jobs: []Job{}}})
	assert.Equal(t, Stats{TotalProjects: 2, TotalJobs: 1, Progress: "0%"}, s.Stats())

	s.Replace(nil)
	assert.NotNil(t, s.Projects())
	assert.Empty(t, s.Projects())
}

func TestStepStatus_Class(t *testing.T) {
	tests := []struct {
		status StepStatus
		want   string
	}{
		{StatusPending, "status-pending"},
		{StatusInProgress, "status-in-progress"},
		{StatusCompleted, "status-completed"},
		{"", "status-pending"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Class())
		})
	}
}
