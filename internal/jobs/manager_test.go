package jobs

import (
	"testing"

	"dualmind/internal/domain"
)

func startJob(t *testing.T, m *Manager, id string) {
	t.Helper()
	if err := m.Start(domain.Job{ID: id, Kind: domain.JobKindPDF, Input: "doc.pdf"}); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// TestManagerLifecycle verifies normal progression to succeeded state.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.IsRunning() {
		t.Fatal("new manager should be idle")
	}

	startJob(t, m, "job-1")
	if !m.IsRunning() {
		t.Fatal("expected running after start")
	}
	if m.Current().Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending", m.Current().Status)
	}

	for _, status := range []domain.JobStatus{
		domain.JobStatusRunning,
		domain.JobStatusSucceeded,
	} {
		if err := m.Transition(status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if m.IsRunning() {
		t.Fatal("finished job should release the slot")
	}
}

// TestManagerRejectsInvalidTransition checks state machine constraints.
func TestManagerRejectsInvalidTransition(t *testing.T) {
	tests := []struct {
		name string
		path []domain.JobStatus
	}{
		{name: "pending to succeeded", path: []domain.JobStatus{domain.JobStatusSucceeded}},
		{name: "running back to pending", path: []domain.JobStatus{domain.JobStatusRunning, domain.JobStatusPending}},
		{name: "failed to running", path: []domain.JobStatus{domain.JobStatusRunning, domain.JobStatusFailed, domain.JobStatusRunning}},
		{name: "cancelled to succeeded", path: []domain.JobStatus{domain.JobStatusRunning, domain.JobStatusCancelled, domain.JobStatusSucceeded}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager()
			startJob(t, m, "job-1")

			var err error
			for _, status := range tc.path {
				if err = m.Transition(status); err != nil {
					break
				}
			}
			if err == nil {
				t.Fatal("expected invalid transition error")
			}
		})
	}
}

// TestManagerRejectsSecondStart verifies the single active job rule.
func TestManagerRejectsSecondStart(t *testing.T) {
	m := NewManager()
	startJob(t, m, "job-1")
	if err := m.Transition(domain.JobStatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}

	err := m.Start(domain.Job{ID: "job-2"})
	if err != ErrJobAlreadyRunning {
		t.Fatalf("error = %v, want %v", err, ErrJobAlreadyRunning)
	}
	if m.Current().ID != "job-1" || m.Current().Status != domain.JobStatusRunning {
		t.Fatalf("running job changed: %+v", m.Current())
	}
	if domain.KindOf(err) != domain.ErrorKindAlreadyRunning {
		t.Fatalf("kind = %s", domain.KindOf(err))
	}
}

// TestManagerRequestCancel verifies cancel flags and repeated cancel handling.
func TestManagerRequestCancel(t *testing.T) {
	m := NewManager()
	startJob(t, m, "job-1")

	if err := m.RequestCancel("other"); err != ErrNoRunningJob {
		t.Fatalf("cancel of other id error = %v", err)
	}
	if err := m.RequestCancel("job-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !m.Current().CancelRequested {
		t.Fatal("cancel flag not set")
	}
	if err := m.Transition(domain.JobStatusCancelled); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if err := m.RequestCancel("job-1"); err != ErrNoRunningJob {
		t.Fatalf("second cancel error = %v, want %v", err, ErrNoRunningJob)
	}
}

// TestManagerUpdateIgnoresStaleJob verifies mutations only reach the active job.
func TestManagerUpdateIgnoresStaleJob(t *testing.T) {
	m := NewManager()
	startJob(t, m, "job-1")

	if !m.Update("job-1", func(j *domain.Job) { j.Stage = "ExtractText" }) {
		t.Fatal("update of active job rejected")
	}
	if m.Update("job-0", func(j *domain.Job) { j.Stage = "stale" }) {
		t.Fatal("update of stale job accepted")
	}
	if m.Current().Stage != "ExtractText" {
		t.Fatalf("stage = %q", m.Current().Stage)
	}
}

// TestManagerReset verifies finished jobs can be cleared but active ones cannot.
func TestManagerReset(t *testing.T) {
	m := NewManager()
	startJob(t, m, "job-1")
	if err := m.Reset(); err != ErrJobAlreadyRunning {
		t.Fatalf("reset active error = %v", err)
	}

	if err := m.Transition(domain.JobStatusFailed); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if m.Current().ID != "" {
		t.Fatalf("current = %+v, want empty", m.Current())
	}
}
