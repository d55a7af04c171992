package jobs

import (
	"fmt"
	"sync"

	"dualmind/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = domain.NewError(domain.ErrorKindAlreadyRunning, "job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = domain.NewError(domain.ErrorKindInvalidState, "no running job")

// ErrUnknownJob is returned when a listener targets a job that is not current.
var ErrUnknownJob = domain.NewError(domain.ErrorKindInvalidState, "unknown job")

// Manager tracks the single allowed active job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager with no job.
func NewManager() *Manager {
	return &Manager{}
}

// Start installs job as current in pending state.
func (m *Manager) Start(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}

	job.Status = domain.JobStatusPending
	m.current = job
	return nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Update applies fn to the current job if it is id and still active.
// It reports whether the mutation happened.
func (m *Manager) Update(id string, fn func(job *domain.Job)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != id || !isActive(m.current.Status) {
		return false
	}
	fn(&m.current)
	return true
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset discards a finished job. Active jobs cannot be reset.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	m.current = domain.Job{}
	return nil
}

// IsRunning reports whether a job is pending or running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// RequestCancel flags the active job id for cancellation. The terminal
// status is applied once the job goroutine observes it.
func (m *Manager) RequestCancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isActive(m.current.Status) || (id != "" && id != m.current.ID) {
		return ErrNoRunningJob
	}
	m.current.CancelRequested = true
	return nil
}

// isActive checks if a status represents a job that still holds the slot.
func isActive(status domain.JobStatus) bool {
	return status == domain.JobStatusPending || status == domain.JobStatusRunning
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusPending:
		return to == domain.JobStatusRunning || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusRunning:
		return to == domain.JobStatusSucceeded || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	default:
		return false
	}
}
