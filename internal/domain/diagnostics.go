package domain

import "time"

// DiagnosticStatus indicates whether a single startup check passed.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one startup check result with optional hint.
type DiagnosticItem struct {
	ID      string           `json:"id" yaml:"id"`
	Name    string           `json:"name" yaml:"name"`
	Status  DiagnosticStatus `json:"status" yaml:"status"`
	Message string           `json:"message" yaml:"message"`
	Hint    string           `json:"hint,omitempty" yaml:"hint,omitempty"`
	// Blocks lists the job kinds that cannot run while this check fails.
	Blocks []JobKind `json:"blocks,omitempty" yaml:"blocks,omitempty"`
}

// DiagnosticReport aggregates startup checks for UI and CLI output.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt" yaml:"generated_at"`
	HasFailures bool             `json:"hasFailures" yaml:"has_failures"`
	Items       []DiagnosticItem `json:"items" yaml:"items"`
}

// Blocked reports whether any failing check prevents jobs of kind from running.
func (r DiagnosticReport) Blocked(kind JobKind) bool {
	for _, item := range r.Items {
		if item.Status != DiagnosticStatusFail {
			continue
		}
		for _, k := range item.Blocks {
			if k == kind {
				return true
			}
		}
	}
	return false
}
