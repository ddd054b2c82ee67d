package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of an evaluation run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one eval or validate invocation
type Run struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	Path        string     `json:"path"`
	Digest      string     `json:"digest"` // sha256 of the declaration file
	Mode        string     `json:"mode"`
	Status      RunStatus  `json:"status"`
	Instances   int        `json:"instances"`
	ErrorCount  int        `json:"error_count"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Diagnostic is one error reported by a run
type Diagnostic struct {
	ID       int64  `json:"id"`
	RunID    string `json:"run_id"`
	Kind     string `json:"kind"`
	Schema   string `json:"schema,omitempty"`
	Attr     string `json:"attr,omitempty"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

// Result is the outcome of a finished run
type Result struct {
	Status      RunStatus
	Instances   int
	Error       *string
	Diagnostics []Diagnostic
}

// Store defines the interface for the history layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, result Result) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, path *string, limit, offset int) ([]*Run, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)

	// Diagnostic operations
	ListDiagnostics(ctx context.Context, runID string) ([]*Diagnostic, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
