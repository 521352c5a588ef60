// Package runlog keeps the ledger of pipeline runs: when each run started and
// finished, what it counted, which synonym collisions it saw and which
// artifacts it exported.
package runlog

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

// Run states.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when a run id is unknown to the store.
var ErrNotFound = errors.New("run not found")

// Conflict mirrors a synonym collision observed while building the index.
type Conflict struct {
	Synonym  string `json:"synonym"`
	Previous string `json:"previous"`
	Winner   string `json:"winner"`
}

// Record describes one pipeline run.
type Record struct {
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Counts      map[string]int    `json:"counts,omitempty"`
	Conflicts   []Conflict        `json:"conflicts,omitempty"`
	Artifacts   []string          `json:"artifacts,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
}

// Duration returns the elapsed run time, or zero while the run is still open.
func (r Record) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r Record) Clone() Record {
	out := r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.Counts != nil {
		out.Counts = make(map[string]int, len(r.Counts))
		for k, v := range r.Counts {
			out.Counts[k] = v
		}
	}
	if r.Settings != nil {
		out.Settings = make(map[string]string, len(r.Settings))
		for k, v := range r.Settings {
			out.Settings[k] = v
		}
	}
	out.Conflicts = append([]Conflict(nil), r.Conflicts...)
	out.Artifacts = append([]string(nil), r.Artifacts...)
	return out
}

// Store persists run records. Save replaces any record with the same id.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns every record, most recently started first.
	List(ctx context.Context) ([]Record, error)
	Close() error
}
