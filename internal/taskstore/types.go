// Package taskstore implements the file-backed task model: frontmatter
// parsing, atomic status-directory transitions, leases, and the
// dependency DAG. Grounded on the teacher's evaluation/task_mgmt task
// store (file-per-id persistence, sorted listing) and its scheduler
// jobstore (status-aware atomic writes, sentinel not-found errors).
package taskstore

import "time"

// Status is a task lifecycle state.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
	StatusDeadletter Status = "deadletter"
)

// Terminal reports whether s is a terminal lifecycle state.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusCancelled, StatusDeadletter:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusReady, StatusInProgress, StatusReview, StatusBlocked, StatusDone, StatusCancelled, StatusDeadletter:
		return true
	default:
		return false
	}
}

// Priority is a task's dispatch priority; ordering is high > normal > low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns a smaller-is-more-urgent ordinal for sorting.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// GateOutcome is the result recorded against a gate in a task's history.
type GateOutcome string

const (
	GateApproved GateOutcome = "approved"
	GateRejected GateOutcome = "rejected"
	GateSkipped  GateOutcome = "skipped"
)

// Routing carries the role/workflow/tag/agent assignment for a task.
type Routing struct {
	Role     string   `yaml:"role,omitempty" json:"role,omitempty"`
	Workflow string   `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Agent    string   `yaml:"agent,omitempty" json:"agent,omitempty"`
}

// Lease is an executor's exclusive claim on an in-progress task.
type Lease struct {
	LeaseID      string    `yaml:"leaseId" json:"leaseId"`
	AgentID      string    `yaml:"agentId" json:"agentId"`
	AcquiredAt   time.Time `yaml:"acquiredAt" json:"acquiredAt"`
	ExpiresAt    time.Time `yaml:"expiresAt" json:"expiresAt"`
	RenewalCount int       `yaml:"renewalCount" json:"renewalCount"`
}

// Expired reports whether the lease has passed its expiry at instant now.
func (l *Lease) Expired(now time.Time) bool {
	if l == nil {
		return true
	}
	return now.After(l.ExpiresAt)
}

// GateHistoryEntry records one completed gate decision.
type GateHistoryEntry struct {
	Gate    string      `yaml:"gate" json:"gate"`
	Outcome GateOutcome `yaml:"outcome" json:"outcome"`
	At      time.Time   `yaml:"at" json:"at"`
	Summary string      `yaml:"summary,omitempty" json:"summary,omitempty"`
	Agent   string      `yaml:"agent,omitempty" json:"agent,omitempty"`
	Notes   string      `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// GateState is the task's position within its workflow's gate sequence.
type GateState struct {
	Current string             `yaml:"current,omitempty" json:"current,omitempty"`
	Entered time.Time          `yaml:"entered,omitempty" json:"entered,omitempty"`
	History []GateHistoryEntry `yaml:"history,omitempty" json:"history,omitempty"`
}

// Frontmatter is the YAML-serialized header of a task file.
type Frontmatter struct {
	ID               string         `yaml:"id" json:"id"`
	Project          string         `yaml:"project" json:"project"`
	Title            string         `yaml:"title" json:"title"`
	Status           Status         `yaml:"status" json:"status"`
	Priority         Priority       `yaml:"priority,omitempty" json:"priority,omitempty"`
	Routing          Routing        `yaml:"routing,omitempty" json:"routing,omitempty"`
	CreatedAt        time.Time      `yaml:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time      `yaml:"updatedAt" json:"updatedAt"`
	LastTransitionAt time.Time      `yaml:"lastTransitionAt" json:"lastTransitionAt"`
	CreatedBy        string         `yaml:"createdBy,omitempty" json:"createdBy,omitempty"`
	DependsOn        []string       `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Lease            *Lease         `yaml:"lease,omitempty" json:"lease,omitempty"`
	Gate             *GateState     `yaml:"gate,omitempty" json:"gate,omitempty"`
	Metadata         map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Task is a frontmatter record plus its free-form Markdown body.
type Task struct {
	Frontmatter `yaml:",inline"`
	Body        string `yaml:"-" json:"body"`
}

// Instructions returns the contents of the case-insensitive "Instructions"
// H2 section, or "" if absent. Instructions are contract.
func (t *Task) Instructions() string { return extractSection(t.Body, "instructions") }

// Guidance returns the contents of the case-insensitive "Guidance" H2
// section, or "" if absent. Guidance is advisory.
func (t *Task) Guidance() string { return extractSection(t.Body, "guidance") }

// TaskInit is the input to Store.Create.
type TaskInit struct {
	Project   string
	Title     string
	Priority  Priority
	Routing   Routing
	CreatedBy string
	DependsOn []string
	Body      string
	Metadata  map[string]any
}

// Filter narrows List results. Zero-value fields are unconstrained.
type Filter struct {
	Project string
	Status  Status
	Agent   string
	Tags    []string
}
