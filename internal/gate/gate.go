// Package gate implements the gated workflow state machine over a task:
// an ordered sequence of gates, conditional predicates that
// compute which gates are active for a given task, and rejection
// strategies that rewind the sequence. The outcome vocabulary
// (approved/rejected/skipped) echoes the teacher's own
// ports.ApprovalResponse action vocabulary; callers (cmd/aof's task
// commands) decide how an outcome is obtained, since this package owns
// only the pure state transition.
package gate

import (
	"time"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/taskstore"
)

// RejectionStrategy selects where a rejected gate bounces the task back to.
type RejectionStrategy string

const (
	RejectOrigin   RejectionStrategy = "origin"
	RejectPrevious RejectionStrategy = "previous"
)

// Condition is a predicate over a task's tags and metadata, deciding
// whether a gate definition is active for that task.
type Condition struct {
	TagsAny        []string       `yaml:"tagsAny,omitempty" json:"tagsAny,omitempty"`
	TagsAll        []string       `yaml:"tagsAll,omitempty" json:"tagsAll,omitempty"`
	MetadataEquals map[string]any `yaml:"metadataEquals,omitempty" json:"metadataEquals,omitempty"`
}

// Matches reports whether c holds for the given tags and metadata. A nil
// Condition always matches (the gate is unconditionally active).
func (c *Condition) Matches(tags []string, metadata map[string]any) bool {
	if c == nil {
		return true
	}
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	if len(c.TagsAny) > 0 {
		any := false
		for _, t := range c.TagsAny {
			if tagSet[t] {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	for _, t := range c.TagsAll {
		if !tagSet[t] {
			return false
		}
	}
	for k, v := range c.MetadataEquals {
		if metadata == nil {
			return false
		}
		got, ok := metadata[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// Def is one gate in a workflow's ordered sequence.
type Def struct {
	ID                string            `yaml:"id" json:"id"`
	Role              string            `yaml:"role,omitempty" json:"role,omitempty"`
	CanReject         bool              `yaml:"canReject,omitempty" json:"canReject,omitempty"`
	When              *Condition        `yaml:"when,omitempty" json:"when,omitempty"`
	RejectionStrategy RejectionStrategy `yaml:"rejectionStrategy,omitempty" json:"rejectionStrategy,omitempty"`
}

// Workflow is the ordered gate sequence a project manifest's workflow
// block decodes into.
type Workflow struct {
	Gates []Def `yaml:"gates" json:"gates"`
}

func (w Workflow) indexOf(gateID string) int {
	for i, d := range w.Gates {
		if d.ID == gateID {
			return i
		}
	}
	return -1
}

func (w Workflow) active(i int, tags []string, metadata map[string]any) bool {
	return w.Gates[i].When.Matches(tags, metadata)
}

func (w Workflow) firstActive(tags []string, metadata map[string]any) int {
	for i := range w.Gates {
		if w.active(i, tags, metadata) {
			return i
		}
	}
	return -1
}

// nextActive walks forward from start, returning the index of the next
// active gate and the ids of any inactive gates skipped along the way.
func (w Workflow) nextActive(start int, tags []string, metadata map[string]any) (int, []string) {
	var skipped []string
	for i := start; i < len(w.Gates); i++ {
		if w.active(i, tags, metadata) {
			return i, skipped
		}
		skipped = append(skipped, w.Gates[i].ID)
	}
	return -1, skipped
}

// prevActive walks backward from start (inclusive), returning the index
// of the nearest active gate at or before start, or -1 if none exists.
func (w Workflow) prevActive(start int, tags []string, metadata map[string]any) int {
	for i := start; i >= 0; i-- {
		if w.active(i, tags, metadata) {
			return i
		}
	}
	return -1
}

// Decision is the outcome of a gate evaluation, ready to be applied via
// taskstore.Store.ApplyGateDecision as a single atomic write.
type Decision struct {
	ToStatus      taskstore.Status
	NewGate       *taskstore.GateState
	MetadataPatch map[string]any
}

// Engine is the pure gate state machine; it never touches the store
// directly, so callers control exactly when a decision is committed.
type Engine struct {
	now func() time.Time
}

// New creates an Engine. now defaults to time.Now().UTC() if nil.
func New(now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{now: now}
}

// Start computes the initial gate state for a task entering review: the
// first active gate in the workflow. If no gate is active, the caller
// should transition the task directly to done instead of calling Start.
func (e *Engine) Start(workflow Workflow, tags []string, metadata map[string]any) (*taskstore.GateState, bool) {
	idx := workflow.firstActive(tags, metadata)
	if idx == -1 {
		return nil, false
	}
	return &taskstore.GateState{Current: workflow.Gates[idx].ID, Entered: e.now()}, true
}

// HandleGateTransition evaluates an approved/rejected outcome against the
// task's current gate, advancing, finishing, or rewinding the workflow
// as its conditions and rejection strategy dictate.
func (e *Engine) HandleGateTransition(task *taskstore.Task, workflow Workflow, outcome taskstore.GateOutcome, actor, summary, notes string) (Decision, error) {
	if outcome != taskstore.GateApproved && outcome != taskstore.GateRejected {
		return Decision{}, aoferrors.New(aoferrors.KindValidation, "gate.HandleGateTransition", "outcome must be approved or rejected", nil)
	}
	if task.Gate == nil || task.Gate.Current == "" {
		return Decision{}, aoferrors.New(aoferrors.KindIllegalTransition, "gate.HandleGateTransition", "task has no active gate", nil)
	}

	idx := workflow.indexOf(task.Gate.Current)
	if idx == -1 {
		return Decision{}, aoferrors.New(aoferrors.KindValidation, "gate.HandleGateTransition", "unknown gate "+task.Gate.Current, nil)
	}
	curDef := workflow.Gates[idx]
	now := e.now()

	history := append([]taskstore.GateHistoryEntry(nil), task.Gate.History...)
	history = append(history, taskstore.GateHistoryEntry{
		Gate: curDef.ID, Outcome: outcome, At: now, Summary: summary, Agent: actor, Notes: notes,
	})

	tags := task.Routing.Tags
	metadata := task.Metadata

	if outcome == taskstore.GateApproved {
		nextIdx, skipped := workflow.nextActive(idx+1, tags, metadata)
		for _, gateID := range skipped {
			history = append(history, taskstore.GateHistoryEntry{Gate: gateID, Outcome: taskstore.GateSkipped, At: now})
		}
		if nextIdx == -1 {
			return Decision{
				ToStatus: taskstore.StatusDone,
				NewGate:  &taskstore.GateState{History: history},
			}, nil
		}
		return Decision{
			ToStatus: taskstore.StatusReview,
			NewGate:  &taskstore.GateState{Current: workflow.Gates[nextIdx].ID, Entered: now, History: history},
		}, nil
	}

	// rejected
	if !curDef.CanReject {
		return Decision{}, aoferrors.New(aoferrors.KindIllegalTransition, "gate.HandleGateTransition", "gate "+curDef.ID+" does not allow rejection", nil)
	}

	var targetIdx int
	switch curDef.RejectionStrategy {
	case RejectPrevious:
		targetIdx = workflow.prevActive(idx-1, tags, metadata)
		if targetIdx == -1 {
			targetIdx = workflow.firstActive(tags, metadata)
		}
	default: // RejectOrigin and unset both reset to the first active gate.
		targetIdx = workflow.firstActive(tags, metadata)
	}
	if targetIdx == -1 {
		return Decision{}, aoferrors.New(aoferrors.KindValidation, "gate.HandleGateTransition", "no active gate to reject back to", nil)
	}

	return Decision{
		ToStatus: taskstore.StatusInProgress,
		NewGate:  &taskstore.GateState{Current: workflow.Gates[targetIdx].ID, Entered: now, History: history},
	}, nil
}

// Blocked produces a decision for a gate reviewer blocking the task: the
// blocker list is written to metadata and the task moves to blocked
// without a gate-history entry, since "blocked" is not a per-gate outcome
// in the approved/rejected/skipped vocabulary.
func (e *Engine) Blocked(blockers []string, reason string) Decision {
	patch := map[string]any{"blockers": blockers}
	if reason != "" {
		patch["blockReason"] = reason
	}
	return Decision{
		ToStatus:      taskstore.StatusBlocked,
		NewGate:       nil,
		MetadataPatch: patch,
	}
}
