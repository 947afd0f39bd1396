// Package scheduler implements the periodic reconciliation poll:
// pick actionable tasks, enforce dependency/lease rules, and hand ready
// tasks to the executor contract. Adapted from the teacher's
// internal/app/scheduler cron-driven trigger runner — robfig/cron/v3
// replaces ad hoc time.Sleep polling, and Start/Stop/Drain keep its
// graceful-shutdown shape — generalized from firing named triggers to
// reconciling the task vault on a fixed interval.
package scheduler

import (
	"time"

	"github.com/Seldon-Engine/aof/internal/taskstore"
)

// ActionKind classifies one line of a PollResult.
type ActionKind string

const (
	ActionDispatched    ActionKind = "dispatched"
	ActionSkippedDeps   ActionKind = "skipped-deps"
	ActionLeaseRenewed  ActionKind = "lease-renewed"
	ActionLeaseExpired  ActionKind = "lease-expired"
	ActionPlatformLimit ActionKind = "platform-limit"
	ActionAdapterError  ActionKind = "adapter-error"
)

// Action records what the scheduler did (or decided not to do) for one task.
type Action struct {
	TaskID string
	Kind   ActionKind
	Detail string
}

// PollResult summarizes one scheduler tick.
type PollResult struct {
	ScannedAt  time.Time
	DurationMs int64
	Actions    []Action
	Stats      map[taskstore.Status]int
}
