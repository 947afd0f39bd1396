// Package murmur implements the per-team review-cycle trigger evaluator:
// persistent per-team state plus an ordered set of fire
// predicates, evaluated on the daemon's murmur ticker (independent of
// the scheduler's poll interval).
package murmur

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/Seldon-Engine/aof/internal/filestore"
	"github.com/Seldon-Engine/aof/internal/tasklock"
	"github.com/Seldon-Engine/aof/internal/taskstore"
)

// TeamState is one team's persistent murmur bookkeeping, stored at
// .murmur/<team>.json.
type TeamState struct {
	LastReviewAt                time.Time `json:"lastReviewAt,omitempty"`
	CompletionsSinceLastReview  int       `json:"completionsSinceLastReview"`
	FailuresSinceLastReview     int       `json:"failuresSinceLastReview"`
	CurrentReviewTaskID         string    `json:"currentReviewTaskId,omitempty"`
	ReviewStartedAt             time.Time `json:"reviewStartedAt,omitempty"`
	LastTriggeredBy             string    `json:"lastTriggeredBy,omitempty"`
}

// TriggerKind names the predicate that fired a review.
type TriggerKind string

const (
	TriggerQueueEmpty      TriggerKind = "queueEmpty"
	TriggerCompletionBatch TriggerKind = "completionBatch"
	TriggerFailureBatch    TriggerKind = "failureBatch"
	TriggerInterval        TriggerKind = "interval"
)

// Trigger is one configured fire condition for a team. Zero-value
// Threshold/IntervalMs means that field doesn't apply to this trigger.
type Trigger struct {
	Kind       TriggerKind `json:"kind"`
	Threshold  int         `json:"threshold,omitempty"`
	IntervalMs int64       `json:"intervalMs,omitempty"`
}

const defaultReviewTimeout = 30 * time.Minute

// Controller manages each team's review cycle: trigger evaluation,
// counters, and stale-review cleanup. One Controller instance is shared
// across all teams; state is keyed by team name.
type Controller struct {
	stateDir     string
	locks        *tasklock.Manager
	reviewTimeout time.Duration
	now          func() time.Time
}

// New creates a Controller persisting team state under stateDir
// (typically <vault>/.murmur).
func New(stateDir string, locks *tasklock.Manager) *Controller {
	return &Controller{
		stateDir:      stateDir,
		locks:         locks,
		reviewTimeout: defaultReviewTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (c *Controller) statePath(team string) string {
	return filepath.Join(c.stateDir, team+".json")
}

func (c *Controller) load(team string) (TeamState, error) {
	data, err := filestore.ReadFileOrEmpty(c.statePath(team))
	if err != nil {
		return TeamState{}, err
	}
	if data == nil {
		return TeamState{}, nil
	}
	var st TeamState
	if err := json.Unmarshal(data, &st); err != nil {
		return TeamState{}, err
	}
	return st, nil
}

func (c *Controller) save(team string, st TeamState) error {
	data, err := filestore.MarshalJSONIndent(st)
	if err != nil {
		return err
	}
	return filestore.AtomicWrite(c.statePath(team), data, 0o644)
}

// RecordCompletion increments the team's completion counter.
func (c *Controller) RecordCompletion(team string) error {
	return c.mutate(team, func(st *TeamState) { st.CompletionsSinceLastReview++ })
}

// RecordFailure increments the team's failure counter.
func (c *Controller) RecordFailure(team string) error {
	return c.mutate(team, func(st *TeamState) { st.FailuresSinceLastReview++ })
}

func (c *Controller) mutate(team string, fn func(*TeamState)) error {
	return c.locks.WithLock("murmur:"+team, func() error {
		st, err := c.load(team)
		if err != nil {
			return err
		}
		fn(&st)
		return c.save(team, st)
	})
}

// Evaluate runs stale-review cleanup then checks triggers in order,
// returning the first that fires. It never fires while a review is
// already in progress (CurrentReviewTaskID set).
func (c *Controller) Evaluate(team string, triggers []Trigger, stats map[taskstore.Status]int, store *taskstore.Store) (TriggerKind, bool, error) {
	var fired TriggerKind
	var ok bool

	err := c.locks.WithLock("murmur:"+team, func() error {
		st, err := c.load(team)
		if err != nil {
			return err
		}

		cleaned := c.cleanupStaleReview(&st, store)
		if cleaned {
			if err := c.save(team, st); err != nil {
				return err
			}
		}

		if st.CurrentReviewTaskID != "" {
			return nil
		}

		for _, trig := range triggers {
			if c.matches(trig, st, stats) {
				fired = trig.Kind
				ok = true
				return nil
			}
		}
		return nil
	})
	return fired, ok, err
}

func (c *Controller) matches(trig Trigger, st TeamState, stats map[taskstore.Status]int) bool {
	switch trig.Kind {
	case TriggerQueueEmpty:
		return stats[taskstore.StatusReady] == 0 && stats[taskstore.StatusInProgress] == 0
	case TriggerCompletionBatch:
		return st.CompletionsSinceLastReview >= trig.Threshold
	case TriggerFailureBatch:
		return st.FailuresSinceLastReview >= trig.Threshold
	case TriggerInterval:
		if st.LastReviewAt.IsZero() {
			return true
		}
		return c.now().Sub(st.LastReviewAt) >= time.Duration(trig.IntervalMs)*time.Millisecond
	default:
		return false
	}
}

// StartReview records that team is now under review for taskID,
// resetting its counters.
func (c *Controller) StartReview(team, taskID, triggeredBy string) error {
	return c.mutate(team, func(st *TeamState) {
		now := c.now()
		st.CurrentReviewTaskID = taskID
		st.ReviewStartedAt = now
		st.LastReviewAt = now
		st.LastTriggeredBy = triggeredBy
		st.CompletionsSinceLastReview = 0
		st.FailuresSinceLastReview = 0
	})
}

// FinishReview clears the in-progress review marker.
func (c *Controller) FinishReview(team string) error {
	return c.mutate(team, func(st *TeamState) { st.CurrentReviewTaskID = "" })
}

func (c *Controller) cleanupStaleReview(st *TeamState, store *taskstore.Store) bool {
	if st.CurrentReviewTaskID == "" {
		return false
	}
	task, err := store.Get(st.CurrentReviewTaskID)
	stale := err != nil || task.Status.Terminal()
	if !stale && !st.ReviewStartedAt.IsZero() {
		stale = c.now().Sub(st.ReviewStartedAt) >= c.reviewTimeout
	}
	if !stale {
		return false
	}
	st.CurrentReviewTaskID = ""
	return true
}
