package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/ctxbundle"
	"github.com/Seldon-Engine/aof/internal/executor"
	"github.com/Seldon-Engine/aof/internal/lease"
	"github.com/Seldon-Engine/aof/internal/logging"
	"github.com/Seldon-Engine/aof/internal/tasklock"
	"github.com/Seldon-Engine/aof/internal/taskstore"
)

var tracer = otel.Tracer("github.com/Seldon-Engine/aof/internal/scheduler")

// Config holds scheduler tuning knobs.
type Config struct {
	PollInterval        time.Duration
	LeasePolicy         lease.Policy
	MaxConcurrentWorker int  // errgroup bound on per-tick dispatch fan-out
	DryRun              bool // produce the same PollResult, never call the executor or mutate the store
}

// DefaultConfig returns the spec's stated default poll interval.
func DefaultConfig() Config {
	return Config{
		PollInterval:        120 * time.Second,
		LeasePolicy:         lease.DefaultPolicy(),
		MaxConcurrentWorker: 8,
	}
}

// Scheduler is the periodic reconciliation loop over a taskstore.Store.
type Scheduler struct {
	cron   *cron.Cron
	store  *taskstore.Store
	locks  *tasklock.Manager
	leases *lease.Manager
	exec   executor.Executor
	guard  *aoferrors.CircuitBreaker
	config Config
	logger logging.Logger

	ctxAssembler *ctxbundle.Assembler

	mu         sync.Mutex
	entryID    cron.EntryID
	lastPollAt time.Time
	stopped    chan struct{}
	stopOnce   sync.Once
}

// WithContextAssembler attaches the resolver chain used to build a
// Bundle for every dispatch. A Scheduler with none configured dispatches
// with a zero-value Bundle, same as a task that declares no context
// references.
func (s *Scheduler) WithContextAssembler(a *ctxbundle.Assembler) *Scheduler {
	s.ctxAssembler = a
	return s
}

// contextRefs extracts the "contextRefs" metadata entry as a []string.
// YAML-decoded metadata arrives as []interface{}; non-string entries and
// a missing or wrongly-typed key both just mean "no refs declared".
func contextRefs(t *taskstore.Task) []string {
	raw, ok := t.Metadata["contextRefs"]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	refs := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			refs = append(refs, s)
		}
	}
	return refs
}

// New creates a Scheduler over store, dispatching through exec. locks
// must be shared with any other component that mutates the same tasks
// (e.g. the CLI), so in-process serialization is total.
func New(cfg Config, store *taskstore.Store, locks *tasklock.Manager, exec executor.Executor, logger logging.Logger) *Scheduler {
	logger = logging.OrNop(logger)
	if cfg.MaxConcurrentWorker <= 0 {
		cfg.MaxConcurrentWorker = 8
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		store:   store,
		locks:   locks,
		leases:  lease.New(store, cfg.LeasePolicy),
		exec:    exec,
		guard:   aoferrors.NewCircuitBreaker("scheduler.executor", aoferrors.DefaultCircuitBreakerConfig(), logger),
		config:  cfg,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Start registers the poll tick and starts the cron runner. ctx
// cancellation triggers Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	spec := fmt.Sprintf("@every %s", s.config.PollInterval)
	entryID, err := s.cron.AddFunc(spec, func() {
		if _, pollErr := s.PollOnce(context.Background()); pollErr != nil {
			s.logger.Error("scheduler: poll failed: %v", pollErr)
		}
	})
	if err != nil {
		s.mu.Unlock()
		return aoferrors.New(aoferrors.KindFatalIO, "Scheduler.Start", "register poll job", err)
	}
	s.entryID = entryID
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started, polling every %s", s.config.PollInterval)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the cron runner and blocks, with no deadline, until any
// in-flight tick has finished. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		cronDone := s.cron.Stop()
		<-cronDone.Done()
		close(s.stopped)
	})
}

// Drain stops the cron runner and waits up to ctx's deadline for any
// in-flight tick to finish.
func (s *Scheduler) Drain(ctx context.Context) error {
	cronDone := s.cron.Stop()
	select {
	case <-cronDone.Done():
		s.stopOnce.Do(func() { close(s.stopped) })
		return nil
	case <-ctx.Done():
		s.stopOnce.Do(func() { close(s.stopped) })
		return aoferrors.New(aoferrors.KindFatalIO, "Scheduler.Drain", "drain deadline exceeded", ctx.Err())
	}
}

// Done returns a channel closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} { return s.stopped }

// LastPollAt reports when the most recent tick began, for /status.
func (s *Scheduler) LastPollAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPollAt
}

// PollOnce runs a single reconciliation tick: estimate
// pressure, walk ready/in-progress candidates in priority order, and
// collect the resulting PollResult. It can be called directly (by tests,
// or by a CLI "tick now" command) without going through the cron job.
func (s *Scheduler) PollOnce(ctx context.Context) (PollResult, error) {
	start := time.Now()
	s.mu.Lock()
	s.lastPollAt = start
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "scheduler.poll")
	defer span.End()

	stats := s.store.CountByStatus()
	result := PollResult{ScannedAt: start.UTC(), Stats: stats}

	if stats[taskstore.StatusReady] == 0 && stats[taskstore.StatusInProgress] == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		span.SetAttributes(attribute.Int("aof.scheduler.scanned", 0))
		return result, nil
	}

	ready := s.store.List(taskstore.Filter{Status: taskstore.StatusReady})
	inProgress := s.store.List(taskstore.Filter{Status: taskstore.StatusInProgress})
	candidates := append(ready, inProgress...) // both already priority/updatedAt ordered by Store.List

	var mu sync.Mutex
	var actions []Action
	platformLimitHit := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentWorker)

	for _, t := range candidates {
		t := t
		mu.Lock()
		hit := platformLimitHit
		mu.Unlock()
		if hit {
			break // a platform-limit error stops further dispatch attempts this tick, but the tick itself continues
		}

		g.Go(func() error {
			var act Action
			err := s.locks.WithLock(t.ID, func() error {
				var innerErr error
				act, innerErr = s.handleCandidate(gctx, t)
				return innerErr
			})
			if err != nil {
				s.logger.Warn("scheduler: candidate %s failed: %v", t.ID, err)
			}
			mu.Lock()
			actions = append(actions, act)
			if act.Kind == ActionPlatformLimit {
				platformLimitHit = true
			}
			mu.Unlock()
			return nil // errors are isolated per task; they never abort the tick
		})
	}
	_ = g.Wait()

	result.Actions = actions
	result.DurationMs = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Int("aof.scheduler.scanned", len(candidates)),
		attribute.Int("aof.scheduler.actions", len(actions)),
	)
	return result, nil
}

// handleCandidate applies the dispatch/recovery decision to a single
// ready/in-progress task. Caller must hold the task's per-id lock.
func (s *Scheduler) handleCandidate(ctx context.Context, t *taskstore.Task) (Action, error) {
	switch t.Status {
	case taskstore.StatusReady:
		return s.dispatchReady(ctx, t)
	case taskstore.StatusInProgress:
		return s.recoverInProgress(t)
	default:
		return Action{TaskID: t.ID, Kind: ActionSkippedDeps, Detail: "not actionable"}, nil
	}
}

func (s *Scheduler) dispatchReady(ctx context.Context, t *taskstore.Task) (Action, error) {
	resolved, err := s.store.DependsOnResolved(t.ID)
	if err != nil {
		return Action{}, err
	}
	if !resolved {
		return Action{TaskID: t.ID, Kind: ActionSkippedDeps, Detail: "unresolved dependencies"}, nil
	}

	if s.config.DryRun {
		return Action{TaskID: t.ID, Kind: ActionDispatched, Detail: "dry-run"}, nil
	}

	agentID := t.Routing.Agent
	var bundle ctxbundle.Bundle
	if s.ctxAssembler != nil {
		if refs := contextRefs(t); len(refs) > 0 {
			var err error
			bundle, err = s.ctxAssembler.Assemble(ctx, refs)
			if err != nil {
				return Action{TaskID: t.ID, Kind: ActionAdapterError, Detail: "context assembly: " + err.Error()}, nil
			}
		}
	}

	var result executor.RunResult
	dispatchErr := s.guard.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = s.exec.Dispatch(ctx, executor.DispatchAction{Task: t, AgentID: agentID, Bundle: bundle})
		return innerErr
	})

	if dispatchErr != nil {
		if aoferrors.KindOf(dispatchErr) == aoferrors.KindPlatformLimit {
			return Action{TaskID: t.ID, Kind: ActionPlatformLimit, Detail: dispatchErr.Error()}, nil
		}
		return Action{TaskID: t.ID, Kind: ActionAdapterError, Detail: dispatchErr.Error()}, nil
	}
	if !result.Accepted {
		return Action{TaskID: t.ID, Kind: ActionSkippedDeps, Detail: result.Reason}, nil
	}

	if _, err := s.store.Transition(t.ID, taskstore.StatusInProgress, ""); err != nil {
		return Action{}, err
	}
	if _, err := s.leases.AcquireForDispatch(t.ID, agentID); err != nil {
		return Action{}, err
	}
	return Action{TaskID: t.ID, Kind: ActionDispatched}, nil
}

func (s *Scheduler) recoverInProgress(t *taskstore.Task) (Action, error) {
	if t.Lease == nil {
		return Action{TaskID: t.ID, Kind: ActionSkippedDeps, Detail: "in-progress without a lease"}, nil
	}
	if !t.Lease.Expired(time.Now().UTC()) {
		return Action{TaskID: t.ID, Kind: ActionSkippedDeps, Detail: "lease active"}, nil
	}
	if s.config.DryRun {
		return Action{TaskID: t.ID, Kind: ActionLeaseExpired, Detail: "dry-run"}, nil
	}

	action, err := s.leases.RecoverExpired(t.ID)
	if err != nil {
		return Action{}, err
	}
	switch action {
	case taskstore.LeaseRecoveryRenewed:
		return Action{TaskID: t.ID, Kind: ActionLeaseRenewed}, nil
	default:
		return Action{TaskID: t.ID, Kind: ActionLeaseExpired, Detail: string(action)}, nil
	}
}
