package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seldon-Engine/aof/internal/ctxbundle"
	"github.com/Seldon-Engine/aof/internal/executor"
	"github.com/Seldon-Engine/aof/internal/lease"
	"github.com/Seldon-Engine/aof/internal/tasklock"
	"github.com/Seldon-Engine/aof/internal/taskstore"
)

func newTestScheduler(t *testing.T, store *taskstore.Store, exec executor.Executor) *Scheduler {
	t.Helper()
	cfg := Config{
		PollInterval:        time.Second,
		LeasePolicy:         lease.Policy{DefaultTTL: time.Minute, MaxRenewals: 2},
		MaxConcurrentWorker: 4,
	}
	return New(cfg, store, tasklock.New(), exec, nil)
}

func newTestStore(t *testing.T) *taskstore.Store {
	t.Helper()
	s := taskstore.NewStore(t.TempDir())
	require.NoError(t, s.Load())
	return s
}

func TestScheduler_DispatchesReadyTaskInPriorityOrder(t *testing.T) {
	store := newTestStore(t)
	low, err := store.Create(taskstore.TaskInit{Project: "p", Title: "low", Priority: taskstore.PriorityLow})
	require.NoError(t, err)
	high, err := store.Create(taskstore.TaskInit{Project: "p", Title: "high", Priority: taskstore.PriorityHigh})
	require.NoError(t, err)
	for _, id := range []string{low.ID, high.ID} {
		_, err := store.Transition(id, taskstore.StatusReady, "")
		require.NoError(t, err)
	}

	fake := &executor.Fake{}
	sched := newTestScheduler(t, store, fake)

	result, err := sched.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Actions, 2)

	require.Len(t, fake.Calls, 2)
	assert.Equal(t, high.ID, fake.Calls[0].Task.ID)
	assert.Equal(t, low.ID, fake.Calls[1].Task.ID)

	got, err := store.Get(high.ID)
	require.NoError(t, err)
	assert.Equal(t, taskstore.StatusInProgress, got.Status)
	require.NotNil(t, got.Lease)
}

func TestScheduler_SkipsTaskWithUnresolvedDependency(t *testing.T) {
	store := newTestStore(t)
	blocker, err := store.Create(taskstore.TaskInit{Project: "p", Title: "blocker"})
	require.NoError(t, err)
	dependent, err := store.Create(taskstore.TaskInit{Project: "p", Title: "dependent", DependsOn: []string{blocker.ID}})
	require.NoError(t, err)
	_, err = store.Transition(dependent.ID, taskstore.StatusReady, "")
	require.NoError(t, err)

	fake := &executor.Fake{}
	sched := newTestScheduler(t, store, fake)

	result, err := sched.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, ActionSkippedDeps, result.Actions[0].Kind)
	assert.Empty(t, fake.Calls)

	got, err := store.Get(dependent.ID)
	require.NoError(t, err)
	assert.Equal(t, taskstore.StatusReady, got.Status)
}

func TestScheduler_PlatformLimitStopsFurtherDispatchThisTick(t *testing.T) {
	store := newTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		task, err := store.Create(taskstore.TaskInit{Project: "p", Title: "t", Priority: taskstore.PriorityHigh})
		require.NoError(t, err)
		_, err = store.Transition(task.ID, taskstore.StatusReady, "")
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	fake := &executor.Fake{Responses: []executor.FakeResponse{
		{Result: executor.RunResult{Accepted: true}},
		executor.PlatformLimitResponse("dispatch"),
	}}
	sched := newTestScheduler(t, store, fake)

	result, err := sched.PollOnce(context.Background())
	require.NoError(t, err)

	hasLimit := false
	for _, a := range result.Actions {
		if a.Kind == ActionPlatformLimit {
			hasLimit = true
		}
	}
	assert.True(t, hasLimit)
	assert.LessOrEqual(t, len(fake.Calls), 2)
}

func TestScheduler_RecoversExpiredLeaseOnInProgressTask(t *testing.T) {
	store := newTestStore(t)
	task, err := store.Create(taskstore.TaskInit{Project: "p", Title: "t"})
	require.NoError(t, err)
	_, err = store.Transition(task.ID, taskstore.StatusReady, "")
	require.NoError(t, err)
	_, err = store.Transition(task.ID, taskstore.StatusInProgress, "")
	require.NoError(t, err)
	_, err = store.LeaseAcquire(task.ID, "agent-1", -time.Minute)
	require.NoError(t, err)

	fake := &executor.Fake{}
	sched := newTestScheduler(t, store, fake)

	result, err := sched.PollOnce(context.Background())
	require.NoError(t, err)

	var found *Action
	for i := range result.Actions {
		if result.Actions[i].TaskID == task.ID {
			found = &result.Actions[i]
		}
	}
	require.NotNil(t, found)
	assert.Contains(t, []ActionKind{ActionLeaseRenewed, ActionLeaseExpired}, found.Kind)
}

func TestScheduler_DryRunNeverCallsExecutorOrMutatesStore(t *testing.T) {
	store := newTestStore(t)
	task, err := store.Create(taskstore.TaskInit{Project: "p", Title: "t"})
	require.NoError(t, err)
	_, err = store.Transition(task.ID, taskstore.StatusReady, "")
	require.NoError(t, err)

	fake := &executor.Fake{}
	cfg := Config{PollInterval: time.Second, LeasePolicy: lease.DefaultPolicy(), MaxConcurrentWorker: 4, DryRun: true}
	sched := New(cfg, store, tasklock.New(), fake, nil)

	result, err := sched.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, ActionDispatched, result.Actions[0].Kind)
	assert.Empty(t, fake.Calls)

	got, err := store.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskstore.StatusReady, got.Status)
}

func TestScheduler_EmptyVaultShortCircuits(t *testing.T) {
	store := newTestStore(t)
	sched := newTestScheduler(t, store, &executor.Fake{})

	result, err := sched.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
}

func TestScheduler_AssemblesContextBundleFromTaskMetadata(t *testing.T) {
	store := newTestStore(t)
	task, err := store.Create(taskstore.TaskInit{
		Project:  "p",
		Title:    "t",
		Metadata: map[string]any{"contextRefs": []interface{}{"greeting"}},
	})
	require.NoError(t, err)
	_, err = store.Transition(task.ID, taskstore.StatusReady, "")
	require.NoError(t, err)

	fake := &executor.Fake{}
	sched := newTestScheduler(t, store, fake)
	sched.WithContextAssembler(ctxbundle.New(
		ctxbundle.BudgetPolicy{},
		ctxbundle.InlineResolver{Values: map[string]string{"greeting": "hello"}},
	))

	result, err := sched.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, ActionDispatched, result.Actions[0].Kind)
	require.Len(t, fake.Calls, 1)
	assert.Equal(t, "hello", fake.Calls[0].Bundle.Sections["greeting"])
}

func TestScheduler_NoContextAssemblerDispatchesZeroBundle(t *testing.T) {
	store := newTestStore(t)
	task, err := store.Create(taskstore.TaskInit{Project: "p", Title: "t"})
	require.NoError(t, err)
	_, err = store.Transition(task.ID, taskstore.StatusReady, "")
	require.NoError(t, err)

	fake := &executor.Fake{}
	sched := newTestScheduler(t, store, fake)

	_, err = sched.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, fake.Calls, 1)
	assert.Empty(t, fake.Calls[0].Bundle.Sections)
}
