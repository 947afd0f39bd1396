// Package executor defines the narrow contract between the scheduler and
// the external process that actually runs a dispatched task. Shaped like the teacher's own narrow
// Notifier/AgentCoordinator ports: one method, no hidden state.
package executor

import (
	"context"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/ctxbundle"
	"github.com/Seldon-Engine/aof/internal/taskstore"
)

// DispatchAction is the unit of work the scheduler hands to an executor.
// Bundle is the zero value when the scheduler has no context assembler
// configured, or when the task declares no context references.
type DispatchAction struct {
	Task    *taskstore.Task
	AgentID string
	Bundle  ctxbundle.Bundle
}

// RunResult is the executor's synchronous acknowledgement of a dispatch.
// Accepted means the executor has taken ownership of the task and a
// lease should be acquired; it does not mean the work has finished.
type RunResult struct {
	Accepted bool
	Reason   string
}

// Executor is the contract the scheduler dispatches through. Calls are
// wrapped in a circuit breaker by the caller so a failing executor
// degrades to AdapterError instead of blocking the poll loop.
type Executor interface {
	Dispatch(ctx context.Context, action DispatchAction) (RunResult, error)
}

// Nop always accepts every dispatch without doing anything, useful as a
// default when no real executor adapter is configured yet.
type Nop struct{}

// Dispatch implements Executor.
func (Nop) Dispatch(context.Context, DispatchAction) (RunResult, error) {
	return RunResult{Accepted: true}, nil
}

// Fake is a configurable Executor for tests: Responses supplies one
// (RunResult, error) pair per call, consumed in order; once exhausted, the
// last entry repeats. An empty Fake accepts everything.
type Fake struct {
	Responses []FakeResponse
	Calls     []DispatchAction

	calls int
}

// FakeResponse is one scripted reply for Fake.Dispatch.
type FakeResponse struct {
	Result RunResult
	Err    error
}

// Dispatch implements Executor.
func (f *Fake) Dispatch(_ context.Context, action DispatchAction) (RunResult, error) {
	f.Calls = append(f.Calls, action)
	if len(f.Responses) == 0 {
		f.calls++
		return RunResult{Accepted: true}, nil
	}
	idx := f.calls
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	f.calls++
	resp := f.Responses[idx]
	return resp.Result, resp.Err
}

// PlatformLimitResponse is a convenience for scripting a Fake to simulate
// an executor at capacity's PlatformLimit policy (stop further
// dispatches this tick, do not abort the poll).
func PlatformLimitResponse(op string) FakeResponse {
	return FakeResponse{Err: aoferrors.New(aoferrors.KindPlatformLimit, op, "executor at capacity", aoferrors.ErrPlatformLimit)}
}
