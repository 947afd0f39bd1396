package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop_AlwaysAccepts(t *testing.T) {
	result, err := (Nop{}).Dispatch(context.Background(), DispatchAction{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestFake_EmptyAcceptsEverything(t *testing.T) {
	f := &Fake{}
	result, err := f.Dispatch(context.Background(), DispatchAction{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Len(t, f.Calls, 1)
}

func TestFake_ConsumesResponsesInOrderThenRepeatsLast(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{
		{Result: RunResult{Accepted: true}},
		{Err: errors.New("capacity exceeded")},
	}}

	r1, err1 := f.Dispatch(context.Background(), DispatchAction{})
	require.NoError(t, err1)
	assert.True(t, r1.Accepted)

	_, err2 := f.Dispatch(context.Background(), DispatchAction{})
	require.Error(t, err2)

	_, err3 := f.Dispatch(context.Background(), DispatchAction{})
	require.Error(t, err3)
	assert.Equal(t, 3, len(f.Calls))
}

func TestPlatformLimitResponse_ClassifiesAsPlatformLimit(t *testing.T) {
	f := &Fake{Responses: []FakeResponse{PlatformLimitResponse("Scheduler.dispatchReady")}}
	_, err := f.Dispatch(context.Background(), DispatchAction{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor at capacity")
}
