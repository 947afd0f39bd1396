package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seldon-Engine/aof/internal/eventlog"
)

func TestPolicy_MatchesFirstRuleAndRendersTemplate(t *testing.T) {
	p := NewPolicy([]Rule{
		{ID: "lease-expired", Match: Match{EventType: "lease.expired"}, Template: "task {taskId} lease expired"},
	})

	rendered, ok := p.Evaluate(eventlog.Event{Type: "lease.expired", TaskID: "TASK-1"}, time.Now())
	require.True(t, ok)
	assert.Equal(t, "task TASK-1 lease expired", rendered.Text)
	assert.Equal(t, SeverityInfo, rendered.Severity)
}

func TestPolicy_AlwaysCriticalEventsEscalate(t *testing.T) {
	p := NewPolicy([]Rule{
		{ID: "deadletter", Match: Match{EventType: "lease.deadletter"}, Severity: SeverityInfo, Template: "{taskId} deadlettered"},
	})

	rendered, ok := p.Evaluate(eventlog.Event{Type: "lease.deadletter", TaskID: "TASK-1"}, time.Now())
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, rendered.Severity)
}

func TestPolicy_DedupeSuppressesWithinWindow(t *testing.T) {
	window := time.Minute
	p := NewPolicy([]Rule{
		{ID: "r", Match: Match{EventType: "task.blocked"}, DedupeWindow: &window, Template: "blocked"},
	})
	now := time.Now()

	_, ok := p.Evaluate(eventlog.Event{Type: "task.blocked", TaskID: "TASK-1"}, now)
	require.True(t, ok)

	_, ok = p.Evaluate(eventlog.Event{Type: "task.blocked", TaskID: "TASK-1"}, now.Add(30*time.Second))
	assert.False(t, ok)

	_, ok = p.Evaluate(eventlog.Event{Type: "task.blocked", TaskID: "TASK-1"}, now.Add(2*time.Minute))
	assert.True(t, ok)
}

func TestPolicy_PayloadSubsetMatch(t *testing.T) {
	p := NewPolicy([]Rule{
		{ID: "r", Match: Match{EventType: "task.transitioned", Payload: map[string]any{"to": "deadletter"}}, Template: "dead"},
	})

	_, ok := p.Evaluate(eventlog.Event{Type: "task.transitioned", Payload: map[string]any{"to": "ready"}}, time.Now())
	assert.False(t, ok)

	_, ok = p.Evaluate(eventlog.Event{Type: "task.transitioned", Payload: map[string]any{"to": "deadletter"}}, time.Now())
	assert.True(t, ok)
}

func TestPolicy_DedupeFallsBackToPolicyDefaultWindow(t *testing.T) {
	p := NewPolicyWithDefaultWindow([]Rule{
		{ID: "created", Match: Match{EventType: "task.created"}, Template: "created {taskId}"},
	}, 300*time.Second)
	now := time.Now()

	_, ok := p.Evaluate(eventlog.Event{Type: "task.created", TaskID: "TASK-1"}, now)
	require.True(t, ok)

	_, ok = p.Evaluate(eventlog.Event{Type: "task.created", TaskID: "TASK-1"}, now.Add(time.Second))
	assert.False(t, ok, "second event within the default dedupe window must be suppressed")
}

func TestPolicy_ExplicitZeroDedupeWindowAlwaysSends(t *testing.T) {
	zero := time.Duration(0)
	p := NewPolicy([]Rule{
		{ID: "always", Match: Match{EventType: "task.created"}, DedupeWindow: &zero, Template: "created {taskId}"},
	})
	now := time.Now()

	_, ok := p.Evaluate(eventlog.Event{Type: "task.created", TaskID: "TASK-1"}, now)
	require.True(t, ok)

	_, ok = p.Evaluate(eventlog.Event{Type: "task.created", TaskID: "TASK-1"}, now)
	assert.True(t, ok, "an explicit zero dedupe window disables suppression")
}

func TestFanout_DeliversToDefaultChannelAdaptersDespiteOneFailing(t *testing.T) {
	good := &recordingAdapter{}
	bad := &failingAdapter{}
	fan := NewFanout(nil, bad, good)

	err := fan.Deliver(context.Background(), Rendered{Text: "hi"})
	assert.Error(t, err)
	require.Len(t, good.received, 1)
	assert.Equal(t, "hi", good.received[0].Text)
}

func TestFanout_RoutesByChannelAndKeepsDefaultAsCatchAll(t *testing.T) {
	ops := &recordingAdapter{}
	slack := &recordingAdapter{}
	fan := NewFanout(nil, ops)
	fan.RegisterChannel("slack", slack)

	require.NoError(t, fan.Deliver(context.Background(), Rendered{Channel: "slack", Text: "to slack"}))
	require.NoError(t, fan.Deliver(context.Background(), Rendered{Text: "to default"}))

	require.Len(t, slack.received, 1)
	assert.Equal(t, "to slack", slack.received[0].Text)
	require.Len(t, ops.received, 2)
	assert.Equal(t, "to slack", ops.received[0].Text)
	assert.Equal(t, "to default", ops.received[1].Text)
}

type recordingAdapter struct{ received []Rendered }

func (r *recordingAdapter) Deliver(_ context.Context, n Rendered) error {
	r.received = append(r.received, n)
	return nil
}

type failingAdapter struct{}

func (failingAdapter) Deliver(context.Context, Rendered) error {
	return assert.AnError
}
