package warm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seldon-Engine/aof/internal/eventlog"
)

func writeColdDay(t *testing.T, dir, day string, events []eventlog.Event) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, day+".jsonl"))
	require.NoError(t, err)
	defer f.Close()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		_, err = f.Write(append(data, '\n'))
		require.NoError(t, err)
	}
}

func TestAggregator_RunWritesWarmDocOnMatch(t *testing.T) {
	coldDir := t.TempDir()
	warmDir := t.TempDir()
	writeColdDay(t, coldDir, "2026-07-01", []eventlog.Event{
		{EventID: 1, Type: "task.created", TaskID: "TASK-1"},
		{EventID: 2, Type: "task.dispatched", TaskID: "TASK-1"},
	})

	agg := New(coldDir, warmDir, nil)
	var seen int
	agg.Register(Rule{
		ID:         "created-count",
		Filter:     func(ev eventlog.Event) bool { return ev.Type == "task.created" },
		Aggregate:  func(events []eventlog.Event) string { seen = len(events); return "count: 1\n" },
		OutputPath: "created.md",
	})

	result, err := agg.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.WarmDocsUpdated)
	assert.Equal(t, 1, seen)

	data, err := os.ReadFile(filepath.Join(warmDir, "created.md"))
	require.NoError(t, err)
	assert.Equal(t, "count: 1\n", string(data))
}

func TestAggregator_SecondRunWithNoNewEventsIsIdempotent(t *testing.T) {
	coldDir := t.TempDir()
	warmDir := t.TempDir()
	writeColdDay(t, coldDir, "2026-07-01", []eventlog.Event{{EventID: 1, Type: "task.created", TaskID: "TASK-1"}})

	agg := New(coldDir, warmDir, nil)
	agg.Register(Rule{
		ID:         "r",
		Filter:     func(ev eventlog.Event) bool { return true },
		Aggregate:  func(events []eventlog.Event) string { return "x\n" },
		OutputPath: "r.md",
	})

	first, err := agg.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, first.WarmDocsUpdated)

	second, err := agg.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, second.WarmDocsUpdated)
}

func TestAggregator_OversizedOutputRejectedButRuleStaysActive(t *testing.T) {
	coldDir := t.TempDir()
	warmDir := t.TempDir()
	writeColdDay(t, coldDir, "2026-07-01", []eventlog.Event{{EventID: 1, Type: "task.created"}})

	agg := New(coldDir, warmDir, nil)
	huge := make([]byte, maxWarmDocBytes+1)
	agg.Register(Rule{
		ID:         "huge",
		Filter:     func(ev eventlog.Event) bool { return true },
		Aggregate:  func(events []eventlog.Event) string { return string(huge) },
		OutputPath: "huge.md",
	})

	result, err := agg.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, result.WarmDocsUpdated)
	require.Contains(t, result.Errors, "huge")

	_, statErr := os.Stat(filepath.Join(warmDir, "huge.md"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAggregator_ErrorInOneRuleDoesNotAbortOthers(t *testing.T) {
	coldDir := t.TempDir()
	warmDir := t.TempDir()
	writeColdDay(t, coldDir, "2026-07-01", []eventlog.Event{{EventID: 1, Type: "task.created"}})

	agg := New(coldDir, warmDir, nil)
	huge := make([]byte, maxWarmDocBytes+1)
	agg.Register(
		Rule{ID: "huge", Filter: func(eventlog.Event) bool { return true }, Aggregate: func([]eventlog.Event) string { return string(huge) }, OutputPath: "huge.md"},
		Rule{ID: "ok", Filter: func(eventlog.Event) bool { return true }, Aggregate: func([]eventlog.Event) string { return "ok\n" }, OutputPath: "ok.md"},
	)

	result, err := agg.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.WarmDocsUpdated)
	assert.Contains(t, result.Errors, "huge")

	_, statErr := os.Stat(filepath.Join(warmDir, "ok.md"))
	assert.NoError(t, statErr)
}

func TestAggregator_BuiltinRulesRender(t *testing.T) {
	coldDir := t.TempDir()
	warmDir := t.TempDir()
	require.NoError(t, os.MkdirAll(coldDir, 0o755))

	now := time.Now().UTC()
	rule := RecentCompletionsRule()
	text := rule.Aggregate([]eventlog.Event{{TaskID: "TASK-9", Timestamp: now, Actor: "daemon"}})
	assert.Contains(t, text, "TASK-9")

	summaryRule := StatusSummaryRule()
	summary := summaryRule.Aggregate([]eventlog.Event{{Payload: map[string]any{"to": "done"}}})
	assert.Contains(t, summary, "done: 1")
}
