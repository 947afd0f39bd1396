package warm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Seldon-Engine/aof/internal/eventlog"
)

// RecentCompletionsRule summarizes tasks that reached "done" into a
// rolling Markdown list, most recent first.
func RecentCompletionsRule() Rule {
	return Rule{
		ID: "recent-completions",
		Filter: func(ev eventlog.Event) bool {
			return ev.Type == "task.transitioned" && ev.Payload["to"] == "done"
		},
		Aggregate: func(events []eventlog.Event) string {
			sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
			var b strings.Builder
			b.WriteString("# Recent Completions\n\n")
			for _, ev := range events {
				fmt.Fprintf(&b, "- %s — %s (%s)\n", ev.Timestamp.Format("2006-01-02 15:04"), ev.TaskID, ev.Actor)
			}
			return b.String()
		},
		OutputPath: "recent-completions.md",
	}
}

// StatusSummaryRule renders a per-status event-type tally, useful as a
// coarse at-a-glance view of vault activity.
func StatusSummaryRule() Rule {
	return Rule{
		ID: "status-summary",
		Filter: func(ev eventlog.Event) bool {
			return ev.Type == "task.transitioned"
		},
		Aggregate: func(events []eventlog.Event) string {
			counts := make(map[string]int)
			for _, ev := range events {
				if to, ok := ev.Payload["to"].(string); ok {
					counts[to]++
				}
			}
			statuses := make([]string, 0, len(counts))
			for s := range counts {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)

			var b strings.Builder
			b.WriteString("# Status Summary\n\n")
			for _, s := range statuses {
				fmt.Fprintf(&b, "- %s: %d\n", s, counts[s])
			}
			return b.String()
		},
		OutputPath: "status-summary.md",
	}
}
