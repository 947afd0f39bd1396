package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Seldon-Engine/aof/internal/eventlog"
	"github.com/Seldon-Engine/aof/internal/notify"
)

func newNotificationsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect and exercise the notification rule set",
	}
	cmd.AddCommand(newNotificationsTestCommand(a))
	return cmd
}

func newNotificationsTestCommand(a *app) *cobra.Command {
	var eventType, taskID string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a synthetic event through the notification policy and print the rendered result",
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesPath := filepath.Join(a.root, notify.RulesFileName)
			policy := notify.NewPolicy(nil)
			if _, err := os.Stat(rulesPath); err == nil {
				if _, err := notify.NewRuleWatcher(rulesPath, policy, nil); err != nil {
					fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("load %s: %v", rulesPath, err)))
					os.Exit(1)
				}
			}

			ev := eventlog.Event{
				EventID:   1,
				Type:      eventType,
				Timestamp: time.Now().UTC(),
				Actor:     "aof-cli",
				TaskID:    taskID,
				Payload:   map[string]any{},
			}

			rendered, matched := policy.Evaluate(ev, time.Now().UTC())
			if !matched {
				fmt.Println(gray("no rule matched event type " + eventType))
				return nil
			}
			fmt.Println(ok(fmt.Sprintf("[%s] %s", rendered.Severity, rendered.Text)))
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "event", "task.transitioned", "event type to simulate")
	cmd.Flags().StringVar(&taskID, "task-id", "T-TEST", "task id to simulate the event against")
	return cmd
}
