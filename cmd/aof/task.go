package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/gate"
	"github.com/Seldon-Engine/aof/internal/lease"
	"github.com/Seldon-Engine/aof/internal/project"
	"github.com/Seldon-Engine/aof/internal/taskstore"
)

func gateEngine() *gate.Engine {
	return gate.New(nil)
}

// resolveWorkflow loads t's project manifest and returns the gate
// workflow it should gate against, if any (projects with no workflow
// block have no gating). A missing project manifest is not an
// error here: it just means the task's project has no gating, same as a
// manifest with no workflow block.
func (a *app) resolveWorkflow(t *taskstore.Task) (gate.Workflow, bool, error) {
	m, err := project.LoadByID(filepath.Join(a.root, "Projects"), t.Project)
	if err != nil {
		if aoferrors.KindOf(err) == aoferrors.KindNotFound {
			return gate.Workflow{}, false, nil
		}
		return gate.Workflow{}, false, err
	}
	wf, ok := m.ResolveWorkflow()
	return wf, ok, nil
}

func newTaskCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, transition, and inspect tasks",
	}
	cmd.AddCommand(newTaskCreateCommand(a))
	cmd.AddCommand(newTaskUpdateCommand(a))
	cmd.AddCommand(newTaskReviewCommand(a))
	cmd.AddCommand(newTaskBlockCommand(a))
	cmd.AddCommand(newTaskUnblockCommand(a))
	cmd.AddCommand(newTaskDispatchCommand(a))
	cmd.AddCommand(newTaskCompleteCommand(a))
	cmd.AddCommand(newTaskListCommand(a))
	return cmd
}

func newTaskCreateCommand(a *app) *cobra.Command {
	var (
		project     string
		title       string
		priority    string
		role        string
		workflow    string
		agent       string
		tags        []string
		dependsOn   []string
		body        string
		contextRefs []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task in the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			var metadata map[string]any
			if len(contextRefs) > 0 {
				refs := make([]interface{}, len(contextRefs))
				for i, r := range contextRefs {
					refs[i] = r
				}
				metadata = map[string]any{"contextRefs": refs}
			}
			t, err := s.Create(taskstore.TaskInit{
				Project:   project,
				Title:     title,
				Priority:  taskstore.Priority(priority),
				Routing:   taskstore.Routing{Role: role, Workflow: workflow, Tags: tags, Agent: agent},
				CreatedBy: "aof-cli",
				DependsOn: dependsOn,
				Body:      body,
				Metadata:  metadata,
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("created task %s", t.ID)))
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&priority, "priority", string(taskstore.PriorityNormal), "priority: high|normal|low")
	cmd.Flags().StringVar(&role, "role", "", "routing role")
	cmd.Flags().StringVar(&workflow, "workflow", "", "routing workflow")
	cmd.Flags().StringVar(&agent, "agent", "", "routing agent")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "routing tag (repeatable)")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "blocker task id (repeatable)")
	cmd.Flags().StringVar(&body, "body", "", "Markdown body")
	cmd.Flags().StringSliceVar(&contextRefs, "context-ref", nil, "context reference resolved into the executor's dispatch bundle (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskUpdateCommand(a *app) *cobra.Command {
	var status, reason string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Transition a task to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			toStatus := taskstore.Status(status)

			if toStatus == taskstore.StatusReview {
				t, err := s.Get(args[0])
				if err != nil {
					fmt.Fprintln(os.Stderr, fail(err.Error()))
					os.Exit(1)
				}
				workflow, hasWorkflow, err := a.resolveWorkflow(t)
				if err != nil {
					fmt.Fprintln(os.Stderr, fail(err.Error()))
					os.Exit(1)
				}
				var gateState *taskstore.GateState
				if hasWorkflow {
					if gs, active := gateEngine().Start(workflow, t.Routing.Tags, t.Metadata); active {
						gateState = gs
					} else {
						// no gate is active for this task's tags/metadata; skip review entirely
						t, err = s.Transition(args[0], taskstore.StatusDone, "no active gate")
						if err != nil {
							fmt.Fprintln(os.Stderr, fail(err.Error()))
							os.Exit(1)
						}
						fmt.Println(ok(fmt.Sprintf("%s -> %s", t.ID, t.Status)))
						return nil
					}
				}
				t, err = s.EnterReview(args[0], gateState)
				if err != nil {
					fmt.Fprintln(os.Stderr, fail(err.Error()))
					os.Exit(1)
				}
				fmt.Println(ok(fmt.Sprintf("%s -> %s", t.ID, t.Status)))
				return nil
			}

			t, err := s.Transition(args[0], toStatus, reason)
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("%s -> %s", t.ID, t.Status)))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the transition")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

// newTaskReviewCommand applies a gate decision to a task currently
// awaiting review: approved advances (or finishes) the workflow, rejected
// bounces it back per the gate's rejectionStrategy.
func newTaskReviewCommand(a *app) *cobra.Command {
	var outcome, actor, summary, notes string
	cmd := &cobra.Command{
		Use:   "review <task-id>",
		Short: "Record a gate decision (approved|rejected) against a task in review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			t, err := s.Get(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			workflow, hasWorkflow, err := a.resolveWorkflow(t)
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			if !hasWorkflow {
				fmt.Fprintln(os.Stderr, fail("project "+t.Project+" has no workflow configured"))
				os.Exit(1)
			}

			decision, err := gateEngine().HandleGateTransition(t, workflow, taskstore.GateOutcome(outcome), actor, summary, notes)
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			t, err = s.ApplyGateDecision(args[0], decision.ToStatus, decision.NewGate, decision.MetadataPatch, "")
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("%s: %s -> %s", t.ID, outcome, t.Status)))
			return nil
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "gate outcome: approved|rejected")
	cmd.Flags().StringVar(&actor, "agent", "aof-cli", "actor recorded on the gate history entry")
	cmd.Flags().StringVar(&summary, "summary", "", "summary recorded on the gate history entry")
	cmd.Flags().StringVar(&notes, "notes", "", "notes recorded on the gate history entry")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func newTaskBlockCommand(a *app) *cobra.Command {
	var reason string
	var blockers []string
	cmd := &cobra.Command{
		Use:   "block <task-id>",
		Short: "Move a task to blocked, recording the blocking task ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			var t *taskstore.Task
			var err error
			if len(blockers) > 0 {
				engine := gateEngine()
				decision := engine.Blocked(blockers, reason)
				t, err = s.ApplyGateDecision(args[0], decision.ToStatus, decision.NewGate, decision.MetadataPatch, reason)
			} else {
				t, err = s.Block(args[0], reason)
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("blocked %s", t.ID)))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "block reason")
	cmd.Flags().StringSliceVar(&blockers, "blocked-by", nil, "id of a task blocking this one (repeatable)")
	return cmd
}

func newTaskUnblockCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unblock <task-id>",
		Short: "Move a blocked task back to ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			t, err := s.Unblock(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("unblocked %s", t.ID)))
			return nil
		},
	}
	return cmd
}

func newTaskDispatchCommand(a *app) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "dispatch <task-id>",
		Short: "Manually dispatch one ready task, bypassing the scheduler's poll loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			resolved, err := s.DependsOnResolved(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			if !resolved {
				fmt.Fprintln(os.Stderr, fail("task has unresolved dependencies"))
				os.Exit(1)
			}
			t, err := s.Transition(args[0], taskstore.StatusInProgress, "manual dispatch")
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			leases := lease.New(s, lease.DefaultPolicy())
			if _, err := leases.AcquireForDispatch(t.ID, agentID); err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("dispatched %s to %s", t.ID, agentID)))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "cli", "agent id claiming the lease")
	return cmd
}

func newTaskCompleteCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			t, err := s.Transition(args[0], taskstore.StatusDone, "completed")
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("completed %s", t.ID)))
			return nil
		},
	}
	return cmd
}

func newTaskListCommand(a *app) *cobra.Command {
	var project, status, agentFilter string
	var tags []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store(a.events())
			tasks := s.List(taskstore.Filter{
				Project: project,
				Status:  taskstore.Status(status),
				Agent:   agentFilter,
				Tags:    tags,
			})
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tPROJECT\tTITLE")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.Project, t.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "filter by project")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&agentFilter, "agent", "", "filter by routing agent")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "filter by routing tag (repeatable, all must match)")
	return cmd
}
