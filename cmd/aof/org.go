package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Seldon-Engine/aof/internal/drift"
	"github.com/Seldon-Engine/aof/internal/murmur"
)

func newOrgCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Inspect the organization of agents behind this orchestration fabric",
	}
	cmd.AddCommand(newOrgDriftCommand(a))
	cmd.AddCommand(newOrgMurmurCommand(a))
	return cmd
}

func (a *app) murmurController() *murmur.Controller {
	return murmur.New(filepath.Join(a.root, ".murmur"), a.locks())
}

func newOrgMurmurCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "murmur",
		Short: "Drive a team's review-cycle state",
	}
	cmd.AddCommand(newOrgMurmurStartReviewCommand(a))
	cmd.AddCommand(newOrgMurmurFinishReviewCommand(a))
	cmd.AddCommand(newOrgMurmurRecordCommand(a))
	return cmd
}

func newOrgMurmurStartReviewCommand(a *app) *cobra.Command {
	var team, taskID, triggeredBy string
	cmd := &cobra.Command{
		Use:   "start-review",
		Short: "Record that team is now under review for a task, resetting its counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.murmurController().StartReview(team, taskID, triggeredBy); err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("%s: review started for %s", team, taskID)))
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team name")
	cmd.Flags().StringVar(&taskID, "task", "", "id of the task carrying the review")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "manual", "trigger kind that started this review")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newOrgMurmurFinishReviewCommand(a *app) *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "finish-review",
		Short: "Clear a team's in-progress review marker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.murmurController().FinishReview(team); err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("%s: review finished", team)))
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team name")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func newOrgMurmurRecordCommand(a *app) *cobra.Command {
	var team, kind string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Increment a team's completion or failure counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.murmurController()
			var err error
			switch kind {
			case "completion":
				err = ctrl.RecordCompletion(team)
			case "failure":
				err = ctrl.RecordFailure(team)
			default:
				fmt.Fprintln(os.Stderr, fail("--kind must be completion or failure"))
				os.Exit(2)
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("%s: recorded %s", team, kind)))
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team name")
	cmd.Flags().StringVar(&kind, "kind", "", "completion|failure")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newOrgDriftCommand(a *app) *cobra.Command {
	var source, fixture, liveCommand string
	var liveArgs []string
	cmd := &cobra.Command{
		Use:   "drift <chart>",
		Short: "Compare a declared agent roster chart against the live or fixture roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			declaredRaw, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("read chart %s: %v", args[0], err)))
				os.Exit(2)
			}
			var declared []drift.Agent
			if err := json.Unmarshal(declaredRaw, &declared); err != nil {
				fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("parse chart %s: %v", args[0], err)))
				os.Exit(2)
			}

			var src drift.Source
			switch source {
			case "live":
				if liveCommand == "" {
					fmt.Fprintln(os.Stderr, fail("--source=live requires --command"))
					os.Exit(2)
				}
				src = drift.LiveSource{Command: liveCommand, Args: liveArgs}
			case "fixture", "":
				if fixture == "" {
					fmt.Fprintln(os.Stderr, fail("--source=fixture requires --fixture"))
					os.Exit(2)
				}
				src = drift.FixtureSource{Path: fixture}
			default:
				fmt.Fprintln(os.Stderr, fail("--source must be fixture or live"))
				os.Exit(2)
			}

			report, err := drift.Compare(cmd.Context(), declared, src)
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(2)
			}

			if report.Clean() {
				fmt.Println(ok("no drift detected"))
			} else {
				fmt.Println(fail("drift detected"))
				fmt.Println(drift.Summary(report))
			}
			os.Exit(drift.ExitCode(report))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "fixture", "roster source: fixture|live")
	cmd.Flags().StringVar(&fixture, "fixture", "", "path to a JSON roster fixture")
	cmd.Flags().StringVar(&liveCommand, "command", "", "external command to query for the live roster")
	cmd.Flags().StringSliceVar(&liveArgs, "command-arg", nil, "argument to pass to --command (repeatable)")
	return cmd
}
