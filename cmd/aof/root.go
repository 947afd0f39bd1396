package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seldon-Engine/aof/internal/eventlog"
	"github.com/Seldon-Engine/aof/internal/logging"
	"github.com/Seldon-Engine/aof/internal/tasklock"
	"github.com/Seldon-Engine/aof/internal/taskstore"
)

// app carries the shared configuration every subcommand resolves against:
// the data root, plus lazily-constructed store/event-log handles so a
// one-shot command like "task list" doesn't pay for a daemon's worth of
// wiring.
type app struct {
	root string
}

// store builds a Store wired to events so every mutating operation this
// command performs appends exactly one event, same as the daemon's poll
// loop. Pass a.events() (or a shared *eventlog.Logger, e.g. the daemon's
// own) so two independent loggers never race appends into the same
// rotated file with overlapping eventIds.
func (a *app) store(events *eventlog.Logger) *taskstore.Store {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := logging.New("aof-cli", level, os.Stderr)
	s := taskstore.NewStore(filepath.Join(a.root, "tasks"), taskstore.WithLogger(logger), taskstore.WithEventSink(events))
	if err := s.Load(); err != nil {
		fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("load task store: %v", err)))
		os.Exit(2)
	}
	return s
}

func (a *app) events() *eventlog.Logger {
	return eventlog.New(filepath.Join(a.root, "events"), eventlog.WithActor("aof-cli"))
}

func (a *app) locks() *tasklock.Manager {
	return tasklock.New()
}

// NewRootCommand builds the aof command tree: daemon, task, org, and
// notifications noun groups per the CLI surface contract.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "aof",
		Short:         "Deterministic orchestration fabric for multi-agent workflows",
		Long:          "aof schedules, gates, and audits tasks worked by multiple agents against a file-backed task store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			root := viper.GetString("root")
			if root == "" {
				var err error
				root, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			a.root = root
			return nil
		},
	}

	rootCmd.PersistentFlags().String("root", "", "orchestration data root (default: $AOF_ROOT or cwd)")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	viper.SetEnvPrefix("aof")
	viper.AutomaticEnv()
	viper.SetConfigName("aof-config")
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("reading config: %v", err)))
		}
	}

	rootCmd.AddCommand(newDaemonCommand(a))
	rootCmd.AddCommand(newTaskCommand(a))
	rootCmd.AddCommand(newOrgCommand(a))
	rootCmd.AddCommand(newNotificationsCommand(a))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the aof version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("aof 0.1.0")
			return nil
		},
	}
}

