package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Seldon-Engine/aof/internal/ctxbundle"
	aofdaemon "github.com/Seldon-Engine/aof/internal/daemon"
	"github.com/Seldon-Engine/aof/internal/executor"
	"github.com/Seldon-Engine/aof/internal/logging"
	"github.com/Seldon-Engine/aof/internal/murmur"
	"github.com/Seldon-Engine/aof/internal/notify"
	"github.com/Seldon-Engine/aof/internal/scheduler"
	"github.com/Seldon-Engine/aof/internal/warm"
)

func newDaemonCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and manage the orchestration daemon",
	}
	cmd.AddCommand(newDaemonStartCommand(a))
	cmd.AddCommand(newDaemonStopCommand(a))
	cmd.AddCommand(newDaemonStatusCommand(a))
	cmd.AddCommand(newDaemonInstallCommand(a))
	cmd.AddCommand(newDaemonUninstallCommand(a))
	return cmd
}

func pidFilePath(root string) string { return filepath.Join(root, "daemon.pid") }
func socketPath(root string) string  { return filepath.Join(root, "daemon.sock") }

func newDaemonStartCommand(a *app) *cobra.Command {
	var foreground bool
	var posthogKey, posthogHost string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !foreground {
				fmt.Println(gray("running in the foreground; use your process manager or 'daemon install' for a supervised service"))
			}

			logger := logging.New("aof-daemon", slog.LevelInfo, os.Stderr)
			events := a.events()
			store := a.store(events)
			locks := a.locks()

			sched := scheduler.New(scheduler.DefaultConfig(), store, locks, executor.Nop{}, logger)
			sched.WithContextAssembler(ctxbundle.New(
				ctxbundle.BudgetPolicy{Target: 8000, Warn: 12000, Critical: 16000},
				ctxbundle.FilesystemResolver{Base: a.root},
				ctxbundle.SkillResolver{Base: filepath.Join(a.root, "skills")},
			))
			aggregator := warm.New(filepath.Join(a.root, "events"), filepath.Join(a.root, "warm"), logger)
			aggregator.Register(warm.RecentCompletionsRule(), warm.StatusSummaryRule())
			policy := notify.NewPolicy(nil)
			rulesPath := filepath.Join(a.root, notify.RulesFileName)
			if _, err := os.Stat(rulesPath); err == nil {
				watcher, err := notify.NewRuleWatcher(rulesPath, policy, logger)
				if err != nil {
					return fmt.Errorf("load %s: %w", rulesPath, err)
				}
				if err := watcher.Start(); err != nil {
					return fmt.Errorf("watch %s: %w", rulesPath, err)
				}
				defer watcher.Stop()
			}

			adapters := []notify.Adapter{notify.NewWriterAdapter(os.Stderr)}
			if posthogKey != "" {
				ph, err := notify.NewPostHogAdapter(posthogKey, posthogHost)
				if err != nil {
					return fmt.Errorf("posthog adapter: %w", err)
				}
				defer ph.Close()
				adapters = append(adapters, ph)
			}

			d := aofdaemon.New(aofdaemon.Config{
				DataDir:             a.root,
				PollInterval:        scheduler.DefaultConfig().PollInterval,
				ProvidersConfigured: 0,
				WarmInterval:        time.Minute,
			}, store, events, sched, aggregator, policy, logger, adapters...)

			murmurCfg, err := murmur.LoadTriggerConfig(filepath.Join(a.root, "org", "murmur-triggers.json"))
			if err != nil {
				return err
			}
			if len(murmurCfg.Teams) > 0 {
				ctrl := murmur.New(filepath.Join(a.root, ".murmur"), locks)
				d = d.WithMurmur(ctrl, murmurCfg.Teams, time.Minute)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := writePIDFile(pidFilePath(a.root)); err != nil {
				return err
			}
			defer os.Remove(pidFilePath(a.root))

			if err := d.Start(ctx); err != nil {
				return err
			}
			fmt.Println(ok(fmt.Sprintf("daemon listening on %s", socketPath(a.root))))

			<-ctx.Done()
			fmt.Println(gray("shutting down"))

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
			defer cancel()
			return d.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", true, "run attached to this terminal")
	cmd.Flags().StringVar(&posthogKey, "posthog-api-key", "", "mirror notifications to PostHog as captured events")
	cmd.Flags().StringVar(&posthogHost, "posthog-host", "", "PostHog endpoint override (default: PostHog cloud)")
	return cmd
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func newDaemonStopCommand(a *app) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal a running daemon to shut down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(pidFilePath(a.root))
			if err != nil {
				fmt.Fprintln(os.Stderr, fail("no pid file; is the daemon running with this --root?"))
				os.Exit(1)
			}
			pid, err := strconv.Atoi(string(bytes.TrimSpace(data)))
			if err != nil {
				fmt.Fprintln(os.Stderr, fail("malformed pid file"))
				os.Exit(1)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(err.Error()))
				os.Exit(1)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("signal pid %d: %v", pid, err)))
				os.Exit(1)
			}
			fmt.Println(ok(fmt.Sprintf("sent SIGTERM to pid %d", pid)))

			if wait > 0 {
				if err := aofdaemon.WaitForExit(pid, wait); err != nil {
					fmt.Fprintln(os.Stderr, fail(err.Error()))
					os.Exit(1)
				}
				fmt.Println(ok(fmt.Sprintf("pid %d exited", pid)))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "block until the process has actually exited, or this timeout elapses")
	return cmd
}

func newDaemonStatusCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the daemon's health over its Unix-domain socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := unixHTTPClient(socketPath(a.root))
			resp, err := client.Get("http://unix/status")
			if err != nil {
				fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("connect to %s: %v", socketPath(a.root), err)))
				os.Exit(1)
			}
			defer resp.Body.Close()

			var status aofdaemon.HealthStatus
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				fmt.Fprintln(os.Stderr, fail(fmt.Sprintf("decode status: %v", err)))
				os.Exit(1)
			}

			if status.Status == aofdaemon.StatusHealthy {
				fmt.Println(ok(fmt.Sprintf("%s (uptime %.0fs, version %s)", status.Status, status.UptimeS, status.Version)))
			} else {
				fmt.Println(fail(string(status.Status)))
			}
			fmt.Printf("tasks: backlog/ready/in-progress/blocked/done = %d/%d/%d/%d/%d\n",
				status.TaskCounts.Open, status.TaskCounts.Ready, status.TaskCounts.InProgress, status.TaskCounts.Blocked, status.TaskCounts.Done)
			if status.Status != aofdaemon.StatusHealthy {
				os.Exit(1)
			}
			return nil
		},
	}
	return cmd
}

func unixHTTPClient(path string) *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		},
	}
}

const systemdUnitTemplate = `[Unit]
Description=aof orchestration daemon
After=network.target

[Service]
ExecStart=%s daemon start --root %s
Restart=on-failure
Environment=AOF_ROOT=%s

[Install]
WantedBy=multi-user.target
`

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.aof.daemon</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>daemon</string>
        <string>start</string>
        <string>--root</string>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`

func newDaemonInstallCommand(a *app) *cobra.Command {
	var unitPath string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write a systemd unit (Linux) or launchd plist (macOS) for the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			if unitPath == "" {
				if runtime.GOOS == "darwin" {
					unitPath = filepath.Join(a.root, "com.aof.daemon.plist")
				} else {
					unitPath = filepath.Join(a.root, "aof-daemon.service")
				}
			}

			var content string
			if runtime.GOOS == "darwin" {
				content = fmt.Sprintf(launchdPlistTemplate, exe, a.root)
			} else {
				content = fmt.Sprintf(systemdUnitTemplate, exe, a.root, a.root)
			}
			if err := os.WriteFile(unitPath, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Println(ok(fmt.Sprintf("wrote %s", unitPath)))
			if runtime.GOOS == "darwin" {
				fmt.Println(gray(fmt.Sprintf("next: launchctl load %s", unitPath)))
			} else {
				fmt.Println(gray(fmt.Sprintf("next: sudo cp %s /etc/systemd/system/ && sudo systemctl enable --now aof-daemon", unitPath)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&unitPath, "output", "", "path to write the unit/plist file")
	return cmd
}

func newDaemonUninstallCommand(a *app) *cobra.Command {
	var unitPath string
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove a previously installed systemd unit or launchd plist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unitPath == "" {
				if runtime.GOOS == "darwin" {
					unitPath = filepath.Join(a.root, "com.aof.daemon.plist")
				} else {
					unitPath = filepath.Join(a.root, "aof-daemon.service")
				}
			}
			if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Println(ok(fmt.Sprintf("removed %s", unitPath)))
			if runtime.GOOS == "darwin" {
				fmt.Println(gray("remember to launchctl unload the plist if it was loaded"))
			} else {
				fmt.Println(gray("remember to systemctl disable --now aof-daemon if it was enabled"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&unitPath, "path", "", "path of the unit/plist file to remove")
	return cmd
}
