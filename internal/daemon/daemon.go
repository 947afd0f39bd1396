// Package daemon is the composition root wiring TaskStore, Scheduler,
// EventLogger, WarmAggregator, and NotificationPolicy into one long-lived
// process with a Unix-socket health endpoint.
package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Seldon-Engine/aof/internal/eventlog"
	"github.com/Seldon-Engine/aof/internal/logging"
	"github.com/Seldon-Engine/aof/internal/murmur"
	"github.com/Seldon-Engine/aof/internal/notify"
	"github.com/Seldon-Engine/aof/internal/scheduler"
	"github.com/Seldon-Engine/aof/internal/taskstore"
	"github.com/Seldon-Engine/aof/internal/warm"
)

// Version is stamped at build time in real deployments; left as a plain
// constant here since this module ships no build pipeline of its own.
const Version = "0.1.0"

// Config bundles everything needed to construct a Daemon.
type Config struct {
	DataDir             string
	PollInterval        time.Duration
	ProvidersConfigured int
	WarmInterval        time.Duration
}

// Daemon owns the long-lived loop: scheduler ticks, warm aggregation on
// its own interval, and the health server. It implements StatusProvider.
type Daemon struct {
	cfg       Config
	store     *taskstore.Store
	events    *eventlog.Logger
	sched     *scheduler.Scheduler
	aggregator *warm.Aggregator
	policy    *notify.Policy
	notifier  *notify.Fanout
	health    *HealthServer
	metrics   *Metrics
	tracing   *sdktrace.TracerProvider
	logger    logging.Logger

	murmurCtrl     *murmur.Controller
	murmurTriggers map[string][]murmur.Trigger
	murmurInterval time.Duration

	mu        sync.Mutex
	warmDone  chan struct{}
	warmStop  chan struct{}
	muDone    chan struct{}
	muStop    chan struct{}
	startedAt time.Time
}

// New wires the daemon's subsystems given an already-constructed store,
// scheduler, and event logger (each has its own constructor with its own
// options; Daemon only composes them). Every rendered notification is
// delivered through a Fanout built from adapters; a daemon started with
// no adapters still evaluates the policy, but matched notifications are
// delivered nowhere and not logged.
func New(cfg Config, store *taskstore.Store, events *eventlog.Logger, sched *scheduler.Scheduler, aggregator *warm.Aggregator, policy *notify.Policy, logger logging.Logger, adapters ...notify.Adapter) *Daemon {
	logger = logging.OrNop(logger)
	d := &Daemon{
		cfg:        cfg,
		store:      store,
		events:     events,
		sched:      sched,
		aggregator: aggregator,
		policy:     policy,
		notifier:   notify.NewFanout(logger, adapters...),
		logger:     logger,
		warmStop:   make(chan struct{}),
		warmDone:   make(chan struct{}),
	}
	metrics := NewMetrics()
	d.metrics = metrics
	d.tracing = setupTracing()
	d.health = NewHealthServer(filepath.Join(cfg.DataDir, "daemon.sock"), Version, d, metrics, logger)
	events.OnEvent(d.onEvent)
	return d
}

// WithMurmur attaches the per-team review-cycle controller: ctrl holds
// the persistent per-team state, triggers maps team name to its ordered
// fire-condition list, and interval is how often the daemon evaluates
// them (independent of the scheduler's poll interval, same as warm
// aggregation). Call before Start; a Daemon with no murmur controller
// attached simply never evaluates review-cycle triggers.
func (d *Daemon) WithMurmur(ctrl *murmur.Controller, triggers map[string][]murmur.Trigger, interval time.Duration) *Daemon {
	d.murmurCtrl = ctrl
	d.murmurTriggers = triggers
	d.murmurInterval = interval
	return d
}

// onEvent evaluates every appended event against the notification policy
// and delivers any match through the configured fanout. Delivery failures
// are logged, never propagated back into the event logger's write path.
func (d *Daemon) onEvent(ev eventlog.Event) {
	rendered, matched := d.policy.Evaluate(ev, time.Now().UTC())
	if !matched {
		return
	}
	if err := d.notifier.Deliver(context.Background(), rendered); err != nil {
		d.logger.Warn("daemon: notification delivery failed: %v", err)
	}
}

// Start brings up the scheduler, the warm-aggregation loop, and the
// health server, in that order.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()

	if err := d.sched.Start(ctx); err != nil {
		return err
	}
	go d.warmLoop()
	if d.murmurCtrl != nil {
		d.muStop = make(chan struct{})
		d.muDone = make(chan struct{})
		go d.murmurLoop()
	}
	return d.health.Start()
}

// Shutdown flips shutting-down, stops the scheduler, drains with a
// deadline, then closes the health server.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.health.SetShuttingDown(true)

	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := d.sched.Drain(drainCtx); err != nil {
		d.logger.Warn("daemon: scheduler drain: %v", err)
	}

	close(d.warmStop)
	select {
	case <-d.warmDone:
	case <-time.After(5 * time.Second):
	}

	if d.murmurCtrl != nil {
		close(d.muStop)
		select {
		case <-d.muDone:
		case <-time.After(5 * time.Second):
		}
	}

	if err := shutdownTracing(ctx, d.tracing); err != nil {
		d.logger.Warn("daemon: tracer provider shutdown: %v", err)
	}

	return d.health.Close(ctx)
}

func (d *Daemon) warmLoop() {
	defer close(d.warmDone)
	interval := d.cfg.WarmInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.warmStop:
			return
		case <-ticker.C:
			if _, err := d.aggregator.Run(); err != nil {
				d.logger.Warn("daemon: warm aggregation failed: %v", err)
			}
		}
	}
}

// murmurLoop evaluates every configured team's review-cycle triggers
// once per murmurInterval, on its own ticker, independent of the
// scheduler's poll interval (same model as warmLoop). A fired trigger is
// recorded as an event; starting the actual review (creating the task,
// calling Controller.StartReview) is left to whatever consumes that
// event, since this package has no opinion on how a review task gets
// created.
func (d *Daemon) murmurLoop() {
	defer close(d.muDone)
	interval := d.murmurInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.muStop:
			return
		case <-ticker.C:
			d.evaluateMurmur()
		}
	}
}

func (d *Daemon) evaluateMurmur() {
	stats := d.store.CountByStatus()
	for team, triggers := range d.murmurTriggers {
		kind, fired, err := d.murmurCtrl.Evaluate(team, triggers, stats, d.store)
		if err != nil {
			d.logger.Warn("daemon: murmur evaluate team %s: %v", team, err)
			continue
		}
		if !fired {
			continue
		}
		if err := d.events.Emit("murmur.triggered", "", map[string]any{"team": team, "trigger": string(kind)}); err != nil {
			d.logger.Warn("daemon: murmur.triggered emit: %v", err)
		}
	}
}

// Status implements StatusProvider for the health server.
func (d *Daemon) Status() HealthStatus {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	counts := d.store.CountByStatus()
	lastPoll := d.sched.LastPollAt()
	lastEvent := d.events.LastEventAt()

	status := StatusHealthy
	if time.Since(lastPoll) >= 5*time.Minute && !lastPoll.IsZero() {
		status = StatusUnhealthy
	}

	return HealthStatus{
		Status:      status,
		Version:     Version,
		UptimeS:     time.Since(startedAt).Seconds(),
		LastPollAt:  lastPoll,
		LastEventAt: lastEvent,
		TaskCounts: TaskCounts{
			Open:       counts[taskstore.StatusBacklog],
			Ready:      counts[taskstore.StatusReady],
			InProgress: counts[taskstore.StatusInProgress],
			Blocked:    counts[taskstore.StatusBlocked],
			Done:       counts[taskstore.StatusDone],
		},
		Components: Components{
			Scheduler:   ComponentRunning,
			Store:       ComponentOK,
			EventLogger: ComponentOK,
		},
		Config: ConfigSummary{
			DataDir:             d.cfg.DataDir,
			PollIntervalMs:      d.cfg.PollInterval.Milliseconds(),
			ProvidersConfigured: d.cfg.ProvidersConfigured,
		},
	}
}
