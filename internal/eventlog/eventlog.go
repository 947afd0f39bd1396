// Package eventlog implements the append-only, daily-rotated JSONL event
// log: one file per UTC day, a best-effort "today" symlink, and a
// monotonic per-process eventId. Grounded on the teacher's
// internal/analytics/journal FileWriter (mutex-guarded single-append
// writes, os.MkdirAll on construction), generalized from one file per
// session to one file per day.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/logging"
)

// Event is one append-only log record. Events are never updated or deleted.
type Event struct {
	EventID   int64          `json:"eventId"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	TaskID    string         `json:"taskId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Subscriber is invoked after an event's write has returned successfully.
type Subscriber func(Event)

// Logger is the append-only event log. eventId resets to 1 each time the
// process restarts; the log file itself is the durable, canonical order.
type Logger struct {
	dir    string
	actor  string
	logger logging.Logger
	now    func() time.Time

	mu          sync.Mutex
	nextEventID int64
	lastEventAt time.Time

	subMu sync.Mutex
	subs  []Subscriber
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the internal diagnostic logger (distinct from the event log itself).
func WithLogger(l logging.Logger) Option { return func(lg *Logger) { lg.logger = logging.OrNop(l) } }

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option { return func(lg *Logger) { lg.now = now } }

// WithActor sets the default actor recorded on events, typically "daemon".
func WithActor(actor string) Option { return func(lg *Logger) { lg.actor = actor } }

// New creates a Logger appending under dir (typically <vault>/events).
func New(dir string, opts ...Option) *Logger {
	l := &Logger{
		dir:         dir,
		actor:       "daemon",
		logger:      logging.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
		nextEventID: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnEvent registers a subscriber invoked after every successful Emit.
func (l *Logger) OnEvent(sub Subscriber) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subs = append(l.subs, sub)
}

// Emit satisfies taskstore.EventSink and every other mutating component's
// event-emission contract.
func (l *Logger) Emit(eventType, taskID string, payload map[string]any) error {
	_, err := l.Append(eventType, taskID, payload)
	return err
}

// Append composes and writes one event line, returning the assigned event.
// Writes are line-atomic: the whole line, trailing newline included, is
// issued as a single append.
func (l *Logger) Append(eventType, taskID string, payload map[string]any) (Event, error) {
	if eventType == "" {
		return Event{}, aoferrors.New(aoferrors.KindValidation, "eventlog.Append", "event type is required", nil)
	}

	now := l.now()

	l.mu.Lock()
	id := l.nextEventID
	l.nextEventID++
	ev := Event{EventID: id, Type: eventType, Timestamp: now, Actor: l.actor, TaskID: taskID, Payload: payload}

	line, err := json.Marshal(ev)
	if err != nil {
		l.mu.Unlock()
		return Event{}, aoferrors.New(aoferrors.KindValidation, "eventlog.Append", "marshal event", err)
	}
	line = append(line, '\n')

	path := l.pathForDay(now)
	writeErr := l.appendLine(path, line)
	if writeErr == nil {
		l.relinkToday(path)
		l.lastEventAt = now
	}
	l.mu.Unlock()

	if writeErr != nil {
		return Event{}, aoferrors.New(aoferrors.KindFatalIO, "eventlog.Append", "append event line", writeErr)
	}

	l.notify(ev)
	return ev, nil
}

func (l *Logger) pathForDay(t time.Time) string {
	return filepath.Join(l.dir, t.Format("2006-01-02")+".jsonl")
}

func (l *Logger) appendLine(path string, line []byte) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			l.logger.Error("eventlog: close %s: %v", path, cerr)
		}
	}()
	_, err = f.Write(line)
	return err
}

// relinkToday best-effort repoints events/events.jsonl at today's file.
// Absence of the symlink is tolerated; a failure here never
// fails the Append call that triggered it.
func (l *Logger) relinkToday(path string) {
	link := filepath.Join(l.dir, "events.jsonl")
	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(filepath.Base(path), tmp); err != nil {
		l.logger.Warn("eventlog: create today symlink: %v", err)
		return
	}
	if err := os.Rename(tmp, link); err != nil {
		l.logger.Warn("eventlog: rename today symlink into place: %v", err)
		_ = os.Remove(tmp)
	}
}

func (l *Logger) notify(ev Event) {
	l.subMu.Lock()
	subs := append([]Subscriber(nil), l.subs...)
	l.subMu.Unlock()
	for _, sub := range subs {
		sub(ev)
	}
}

// LastEventAt returns the timestamp of the most recently appended event,
// or the zero time if none has been appended yet in this process. Read by
// the daemon's /status handler.
func (l *Logger) LastEventAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastEventAt
}

// Path returns the path events for day t are written to, for diagnostics
// and for the warm aggregator's cold-log scan.
func (l *Logger) Path(t time.Time) string { return l.pathForDay(t) }

// Dir returns the log's base directory.
func (l *Logger) Dir() string { return l.dir }
