package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Seldon-Engine/aof/internal/logging"
)

// Adapter is the narrow delivery contract. This package ships stdout/file
// implementations (WriterAdapter, FileAdapter) and a PostHogAdapter; no
// chat-platform adapter is included.
type Adapter interface {
	Deliver(ctx context.Context, r Rendered) error
}

// defaultChannel is the routing key adapters passed to NewFanout are
// registered under: a rule with no Channel set delivers here, and every
// other channel's notifications are delivered here as well.
const defaultChannel = ""

// Fanout routes a rendered notification to the adapters registered for
// its Channel plus the default-channel adapters, which act as a
// catch-all for every channel. Within a channel's adapter
// list, every adapter is tried; individual failures are collected (not
// short-circuited on) so one broken sink never silences the others.
type Fanout struct {
	mu       sync.Mutex
	channels map[string][]Adapter
	logger   logging.Logger
}

// NewFanout builds a Fanout whose adapters are registered under the
// default channel, matching any rule that doesn't declare a Channel.
func NewFanout(logger logging.Logger, adapters ...Adapter) *Fanout {
	f := &Fanout{channels: make(map[string][]Adapter), logger: logging.OrNop(logger)}
	if len(adapters) > 0 {
		f.channels[defaultChannel] = adapters
	}
	return f
}

// RegisterChannel attaches adapters to a specific channel name. A
// Rendered notification whose Channel matches is delivered only to these
// adapters (plus any default-channel adapters, as a catch-all).
func (f *Fanout) RegisterChannel(channel string, adapters ...Adapter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channel] = append(f.channels[channel], adapters...)
}

// Deliver implements Adapter.
func (f *Fanout) Deliver(ctx context.Context, r Rendered) error {
	f.mu.Lock()
	targets := f.channels[r.Channel]
	if r.Channel != defaultChannel {
		targets = append(append([]Adapter(nil), targets...), f.channels[defaultChannel]...)
	}
	f.mu.Unlock()

	var firstErr error
	for _, a := range targets {
		if err := a.Deliver(ctx, r); err != nil {
			f.logger.Warn("notify: adapter delivery failed on channel %q: %v", r.Channel, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// WriterAdapter writes one line per notification to an io.Writer, e.g.
// stdout for an interactive CLI session or a log file for a daemon.
type WriterAdapter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterAdapter wraps w. Writes are serialized so interleaved
// deliveries never corrupt a line.
func NewWriterAdapter(w io.Writer) *WriterAdapter {
	if w == nil {
		w = os.Stdout
	}
	return &WriterAdapter{w: w}
}

// Deliver implements Adapter.
func (a *WriterAdapter) Deliver(_ context.Context, r Rendered) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.w, "[%s] %s\n", r.Severity, r.Text)
	return err
}

// FileAdapter appends one rendered notification per line to a file path,
// reopening the file for each delivery so external log rotation is safe.
type FileAdapter struct {
	path string
	mu   sync.Mutex
}

// NewFileAdapter targets path, creating parent directories lazily on
// first delivery.
func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

// Deliver implements Adapter.
func (a *FileAdapter) Deliver(_ context.Context, r Rendered) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "[%s] %s\n", r.Severity, r.Text)
	return err
}
