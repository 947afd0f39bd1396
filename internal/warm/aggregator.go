// Package warm implements the rule-driven, incremental aggregation of
// cold (raw JSONL) event log files into size-bounded warm Markdown
// summaries. Grounded on the teacher's journal writer idiom
// (internal/analytics/journal/writer.go: mutex-guarded appends,
// os.MkdirAll on construction) combined with filestore.AtomicWrite for
// idempotent regeneration.
package warm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Seldon-Engine/aof/internal/aoferrors"
	"github.com/Seldon-Engine/aof/internal/eventlog"
	"github.com/Seldon-Engine/aof/internal/filestore"
	"github.com/Seldon-Engine/aof/internal/logging"
)

const maxWarmDocBytes = 150 * 1024

// Rule is one incremental aggregation: Filter selects which cold events
// feed Aggregate, whose rendered text is written to OutputPath under the
// aggregator's warm root.
type Rule struct {
	ID         string
	Filter     func(eventlog.Event) bool
	Aggregate  func(events []eventlog.Event) string
	OutputPath string // relative to the warm root, e.g. "recent-completions.md"
}

// highWaterMark is a rule's read position: the cold log file it last
// read and how many lines of that file it had consumed. Cold files are
// append-only and frozen once their day rolls over, so byte/line offsets
// never invalidate across runs.
type highWaterMark struct {
	file string
	line int
}

// Aggregator runs Rules against a cold event log directory, writing
// results under a warm root directory.
type Aggregator struct {
	coldDir string
	warmDir string
	logger  logging.Logger

	mu    sync.Mutex
	marks map[string]highWaterMark
	rules []Rule
}

// New creates an Aggregator reading coldDir and writing under warmDir.
func New(coldDir, warmDir string, logger logging.Logger) *Aggregator {
	return &Aggregator{
		coldDir: coldDir,
		warmDir: warmDir,
		logger:  logging.OrNop(logger),
		marks:   make(map[string]highWaterMark),
	}
}

// Register adds rules to the aggregator's rule set.
func (a *Aggregator) Register(rules ...Rule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, rules...)
}

// RunResult summarizes one aggregation pass.
type RunResult struct {
	WarmDocsUpdated int
	Errors          map[string]error // ruleID -> error, for rules that failed this run
}

// Run scans cold logs newer than each rule's high-water-mark, applies its
// filter and aggregate function, and writes the result if it changed. A
// failing rule is isolated: its high-water-mark is not advanced and other
// rules still run.
func (a *Aggregator) Run() (RunResult, error) {
	a.mu.Lock()
	rules := append([]Rule(nil), a.rules...)
	a.mu.Unlock()

	files, err := a.coldFiles()
	if err != nil {
		return RunResult{}, aoferrors.New(aoferrors.KindFatalIO, "warm.Run", "list cold logs", err)
	}

	result := RunResult{Errors: make(map[string]error)}
	for _, rule := range rules {
		updated, err := a.runRule(rule, files)
		if err != nil {
			result.Errors[rule.ID] = err
			a.logger.Warn("warm: rule %s failed: %v", rule.ID, err)
			continue
		}
		if updated {
			result.WarmDocsUpdated++
		}
	}
	return result, nil
}

func (a *Aggregator) runRule(rule Rule, files []string) (bool, error) {
	a.mu.Lock()
	mark := a.marks[rule.ID]
	a.mu.Unlock()

	events, newMark, err := a.readNewEvents(rule.ID, files, mark)
	if err != nil {
		return false, err
	}
	if len(events) == 0 {
		return false, nil
	}

	var matched []eventlog.Event
	for _, ev := range events {
		if rule.Filter == nil || rule.Filter(ev) {
			matched = append(matched, ev)
		}
	}

	advance := func() {
		a.mu.Lock()
		a.marks[rule.ID] = newMark
		a.mu.Unlock()
	}

	if len(matched) == 0 {
		advance()
		return false, nil
	}

	text := rule.Aggregate(matched)
	data := []byte(text)
	if len(data) > maxWarmDocBytes {
		return false, aoferrors.New(aoferrors.KindBudget, "warm.runRule", "warm document exceeds 150 KiB", aoferrors.ErrBudgetExceeded)
	}

	outPath := filepath.Join(a.warmDir, rule.OutputPath)
	existing, readErr := filestore.ReadFileOrEmpty(outPath)
	if readErr == nil && bytes.Equal(existing, data) {
		advance()
		return false, nil // idempotent: identical bytes, no rewrite
	}

	if err := filestore.AtomicWrite(outPath, data, 0o644); err != nil {
		return false, aoferrors.New(aoferrors.KindFatalIO, "warm.runRule", "write warm document", err)
	}
	advance()
	return true, nil
}

// readNewEvents reads every line beyond mark across files (sorted
// ascending, so older days are consumed before today's). Per-rule marks
// let independent rules progress through the same cold log at different
// rates.
func (a *Aggregator) readNewEvents(ruleID string, files []string, mark highWaterMark) ([]eventlog.Event, highWaterMark, error) {
	var out []eventlog.Event
	newMark := mark
	resumed := mark.file == ""

	for _, file := range files {
		if !resumed {
			if file == mark.file {
				resumed = true
			} else {
				continue
			}
		}
		startLine := 0
		if file == mark.file {
			startLine = mark.line
		}

		events, total, err := readEventsFrom(file, startLine)
		if err != nil {
			return nil, highWaterMark{}, aoferrors.New(aoferrors.KindFatalIO, "warm.readNewEvents", "read cold log "+file, err)
		}
		out = append(out, events...)
		newMark = highWaterMark{file: file, line: total}
	}

	_ = ruleID
	return out, newMark, nil
}

func readEventsFrom(path string, startLine int) ([]eventlog.Event, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, startLine, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	var events []eventlog.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line <= startLine {
			continue
		}
		var ev eventlog.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip a malformed line rather than abort the whole scan
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	return events, line, nil
}

// coldFiles lists the event log's day files in chronological order,
// excluding the best-effort "today" symlink.
func (a *Aggregator) coldFiles() ([]string, error) {
	entries, err := os.ReadDir(a.coldDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == "events.jsonl" {
			continue
		}
		if filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		out = append(out, filepath.Join(a.coldDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
