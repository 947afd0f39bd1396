package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Seldon-Engine/aof/internal/async"
	"github.com/Seldon-Engine/aof/internal/logging"
)

const defaultRuleWatchDebounce = 750 * time.Millisecond

// RulesFileName is the spec-mandated path, relative to the vault root, a
// RuleWatcher reads: <vault>/org/notification-rules.yaml.
const RulesFileName = "org/notification-rules.yaml"

var validSeverities = map[Severity]bool{
	"":               true, // unset, resolves to SeverityInfo
	SeverityInfo:     true,
	SeverityWarn:     true,
	SeverityCritical: true,
}

var validAudiences = map[string]bool{
	"agent":     true,
	"team-lead": true,
	"operator":  true,
}

// ruleDocument is the on-disk schema of notification-rules.yaml:
// {version:1, rules:[{match:{eventType, payload?}, severity?, audience?,
// channel, template, dedupeWindowMs?, neverSuppress?}]}.
type ruleDocument struct {
	Version int        `yaml:"version"`
	Rules   []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Match struct {
		EventType string         `yaml:"eventType"`
		Payload   map[string]any `yaml:"payload"`
	} `yaml:"match"`
	Severity       string   `yaml:"severity"`
	Audience       []string `yaml:"audience"`
	Channel        string   `yaml:"channel"`
	Template       string   `yaml:"template"`
	DedupeWindowMs *int64   `yaml:"dedupeWindowMs"`
	NeverSuppress  bool     `yaml:"neverSuppress"`
}

// parseRules decodes doc's rules into the internal Rule type, skipping
// (and logging via warn) any rule that fails validation rather than
// rejecting the whole document. warn may be nil.
func parseRules(data []byte, warn func(format string, args ...any)) ([]Rule, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}

	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode notification rules: %w", err)
	}
	if doc.Version != 1 {
		warn("notify: notification-rules.yaml has unrecognized version %d, expected 1; parsing anyway", doc.Version)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, spec := range doc.Rules {
		rule, err := spec.toRule(i)
		if err != nil {
			warn("notify: skipping invalid rule at index %d: %v", i, err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (spec ruleSpec) toRule(index int) (Rule, error) {
	if spec.Match.EventType == "" {
		return Rule{}, fmt.Errorf("match.eventType is required")
	}
	if spec.Channel == "" {
		return Rule{}, fmt.Errorf("channel is required")
	}
	if spec.Template == "" {
		return Rule{}, fmt.Errorf("template is required")
	}
	severity := Severity(spec.Severity)
	if !validSeverities[severity] {
		return Rule{}, fmt.Errorf("severity %q is not one of info, warn, critical", spec.Severity)
	}
	for _, aud := range spec.Audience {
		if !validAudiences[aud] {
			return Rule{}, fmt.Errorf("audience %q is not one of agent, team-lead, operator", aud)
		}
	}

	var dedupeWindow *time.Duration
	if spec.DedupeWindowMs != nil {
		d := time.Duration(*spec.DedupeWindowMs) * time.Millisecond
		dedupeWindow = &d
	}

	id := spec.Channel + ":" + spec.Match.EventType
	if id == ":" {
		id = fmt.Sprintf("rule-%d", index)
	}

	return Rule{
		ID:            id,
		Match:         Match{EventType: spec.Match.EventType, Payload: spec.Match.Payload},
		Severity:      severity,
		Audience:      spec.Audience,
		Channel:       spec.Channel,
		Template:      spec.Template,
		DedupeWindow:  dedupeWindow,
		NeverSuppress: spec.NeverSuppress,
	}, nil
}

// RuleWatcher reloads a Policy's rules from disk whenever the backing
// file changes, debounced so a burst of writes triggers a single reload.
type RuleWatcher struct {
	path     string
	policy   *Policy
	logger   logging.Logger
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRuleWatcher loads path once synchronously (returning an error if it
// is unreadable or malformed) before Start begins watching it for further
// changes.
func NewRuleWatcher(path string, policy *Policy, logger logging.Logger) (*RuleWatcher, error) {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	w := &RuleWatcher{
		path:     filepath.Clean(path),
		policy:   policy,
		logger:   logging.OrNop(logger),
		debounce: defaultRuleWatchDebounce,
		stopCh:   make(chan struct{}),
	}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Start begins watching the rules file's directory for changes.
func (w *RuleWatcher) Start() error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		_ = fsWatcher.Close()
		return err
	}
	w.mu.Lock()
	w.watcher = fsWatcher
	w.mu.Unlock()

	async.Go(w.logger, "notify.rules.watch", w.watchLoop)
	return nil
}

// Stop terminates the watcher. Safe to call multiple times.
func (w *RuleWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		w.mu.Unlock()
	})
}

func (w *RuleWatcher) watchLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("notify: rule watcher error: %v", err)
		}
	}
}

func (w *RuleWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		if err := w.reload(); err != nil {
			w.logger.Warn("notify: rule reload failed, keeping current rule set: %v", err)
		}
	})
}

// reload reads and parses the rules file. A file that is unreadable,
// malformed, or yields zero valid rules leaves the policy's current rule
// set untouched and returns an error; the caller logs it rather than
// propagating it into a crash.
func (w *RuleWatcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	rules, err := parseRules(data, w.logger.Warn)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return fmt.Errorf("notification rules file yielded zero valid rules")
	}
	w.policy.SetRules(rules)
	return nil
}
