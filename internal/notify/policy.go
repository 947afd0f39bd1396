// Package notify implements the notification policy layer between event
// emission and delivery: rule matching, severity resolution, dedupe, and
// template rendering. Delivery itself goes through the narrow Adapter
// contract; the adapters shipped here are stdout/file delivery and a
// PostHog event mirror (the daemon never talks to a specific chat
// platform directly).
package notify

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Seldon-Engine/aof/internal/eventlog"
)

// Severity is the resolved urgency of a rendered notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// DefaultDedupeWindow is the defaultDedupeWindowMs a Policy applies to any
// rule that doesn't set its own DedupeWindow.
const DefaultDedupeWindow = 300 * time.Second

// alwaysCritical is the fixed set of event types that escalate to
// critical severity regardless of rule configuration.
var alwaysCritical = map[string]bool{
	"lease.deadletter":       true,
	"gate.rejected":          true,
	"scheduler.adapter.down": true,
}

// Match narrows which events a Rule applies to. Payload, when non-empty,
// must be a subset of the event's payload (string-keyed equality).
type Match struct {
	EventType string
	Payload   map[string]any
}

// Rule is one entry in a NotificationPolicy, evaluated in order; the
// first match wins.
type Rule struct {
	ID       string
	Match    Match
	Severity Severity
	Audience []string // subset of {agent, team-lead, operator}
	Channel  string   // routing key the Fanout dispatches delivery by
	Template string

	// DedupeWindow overrides the policy's default dedupe window for this
	// rule. nil means "use the policy default"; a non-nil zero duration
	// means "never suppress, always send".
	DedupeWindow  *time.Duration
	NeverSuppress bool
}

// Policy is an ordered set of rules plus the dedupe cache shared across
// evaluations. Safe for concurrent use.
type Policy struct {
	rules         []Rule
	dedupe        *lru.LRU[string, time.Time]
	defaultWindow time.Duration
}

// NewPolicy builds a Policy from rules, using DefaultDedupeWindow for any
// rule that doesn't set its own DedupeWindow.
func NewPolicy(rules []Rule) *Policy {
	return NewPolicyWithDefaultWindow(rules, DefaultDedupeWindow)
}

// NewPolicyWithDefaultWindow is NewPolicy with an explicit
// defaultDedupeWindowMs, for operators that want a non-default fallback.
func NewPolicyWithDefaultWindow(rules []Rule, defaultWindow time.Duration) *Policy {
	cache := lru.NewLRU[string, time.Time](4096, nil, 24*time.Hour)
	return &Policy{rules: rules, dedupe: cache, defaultWindow: defaultWindow}
}

// SetRules replaces the rule set, e.g. after a hot reload. The dedupe
// cache is preserved across reloads so suppression windows survive.
func (p *Policy) SetRules(rules []Rule) {
	p.rules = rules
}

// Rendered is a notification ready for delivery.
type Rendered struct {
	RuleID   string
	Severity Severity
	Channel  string
	Audience []string
	Text     string
	TaskID   string
}

// Evaluate matches event against the policy's rules and, if matched and
// not suppressed by dedupe, returns a rendered notification.
func (p *Policy) Evaluate(event eventlog.Event, now time.Time) (Rendered, bool) {
	rule, ok := p.firstMatch(event)
	if !ok {
		return Rendered{}, false
	}

	severity := p.resolveSeverity(event.Type, rule)
	dedupeKey := event.TaskID
	if dedupeKey == "" {
		dedupeKey = "global"
	}
	dedupeKey += "|" + event.Type

	window := p.defaultWindow
	if rule.DedupeWindow != nil {
		window = *rule.DedupeWindow
	}

	if !rule.NeverSuppress && severity != SeverityCritical && window > 0 {
		if last, seen := p.dedupe.Get(dedupeKey); seen && now.Sub(last) < window {
			return Rendered{}, false
		}
	}
	p.dedupe.Add(dedupeKey, now)

	return Rendered{
		RuleID:   rule.ID,
		Severity: severity,
		Channel:  rule.Channel,
		Audience: rule.Audience,
		Text:     render(rule.Template, event),
		TaskID:   event.TaskID,
	}, true
}

func (p *Policy) firstMatch(event eventlog.Event) (Rule, bool) {
	for _, rule := range p.rules {
		if rule.Match.EventType != "" && rule.Match.EventType != event.Type {
			continue
		}
		if !payloadSubset(rule.Match.Payload, event.Payload) {
			continue
		}
		return rule, true
	}
	return Rule{}, false
}

func (p *Policy) resolveSeverity(eventType string, rule Rule) Severity {
	if alwaysCritical[eventType] {
		return SeverityCritical
	}
	if rule.Severity != "" {
		return rule.Severity
	}
	return SeverityInfo
}

func payloadSubset(want, have map[string]any) bool {
	for k, v := range want {
		hv, ok := have[k]
		if !ok || hv != v {
			return false
		}
	}
	return true
}

// render expands {taskId}, {actor}, and {field} placeholders from the
// event's payload. Unknown placeholders are left untouched.
func render(template string, event eventlog.Event) string {
	out := strings.ReplaceAll(template, "{taskId}", event.TaskID)
	out = strings.ReplaceAll(out, "{actor}", event.Actor)
	out = strings.ReplaceAll(out, "{eventType}", event.Type)
	for k, v := range event.Payload {
		out = strings.ReplaceAll(out, "{"+k+"}", toString(v))
	}
	return out
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
