package notify

import (
	"context"
	"errors"

	"github.com/posthog/posthog-go"
)

const defaultPostHogHost = "https://app.posthog.com"

// PostHogAdapter mirrors every rendered notification into PostHog as a
// captured event, so notification volume and severity are queryable
// alongside the rest of an operator's product analytics.
type PostHogAdapter struct {
	client posthog.Client
}

// NewPostHogAdapter builds an Adapter backed by a PostHog project. host
// defaults to PostHog's cloud endpoint when empty.
func NewPostHogAdapter(apiKey, host string) (*PostHogAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("posthog api key is required")
	}
	endpoint := host
	if endpoint == "" {
		endpoint = defaultPostHogHost
	}
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: endpoint})
	if err != nil {
		return nil, err
	}
	return &PostHogAdapter{client: client}, nil
}

// Deliver implements Adapter.
func (a *PostHogAdapter) Deliver(_ context.Context, r Rendered) error {
	if a == nil || a.client == nil {
		return errors.New("posthog adapter not initialized")
	}
	distinctID := r.TaskID
	if distinctID == "" {
		distinctID = "unassigned"
	}
	props := posthog.NewProperties().
		Set("ruleId", r.RuleID).
		Set("severity", string(r.Severity)).
		Set("text", r.Text)
	return a.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      "aof.notification",
		Properties: props,
	})
}

// Close flushes buffered events and releases the underlying client.
func (a *PostHogAdapter) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
