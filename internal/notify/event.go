// Package notify publishes the outcome of a generation run as a CloudEvent.
package notify

import (
	"context"
	"errors"
	"time"

	"imagegen/internal/apperrors"
	"imagegen/internal/job"
	"imagegen/pkg/backoff"
	"imagegen/pkg/cloudevent"
)

// Event types for job completion callbacks
const (
	EventTypeSucceeded = "imagegen.job.succeeded"
	EventTypeFailed    = "imagegen.job.failed"
	EventTypeTimedOut  = "imagegen.job.timed_out"
)

const source = "imagegen"

const maxRetries = 3

// Notifier posts completion events to a callback URL.
type Notifier struct {
	url    string
	key    string
	sender *cloudevent.Sender

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a notifier. It returns nil when url is empty so callers can
// leave notifications disabled.
func New(url, key string, sender *cloudevent.Sender) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{url: url, key: key, sender: sender, sleep: backoff.Sleep}
}

// Notify implements job.Notifier. Server errors and transport failures are
// retried with exponential backoff; 4xx responses are not.
// A nil Notifier drops the event.
func (n *Notifier) Notify(ctx context.Context, j *job.Job, res *job.Result, err error) error {
	if n == nil {
		return nil
	}
	event := BuildEvent(j, res, err)

	var lastErr error
	for attempt := range maxRetries + 1 {
		if attempt > 0 {
			if serr := n.sleep(ctx, backoff.Exponential(attempt, nil)); serr != nil {
				return serr
			}
		}

		lastErr = n.sender.Send(ctx, n.url, event, n.key)
		if lastErr == nil || cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// BuildEvent creates the completion event for a terminal job.
func BuildEvent(j *job.Job, res *job.Result, err error) *cloudevent.CloudEvent {
	data := map[string]any{
		"jobId":    j.ID,
		"status":   string(j.Status),
		"attempts": j.Attempts,
	}

	eventType := EventTypeSucceeded
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		eventType = EventTypeTimedOut
	case err != nil:
		eventType = EventTypeFailed
	}

	if res != nil {
		data["artifactUrl"] = res.ArtifactURL
		data["location"] = res.Location
	}
	if err != nil {
		data["error"] = err.Error()
	}
	if j.Detail != "" {
		data["detail"] = j.Detail
	}
	return cloudevent.New(eventType, source, j.ID, data)
}
