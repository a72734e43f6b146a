// Package cloudevent provides CloudEvents 1.0 types and an HTTP sender.
package cloudevent

import (
	"time"

	"github.com/google/uuid"
)

// SpecVersion is the CloudEvents specification version produced by New.
const SpecVersion = "1.0"

// CloudEvent represents a CloudEvents 1.0 specification event
type CloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            map[string]any `json:"data"`
}

// New creates a CloudEvent with a random identifier and the current time.
func New(eventType, source, subject string, data map[string]any) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}
