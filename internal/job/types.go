// Package job drives a single remote image generation task from submission to a
// materialized artifact.
package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Defaults applied to a Request.
const (
	DefaultModel  = "Tongyi-MAI/Z-Image-Turbo"
	DefaultOutput = "result_image.jpg"
)

// Status is the local view of a task's lifecycle.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT" // synthesized locally, never reported by the remote
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

// ErrTerminal is returned when a transition is attempted out of a terminal state.
var ErrTerminal = errors.New("job is already in a terminal state")

// Job is one remote unit of work.
type Job struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	Attempts  int      // status queries made so far
	Artifacts []string // output URLs, set on success
	Detail    string   // remote failure detail, set on failure
}

// New creates a job for an identifier assigned by the remote service.
func New(id string, createdAt time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    StatusSubmitted,
		CreatedAt: createdAt,
	}
}

// Transition moves the job to the given status.
// Terminal states are sticky: once reached, every transition fails with ErrTerminal.
func (j *Job) Transition(to Status) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminal, j.Status, to)
	}
	j.Status = to
	return nil
}

// RemoteStatus is one answer from the remote status endpoint.
type RemoteStatus struct {
	Status    string   // raw provider status string
	Artifacts []string // output URLs, in provider order
	Detail    string   // failure detail, if the provider supplied one
}

// classify maps a provider status onto the local state machine.
// Unknown strings are treated as in-progress so unannounced provider states
// never abort polling.
func classify(remote string) Status {
	switch remote {
	case "SUCCEED", "SUCCEEDED":
		return StatusSucceeded
	case "FAILED":
		return StatusFailed
	default:
		return StatusRunning
	}
}

// LoRAs selects the adapters applied to a generation: either a single adapter
// name or a mapping from adapter name to weight.
type LoRAs struct {
	Name    string
	Weights map[string]float64
}

// IsZero reports whether no adapter is configured.
func (l LoRAs) IsZero() bool {
	return l.Name == "" && len(l.Weights) == 0
}

// MarshalJSON encodes a single adapter as a string and several as an object.
func (l LoRAs) MarshalJSON() ([]byte, error) {
	switch {
	case len(l.Weights) > 0:
		return json.Marshal(l.Weights)
	case l.Name != "":
		return json.Marshal(l.Name)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts either form written by MarshalJSON.
func (l *LoRAs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = LoRAs{}
		return nil
	}
	if data[0] == '"' {
		*l = LoRAs{}
		return json.Unmarshal(data, &l.Name)
	}
	var weights map[string]float64
	if err := json.Unmarshal(data, &weights); err != nil {
		return fmt.Errorf("loras must be a name or a name->weight object: %w", err)
	}
	*l = LoRAs{Weights: weights}
	return nil
}

// Request describes one generation.
type Request struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	LoRAs  LoRAs  `json:"loras,omitzero"`
	Output string `json:"-"` // local path or s3://bucket/key
}

// Result is a materialized artifact.
type Result struct {
	JobID       string
	ArtifactURL string
	Location    string // where the artifact was written
	Bytes       int
}
