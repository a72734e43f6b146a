package modelscope

import (
	"encoding/json"
	"fmt"
	"strings"
)

type submitResponse struct {
	TaskID    string `json:"task_id"`
	RequestID string `json:"request_id,omitempty"`
}

type taskResponse struct {
	TaskStatus   string          `json:"task_status"`
	OutputImages []string        `json:"output_images"`
	Errors       json.RawMessage `json:"errors,omitempty"`
	Error        json.RawMessage `json:"error,omitempty"`
}

// remoteError is the structured failure payload some tasks carry.
type remoteError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// detail renders the remote failure payload as a single line.
func (r *taskResponse) detail() string {
	for _, raw := range []json.RawMessage{r.Errors, r.Error} {
		if d := renderError(raw); d != "" {
			return d
		}
	}
	return ""
}

func renderError(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" || trimmed == `""` {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var e remoteError
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		if e.Code != nil && fmt.Sprint(e.Code) != "" {
			return fmt.Sprintf("%s (code %v)", e.Message, e.Code)
		}
		return e.Message
	}
	return trimmed
}
