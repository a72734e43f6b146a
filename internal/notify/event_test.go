package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"imagegen/internal/apperrors"
	"imagegen/internal/job"
	"imagegen/pkg/cloudevent"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()
	if n := New("", "key", cloudevent.NewSender(time.Second)); n != nil {
		t.Errorf("New(\"\") = %v, want nil", n)
	}
}

func TestBuildEvent(t *testing.T) {
	t.Parallel()
	succeeded := &job.Job{ID: "t1", Status: job.StatusSucceeded, Attempts: 3}
	failed := &job.Job{ID: "t2", Status: job.StatusFailed, Attempts: 1, Detail: "quota exceeded"}
	timedOut := &job.Job{ID: "t3", Status: job.StatusTimedOut, Attempts: 60}

	tests := []struct {
		name     string
		job      *job.Job
		res      *job.Result
		err      error
		wantType string
	}{
		{"succeeded", succeeded, &job.Result{ArtifactURL: "http://x/img.png", Location: "out.jpg"}, nil, EventTypeSucceeded},
		{"remote failure", failed, nil, apperrors.RemoteFailure("t2", "quota exceeded"), EventTypeFailed},
		{"timeout", timedOut, nil, apperrors.Timeout("t3", 60, nil), EventTypeTimedOut},
		{"download failure", succeeded, nil, apperrors.Download("http://x/img.png", 404, nil), EventTypeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			event := BuildEvent(tt.job, tt.res, tt.err)
			if event.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", event.Type, tt.wantType)
			}
			if event.Subject != tt.job.ID {
				t.Errorf("Subject = %q, want %q", event.Subject, tt.job.ID)
			}
			if _, ok := event.Data["error"]; ok != (tt.err != nil) {
				t.Errorf("error field present = %v, want %v", ok, tt.err != nil)
			}
		})
	}
}

func TestNotifier_Notify(t *testing.T) {
	t.Parallel()
	var got cloudevent.CloudEvent
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(cloudevent.SignatureHeader)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := New(server.URL, "secret", cloudevent.NewSender(time.Second))
	j := &job.Job{ID: "t1", Status: job.StatusFailed, Detail: "quota exceeded"}
	if err := n.Notify(context.Background(), j, nil, apperrors.RemoteFailure("t1", "quota exceeded")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if got.Type != EventTypeFailed {
		t.Errorf("Type = %q, want %q", got.Type, EventTypeFailed)
	}
	if got.Data["detail"] != "quota exceeded" {
		t.Errorf("detail = %v, want quota exceeded", got.Data["detail"])
	}
	if !cloudevent.Verify(body, "secret", signature) {
		t.Error("signature does not verify")
	}
}

func TestNotifier_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(server.URL, "", cloudevent.NewSender(time.Second))
	n.sleep = func(context.Context, time.Duration) error { return nil }

	j := &job.Job{ID: "t1", Status: job.StatusSucceeded}
	if err := n.Notify(context.Background(), j, &job.Result{Location: "out.jpg"}, nil); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNotifier_NoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	n := New(server.URL, "", cloudevent.NewSender(time.Second))
	n.sleep = func(context.Context, time.Duration) error { return nil }

	err := n.Notify(context.Background(), &job.Job{ID: "t1", Status: job.StatusFailed}, nil, apperrors.RemoteFailure("t1", ""))
	if !cloudevent.IsClientError(err) {
		t.Errorf("Notify() error = %v, want client error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestNotifier_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := New(server.URL, "", cloudevent.NewSender(time.Second))
	n.sleep = func(context.Context, time.Duration) error { return nil }

	if err := n.Notify(context.Background(), &job.Job{ID: "t1", Status: job.StatusTimedOut}, nil, nil); err == nil {
		t.Error("Notify() expected error")
	}
	if calls.Load() != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries+1)
	}
}

func TestNotifier_NilIsNoop(t *testing.T) {
	t.Parallel()

	var n *Notifier
	if err := n.Notify(context.Background(), &job.Job{ID: "t1"}, nil, nil); err != nil {
		t.Errorf("nil Notify() error = %v", err)
	}
}
