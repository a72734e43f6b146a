package job

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeRemote answers status queries from a script.
type fakeRemote struct {
	mu sync.Mutex

	submitID  string
	submitErr error
	submits   int

	// reply returns the answer for the n-th status call (1-based).
	reply func(n int) (*RemoteStatus, error)
	calls int
}

func (f *fakeRemote) Submit(_ context.Context, _ string, _ *Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return f.submitID, f.submitErr
}

func (f *fakeRemote) Status(_ context.Context, _ string, _ string) (*RemoteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply(f.calls)
}

func (f *fakeRemote) statusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// sequence replies with the given statuses in order, repeating the last one.
func sequence(statuses ...*RemoteStatus) func(int) (*RemoteStatus, error) {
	return func(n int) (*RemoteStatus, error) {
		if n > len(statuses) {
			n = len(statuses)
		}
		return statuses[n-1], nil
	}
}

func running() *RemoteStatus { return &RemoteStatus{Status: "RUNNING"} }

func succeeded(urls ...string) *RemoteStatus {
	return &RemoteStatus{Status: "SUCCEED", Artifacts: urls}
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// testPoller returns a poller that records delays instead of sleeping.
func testPoller(checker StatusChecker, attempts int) (*Poller, *[]time.Duration) {
	p := NewPoller(checker, PollerConfig{MaxAttempts: attempts, Interval: 5 * time.Second})
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// imageServer serves a PNG at every path and counts requests per path.
func imageServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	data := pngBytes(t)
	var hits sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := hits.LoadOrStore(r.URL.Path, new(int))
		*(v.(*int))++
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}
