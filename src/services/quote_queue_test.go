package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// recordingServer notes the arrival time and path of every request.
type recordingServer struct {
	mu      sync.Mutex
	arrived []time.Time
	paths   []string
	status  func(path string) int
}

func newRecordingServer(status func(path string) int) (*recordingServer, *httptest.Server) {
	rs := &recordingServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.arrived = append(rs.arrived, time.Now())
		rs.paths = append(rs.paths, r.URL.Path)
		rs.mu.Unlock()
		code := http.StatusOK
		if rs.status != nil {
			code = rs.status(r.URL.Path)
		}
		w.WriteHeader(code)
		w.Write([]byte(`{}`))
	}))
	return rs, srv
}

func TestQueueServicesRequestsInOrderWithSpacing(t *testing.T) {
	const spacing = 50 * time.Millisecond
	rs, srv := newRecordingServer(nil)
	defer srv.Close()

	q := NewQuoteRequestQueue(spacing, 8, srv.Client())
	defer q.Close()

	var wg sync.WaitGroup
	paths := []string{"/first", "/second", "/third"}
	for _, p := range paths {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Enqueue(context.Background(), srv.URL+p); err != nil {
				t.Errorf("Enqueue(%s) failed: %v", p, err)
			}
		}()
		// Give each goroutine time to land its entry in the channel
		// before submitting the next, so submission order is known.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.paths) != len(paths) {
		t.Fatalf("server saw %d requests, want %d", len(rs.paths), len(paths))
	}
	for i, p := range paths {
		if rs.paths[i] != p {
			t.Errorf("request %d hit %s, want %s (FIFO order violated)", i, rs.paths[i], p)
		}
	}
	// Leading-edge spacing: consecutive request starts are at least the
	// configured interval apart. Allow a little scheduling slack.
	const slack = 10 * time.Millisecond
	for i := 1; i < len(rs.arrived); i++ {
		gap := rs.arrived[i].Sub(rs.arrived[i-1])
		if gap < spacing-slack {
			t.Errorf("gap between request %d and %d was %s, want >= %s", i-1, i, gap, spacing)
		}
	}
}

func TestQueueSurfacesThrottleAndContinues(t *testing.T) {
	rs, srv := newRecordingServer(func(path string) int {
		if path == "/throttled" {
			return http.StatusTooManyRequests
		}
		return http.StatusOK
	})
	defer srv.Close()

	q := NewQuoteRequestQueue(time.Millisecond, 8, srv.Client())
	defer q.Close()

	first, err := q.Enqueue(context.Background(), srv.URL+"/ok-1")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if first.Throttled() {
		t.Error("first request unexpectedly throttled")
	}

	throttled, err := q.Enqueue(context.Background(), srv.URL+"/throttled")
	if err != nil {
		t.Fatalf("throttled request returned an error, want a result variant: %v", err)
	}
	if !throttled.Throttled() {
		t.Errorf("status = %d, want throttled variant", throttled.StatusCode)
	}

	// Throttling must not pause the queue.
	after, err := q.Enqueue(context.Background(), srv.URL+"/ok-2")
	if err != nil {
		t.Fatalf("request after throttle failed: %v", err)
	}
	if !after.OK() {
		t.Errorf("request after throttle got status %d", after.StatusCode)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.paths) != 3 {
		t.Errorf("server saw %d requests, want 3", len(rs.paths))
	}
}

func TestQueueEnqueueHonorsContextCancellation(t *testing.T) {
	_, srv := newRecordingServer(nil)
	defer srv.Close()

	q := NewQuoteRequestQueue(time.Millisecond, 8, srv.Client())
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Enqueue(ctx, srv.URL+"/abandoned"); err != context.Canceled {
		t.Errorf("Enqueue with cancelled context returned %v, want context.Canceled", err)
	}

	// The queue keeps working for other callers.
	if _, err := q.Enqueue(context.Background(), srv.URL+"/alive"); err != nil {
		t.Errorf("Enqueue after abandoned entry failed: %v", err)
	}
}

func TestQueueCloseRejectsNewWork(t *testing.T) {
	_, srv := newRecordingServer(nil)
	defer srv.Close()

	q := NewQuoteRequestQueue(time.Millisecond, 8, srv.Client())
	q.Close()

	// Close is asynchronous with respect to the worker; give it a beat.
	time.Sleep(10 * time.Millisecond)
	if _, err := q.Enqueue(context.Background(), srv.URL+"/late"); err != ErrQueueClosed {
		t.Errorf("Enqueue after Close returned %v, want ErrQueueClosed", err)
	}
}
