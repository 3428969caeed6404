// Package testutil holds HTTP fixtures and fake clocks shared by package tests.
package testutil

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Route is one file served by a WordlistServer.
type Route struct {
	Body []byte
	// Statuses are returned, in order, before the body is served.
	Statuses []int
	// CutAfter truncates the first successful response after n bytes by
	// hijacking the connection, simulating a mid-transfer network drop.
	CutAfter int
	// NoRange makes the route ignore Range headers and always reply 200.
	NoRange bool
	// ContentType overrides the response content type.
	ContentType string
}

// WordlistServer is an httptest server with per-path failure injection and
// Range support, recording every request it receives.
type WordlistServer struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]*Route
	requests []*http.Request
	cut      map[string]bool
}

// NewWordlistServer starts a server; it is closed when the test ends.
func NewWordlistServer(t *testing.T, routes map[string]*Route) *WordlistServer {
	t.Helper()
	ws := &WordlistServer{routes: routes, cut: make(map[string]bool)}
	ws.Server = httptest.NewServer(http.HandlerFunc(ws.serve))
	t.Cleanup(ws.Close)
	return ws
}

// URLFor returns the absolute URL of path on the server.
func (ws *WordlistServer) URLFor(path string) string {
	return ws.URL + path
}

// Requests returns a snapshot of the requests seen for path.
func (ws *WordlistServer) Requests(path string) []*http.Request {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var out []*http.Request
	for _, r := range ws.requests {
		if r.URL.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (ws *WordlistServer) serve(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	ws.requests = append(ws.requests, r.Clone(r.Context()))
	route, ok := ws.routes[r.URL.Path]
	var status int
	if ok && len(route.Statuses) > 0 {
		status = route.Statuses[0]
		route.Statuses = route.Statuses[1:]
	}
	cutNow := ok && route.CutAfter > 0 && !ws.cut[r.URL.Path]
	if cutNow {
		ws.cut[r.URL.Path] = true
	}
	ws.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	if route.ContentType != "" {
		w.Header().Set("Content-Type", route.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}

	body := route.Body
	code := http.StatusOK
	if rng := r.Header.Get("Range"); rng != "" && !route.NoRange {
		start, err := parseRangeStart(rng)
		if err != nil || start > int64(len(body)) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(body)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if start == int64(len(body)) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(body)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(body)-1, len(body)))
		body = body[start:]
		code = http.StatusPartialContent
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))

	if r.Method == http.MethodHead {
		w.WriteHeader(code)
		return
	}

	if cutNow && route.CutAfter < len(body) {
		w.WriteHeader(code)
		_, _ = w.Write(body[:route.CutAfter])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
			}
		}
		return
	}

	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func parseRangeStart(header string) (int64, error) {
	rng, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, fmt.Errorf("unsupported range %q", header)
	}
	startStr, _, _ := strings.Cut(rng, "-")
	return strconv.ParseInt(startStr, 10, 64)
}

// Gzip compresses data for fixtures.
func Gzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip fixture: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip fixture: %v", err)
	}
	return buf.Bytes()
}

// RecordingTimer implements backoff.Timer. It fires immediately and records
// every requested wait, so retry loops run without sleeping.
type RecordingTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

// NewRecordingTimer returns a ready timer.
func NewRecordingTimer() *RecordingTimer {
	return &RecordingTimer{c: make(chan time.Time, 1)}
}

func (rt *RecordingTimer) Start(d time.Duration) {
	rt.mu.Lock()
	rt.waits = append(rt.waits, d)
	rt.mu.Unlock()
	select {
	case rt.c <- time.Now():
	default:
	}
}

func (rt *RecordingTimer) Stop() {}

func (rt *RecordingTimer) C() <-chan time.Time { return rt.c }

// Waits returns the durations requested so far.
func (rt *RecordingTimer) Waits() []time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]time.Duration(nil), rt.waits...)
}
