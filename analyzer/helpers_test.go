package analyzer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// fakeTracker serves rest/bug searches from canned severities per shape and
// counts the requests it receives.
type fakeTracker struct {
	mu       sync.Mutex
	bugs     map[string][]string
	requests map[string]int
	queries  []url.Values
	status   map[string]int
	raw      map[string]string
	block    map[string]bool
	entered  chan string
}

func newFakeTracker(t *testing.T) *fakeTracker {
	t.Helper()
	return &fakeTracker{
		bugs:     map[string][]string{},
		requests: map[string]int{},
		status:   map[string]int{},
		raw:      map[string]string{},
		block:    map[string]bool{},
		entered:  make(chan string, 16),
	}
}

func shapeOf(q url.Values) string {
	switch {
	case q.Get("o1") == "empty":
		return "open"
	case q.Get("chfield") == "cf_last_resolved":
		return "closed"
	case q.Get("chfield") == "[Bug creation]":
		return "opened"
	default:
		return "unknown"
	}
}

func (f *fakeTracker) count(shape string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[shape]
}

func (f *fakeTracker) query(i int) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[i]
}

func (f *fakeTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shape := shapeOf(q)

	f.mu.Lock()
	f.requests[shape]++
	f.queries = append(f.queries, q)
	status := f.status[shape]
	block := f.block[shape]
	raw, hasRaw := f.raw[shape]
	all := f.bugs[shape]
	f.mu.Unlock()

	if block {
		f.entered <- shape
		<-r.Context().Done()
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if hasRaw {
		_, _ = io.WriteString(w, raw)
		return
	}

	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	page := []Issue{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		page = append(page, Issue{Severity: all[i]})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"bugs": page})
}

func (f *fakeTracker) session(t *testing.T, limit int) *Analyzer {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	bz, err := NewBugzilla(BugzillaOptions{
		BaseURL:    srv.URL,
		Query:      DefaultQueryOptions(),
		HTTPClient: srv.Client(),
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewBugzilla() error = %v", err)
	}
	a := NewAnalyzer(bz, WithNow(testNow), WithPageLimit(limit), WithLogger(quietLogger()))
	t.Cleanup(a.Abort)
	return a
}

func repeat(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
