package analyzer

import (
	"errors"
	"fmt"
	"strconv"
)

// Window is a trailing time span measured in weeks. Unbounded means "all time"
// and is the only window used for the open-total shape.
type Window int

// Unbounded is the window sentinel for queries with no time restriction.
const Unbounded Window = -1

// Weeks builds a bounded window. Negative values are rejected.
func Weeks(n int) (Window, error) {
	if n < 0 {
		return 0, fmt.Errorf("invalid window: %d weeks", n)
	}
	return Window(n), nil
}

// IsUnbounded reports whether w is the "all time" sentinel.
func (w Window) IsUnbounded() bool { return w == Unbounded }

func (w Window) String() string {
	if w.IsUnbounded() {
		return "all"
	}
	return strconv.Itoa(int(w)) + "w"
}

// Shape selects one of the three supported queries.
type Shape int

const (
	OpenTotal Shape = iota
	ClosedInWindow
	OpenedInWindow
)

var shapeNames = [...]string{"open", "closed", "opened"}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return "shape(" + strconv.Itoa(int(s)) + ")"
	}
	return shapeNames[s]
}

// Severity is one of the five aggregation buckets.
type Severity int

const (
	S1 Severity = iota
	S2
	S3
	S4
	Untriaged

	numSeverities
)

var severityLabels = [numSeverities]string{"S1", "S2", "S3", "S4", "--"}

// severityWeights penalises untriaged defects at a mid-level weight.
var severityWeights = [numSeverities]int{8, 5, 2, 1, 3}

func (s Severity) String() string {
	if s < 0 || s >= numSeverities {
		return "severity(" + strconv.Itoa(int(s)) + ")"
	}
	return severityLabels[s]
}

// Weight returns the multiplier the bucket contributes to a weighted score.
func (s Severity) Weight() int {
	if s < 0 || s >= numSeverities {
		return 0
	}
	return severityWeights[s]
}

// Severities lists every bucket in display order.
func Severities() []Severity {
	return []Severity{S1, S2, S3, S4, Untriaged}
}

// ParseSeverity maps a tracker label to its bucket. Anything other than
// S1..S4 (including the empty string) is Untriaged.
func ParseSeverity(label string) Severity {
	switch label {
	case "S1":
		return S1
	case "S2":
		return S2
	case "S3":
		return S3
	case "S4":
		return S4
	default:
		return Untriaged
	}
}

// Issue holds the only field fetched for each defect.
type Issue struct {
	Severity string `json:"severity"`
}

// Aggregate is the immutable result of reducing one query's issues.
type Aggregate struct {
	counts   [numSeverities]int
	total    int
	weighted int
}

// Count returns the number of issues in the given bucket.
func (a Aggregate) Count(s Severity) int {
	if s < 0 || s >= numSeverities {
		return 0
	}
	return a.counts[s]
}

// Total is the sum of all bucket counts.
func (a Aggregate) Total() int { return a.total }

// Weighted is the severity-weighted score.
func (a Aggregate) Weighted() int { return a.weighted }

var (
	// ErrCanceled is returned when the session is aborted while a fetch is in flight.
	ErrCanceled = errors.New("analyzer: session canceled")
	// ErrMalformedResponse is returned when a search response lacks its issue list.
	ErrMalformedResponse = errors.New("analyzer: malformed search response")
)

// TransportError describes a failed request to the tracker.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }
