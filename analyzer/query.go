package analyzer

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

const week = 7 * 24 * time.Hour

// Group is one element of a query: either an already-encoded scalar or a
// key/value mapping whose values are escaped on encoding.
type Group struct {
	raw    string
	values url.Values
}

// Raw wraps an already-encoded query fragment. It is appended verbatim.
func Raw(s string) Group { return Group{raw: s} }

// Values wraps a key/value mapping.
func Values(v url.Values) Group { return Group{values: v} }

// groupOf encodes a struct tagged with `url:"..."` into a mapping group.
func groupOf(v any) Group {
	values, err := query.Values(v)
	if err != nil {
		// only reachable with a non-struct argument
		panic(fmt.Sprintf("analyzer: encode query group: %v", err))
	}
	return Values(values)
}

func (g Group) encode() string {
	if g.values == nil {
		return g.raw
	}
	return g.values.Encode()
}

// Params is an ordered list of groups that flattens into a single query string.
type Params []Group

// Encode joins every non-empty group with '&', preserving group order.
func (p Params) Encode() string {
	parts := make([]string, 0, len(p))
	for _, g := range p {
		if s := g.encode(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "&")
}

// Values merges all groups into a single mapping. Raw groups that are not
// valid query strings are skipped.
func (p Params) Values() url.Values {
	merged := url.Values{}
	for _, g := range p {
		values := g.values
		if values == nil {
			parsed, err := url.ParseQuery(g.raw)
			if err != nil {
				continue
			}
			values = parsed
		}
		for k, vs := range values {
			merged[k] = append(merged[k], vs...)
		}
	}
	return merged
}

// With returns a copy of p with extra groups appended.
func (p Params) With(groups ...Group) Params {
	out := make(Params, 0, len(p)+len(groups))
	out = append(out, p...)
	return append(out, groups...)
}

// QueryOptions carries the tracker-specific vocabulary shared by every query.
type QueryOptions struct {
	Format        string
	IncludeFields []string
	IssueType     string
	Team          string
	Products      []string
	Components    []string
}

// DefaultQueryOptions matches a stock Bugzilla installation.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Format:        "advanced",
		IncludeFields: []string{"severity"},
		IssueType:     "defect",
	}
}

type queryHeader struct {
	QueryFormat   string   `url:"query_format"`
	BugType       string   `url:"bug_type"`
	IncludeFields []string `url:"include_fields,comma"`
	Team          string   `url:"team_name,omitempty"`
	Products      []string `url:"product,omitempty"`
	Components    []string `url:"component,omitempty"`
}

type resolutionFilter struct {
	Field      string `url:"f1"`
	Operator   string `url:"o1"`
	Value      string `url:"v1,omitempty"`
	Resolution string `url:"resolution,omitempty"`
}

type changePeriod struct {
	Field string    `url:"chfield"`
	From  time.Time `url:"chfieldfrom"`
	To    time.Time `url:"chfieldto"`
}

type pageWindow struct {
	Offset int `url:"offset"`
	Limit  int `url:"limit"`
}

const unresolved = "---"

func header(o QueryOptions) Group {
	return groupOf(queryHeader{
		QueryFormat:   o.Format,
		BugType:       o.IssueType,
		IncludeFields: o.IncludeFields,
		Team:          o.Team,
		Products:      o.Products,
		Components:    o.Components,
	})
}

// interval converts a window into the [now-w, now] range used by time filters.
func interval(w Window, now time.Time) (from, to time.Time) {
	to = now.UTC()
	return to.Add(-time.Duration(w) * week), to
}

func period(field string, w Window, now time.Time) Group {
	from, to := interval(w, now)
	return groupOf(changePeriod{Field: field, From: from, To: to})
}

// OpenQuery selects every unresolved defect.
func OpenQuery(o QueryOptions) Params {
	return Params{
		header(o),
		groupOf(resolutionFilter{Field: "resolution", Operator: "empty", Resolution: unresolved}),
	}
}

// ClosedQuery selects defects resolved within the window.
func ClosedQuery(o QueryOptions, w Window, now time.Time) Params {
	return Params{
		header(o),
		groupOf(resolutionFilter{Field: "resolution", Operator: "notequals", Value: unresolved}),
		period("cf_last_resolved", w, now),
	}
}

// OpenedQuery selects defects created within the window, resolved or not.
func OpenedQuery(o QueryOptions, w Window, now time.Time) Params {
	return Params{
		header(o),
		period("[Bug creation]", w, now),
	}
}

// BuildQuery dispatches to the builder for shape.
func BuildQuery(o QueryOptions, shape Shape, w Window, now time.Time) (Params, error) {
	switch shape {
	case OpenTotal:
		return OpenQuery(o), nil
	case ClosedInWindow:
		return ClosedQuery(o, w, now), nil
	case OpenedInWindow:
		return OpenedQuery(o, w, now), nil
	default:
		return nil, fmt.Errorf("unknown query shape %v", shape)
	}
}

// SeverityFilter narrows a search to one bucket.
func SeverityFilter(s Severity) Group {
	return Raw("f2=bug_severity&o2=equals&v2=" + url.QueryEscape(s.String()))
}
