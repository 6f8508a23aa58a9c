package analyzer

import (
	"context"
	"errors"
	"fmt"
)

// DefaultPageLimit is the page size requested from the tracker.
const DefaultPageLimit = 500

// Done is returned by Pager.Next once the sequence is exhausted.
var Done = errors.New("no more issues")

// Searcher runs one offset-limited search request.
type Searcher interface {
	Search(ctx context.Context, p Params, offset, limit int) ([]Issue, error)
}

// PageLimiter is implemented by searchers that serve at most MaxPageLimit
// issues per request.
type PageLimiter interface {
	MaxPageLimit() int
}

// Pager turns repeated search requests into a single-pass stream of issues.
// A page shorter than the limit ends the stream. A server that always returns
// full pages never terminates it.
type Pager struct {
	searcher Searcher
	params   Params
	limit    int
	offset   int

	buf  []Issue
	last bool
	err  error
}

// NewPager returns a Pager positioned at offset zero. A non-positive limit
// selects DefaultPageLimit. The limit is lowered to the searcher's maximum when
// s is a PageLimiter, otherwise a capped page would look like the last one.
func NewPager(s Searcher, p Params, limit int) *Pager {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if pl, ok := s.(PageLimiter); ok {
		if most := pl.MaxPageLimit(); most > 0 && limit > most {
			limit = most
		}
	}
	return &Pager{searcher: s, params: p, limit: limit}
}

// Next returns the next issue, Done at the end of the stream, or the error
// that stopped it. Once an error is returned every later call returns it too.
func (p *Pager) Next(ctx context.Context) (Issue, error) {
	for len(p.buf) == 0 {
		if p.err != nil {
			return Issue{}, p.err
		}
		if p.last {
			p.err = Done
			continue
		}
		p.err = p.fetch(ctx)
	}
	issue := p.buf[0]
	p.buf = p.buf[1:]
	return issue, nil
}

func (p *Pager) fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	page, err := p.searcher.Search(ctx, p.params, p.offset, p.limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
		}
		return err
	}
	p.buf = page
	if len(page) < p.limit {
		p.last = true
	} else {
		p.offset += p.limit
	}
	return nil
}

// Collect drains the pager. Partial results are discarded on error.
func Collect(ctx context.Context, p *Pager) ([]Issue, error) {
	var issues []Issue
	for {
		issue, err := p.Next(ctx)
		if errors.Is(err, Done) {
			return issues, nil
		}
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
}
