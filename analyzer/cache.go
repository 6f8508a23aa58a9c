package analyzer

import (
	"context"
	"sync"
)

// result is a single-assignment cell holding the outcome of one aggregation.
type result struct {
	done chan struct{}
	agg  Aggregate
	err  error
}

func (r *result) settle(agg Aggregate, err error) {
	r.agg, r.err = agg, err
	close(r.done)
}

// wait blocks until the cell settles or ctx is done. A caller giving up does
// not affect the computation or what later callers observe.
func (r *result) wait(ctx context.Context) (Aggregate, error) {
	select {
	case <-r.done:
		return r.agg, r.err
	default:
	}
	select {
	case <-r.done:
		return r.agg, r.err
	case <-ctx.Done():
		return Aggregate{}, ctx.Err()
	}
}

// resultCache memoizes aggregations per window for one query shape. Entries
// are never evicted; failures are kept like successes.
type resultCache struct {
	mu      sync.Mutex
	entries map[Window]*result
}

// getOrStart returns the cell for w, registering it and launching compute
// when absent. The cell is stored before compute runs so concurrent callers
// share one computation.
func (c *resultCache) getOrStart(w Window, compute func() (Aggregate, error)) *result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.entries[w]; ok {
		return r
	}
	if c.entries == nil {
		c.entries = make(map[Window]*result)
	}
	r := &result{done: make(chan struct{})}
	c.entries[w] = r
	go func() {
		r.settle(compute())
	}()
	return r
}

// len reports the number of registered windows.
func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
