package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Backend is a tracker that can build, link and run the supported queries.
type Backend interface {
	Searcher
	Query(shape Shape, w Window, now time.Time) (Params, error)
	Narrow(p Params, s Severity) Params
	Link(p Params) string
}

// Analyzer is one metrics session. Every (shape, window) aggregation is
// computed at most once; results and failures are kept for the session's
// lifetime. All time windows end at the instant the session was created.
type Analyzer struct {
	backend Backend
	limit   int
	now     time.Time
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	caches [len(shapeNames)]resultCache
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithPageLimit sets the page size used for every search.
func WithPageLimit(limit int) Option {
	return func(a *Analyzer) { a.limit = limit }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithNow fixes the reference instant windows are measured from.
func WithNow(now time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer starts a session against backend.
func NewAnalyzer(backend Backend, opts ...Option) *Analyzer {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Analyzer{
		backend: backend,
		limit:   DefaultPageLimit,
		now:     time.Now(),
		logger:  log.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Now returns the session's reference instant.
func (a *Analyzer) Now() time.Time { return a.now }

// Abort cancels every in-flight and future fetch of the session. Results that
// already settled remain readable.
func (a *Analyzer) Abort() {
	a.cancel()
}

func normalize(shape Shape, w Window) (Window, error) {
	switch shape {
	case OpenTotal:
		return Unbounded, nil
	case ClosedInWindow, OpenedInWindow:
		if w < 0 {
			return 0, fmt.Errorf("%v query needs a bounded window, got %v", shape, w)
		}
		return w, nil
	default:
		return 0, fmt.Errorf("unknown query shape %v", shape)
	}
}

// start registers (or finds) the aggregation for shape and w without waiting.
func (a *Analyzer) start(shape Shape, w Window) (*result, error) {
	w, err := normalize(shape, w)
	if err != nil {
		return nil, err
	}
	return a.caches[shape].getOrStart(w, func() (Aggregate, error) {
		return a.compute(shape, w)
	}), nil
}

func (a *Analyzer) compute(shape Shape, w Window) (Aggregate, error) {
	logger := a.logger.With("shape", shape, "window", w)
	params, err := a.backend.Query(shape, w, a.now)
	if err != nil {
		return Aggregate{}, err
	}
	issues, err := Collect(a.ctx, NewPager(a.backend, params, a.limit))
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			logger.Warn("aggregation canceled")
		} else {
			logger.Error("aggregation failed", "err", err)
		}
		return Aggregate{}, err
	}
	agg := Reduce(issues)
	logger.Debug("aggregated", "total", agg.Total(), "weighted", agg.Weighted())
	return agg, nil
}

// Aggregate returns the full bucket table for shape and w. The open-total
// shape ignores w.
func (a *Analyzer) Aggregate(ctx context.Context, shape Shape, w Window) (Aggregate, error) {
	r, err := a.start(shape, w)
	if err != nil {
		return Aggregate{}, err
	}
	return r.wait(ctx)
}

// Count returns the number of defects matching shape within w.
func (a *Analyzer) Count(ctx context.Context, shape Shape, w Window) (int, error) {
	agg, err := a.Aggregate(ctx, shape, w)
	if err != nil {
		return 0, err
	}
	return agg.Total(), nil
}

// CountSeverity returns one bucket's count.
func (a *Analyzer) CountSeverity(ctx context.Context, shape Shape, w Window, s Severity) (int, error) {
	agg, err := a.Aggregate(ctx, shape, w)
	if err != nil {
		return 0, err
	}
	return agg.Count(s), nil
}

// Weighted returns the severity-weighted score for shape within w.
func (a *Analyzer) Weighted(ctx context.Context, shape Shape, w Window) (int, error) {
	agg, err := a.Aggregate(ctx, shape, w)
	if err != nil {
		return 0, err
	}
	return agg.Weighted(), nil
}

// OpenDefects counts every unresolved defect.
func (a *Analyzer) OpenDefects(ctx context.Context) (int, error) {
	return a.Count(ctx, OpenTotal, Unbounded)
}

// ClosedDefects counts defects resolved in the last w weeks.
func (a *Analyzer) ClosedDefects(ctx context.Context, w Window) (int, error) {
	return a.Count(ctx, ClosedInWindow, w)
}

// OpenedDefects counts defects filed in the last w weeks.
func (a *Analyzer) OpenedDefects(ctx context.Context, w Window) (int, error) {
	return a.Count(ctx, OpenedInWindow, w)
}

func (a *Analyzer) WeightedOpen(ctx context.Context) (int, error) {
	return a.Weighted(ctx, OpenTotal, Unbounded)
}

func (a *Analyzer) WeightedClosed(ctx context.Context, w Window) (int, error) {
	return a.Weighted(ctx, ClosedInWindow, w)
}

func (a *Analyzer) WeightedOpened(ctx context.Context, w Window) (int, error) {
	return a.Weighted(ctx, OpenedInWindow, w)
}

// weights starts every requested aggregation before waiting on any of them,
// so independent fetches overlap.
func (a *Analyzer) weights(ctx context.Context, shapes []Shape, w Window) ([]int, error) {
	pending := make([]*result, len(shapes))
	for i, shape := range shapes {
		r, err := a.start(shape, w)
		if err != nil {
			return nil, err
		}
		pending[i] = r
	}
	out := make([]int, len(shapes))
	for i, r := range pending {
		agg, err := r.wait(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = agg.Weighted()
	}
	return out, nil
}

// MaintenanceEffectiveness is the weighted closed/opened ratio over w, rounded
// to 2 significant digits below 1 and 3 otherwise. When nothing was opened it
// returns weighted closed + 1.
func (a *Analyzer) MaintenanceEffectiveness(ctx context.Context, w Window) (float64, error) {
	ws, err := a.weights(ctx, []Shape{ClosedInWindow, OpenedInWindow}, w)
	if err != nil {
		return 0, err
	}
	return effectiveness(ws[0], ws[1]), nil
}

// BurnDownTime projects the years needed to clear the open backlog at the
// net closure rate over w. It is +Inf when effectiveness exceeds 1.
func (a *Analyzer) BurnDownTime(ctx context.Context, w Window) (float64, error) {
	ws, err := a.weights(ctx, []Shape{OpenTotal, ClosedInWindow, OpenedInWindow}, w)
	if err != nil {
		return 0, err
	}
	open, closed, opened := ws[0], ws[1], ws[2]
	return burnDown(open, closed, opened, effectiveness(closed, opened), w), nil
}

// Link returns a browsable URL listing the issues behind shape and w.
func (a *Analyzer) Link(shape Shape, w Window) (string, error) {
	p, err := a.params(shape, w)
	if err != nil {
		return "", err
	}
	return a.backend.Link(p), nil
}

// SeverityLink is Link narrowed to one severity bucket.
func (a *Analyzer) SeverityLink(shape Shape, w Window, s Severity) (string, error) {
	p, err := a.params(shape, w)
	if err != nil {
		return "", err
	}
	return a.backend.Link(a.backend.Narrow(p, s)), nil
}

func (a *Analyzer) params(shape Shape, w Window) (Params, error) {
	w, err := normalize(shape, w)
	if err != nil {
		return nil, err
	}
	return a.backend.Query(shape, w, a.now)
}
