// Package report gathers a session's metrics for several windows and renders
// them for humans or machines.
package report

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/raywall/defect-metrics/analyzer"
)

// Value is a float that survives JSON encoding when it is not finite.
type Value float64

// MarshalJSON renders ±Inf and NaN as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return json.Marshal(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return json.Marshal(f)
}

// Counts is one query's bucket table.
type Counts struct {
	S1        int    `json:"s1" yaml:"s1"`
	S2        int    `json:"s2" yaml:"s2"`
	S3        int    `json:"s3" yaml:"s3"`
	S4        int    `json:"s4" yaml:"s4"`
	Untriaged int    `json:"untriaged" yaml:"untriaged"`
	Total     int    `json:"total" yaml:"total"`
	Weighted  int    `json:"weighted" yaml:"weighted"`
	Link      string `json:"link,omitempty" yaml:"link,omitempty"`
}

func countsOf(agg analyzer.Aggregate, link string) Counts {
	return Counts{
		S1:        agg.Count(analyzer.S1),
		S2:        agg.Count(analyzer.S2),
		S3:        agg.Count(analyzer.S3),
		S4:        agg.Count(analyzer.S4),
		Untriaged: agg.Count(analyzer.Untriaged),
		Total:     agg.Total(),
		Weighted:  agg.Weighted(),
		Link:      link,
	}
}

// bySeverity lists the bucket counts in analyzer.Severities order.
func (c Counts) bySeverity() []int {
	return []int{c.S1, c.S2, c.S3, c.S4, c.Untriaged}
}

// Row holds the metrics for one trailing window.
type Row struct {
	Weeks         int    `json:"weeks" yaml:"weeks"`
	Closed        Counts `json:"closed" yaml:"closed"`
	Opened        Counts `json:"opened" yaml:"opened"`
	Effectiveness Value  `json:"maintenance_effectiveness" yaml:"maintenance_effectiveness"`
	BurnDownYears Value  `json:"burn_down_years" yaml:"burn_down_years"`
}

// Report is a snapshot of one session.
type Report struct {
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Open        Counts    `json:"open" yaml:"open"`
	Windows     []Row     `json:"windows" yaml:"windows"`
}

// Build computes every metric for the given windows. Windows are evaluated
// concurrently; the analyzer deduplicates the shared open-total query.
func Build(ctx context.Context, a *analyzer.Analyzer, windows []analyzer.Window) (*Report, error) {
	r := &Report{GeneratedAt: a.Now(), Windows: make([]Row, len(windows))}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		open, err := counts(gctx, a, analyzer.OpenTotal, analyzer.Unbounded)
		if err != nil {
			return err
		}
		r.Open = open
		return nil
	})
	for i, w := range windows {
		g.Go(func() error {
			row, err := buildRow(gctx, a, w)
			if err != nil {
				return fmt.Errorf("window %v: %w", w, err)
			}
			r.Windows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}

func counts(ctx context.Context, a *analyzer.Analyzer, shape analyzer.Shape, w analyzer.Window) (Counts, error) {
	agg, err := a.Aggregate(ctx, shape, w)
	if err != nil {
		return Counts{}, err
	}
	link, err := a.Link(shape, w)
	if err != nil {
		return Counts{}, err
	}
	return countsOf(agg, link), nil
}

func buildRow(ctx context.Context, a *analyzer.Analyzer, w analyzer.Window) (Row, error) {
	// burn-down needs all three aggregations and starts them together
	burn, err := a.BurnDownTime(ctx, w)
	if err != nil {
		return Row{}, err
	}
	eff, err := a.MaintenanceEffectiveness(ctx, w)
	if err != nil {
		return Row{}, err
	}
	closed, err := counts(ctx, a, analyzer.ClosedInWindow, w)
	if err != nil {
		return Row{}, err
	}
	opened, err := counts(ctx, a, analyzer.OpenedInWindow, w)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Weeks:         int(w),
		Closed:        closed,
		Opened:        opened,
		Effectiveness: Value(eff),
		BurnDownYears: Value(burn),
	}, nil
}
