package analyzer

import (
	"errors"
	"math"
	"net/http"
	"sync"
	"testing"
)

func TestCountIsMemoized(t *testing.T) {
	f := newFakeTracker(t)
	f.bugs["closed"] = []string{"S1", "S2", "S2"}
	a := f.session(t, 500)
	ctx := testContext(t)

	for i := 0; i < 2; i++ {
		n, err := a.ClosedDefects(ctx, 4)
		if err != nil {
			t.Fatalf("ClosedDefects() error = %v", err)
		}
		if n != 3 {
			t.Errorf("ClosedDefects() = %d, want 3", n)
		}
	}
	if w, err := a.WeightedClosed(ctx, 4); err != nil || w != 18 {
		t.Errorf("WeightedClosed() = %d, %v; want 18", w, err)
	}
	if n, err := a.CountSeverity(ctx, ClosedInWindow, 4, S2); err != nil || n != 2 {
		t.Errorf("CountSeverity(S2) = %d, %v; want 2", n, err)
	}
	if got := f.count("closed"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	f := newFakeTracker(t)
	f.bugs["opened"] = repeat("S3", 25)
	a := f.session(t, 10)
	ctx := testContext(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := a.OpenedDefects(ctx, 2)
			if err == nil && n != 25 {
				err = errors.New("wrong count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	// 25 issues at 10 per page: 10, 10, 5
	if got := f.count("opened"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestWindowsAreCachedSeparately(t *testing.T) {
	f := newFakeTracker(t)
	f.bugs["closed"] = []string{"S1"}
	a := f.session(t, 500)
	ctx := testContext(t)

	for _, w := range []Window{4, 8} {
		if _, err := a.ClosedDefects(ctx, w); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.count("closed"); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
	if from := f.query(0).Get("chfieldfrom"); from == f.query(1).Get("chfieldfrom") {
		t.Errorf("windows 4 and 8 used the same lower bound %q", from)
	}

	if _, err := a.ClosedDefects(ctx, 4); err != nil {
		t.Fatal(err)
	}
	if got := f.count("closed"); got != 2 {
		t.Errorf("requests after repeat = %d, want 2", got)
	}
}

func TestOpenTotalIgnoresWindow(t *testing.T) {
	f := newFakeTracker(t)
	f.bugs["open"] = []string{"S1", "--"}
	a := f.session(t, 500)
	ctx := testContext(t)

	for _, w := range []Window{Unbounded, 3, 9} {
		n, err := a.Count(ctx, OpenTotal, w)
		if err != nil || n != 2 {
			t.Fatalf("Count(open, %v) = %d, %v", w, n, err)
		}
	}
	if got := f.count("open"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if got := a.caches[OpenTotal].len(); got != 1 {
		t.Errorf("open cache entries = %d, want 1", got)
	}
}

func TestUnboundedWindowRejectedForWindowedShapes(t *testing.T) {
	a := newFakeTracker(t).session(t, 500)
	if _, err := a.ClosedDefects(testContext(t), Unbounded); err == nil {
		t.Error("ClosedDefects(Unbounded) should fail")
	}
}

func TestTransportFailureIsCached(t *testing.T) {
	f := newFakeTracker(t)
	f.status["closed"] = http.StatusInternalServerError
	a := f.session(t, 500)
	ctx := testContext(t)

	_, err1 := a.ClosedDefects(ctx, 4)
	var terr *TransportError
	if !errors.As(err1, &terr) || terr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want TransportError with status 500", err1)
	}
	_, err2 := a.ClosedDefects(ctx, 4)
	if err2 != err1 {
		t.Errorf("second call error = %v, want the cached %v", err2, err1)
	}
	if got := f.count("closed"); got != 1 {
		t.Errorf("requests = %d, want 1 (no retry)", got)
	}
}

func TestMalformedResponse(t *testing.T) {
	f := newFakeTracker(t)
	f.raw["open"] = `{"faults":[]}`
	a := f.session(t, 500)
	ctx := testContext(t)

	_, err := a.OpenDefects(ctx)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
	if _, err := a.WeightedOpen(ctx); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("cached outcome = %v, want ErrMalformedResponse", err)
	}
}

func TestAbortCancelsPendingKeepsResolved(t *testing.T) {
	f := newFakeTracker(t)
	f.bugs["open"] = []string{"S1", "S2"}
	f.block["closed"] = true
	a := f.session(t, 500)
	ctx := testContext(t)

	if n, err := a.OpenDefects(ctx); err != nil || n != 2 {
		t.Fatalf("OpenDefects() = %d, %v", n, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.ClosedDefects(ctx, 4)
		done <- err
	}()
	<-f.entered
	a.Abort()

	if err := <-done; !errors.Is(err, ErrCanceled) {
		t.Fatalf("ClosedDefects() error = %v, want ErrCanceled", err)
	}
	if _, err := a.ClosedDefects(ctx, 4); !errors.Is(err, ErrCanceled) {
		t.Errorf("cached outcome = %v, want ErrCanceled", err)
	}
	if n, err := a.OpenDefects(ctx); err != nil || n != 2 {
		t.Errorf("OpenDefects() after abort = %d, %v; want 2, nil", n, err)
	}
	if _, err := a.OpenedDefects(ctx, 4); !errors.Is(err, ErrCanceled) {
		t.Errorf("new pair after abort = %v, want ErrCanceled", err)
	}
	if got := f.count("open"); got != 1 {
		t.Errorf("open requests = %d, want 1", got)
	}
	if got := f.count("opened"); got != 0 {
		t.Errorf("opened requests = %d, want 0", got)
	}
}

func TestMaintenanceEffectiveness(t *testing.T) {
	tests := []struct {
		name           string
		closed, opened []string
		want           float64
	}{
		{"ratio below one", repeat("S4", 5), repeat("S4", 11), 0.45},
		{"ratio above one", repeat("S2", 3), repeat("S4", 6), 2.5},
		{"nothing opened", repeat("S2", 1), nil, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTracker(t)
			f.bugs["closed"] = tt.closed
			f.bugs["opened"] = tt.opened
			a := f.session(t, 500)

			got, err := a.MaintenanceEffectiveness(testContext(t), 4)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("MaintenanceEffectiveness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBurnDownTime(t *testing.T) {
	t.Run("shrinking backlog", func(t *testing.T) {
		f := newFakeTracker(t)
		f.bugs["open"] = repeat("S1", 10)
		f.bugs["closed"] = repeat("S1", 4)
		f.bugs["opened"] = repeat("S1", 2)
		a := f.session(t, 500)

		got, err := a.BurnDownTime(testContext(t), 4)
		if err != nil {
			t.Fatal(err)
		}
		if !math.IsInf(got, 1) {
			t.Errorf("BurnDownTime() = %v, want +Inf", got)
		}
	})
	t.Run("growing backlog", func(t *testing.T) {
		f := newFakeTracker(t)
		f.bugs["open"] = repeat("S4", 52)
		f.bugs["closed"] = repeat("S4", 10)
		f.bugs["opened"] = repeat("S4", 20)
		a := f.session(t, 500)
		ctx := testContext(t)

		got, err := a.BurnDownTime(ctx, 26)
		if err != nil {
			t.Fatal(err)
		}
		if got != -2.6 {
			t.Errorf("BurnDownTime() = %v, want -2.6", got)
		}
		// effectiveness reuses the aggregations burn-down started
		if _, err := a.MaintenanceEffectiveness(ctx, 26); err != nil {
			t.Fatal(err)
		}
		for _, shape := range []string{"open", "closed", "opened"} {
			if got := f.count(shape); got != 1 {
				t.Errorf("%s requests = %d, want 1", shape, got)
			}
		}
	})
}

func TestLinks(t *testing.T) {
	a := newFakeTracker(t).session(t, 500)
	link, err := a.Link(ClosedInWindow, 4)
	if err != nil {
		t.Fatal(err)
	}
	sevLink, err := a.SeverityLink(ClosedInWindow, 4, S1)
	if err != nil {
		t.Fatal(err)
	}
	if sevLink != link+"&f2=bug_severity&o2=equals&v2=S1" {
		t.Errorf("SeverityLink() = %q, want %q + filter", sevLink, link)
	}
}
