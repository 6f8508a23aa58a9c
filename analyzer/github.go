package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// MaxGitHubPageLimit is the largest page GitHub's search API serves.
const MaxGitHubPageLimit = 100

const githubTimeLayout = "2006-01-02T15:04:05Z"

// GitHubOptions configures a GitHub issues backend.
type GitHubOptions struct {
	Owner          string
	Repo           string
	Token          string
	BugLabel       string
	SeverityPrefix string
	Timeout        time.Duration
	Logger         *log.Logger
}

// GitHub searches issues of one repository. Severity comes from labels named
// <prefix>S1 through <prefix>S4.
type GitHub struct {
	owner    string
	repo     string
	bugLabel string
	prefix   string
	client   *github.Client
	logger   *log.Logger
}

// NewGitHub creates a GitHub backend, authenticated when a token is given.
func NewGitHub(opts GitHubOptions) (*GitHub, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("github backend requires owner and repo")
	}
	httpClient := &http.Client{}
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	httpClient.Timeout = opts.Timeout
	return newGitHub(github.NewClient(httpClient), opts), nil
}

func newGitHub(client *github.Client, opts GitHubOptions) *GitHub {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	bugLabel := opts.BugLabel
	if bugLabel == "" {
		bugLabel = "bug"
	}
	return &GitHub{
		owner:    opts.Owner,
		repo:     opts.Repo,
		bugLabel: bugLabel,
		prefix:   opts.SeverityPrefix,
		client:   client,
		logger:   logger.WithPrefix("github"),
	}
}

func quoteLabel(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, "") + `"`
}

// Query builds the search string for shape, carried in a single "q" group.
func (g *GitHub) Query(shape Shape, w Window, now time.Time) (Params, error) {
	terms := []string{
		fmt.Sprintf("repo:%s/%s", g.owner, g.repo),
		"is:issue",
		"label:" + quoteLabel(g.bugLabel),
	}
	from, to := interval(w, now)
	span := from.Format(githubTimeLayout) + ".." + to.Format(githubTimeLayout)
	switch shape {
	case OpenTotal:
		terms = append(terms, "is:open")
	case ClosedInWindow:
		terms = append(terms, "is:closed", "closed:"+span)
	case OpenedInWindow:
		terms = append(terms, "created:"+span)
	default:
		return nil, fmt.Errorf("unknown query shape %v", shape)
	}
	return Params{Values(url.Values{"q": {strings.Join(terms, " ")}})}, nil
}

// Narrow restricts p to one bucket. Untriaged excludes every severity label.
func (g *GitHub) Narrow(p Params, s Severity) Params {
	q := p.Values().Get("q")
	if s == Untriaged {
		for _, known := range []Severity{S1, S2, S3, S4} {
			q += " -label:" + quoteLabel(g.prefix+known.String())
		}
	} else {
		q += " label:" + quoteLabel(g.prefix+s.String())
	}
	return Params{Values(url.Values{"q": {q}})}
}

// Link renders the repository's issue search page for p.
func (g *GitHub) Link(p Params) string {
	u := url.URL{
		Scheme:   "https",
		Host:     "github.com",
		Path:     fmt.Sprintf("/%s/%s/issues", g.owner, g.repo),
		RawQuery: p.Encode(),
	}
	return u.String()
}

// MaxPageLimit reports the largest page Search accepts.
func (g *GitHub) MaxPageLimit() int { return MaxGitHubPageLimit }

// Search maps offset/limit onto GitHub's page/per_page. offset must be a
// multiple of limit, which Pager guarantees. A limit above
// MaxGitHubPageLimit is rejected since GitHub would silently serve fewer.
func (g *GitHub) Search(ctx context.Context, p Params, offset, limit int) ([]Issue, error) {
	if limit <= 0 || limit > MaxGitHubPageLimit {
		return nil, fmt.Errorf("github search page limit %d outside 1..%d", limit, MaxGitHubPageLimit)
	}
	opts := &github.SearchOptions{
		ListOptions: github.ListOptions{Page: offset/limit + 1, PerPage: limit},
	}
	res, resp, err := g.client.Search.Issues(ctx, p.Values().Get("q"), opts)
	if err != nil {
		terr := &TransportError{URL: "search/issues", Err: err}
		if resp != nil {
			terr.StatusCode = resp.StatusCode
		}
		return nil, terr
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty search result", ErrMalformedResponse)
	}

	issues := make([]Issue, 0, len(res.Issues))
	for _, issue := range res.Issues {
		issues = append(issues, Issue{Severity: g.severityOf(issue)})
	}
	g.logger.Debug("fetched page", "page", opts.Page, "count", len(issues), "total", res.GetTotal())
	if err := g.checkRateLimit(ctx, resp); err != nil {
		return nil, err
	}
	return issues, nil
}

func (g *GitHub) severityOf(issue *github.Issue) string {
	for _, label := range issue.Labels {
		name, ok := strings.CutPrefix(label.GetName(), g.prefix)
		if !ok {
			continue
		}
		if s := ParseSeverity(name); s != Untriaged {
			return s.String()
		}
	}
	return ""
}

// checkRateLimit waits for the search quota to reset once it runs out.
func (g *GitHub) checkRateLimit(ctx context.Context, resp *github.Response) error {
	if resp == nil || resp.Rate.Remaining > 0 {
		return nil
	}
	wait := time.Until(resp.Rate.Reset.Time)
	if wait <= 0 {
		return nil
	}
	g.logger.Warn("search rate limit exhausted, waiting", "reset", resp.Rate.Reset.Time, "wait", wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
