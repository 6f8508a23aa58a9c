package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"
)

// DefaultAPIKeyHeader is the header Bugzilla reads API keys from.
const DefaultAPIKeyHeader = "X-BUGZILLA-API-KEY"

// BugzillaOptions configures a Bugzilla backend.
type BugzillaOptions struct {
	BaseURL      string
	Query        QueryOptions
	User         string
	APIKey       string
	APIKeyHeader string
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// Bugzilla searches a Bugzilla REST API.
type Bugzilla struct {
	base   *url.URL
	query  QueryOptions
	client *http.Client
	logger *log.Logger

	user      string
	apiKey    string
	keyHeader string

	authOnce sync.Once
	auth     http.Header
	authErr  error
}

// NewBugzilla validates opts and returns a backend rooted at opts.BaseURL.
func NewBugzilla(opts BugzillaOptions) (*Bugzilla, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	keyHeader := opts.APIKeyHeader
	if keyHeader == "" {
		keyHeader = DefaultAPIKeyHeader
	}
	return &Bugzilla{
		base:      base,
		query:     opts.Query,
		client:    client,
		logger:    logger.WithPrefix("bugzilla"),
		user:      opts.User,
		apiKey:    opts.APIKey,
		keyHeader: keyHeader,
	}, nil
}

// Query builds the search parameters for shape.
func (b *Bugzilla) Query(shape Shape, w Window, now time.Time) (Params, error) {
	return BuildQuery(b.query, shape, w, now)
}

// Narrow restricts p to a single severity bucket.
func (b *Bugzilla) Narrow(p Params, s Severity) Params {
	return p.With(SeverityFilter(s))
}

// Link renders a browsable bug list for p.
func (b *Bugzilla) Link(p Params) string {
	return b.endpoint("buglist.cgi", p)
}

type searchResponse struct {
	Bugs *[]Issue `json:"bugs"`
}

// Search requests one page of issues.
func (b *Bugzilla) Search(ctx context.Context, p Params, offset, limit int) ([]Issue, error) {
	header, err := b.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	q := append(Params{groupOf(pageWindow{Offset: offset, Limit: limit})}, p...)

	var resp searchResponse
	if err := b.get(ctx, "rest/bug", q, header, &resp); err != nil {
		return nil, err
	}
	if resp.Bugs == nil {
		return nil, fmt.Errorf("%w: missing bugs array", ErrMalformedResponse)
	}
	b.logger.Debug("fetched page", "offset", offset, "limit", limit, "count", len(*resp.Bugs))
	return *resp.Bugs, nil
}

type userResponse struct {
	Users []struct {
		ID int `json:"id"`
	} `json:"users"`
}

// authenticate resolves the configured user once per backend. Searches run
// anonymously when no credentials are configured or the user is unknown.
func (b *Bugzilla) authenticate(ctx context.Context) (http.Header, error) {
	b.authOnce.Do(func() {
		if b.user == "" || b.apiKey == "" {
			return
		}
		var resp userResponse
		q := Params{Values(url.Values{"names": {b.user}})}
		if err := b.get(ctx, "rest/user", q, nil, &resp); err != nil {
			b.authErr = fmt.Errorf("identity lookup: %w", err)
			return
		}
		if len(resp.Users) == 0 {
			b.logger.Warn("user not found, searching anonymously", "user", b.user)
			return
		}
		b.logger.Debug("resolved identity", "user", b.user, "id", resp.Users[0].ID)
		b.auth = http.Header{}
		b.auth.Set(b.keyHeader, b.apiKey)
	})
	return b.auth, b.authErr
}

func (b *Bugzilla) endpoint(path string, p Params) string {
	u := b.base.ResolveReference(&url.URL{Path: path})
	u.RawQuery = p.Encode()
	return u.String()
}

func (b *Bugzilla) get(ctx context.Context, path string, p Params, header http.Header, out any) error {
	target := b.endpoint(path, p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{URL: target, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
