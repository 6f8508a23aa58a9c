package main

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/raywall/defect-metrics/analyzer"
	"github.com/raywall/defect-metrics/config"
)

// newBackend builds the tracker client selected by cfg.
func newBackend(cfg *config.Config, logger *log.Logger) (analyzer.Backend, error) {
	switch cfg.Backend {
	case "bugzilla":
		return analyzer.NewBugzilla(analyzer.BugzillaOptions{
			BaseURL: cfg.Bugzilla.BaseURL,
			Query: analyzer.QueryOptions{
				Format:        cfg.Bugzilla.QueryFormat,
				IncludeFields: cfg.Bugzilla.IncludeFields,
				IssueType:     cfg.Bugzilla.BugType,
				Team:          cfg.Bugzilla.Team,
				Products:      cfg.Bugzilla.Products,
				Components:    cfg.Bugzilla.Components,
			},
			User:         cfg.Bugzilla.User,
			APIKey:       cfg.Bugzilla.APIKey(),
			APIKeyHeader: cfg.Bugzilla.APIKeyHeader,
			HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
			Logger:       logger,
		})
	case "github":
		return analyzer.NewGitHub(analyzer.GitHubOptions{
			Owner:          cfg.GitHub.Owner,
			Repo:           cfg.GitHub.Repo,
			Token:          cfg.GitHub.Token(),
			BugLabel:       cfg.GitHub.BugLabel,
			SeverityPrefix: cfg.GitHub.SeverityPrefix,
			Timeout:        cfg.HTTPTimeout,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// newSession starts an analyzer session for cfg.
func newSession(cfg *config.Config, logger *log.Logger) (*analyzer.Analyzer, error) {
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	return analyzer.NewAnalyzer(backend,
		analyzer.WithPageLimit(cfg.PageLimit),
		analyzer.WithLogger(logger),
	), nil
}
