// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package domain decides which external service family an utterance targets
// before the issue-tracker classifier runs.
//
// Evaluation order is code host, then documentation. A nil result means the
// utterance belongs to the issue tracker.
package domain

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/projectassist/services/assistant/entities"
)

// Domain identifies an external service family.
type Domain string

const (
	CodeHost     Domain = "code_host"
	Docs         Domain = "docs"
	IssueTracker Domain = "issue_tracker"
)

// Code-host intents.
const (
	BitbucketLatestCommit  = "BITBUCKET_LATEST_COMMIT"
	BitbucketBranchCommits = "BITBUCKET_BRANCH_COMMITS"
	BitbucketRepos         = "BITBUCKET_REPOS"
	BitbucketCommits       = "BITBUCKET_COMMITS"
	BitbucketBranches      = "BITBUCKET_BRANCHES"
	BitbucketPullRequests  = "BITBUCKET_PULL_REQUESTS"
	BitbucketRepoInfo      = "BITBUCKET_REPO_INFO"
	BitbucketIssueChanges  = "BITBUCKET_ISSUE_CHANGES"
	BitbucketCommitDiff    = "BITBUCKET_COMMIT_DIFF"
	BitbucketGeneral       = "BITBUCKET_GENERAL"
)

// Documentation intents.
const (
	ConfluenceURL      = "CONFLUENCE_URL"
	ConfluenceRefresh  = "CONFLUENCE_REFRESH"
	ConfluenceStatus   = "CONFLUENCE_STATUS"
	ConfluenceQuestion = "CONFLUENCE_QUESTION"
)

// Metadata carries values captured by a detector. Empty fields were not
// present in the utterance.
type Metadata struct {
	Repository string
	Branch     string
	PRState    string
	IssueKey   string
	Commit     string
	URL        string
	PageID     string
}

// Intent is a routed, domain-prefixed intent.
type Intent struct {
	Domain   Domain
	Name     string
	Metadata Metadata
}

// IndexSizer reports how many documents are indexed.
type IndexSizer interface {
	Len() int
}

var routedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "projectassist",
		Subsystem: "router",
		Name:      "routed_total",
		Help:      "Utterances routed, by domain and intent.",
	},
	[]string{"domain", "intent"},
)

// Router routes utterances to a domain.
//
// Thread Safety: Router is safe for concurrent use. The IndexSizer must be
// safe for concurrent use.
type Router struct {
	index     IndexSizer
	docsHosts []string
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithIndex gates documentation questions on a non-empty index.
func WithIndex(index IndexSizer) Option {
	return func(r *Router) { r.index = index }
}

// WithDocsHosts adds host names whose URLs always route to documentation,
// e.g. "example.atlassian.net".
func WithDocsHosts(hosts ...string) Option {
	return func(r *Router) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				r.docsHosts = append(r.docsHosts, h)
			}
		}
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a Router.
func NewRouter(opts ...Option) *Router {
	r := &Router{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns the code-host intent if any, else the documentation intent
// if any, else nil.
func (r *Router) Route(utterance string) *Intent {
	if in := r.RouteCodeHost(utterance); in != nil {
		return r.observe(in)
	}
	if in := r.RouteDocs(utterance); in != nil {
		return r.observe(in)
	}
	routedTotal.WithLabelValues(string(IssueTracker), "").Inc()
	return nil
}

func (r *Router) observe(in *Intent) *Intent {
	routedTotal.WithLabelValues(string(in.Domain), in.Name).Inc()
	r.logger.Debug("utterance routed",
		slog.String("domain", string(in.Domain)),
		slog.String("intent", in.Name),
		slog.String("repository", in.Metadata.Repository),
		slog.String("branch", in.Metadata.Branch),
	)
	return in
}

var (
	punctuation = regexp.MustCompile(`[?!,;:"'()\[\]{}]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// normalize lowercases, strips punctuation and collapses whitespace. Dots,
// slashes, hyphens and underscores are kept because they occur in
// repository names, branch names and issue keys. Upper-case issue keys
// keep their case.
func normalize(s string) string {
	s = entities.FoldCase(s)
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.Trim(strings.TrimSpace(s), ".")
}
