// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jira is the issue-tracker client.
package jira

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/AleutianAI/projectassist/services/assistant/clients/atlassian"
)

const serviceName = "jira"

var (
	// ErrNotFound is returned (via errors.Is) for unknown issues.
	ErrNotFound = atlassian.ErrNotFound

	// ErrUnauthorized is returned (via errors.Is) for rejected credentials.
	ErrUnauthorized = atlassian.ErrUnauthorized
)

// StatusError is a non-2xx Jira response.
type StatusError = atlassian.StatusError

// Config configures a Client.
type Config struct {
	BaseURL  string
	Username string
	Token    string
}

// Client is a read-only Jira REST v2 client.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	transport *atlassian.Transport
}

// New creates a Client.
func New(cfg Config, opts ...atlassian.Option) (*Client, error) {
	t, err := atlassian.NewTransport(serviceName, cfg.BaseURL,
		atlassian.Credentials{Username: cfg.Username, Token: cfg.Token}, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{transport: t}, nil
}

// BrowseURL is the web URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return c.transport.BaseURL() + "/browse/" + url.PathEscape(key)
}

// Search runs a JQL query.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - jql: The query.
//   - maxResults: Result cap; 0 returns only the total.
//   - fields: Field names to return; empty means the server default.
//
// Outputs:
//   - *SearchResult: Matching issues and the total match count.
//   - error: *StatusError for non-2xx (400 for malformed JQL).
func (c *Client) Search(ctx context.Context, jql string, maxResults int, fields []string) (*SearchResult, error) {
	return c.SearchPage(ctx, jql, 0, maxResults, fields)
}

// SearchPage runs a JQL query starting at result offset startAt.
//
// Description:
//
//	Callers page through a result set by advancing startAt by the number
//	of issues returned until it reaches Total. Search is SearchPage at 0.
func (c *Client) SearchPage(ctx context.Context, jql string, startAt, maxResults int, fields []string) (*SearchResult, error) {
	q := url.Values{}
	q.Set("jql", jql)
	if startAt > 0 {
		q.Set("startAt", strconv.Itoa(startAt))
	}
	q.Set("maxResults", strconv.Itoa(maxResults))
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}

	var out SearchResult
	if err := c.transport.GetJSON(ctx, "Search", "rest/api/2/search", q, &out); err != nil {
		return nil, err
	}
	slog.Debug("jira search",
		slog.Int("start_at", startAt),
		slog.Int("total", out.Total),
		slog.Int("returned", len(out.Issues)),
	)
	return &out, nil
}

// Count returns the number of issues matching jql.
func (c *Client) Count(ctx context.Context, jql string) (int, error) {
	res, err := c.Search(ctx, jql, 0, []string{"key"})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// GetIssue fetches one issue by key.
func (c *Client) GetIssue(ctx context.Context, key string, fields []string) (*Issue, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return nil, fmt.Errorf("jira: issue key must not be empty")
	}
	q := url.Values{}
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}

	var out Issue
	if err := c.transport.GetJSON(ctx, "GetIssue", "rest/api/2/issue/"+url.PathEscape(key), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
