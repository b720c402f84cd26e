// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bitbucket is the code-host client (Bitbucket Cloud API 2.0).
package bitbucket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/clients/atlassian"
)

const serviceName = "bitbucket"

// DefaultBaseURL is the Bitbucket Cloud API root.
const DefaultBaseURL = "https://api.bitbucket.org/2.0"

// MaxPageLen is the largest page size the API accepts.
const MaxPageLen = 100

var (
	// ErrNotFound is returned (via errors.Is) for unknown repositories.
	ErrNotFound = atlassian.ErrNotFound

	// ErrUnauthorized is returned (via errors.Is) for rejected credentials.
	ErrUnauthorized = atlassian.ErrUnauthorized
)

// Page is the {values} envelope every list endpoint returns.
type Page[T any] struct {
	Values  []T    `json:"values"`
	PageLen int    `json:"pagelen"`
	Size    int    `json:"size"`
	Next    string `json:"next,omitempty"`
}

// Link is one entry of a links object.
type Link struct {
	Href string `json:"href"`
}

// Links holds the HTML link of a resource.
type Links struct {
	HTML Link `json:"html"`
}

// Repository is a repository summary.
type Repository struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	IsPrivate   bool      `json:"is_private"`
	Size        int64     `json:"size"`
	UpdatedOn   time.Time `json:"updated_on"`
	MainBranch  *struct {
		Name string `json:"name"`
	} `json:"mainbranch,omitempty"`
	Links Links `json:"links"`
}

// Author is a commit author.
type Author struct {
	Raw  string `json:"raw"`
	User *struct {
		DisplayName string `json:"display_name"`
	} `json:"user,omitempty"`
}

// Name prefers the linked user's display name.
func (a Author) Name() string {
	if a.User != nil && a.User.DisplayName != "" {
		return a.User.DisplayName
	}
	if i := strings.Index(a.Raw, " <"); i > 0 {
		return a.Raw[:i]
	}
	return a.Raw
}

// Commit is one commit.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
	Author  Author    `json:"author"`
	Links   Links     `json:"links"`
}

// ShortHash is the first 7 characters of the hash.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// Summary is the first line of the message.
func (c Commit) Summary() string {
	line, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return line
}

// Branch is one branch and its head commit.
type Branch struct {
	Name   string `json:"name"`
	Target Commit `json:"target"`
}

// PullRequest is one pull request.
type PullRequest struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	State       string    `json:"state"`
	Author      *struct {
		DisplayName string `json:"display_name"`
	} `json:"author,omitempty"`
	Source struct {
		Branch struct {
			Name string `json:"name"`
		} `json:"branch"`
	} `json:"source"`
	Destination struct {
		Branch struct {
			Name string `json:"name"`
		} `json:"branch"`
	} `json:"destination"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
	Links     Links     `json:"links"`
}

// AuthorName is the author's display name, or "".
func (p PullRequest) AuthorName() string {
	if p.Author == nil {
		return ""
	}
	return p.Author.DisplayName
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Workspace string
	Username  string
	Token     string
}

// Client is a read-only Bitbucket client scoped to one workspace.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	transport *atlassian.Transport
	workspace string
}

// New creates a Client. An empty BaseURL means DefaultBaseURL.
func New(cfg Config, opts ...atlassian.Option) (*Client, error) {
	if strings.TrimSpace(cfg.Workspace) == "" {
		return nil, fmt.Errorf("bitbucket: workspace must not be empty")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	t, err := atlassian.NewTransport(serviceName, base,
		atlassian.Credentials{Username: cfg.Username, Token: cfg.Token}, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{transport: t, workspace: cfg.Workspace}, nil
}

// Workspace is the configured workspace.
func (c *Client) Workspace() string { return c.workspace }

func (c *Client) repoPath(repo string, parts ...string) string {
	p := "repositories/" + url.PathEscape(c.workspace) + "/" + url.PathEscape(repo)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func pageQuery(limit int) url.Values {
	if limit <= 0 || limit > MaxPageLen {
		limit = MaxPageLen
	}
	return url.Values{"pagelen": {strconv.Itoa(limit)}}
}

// ListRepos lists the workspace's repositories, most recently updated first.
func (c *Client) ListRepos(ctx context.Context, limit int) (*Page[Repository], error) {
	q := pageQuery(limit)
	q.Set("sort", "-updated_on")
	var out Page[Repository]
	if err := c.transport.GetJSON(ctx, "ListRepos", "repositories/"+url.PathEscape(c.workspace), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRepo fetches one repository.
func (c *Client) GetRepo(ctx context.Context, repo string) (*Repository, error) {
	var out Repository
	if err := c.transport.GetJSON(ctx, "GetRepo", c.repoPath(repo), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCommits lists commits reachable from branch, newest first. An empty
// branch lists across all branches.
func (c *Client) ListCommits(ctx context.Context, repo, branch string, limit int) (*Page[Commit], error) {
	path := c.repoPath(repo, "commits")
	if branch != "" {
		path += "/" + url.PathEscape(branch)
	}
	var out Page[Commit]
	if err := c.transport.GetJSON(ctx, "ListCommits", path, pageQuery(limit), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBranches lists branches, most recent head commit first.
func (c *Client) ListBranches(ctx context.Context, repo string, limit int) (*Page[Branch], error) {
	q := pageQuery(limit)
	q.Set("sort", "-target.date")
	var out Page[Branch]
	if err := c.transport.GetJSON(ctx, "ListBranches", c.repoPath(repo, "refs", "branches"), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPullRequests lists pull requests in state (OPEN, MERGED, DECLINED,
// SUPERSEDED; empty means OPEN).
//
// Description:
//
//	The state filter is sent upstream and then re-applied to the returned
//	values, since the server does not always honor it.
func (c *Client) ListPullRequests(ctx context.Context, repo, state string, limit int) (*Page[PullRequest], error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if state == "" {
		state = "OPEN"
	}
	q := pageQuery(limit)
	q.Set("state", state)

	var out Page[PullRequest]
	if err := c.transport.GetJSON(ctx, "ListPullRequests", c.repoPath(repo, "pullrequests"), q, &out); err != nil {
		return nil, err
	}

	kept := out.Values[:0]
	for _, pr := range out.Values {
		if strings.EqualFold(pr.State, state) {
			kept = append(kept, pr)
		}
	}
	out.Values = kept
	out.Size = len(kept)
	return &out, nil
}
