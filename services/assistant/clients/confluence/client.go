// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package confluence is the documentation-host client and page crawler.
package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/clients/atlassian"
)

const serviceName = "confluence"

const pageExpand = "body.storage,version,space"

var (
	// ErrNotFound is returned (via errors.Is) for unknown pages.
	ErrNotFound = atlassian.ErrNotFound

	// ErrUnauthorized is returned (via errors.Is) for rejected credentials.
	ErrUnauthorized = atlassian.ErrUnauthorized
)

// Page is one Confluence page with its storage-format body.
type Page struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Space *struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"space,omitempty"`
	Version *struct {
		Number int       `json:"number"`
		When   time.Time `json:"when"`
	} `json:"version,omitempty"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// Text is the page body with markup stripped.
func (p *Page) Text() string {
	return StripMarkup(p.Body.Storage.Value)
}

// SpaceKey is the page's space key, or "".
func (p *Page) SpaceKey() string {
	if p.Space == nil {
		return ""
	}
	return p.Space.Key
}

type contentList struct {
	Results []Page `json:"results"`
	Size    int    `json:"size"`
}

// Config configures a Client. BaseURL includes the /wiki prefix on cloud
// sites, e.g. https://acme.atlassian.net/wiki.
type Config struct {
	BaseURL  string
	Username string
	Token    string
}

// Client is a read-only Confluence REST client.
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

// BaseURL is the configured site URL.
func (c *Client) BaseURL() string { return c.transport.BaseURL() }

// PageURL is the web URL of a page.
func (c *Client) PageURL(p *Page) string {
	if p.Links.WebUI != "" {
		return c.transport.BaseURL() + p.Links.WebUI
	}
	return c.transport.BaseURL() + "/pages/viewpage.action?pageId=" + url.QueryEscape(p.ID)
}

// GetPage fetches a page by id.
func (c *Client) GetPage(ctx context.Context, id string) (*Page, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("confluence: page id must not be empty")
	}
	var out Page
	q := url.Values{"expand": {pageExpand}}
	if err := c.transport.GetJSON(ctx, "GetPage", "rest/api/content/"+url.PathEscape(id), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPageByTitle fetches the page with an exact title in a space.
func (c *Client) GetPageByTitle(ctx context.Context, spaceKey, title string) (*Page, error) {
	q := url.Values{
		"spaceKey": {spaceKey},
		"title":    {title},
		"type":     {"page"},
		"expand":   {pageExpand},
	}
	var out contentList
	if err := c.transport.GetJSON(ctx, "GetPageByTitle", "rest/api/content", q, &out); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("confluence: page %q in space %s: %w", title, spaceKey, ErrNotFound)
	}
	return &out.Results[0], nil
}

// ChildPages lists the direct children of a page, bodies included.
func (c *Client) ChildPages(ctx context.Context, id string, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = DefaultChildLimit
	}
	q := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"expand": {pageExpand},
	}
	var out contentList
	path := "rest/api/content/" + url.PathEscape(id) + "/child/page"
	if err := c.transport.GetJSON(ctx, "ChildPages", path, q, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
