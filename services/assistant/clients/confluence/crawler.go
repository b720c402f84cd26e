// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package confluence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const tracerName = "projectassist.confluence"

// Crawl limits.
const (
	DefaultMaxDepth   = 3
	DefaultDelay      = 250 * time.Millisecond
	DefaultMaxPages   = 500
	DefaultChildLimit = 50
)

// PageFetcher is the subset of Client the crawler needs.
type PageFetcher interface {
	GetPage(ctx context.Context, id string) (*Page, error)
	ChildPages(ctx context.Context, id string, limit int) ([]Page, error)
}

// Crawler walks a page tree breadth-first.
//
// Description:
//
//	Traversal is iterative over an explicit frontier, bounded by depth and
//	page count. Every request after the root waits on a rate limiter, so
//	the delay policy is independent of the traversal. A failed child
//	listing is logged and skipped; only a failed root fetch is an error.
//
// Thread Safety: A Crawler may run several crawls concurrently; they share
// the limiter.
type Crawler struct {
	fetcher    PageFetcher
	maxDepth   int
	maxPages   int
	childLimit int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithMaxDepth bounds the depth below the root; 0 fetches only the root.
func WithMaxDepth(d int) CrawlerOption {
	return func(c *Crawler) {
		if d >= 0 {
			c.maxDepth = d
		}
	}
}

// WithMaxPages bounds the number of pages returned.
func WithMaxPages(n int) CrawlerOption {
	return func(c *Crawler) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithDelay sets the minimum spacing between requests. Zero disables it.
func WithDelay(d time.Duration) CrawlerOption {
	return func(c *Crawler) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithCrawlerLogger sets the logger.
func WithCrawlerLogger(logger *slog.Logger) CrawlerOption {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCrawler creates a Crawler over fetcher.
func NewCrawler(fetcher PageFetcher, opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		fetcher:    fetcher,
		maxDepth:   DefaultMaxDepth,
		maxPages:   DefaultMaxPages,
		childLimit: DefaultChildLimit,
		limiter:    rate.NewLimiter(rate.Every(DefaultDelay), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type frontierItem struct {
	id    string
	depth int
}

// Crawl fetches rootID and its descendants.
//
// Outputs:
//   - []Page: Pages in breadth-first order, root first, each id once.
//   - error: Non-nil if the root cannot be fetched or ctx ends first.
func (c *Crawler) Crawl(ctx context.Context, rootID string) ([]Page, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "confluence.Crawler.Crawl")
	defer span.End()
	span.SetAttributes(attribute.String("root_id", rootID), attribute.Int("max_depth", c.maxDepth))

	root, err := c.fetcher.GetPage(ctx, rootID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "root fetch failed")
		return nil, fmt.Errorf("confluence: crawling %s: %w", rootID, err)
	}

	pages := []Page{*root}
	seen := map[string]bool{root.ID: true}
	frontier := []frontierItem{{id: root.ID, depth: 0}}

	for len(frontier) > 0 && len(pages) < c.maxPages {
		item := frontier[0]
		frontier = frontier[1:]
		if item.depth >= c.maxDepth {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return pages, fmt.Errorf("confluence: crawl interrupted: %w", err)
		}

		children, err := c.fetcher.ChildPages(ctx, item.id, c.childLimit)
		if err != nil {
			if ctx.Err() != nil {
				return pages, fmt.Errorf("confluence: crawl interrupted: %w", ctx.Err())
			}
			c.logger.Warn("skipping children of page",
				slog.String("page_id", item.id),
				slog.String("error", err.Error()))
			continue
		}
		for _, child := range children {
			if seen[child.ID] || len(pages) >= c.maxPages {
				continue
			}
			seen[child.ID] = true
			pages = append(pages, child)
			frontier = append(frontier, frontierItem{id: child.ID, depth: item.depth + 1})
		}
	}

	span.SetAttributes(attribute.Int("pages", len(pages)))
	c.logger.Info("confluence crawl complete",
		slog.String("root_id", rootID),
		slog.Int("pages", len(pages)))
	return pages, nil
}
