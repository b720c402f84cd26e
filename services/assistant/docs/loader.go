// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/projectassist/services/assistant/clients/confluence"
)

const tracerName = "projectassist.docs"

// refreshConcurrency bounds concurrent root crawls during Refresh.
const refreshConcurrency = 2

// Crawler fetches a page tree.
type Crawler interface {
	Crawl(ctx context.Context, rootID string) ([]confluence.Page, error)
}

// Loader fills an Index from the documentation host, going through the
// page cache when one is configured.
//
// Thread Safety: Safe for concurrent use.
type Loader struct {
	index   *Index
	crawler Crawler
	cache   PageCache
	pageURL func(*confluence.Page) string
	now     func() time.Time
	logger  *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCache sets the page cache.
func WithCache(c PageCache) LoaderOption {
	return func(l *Loader) { l.cache = c }
}

// WithPageURL sets how page web links are built.
func WithPageURL(fn func(*confluence.Page) string) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.pageURL = fn
		}
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader writing into index.
func NewLoader(index *Index, crawler Crawler, opts ...LoaderOption) *Loader {
	l := &Loader{
		index:   index,
		crawler: crawler,
		pageURL: func(p *confluence.Page) string { return p.Links.WebUI },
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Index is the index this loader fills.
func (l *Loader) Index() *Index { return l.index }

// Ingest loads the page tree under rootID into the index.
//
// Description:
//
//	Without force, an unexpired cache entry is used as is. Otherwise the
//	tree is crawled, saved to the cache and indexed in place of any
//	earlier copy of the same root. Cache failures are logged, not returned.
//
// Outputs:
//   - int: Pages indexed for this root.
//   - error: Non-nil when the crawl fails.
func (l *Loader) Ingest(ctx context.Context, rootID string, force bool) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "docs.Loader.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("root_id", rootID), attribute.Bool("force", force))

	if !force && l.cache != nil {
		docs, err := l.cache.Load(ctx, rootID)
		switch {
		case err == nil:
			l.index.ReplaceRoot(rootID, docs)
			span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Int("pages", len(docs)))
			return len(docs), nil
		case !errors.Is(err, ErrCacheMiss):
			l.logger.Warn("page cache load failed",
				slog.String("root_id", rootID),
				slog.String("error", err.Error()))
		}
	}

	pages, err := l.crawler.Crawl(ctx, rootID)
	if err != nil && len(pages) == 0 {
		span.RecordError(err)
		span.SetStatus(codes.Error, "crawl failed")
		return 0, fmt.Errorf("docs: ingesting %s: %w", rootID, err)
	}
	if err != nil {
		l.logger.Warn("partial crawl",
			slog.String("root_id", rootID),
			slog.Int("pages", len(pages)),
			slog.String("error", err.Error()))
	}

	docs := l.toDocuments(rootID, pages)
	l.index.ReplaceRoot(rootID, docs)
	if l.cache != nil && err == nil {
		if cerr := l.cache.Save(ctx, rootID, docs); cerr != nil {
			l.logger.Warn("page cache save failed",
				slog.String("root_id", rootID),
				slog.String("error", cerr.Error()))
		}
	}

	span.SetAttributes(attribute.Int("pages", len(docs)))
	l.logger.Info("documentation ingested",
		slog.String("root_id", rootID),
		slog.Int("pages", len(docs)))
	return len(docs), nil
}

// RefreshResult reports one root of a Refresh.
type RefreshResult struct {
	RootID string
	Pages  int
	Err    error
}

// Refresh re-crawls every root concurrently, bypassing the cache. One
// root failing does not stop the others.
func (l *Loader) Refresh(ctx context.Context, rootIDs []string) []RefreshResult {
	results := make([]RefreshResult, len(rootIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, id := range rootIDs {
		g.Go(func() error {
			n, err := l.Ingest(gctx, id, true)
			results[i] = RefreshResult{RootID: id, Pages: n, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (l *Loader) toDocuments(rootID string, pages []confluence.Page) []Document {
	now := l.now()
	docs := make([]Document, 0, len(pages))
	for i := range pages {
		p := &pages[i]
		docs = append(docs, Document{
			ID:        p.ID,
			RootID:    rootID,
			Title:     p.Title,
			Space:     p.SpaceKey(),
			URL:       l.pageURL(p),
			Content:   p.Text(),
			IndexedAt: now,
		})
	}
	return docs
}
