// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/AleutianAI/projectassist/services/assistant/clients/atlassian"
	"github.com/AleutianAI/projectassist/services/assistant/clients/bitbucket"
	"github.com/AleutianAI/projectassist/services/assistant/clients/confluence"
	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
	"github.com/AleutianAI/projectassist/services/assistant/docs"
	"github.com/AleutianAI/projectassist/services/assistant/domain"
	"github.com/AleutianAI/projectassist/services/assistant/intent"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/assistant/querygen"
	"github.com/AleutianAI/projectassist/services/assistant/session"
	"github.com/AleutianAI/projectassist/services/assistant/usage"
)

// Runtime is a fully wired assistant and the resources it owns.
type Runtime struct {
	Assistant *Assistant

	// Cache is nil when documentation is disabled.
	Cache *docs.BadgerPageCache

	// Loader is nil when documentation is disabled.
	Loader *docs.Loader

	closers []func() error
}

// Close releases the resources opened by Build.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires clients, classifier, generator, session store and the
// optional code host and documentation index from cfg.
//
// Outputs:
//   - *Runtime: Close it when done.
//   - error: Non-nil if a client or the rules cannot be built.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clientOpts := []atlassian.Option{atlassian.WithLogger(logger)}

	tracker, err := jira.New(jira.Config{
		BaseURL:  cfg.Jira.BaseURL,
		Username: cfg.Jira.Username,
		Token:    cfg.Jira.Token,
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("wire: issue tracker: %w", err)
	}

	orc, err := oracle.New(cfg.Oracle, logger)
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}

	rules, err := loadRules(ctx, cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	classifier, err := intent.NewClassifier(rules, orc,
		intent.WithOracleTimeout(cfg.OracleTimeout),
		intent.WithProjectKey(cfg.Jira.ProjectKey),
		intent.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	generator, err := querygen.NewGenerator(cfg.Jira.ProjectKey, orc,
		querygen.WithOracleTimeout(cfg.OracleTimeout), querygen.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}

	rt := &Runtime{}
	if cfg.WatchRules && cfg.RulesPath != "" {
		w, err := intent.NewRulesWatcher(classifier, cfg.RulesPath, intent.WithWatchLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
		rt.closers = append(rt.closers, w.Close)
		go w.Run(ctx)
	}
	opts := []Option{
		WithProse(cfg.Prose),
		WithOracleTimeout(cfg.OracleTimeout),
		WithLogger(logger),
	}
	routerOpts := []domain.Option{domain.WithLogger(logger)}

	if cfg.Usage.Enabled() {
		sink, err := usage.NewInfluxSink(usage.Config{
			URL:           cfg.Usage.URL,
			Org:           cfg.Usage.Org,
			Bucket:        cfg.Usage.Bucket,
			Token:         cfg.Usage.Token,
			FlushInterval: cfg.Usage.FlushInterval,
		}, logger)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("wire: %w", err)
		}
		rt.closers = append(rt.closers, sink.Close)
		opts = append(opts, WithUsageSink(sink))
	}

	if cfg.Bitbucket.Enabled() {
		code, err := bitbucket.New(bitbucket.Config{
			BaseURL:   cfg.Bitbucket.BaseURL,
			Workspace: cfg.Bitbucket.Workspace,
			Username:  cfg.Bitbucket.Username,
			Token:     cfg.Bitbucket.Token,
		}, clientOpts...)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("wire: code host: %w", err)
		}
		opts = append(opts, WithCodeHost(code, cfg.Bitbucket.DefaultRepo))
	}

	if cfg.Confluence.Enabled() {
		site, err := confluence.New(confluence.Config{
			BaseURL:  cfg.Confluence.BaseURL,
			Username: cfg.Confluence.Username,
			Token:    cfg.Confluence.Token,
		}, clientOpts...)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("wire: docs host: %w", err)
		}
		db, err := docs.OpenBadger(cfg.Confluence.CachePath)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("wire: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		cache, err := docs.NewBadgerPageCache(db, cfg.Confluence.CacheTTL, logger)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("wire: %w", err)
		}
		crawler := confluence.NewCrawler(site,
			confluence.WithMaxDepth(cfg.Confluence.MaxDepth),
			confluence.WithMaxPages(cfg.Confluence.MaxPages),
			confluence.WithDelay(cfg.Confluence.Delay),
			confluence.WithCrawlerLogger(logger),
		)
		loader := docs.NewLoader(docs.NewIndex(), crawler,
			docs.WithCache(cache),
			docs.WithPageURL(site.PageURL),
			docs.WithLoaderLogger(logger),
		)
		rt.Cache, rt.Loader = cache, loader
		opts = append(opts, WithDocs(loader, site, cfg.Confluence.RootPages...))
		routerOpts = append(routerOpts, domain.WithIndex(loader.Index()))
		if u, err := url.Parse(cfg.Confluence.BaseURL); err == nil && u.Hostname() != "" {
			routerOpts = append(routerOpts, domain.WithDocsHosts(u.Hostname()))
		}
	}

	a, err := New(Deps{
		Tracker:    tracker,
		Classifier: classifier,
		Generator:  generator,
		Store:      session.NewStore(session.WithLogger(logger)),
		Router:     domain.NewRouter(routerOpts...),
		Oracle:     orc,
	}, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Assistant = a
	return rt, nil
}

// Handlers returns the HTTP handlers for the runtime's assistant.
func (r *Runtime) Handlers() *Handlers {
	if r.Cache == nil {
		return NewHandlers(r.Assistant, nil)
	}
	return NewHandlers(r.Assistant, r.Cache)
}

// Preload ingests the configured root pages, using unexpired cache
// entries. Failures are logged and skipped.
func (r *Runtime) Preload(ctx context.Context, roots []string, logger *slog.Logger) int {
	if r.Loader == nil || len(roots) == 0 {
		return 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	var total int
	for _, id := range roots {
		n, err := r.Loader.Ingest(ctx, id, false)
		if err != nil {
			logger.Warn("preloading docs root failed",
				slog.String("root_id", id),
				slog.String("error", err.Error()))
			continue
		}
		total += n
	}
	logger.Info("docs preloaded", slog.Int("roots", len(roots)), slog.Int("pages", total))
	return total
}

func loadRules(ctx context.Context, path string) (*intent.Rules, error) {
	if path != "" {
		return intent.LoadRulesFile(ctx, path)
	}
	return intent.DefaultRules(ctx)
}
