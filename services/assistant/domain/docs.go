// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package domain

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/AleutianAI/projectassist/services/assistant/entities"
)

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s<>"']+`)
	docsURLPattern = regexp.MustCompile(`(?i)(\.atlassian\.net/wiki|/confluence/|/wiki/spaces/|/display/|/pages/(viewpage\.action|\d+))`)
	pageIDPattern  = regexp.MustCompile(`(?i)(?:/pages/(\d+)|[?&]pageId=(\d+))`)

	docsRefreshPattern = regexp.MustCompile(`\b(refresh|reindex|re-index|reload|resync|re-sync|rebuild|recrawl|re-crawl|update)\b.*\b(docs?|documentation|documents|confluence|wiki|pages|knowledge base|index)\b`)
	docsStatusPattern  = regexp.MustCompile(`\b(docs?|documentation|confluence|wiki|index|knowledge base)\s+(status|stats|statistics)\b|\b(what|which)\s+(docs|documents|pages)\s+(are|have been|do you have)\b|\bhow many\s+(docs|documents|pages)\b|\bwhat do you know about the docs\b`)

	docsQuestionPattern = regexp.MustCompile(`^(what|how|when|where|why|who|which|explain|tell me|describe|find|search|look up|lookup|show me|is there|are there|can you|can i|do we|does|should|summarize)\b`)
	docsMention         = regexp.MustCompile(`\b(docs?|documentation|wiki|confluence|guide|handbook|runbook|playbook|policy|policies|onboarding|architecture|design doc|how-to|faq)\b`)

	// issueTrackerVocabulary keeps tracker questions out of the docs domain.
	issueTrackerVocabulary = regexp.MustCompile(`\b(tasks?|issues?|tickets?|bugs?|stor(y|ies)|epics?|sprints?|assigned|assignee|assign|blockers?|blocked|blocking|overdue|due|deadlines?|priority|priorities|status|workload|backlog|progress|comments?|working on|in progress|todo|to do|done)\b`)
	codeHostVocabulary     = regexp.MustCompile(`\b(commits?|branch(es)?|pull requests?|prs?|repos?|repository|repositories|merged?)\b`)
)

// RouteDocs returns a documentation intent or nil.
//
// Description:
//
//	Order: a documentation-host URL always wins, then refresh commands,
//	then status queries. Question-like utterances route to documentation
//	only when the index is non-empty and the utterance carries no
//	issue-tracker or code-host vocabulary.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Router) RouteDocs(utterance string) *Intent {
	if raw := r.docsURL(utterance); raw != "" {
		return &Intent{
			Domain:   Docs,
			Name:     ConfluenceURL,
			Metadata: Metadata{URL: raw, PageID: PageIDFromURL(raw)},
		}
	}

	norm := normalize(utterance)
	if norm == "" {
		return nil
	}
	if docsRefreshPattern.MatchString(norm) {
		return &Intent{Domain: Docs, Name: ConfluenceRefresh}
	}
	if docsStatusPattern.MatchString(norm) {
		return &Intent{Domain: Docs, Name: ConfluenceStatus}
	}

	if r.index == nil || r.index.Len() == 0 {
		return nil
	}
	if !docsQuestionPattern.MatchString(norm) && !docsMention.MatchString(norm) {
		return nil
	}
	if issueTrackerVocabulary.MatchString(norm) || codeHostVocabulary.MatchString(norm) {
		return nil
	}
	if entities.FirstIssueKey(utterance) != "" {
		return nil
	}
	return &Intent{Domain: Docs, Name: ConfluenceQuestion}
}

// docsURL returns the first URL in utterance that belongs to the docs host.
func (r *Router) docsURL(utterance string) string {
	for _, raw := range urlPattern.FindAllString(utterance, -1) {
		raw = strings.TrimRight(raw, ".,;:!?)")
		if docsURLPattern.MatchString(raw) {
			return raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		for _, h := range r.docsHosts {
			if host == h {
				return raw
			}
		}
	}
	return ""
}

// PageIDFromURL extracts a page id from "/pages/<id>" or "pageId=<id>".
func PageIDFromURL(raw string) string {
	m := pageIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
