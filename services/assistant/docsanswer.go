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
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/projectassist/services/assistant/clients/confluence"
	"github.com/AleutianAI/projectassist/services/assistant/docs"
	"github.com/AleutianAI/projectassist/services/assistant/domain"
	"github.com/AleutianAI/projectassist/services/assistant/oracle"
	"github.com/AleutianAI/projectassist/services/llm"
)

// Document question parameters.
const (
	docHits         = 3
	docContextChars = 1500
	docExcerptChars = 400
	docStatusTitles = 20
	docsTemperature = 0.2
)

// DocsSource ingests and indexes documentation. *docs.Loader satisfies it.
type DocsSource interface {
	Ingest(ctx context.Context, rootID string, force bool) (int, error)
	Refresh(ctx context.Context, rootIDs []string) []docs.RefreshResult
	Index() *docs.Index
}

// PageResolver finds a page by title, for URLs that carry no page id.
// *confluence.Client satisfies it.
type PageResolver interface {
	GetPageByTitle(ctx context.Context, spaceKey, title string) (*confluence.Page, error)
}

const docsSystemPrompt = `You answer questions using only the documentation excerpts provided.
If the excerpts do not contain the answer, say so plainly.
Cite the page titles you used. Answer in concise markdown.`

// answerDocs answers a routed documentation intent.
func (a *Assistant) answerDocs(ctx context.Context, ans *answer, utterance string, in *domain.Intent) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "assistant.Assistant.answerDocs")
	defer span.End()
	span.SetAttributes(attribute.String("intent", in.Name))

	if a.docs == nil {
		return needParam("Documentation questions are not enabled. Configure a Confluence site to index pages.")
	}
	switch in.Name {
	case domain.ConfluenceURL:
		return a.ingestURL(ctx, ans, in.Metadata)
	case domain.ConfluenceRefresh:
		return a.refreshDocs(ctx, ans)
	case domain.ConfluenceStatus:
		a.docsStatus(ans)
		return nil
	case domain.ConfluenceQuestion:
		return a.answerDocQuestion(ctx, ans, utterance)
	}
	return fmt.Errorf("assistant: unhandled docs intent %q", in.Name)
}

func (a *Assistant) ingestURL(ctx context.Context, ans *answer, md domain.Metadata) error {
	id := md.PageID
	if id == "" {
		resolved, err := a.resolvePageID(ctx, md.URL)
		if err != nil {
			return err
		}
		id = resolved
	}
	n, err := a.docs.Ingest(ctx, id, false)
	if err != nil {
		return err
	}
	ans.results = n
	ans.markdown = fmt.Sprintf("Indexed %d page%s from %s. Ask me anything about %s.",
		n, plural(n), md.URL, pronoun(n))
	return nil
}

// resolvePageID finds the page id of a /display/SPACE/Title URL by title
// lookup.
func (a *Assistant) resolvePageID(ctx context.Context, raw string) (string, error) {
	space, title := SpaceAndTitle(raw)
	if a.pages == nil || space == "" || title == "" {
		return "", needParam("I couldn't find a page id in that link. Please share the page's full URL, e.g. one containing /pages/<id>.")
	}
	p, err := a.pages.GetPageByTitle(ctx, space, title)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// SpaceAndTitle extracts the space key and page title from a
// /display/SPACE/Title URL. Either is "" when absent.
func SpaceAndTitle(raw string) (space, title string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, s := range segs {
		if s == "display" && i+2 < len(segs) {
			t, err := url.PathUnescape(segs[i+2])
			if err != nil {
				t = segs[i+2]
			}
			return segs[i+1], strings.ReplaceAll(t, "+", " ")
		}
	}
	return "", ""
}

func (a *Assistant) refreshDocs(ctx context.Context, ans *answer) error {
	roots := append([]string(nil), a.docRoots...)
	for _, r := range a.docs.Index().Roots() {
		if !slices.Contains(roots, r) {
			roots = append(roots, r)
		}
	}
	if len(roots) == 0 {
		return needParam("There is no documentation to refresh yet. Share a Confluence page link to index it.")
	}

	results := a.docs.Refresh(ctx, roots)
	var b strings.Builder
	b.WriteString("### Documentation refresh\n\n")
	var failed int
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
			a.logger.Warn("docs refresh failed",
				slog.String("root_id", r.RootID),
				slog.String("error", llm.SafeLogString(r.Err.Error())))
			fmt.Fprintf(&b, "- Page %s: could not be refreshed\n", r.RootID)
			continue
		}
		ans.results += r.Pages
		fmt.Fprintf(&b, "- Page %s: %d page%s\n", r.RootID, r.Pages, plural(r.Pages))
	}
	if failed == len(results) {
		return firstErr
	}
	fmt.Fprintf(&b, "\n%d pages are now indexed.\n", a.docs.Index().Len())
	ans.markdown = b.String()
	return nil
}

func (a *Assistant) docsStatus(ans *answer) {
	idx := a.docs.Index()
	n := idx.Len()
	ans.results = n
	if n == 0 {
		ans.markdown = UserMessage(KindNotIndexed)
		return
	}
	titles := idx.Titles()
	var b strings.Builder
	fmt.Fprintf(&b, "### Indexed documentation\n\n%d page%s from %d root page%s.\n\n",
		n, plural(n), len(idx.Roots()), plural(len(idx.Roots())))
	shownTitles := titles
	if len(shownTitles) > docStatusTitles {
		shownTitles = shownTitles[:docStatusTitles]
	}
	for _, t := range shownTitles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	if rest := len(titles) - len(shownTitles); rest > 0 {
		fmt.Fprintf(&b, "- ...and %d more\n", rest)
	}
	ans.markdown = b.String()
}

// answerDocQuestion answers from the top BM25 hits, asking the oracle to
// summarize them and falling back to extracts.
func (a *Assistant) answerDocQuestion(ctx context.Context, ans *answer, question string) error {
	idx := a.docs.Index()
	if idx.Len() == 0 {
		return errNotIndexed
	}
	hits := idx.Search(question, docHits)
	ans.results = len(hits)
	if len(hits) == 0 {
		ans.markdown = "I couldn't find anything about that in the indexed documentation."
		return nil
	}

	if summary, ok := a.summarizeDocs(ctx, question, hits); ok {
		ans.usedOracle = true
		ans.markdown = summary + "\n\n" + sources(hits)
		return nil
	}

	var b strings.Builder
	b.WriteString("Here is what the documentation says:\n\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "**%s**\n> %s\n\n", h.Document.Title,
			strings.ReplaceAll(docs.Excerpt(h.Document.Content, question, docExcerptChars), "\n", "\n> "))
	}
	b.WriteString(sources(hits))
	ans.markdown = b.String()
	return nil
}

func (a *Assistant) summarizeDocs(ctx context.Context, question string, hits []docs.Hit) (string, bool) {
	if oracle.IsDisabled(a.oracle) {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, a.oracleTimeout)
	defer cancel()

	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "## %s\n%s\n\n", h.Document.Title,
			docs.Excerpt(h.Document.Content, question, docContextChars))
	}
	b.WriteString("Question: " + question)

	out, err := a.oracle.Complete(ctx, docsSystemPrompt, b.String(), docsTemperature)
	if err != nil {
		a.logger.Warn("docs summary failed; using excerpts",
			slog.String("error", llm.SafeLogString(err.Error())))
		return "", false
	}
	out = strings.TrimSpace(oracle.StripCodeFences(out))
	return out, out != ""
}

func sources(hits []docs.Hit) string {
	var b strings.Builder
	b.WriteString("**Sources**\n")
	for _, h := range hits {
		if h.Document.URL != "" {
			fmt.Fprintf(&b, "- [%s](%s)\n", h.Document.Title, h.Document.URL)
		} else {
			fmt.Fprintf(&b, "- %s\n", h.Document.Title)
		}
	}
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pronoun(n int) string {
	if n == 1 {
		return "it"
	}
	return "them"
}
