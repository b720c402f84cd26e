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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Markup
// =============================================================================

func TestStripMarkup(t *testing.T) {
	storage := `<h1>Release plan</h1><p>Ship &amp; celebrate</p><script>alert(1)</script>` +
		`<ac:task-list><ac:task><ac:task-status>complete</ac:task-status><ac:task-body>Write notes</ac:task-body></ac:task>` +
		`<ac:task><ac:task-status>incomplete</ac:task-status><ac:task-body>Tag <strong>release</strong></ac:task-body></ac:task></ac:task-list>` +
		`<ul><li>one</li><li>two</li></ul><style>p{}</style>`

	want := "Release plan\nShip & celebrate\n- [x] Write notes\n- [ ] Tag release\n- one\n- two"
	if got := StripMarkup(storage); got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestStripMarkup_MacroParametersDropped(t *testing.T) {
	storage := `<ac:structured-macro ac:name="info"><ac:parameter ac:name="title">ignored</ac:parameter>` +
		`<ac:rich-text-body><p>Heads up</p></ac:rich-text-body></ac:structured-macro>`
	if got := StripMarkup(storage); got != "Heads up" {
		t.Errorf("expected %q, got %q", "Heads up", got)
	}
}

func TestStripMarkup_Empty(t *testing.T) {
	if got := StripMarkup("   "); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

// =============================================================================
// Client
// =============================================================================

func TestClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("expand") != pageExpand {
			t.Errorf("expected expand %q, got %q", pageExpand, r.URL.Query().Get("expand"))
		}
		switch r.URL.Path {
		case "/wiki/rest/api/content/100":
			w.Write([]byte(`{"id": "100", "title": "Home", "space": {"key": "ENG"}, "body": {"storage": {"value": "<p>Hello</p>"}}, "_links": {"webui": "/spaces/ENG/pages/100/Home"}}`))
		case "/wiki/rest/api/content/100/child/page":
			if r.URL.Query().Get("limit") != "50" {
				t.Errorf("expected default limit, got %q", r.URL.Query().Get("limit"))
			}
			w.Write([]byte(`{"results": [{"id": "101", "title": "Child"}], "size": 1}`))
		case "/wiki/rest/api/content":
			if r.URL.Query().Get("title") == "Runbook" && r.URL.Query().Get("spaceKey") == "ENG" {
				w.Write([]byte(`{"results": [{"id": "200", "title": "Runbook"}]}`))
				return
			}
			w.Write([]byte(`{"results": []}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL + "/wiki", Username: "u", Token: "t"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	page, err := c.GetPage(ctx, "100")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if page.Title != "Home" || page.Text() != "Hello" || page.SpaceKey() != "ENG" {
		t.Errorf("unexpected page %+v", page)
	}
	if got := c.PageURL(page); got != server.URL+"/wiki/spaces/ENG/pages/100/Home" {
		t.Errorf("unexpected page URL %q", got)
	}

	children, err := c.ChildPages(ctx, "100", 0)
	if err != nil || len(children) != 1 || children[0].ID != "101" {
		t.Errorf("unexpected children %+v (%v)", children, err)
	}

	byTitle, err := c.GetPageByTitle(ctx, "ENG", "Runbook")
	if err != nil || byTitle.ID != "200" {
		t.Errorf("unexpected page by title %+v (%v)", byTitle, err)
	}
	if _, err := c.GetPageByTitle(ctx, "ENG", "Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.GetPage(ctx, "999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing page, got %v", err)
	}
}

// =============================================================================
// Crawler
// =============================================================================

type fakeFetcher struct {
	mu       sync.Mutex
	children map[string][]string
	failing  map[string]bool
	listed   []string
	times    []time.Time
}

func (f *fakeFetcher) GetPage(_ context.Context, id string) (*Page, error) {
	if f.failing[id] {
		return nil, ErrNotFound
	}
	return &Page{ID: id, Title: "page " + id}, nil
}

func (f *fakeFetcher) ChildPages(ctx context.Context, id string, _ int) ([]Page, error) {
	f.mu.Lock()
	f.listed = append(f.listed, id)
	f.times = append(f.times, time.Now())
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failing[id] {
		return nil, fmt.Errorf("boom")
	}
	var out []Page
	for _, c := range f.children[id] {
		out = append(out, Page{ID: c, Title: "page " + c})
	}
	return out, nil
}

func ids(pages []Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCrawl_BreadthFirstWithDepthLimit(t *testing.T) {
	f := &fakeFetcher{children: map[string][]string{
		"1": {"2", "3"},
		"2": {"4"},
		"3": {"5", "1"},
		"4": {"6"},
	}}
	c := NewCrawler(f, WithMaxDepth(2), WithDelay(0))

	pages, err := c.Crawl(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"1", "2", "3", "4", "5"}; !equal(ids(pages), want) {
		t.Errorf("expected %v, got %v", want, ids(pages))
	}
	if want := []string{"1", "2", "3"}; !equal(f.listed, want) {
		t.Errorf("expected children listed for %v, got %v", want, f.listed)
	}
}

func TestCrawl_DepthZeroFetchesRootOnly(t *testing.T) {
	f := &fakeFetcher{children: map[string][]string{"1": {"2"}}}
	pages, err := NewCrawler(f, WithMaxDepth(0), WithDelay(0)).Crawl(context.Background(), "1")
	if err != nil || len(pages) != 1 || len(f.listed) != 0 {
		t.Errorf("expected root only, got %v (%v), listed %v", ids(pages), err, f.listed)
	}
}

func TestCrawl_MaxPages(t *testing.T) {
	f := &fakeFetcher{children: map[string][]string{"1": {"2", "3", "4", "5"}}}
	pages, _ := NewCrawler(f, WithMaxPages(3), WithDelay(0)).Crawl(context.Background(), "1")
	if len(pages) != 3 {
		t.Errorf("expected 3 pages, got %v", ids(pages))
	}
}

func TestCrawl_ChildFailureIsSkipped(t *testing.T) {
	f := &fakeFetcher{
		children: map[string][]string{"1": {"2", "3"}, "3": {"4"}},
		failing:  map[string]bool{"2": true},
	}
	pages, err := NewCrawler(f, WithDelay(0)).Crawl(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"1", "2", "3", "4"}; !equal(ids(pages), want) {
		t.Errorf("expected %v, got %v", want, ids(pages))
	}
}

func TestCrawl_RootFailure(t *testing.T) {
	f := &fakeFetcher{failing: map[string]bool{"1": true}}
	_, err := NewCrawler(f).Crawl(context.Background(), "1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected wrapped ErrNotFound, got %v", err)
	}
}

func TestCrawl_RateLimited(t *testing.T) {
	f := &fakeFetcher{children: map[string][]string{"1": {"2", "3"}}}
	delay := 30 * time.Millisecond
	if _, err := NewCrawler(f, WithDelay(delay)).Crawl(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.times) != 3 {
		t.Fatalf("expected 3 child listings, got %d", len(f.times))
	}
	for i := 1; i < len(f.times); i++ {
		if gap := f.times[i].Sub(f.times[i-1]); gap < delay-5*time.Millisecond {
			t.Errorf("request %d came %v after the previous one, want >= %v", i, gap, delay)
		}
	}
}

func TestCrawl_Canceled(t *testing.T) {
	f := &fakeFetcher{children: map[string][]string{"1": {"2"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pages, err := NewCrawler(f, WithDelay(time.Hour)).Crawl(ctx, "1")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if len(pages) != 1 {
		t.Errorf("expected the root page to be returned, got %v", ids(pages))
	}
}
