// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docs holds the in-memory documentation index, its BM25 ranking,
// and the persistent page cache behind it.
package docs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var indexedPages = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "projectassist",
	Subsystem: "docs",
	Name:      "indexed_pages",
	Help:      "Number of documentation pages in the in-memory index",
})

// Document is one indexed page as plain text.
type Document struct {
	ID        string
	RootID    string
	Title     string
	Space     string
	URL       string
	Content   string
	IndexedAt time.Time
}

// Hit is one search result.
type Hit struct {
	Document Document
	Score    float64
}

// Index maps page id to document and ranks documents with BM25.
//
// Description:
//
//	The BM25 structures are rebuilt lazily on the first search after a
//	mutation, so bulk ingest costs one rebuild.
//
// Thread Safety: Index is safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	docs  map[string]Document
	order []string
	bm25  *bm25Index
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{docs: make(map[string]Document)}
}

// Len is the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Add inserts or replaces documents by id.
func (x *Index) Add(docs ...Document) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		if _, ok := x.docs[d.ID]; !ok {
			x.order = append(x.order, d.ID)
		}
		x.docs[d.ID] = d
	}
	x.bm25 = nil
	indexedPages.Set(float64(len(x.docs)))
}

// ReplaceRoot drops every document previously ingested under rootID and
// adds docs in their place.
func (x *Index) ReplaceRoot(rootID string, docs []Document) {
	x.mu.Lock()
	kept := x.order[:0]
	for _, id := range x.order {
		if x.docs[id].RootID == rootID {
			delete(x.docs, id)
			continue
		}
		kept = append(kept, id)
	}
	x.order = kept
	x.mu.Unlock()

	for i := range docs {
		docs[i].RootID = rootID
	}
	x.Add(docs...)
}

// Get returns the document with id.
func (x *Index) Get(id string) (Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.docs[id]
	return d, ok
}

// Titles lists document titles in ingest order.
func (x *Index) Titles() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, x.docs[id].Title)
	}
	return out
}

// Roots lists the distinct root ids in ingest order.
func (x *Index) Roots() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, id := range x.order {
		r := x.docs[id].RootID
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Search returns the top k documents for query, best first. Ties keep
// ingest order.
func (x *Index) Search(query string, k int) []Hit {
	x.mu.Lock()
	if x.bm25 == nil {
		snapshot := make([]Document, 0, len(x.order))
		for _, id := range x.order {
			snapshot = append(snapshot, x.docs[id])
		}
		x.bm25 = buildBM25(snapshot)
	}
	idx := x.bm25
	x.mu.Unlock()

	scores := idx.score(query)
	if len(scores) == 0 {
		return nil
	}

	x.mu.RLock()
	hits := make([]Hit, 0, len(scores))
	for _, id := range x.order {
		if s, ok := scores[id]; ok {
			hits = append(hits, Hit{Document: x.docs[id], Score: s})
		}
	}
	x.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Excerpt returns up to maxLen characters of content around the lines
// that share the most terms with query.
func Excerpt(content, query string, maxLen int) string {
	lines := strings.Split(content, "\n")
	want := make(map[string]bool)
	for _, t := range tokenize(query) {
		want[t] = true
	}

	best, bestScore := 0, -1
	for i, line := range lines {
		s := 0
		for _, t := range tokenize(line) {
			if want[t] {
				s++
			}
		}
		if s > bestScore {
			best, bestScore = i, s
		}
	}

	var b strings.Builder
	for i := best; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
		if b.Len() >= maxLen {
			break
		}
	}
	out := b.String()
	if maxLen > 0 && len(out) > maxLen {
		cut := strings.LastIndexAny(out[:maxLen], " \n")
		if cut <= 0 {
			cut = maxLen
		}
		out = strings.TrimSpace(out[:cut]) + "..."
	}
	return out
}
